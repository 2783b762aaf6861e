// Command casegatectl administers compliance rules and inspects cases
// directly against the casegate database.
//
// Usage:
//
//	casegatectl rules lint rules/default.yaml
//	casegatectl rules import rules/default.yaml
//	casegatectl rules list --org org-default
//	casegatectl case check <case-id> --target service
//	casegatectl case sync <case-id>
//	casegatectl case sweep
package main

func main() {
	Execute()
}
