package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"casegate/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates any missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func mapNoRows(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode case fields: %w", err)
	}
	return string(b), nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode case fields: %w", err)
	}
	return fields, nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, c domain.Case) error {
	fields, err := encodeFields(c.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (id, organization_id, stage, disposition, service_type, fields)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, c.ID, c.OrganizationID, c.Stage, c.Disposition, c.ServiceType, fields)
	return err
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	var c domain.Case
	var serviceType sql.NullString
	var rawFields []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, stage, disposition, service_type, fields, created_at, updated_at
		FROM cases
		WHERE id = $1
	`, caseID)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Stage, &c.Disposition, &serviceType, &rawFields, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Case{}, mapNoRows(err, "case", caseID)
	}
	if serviceType.Valid {
		c.ServiceType = &serviceType.String
	}
	fields, err := decodeFields(rawFields)
	if err != nil {
		return domain.Case{}, err
	}
	c.Fields = fields
	return c, nil
}

// UpdateCaseFields merges fields into the case's field bag.
func (s *PostgresStore) UpdateCaseFields(ctx context.Context, caseID string, fields map[string]any) (domain.Case, error) {
	patch, err := encodeFields(fields)
	if err != nil {
		return domain.Case{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET fields = fields || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`, caseID, patch)
	if err != nil {
		return domain.Case{}, err
	}
	if err := requireRow(res, "case", caseID); err != nil {
		return domain.Case{}, err
	}
	return s.GetCase(ctx, caseID)
}

func (s *PostgresStore) SetCaseStage(ctx context.Context, caseID string, stage domain.Stage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET stage = $2, updated_at = NOW()
		WHERE id = $1
	`, caseID, stage)
	if err != nil {
		return err
	}
	return requireRow(res, "case", caseID)
}

func (s *PostgresStore) ListOpenCaseIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM cases WHERE stage <> $1 ORDER BY id`, domain.StageClose)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, case_id, name, tag, status, object_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, d.ID, d.CaseID, d.Name, d.Tag, d.Status, d.ObjectKey)
	return err
}

const documentColumns = `id, case_id, name, tag, status, COALESCE(object_key, ''), envelope_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (domain.Document, error) {
	var d domain.Document
	var envelopeID sql.NullString
	if err := row.Scan(&d.ID, &d.CaseID, &d.Name, &d.Tag, &d.Status, &d.ObjectKey, &envelopeID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.Document{}, err
	}
	if envelopeID.Valid {
		d.EnvelopeID = &envelopeID.String
	}
	return d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID))
	if err != nil {
		return domain.Document{}, mapNoRows(err, "document", documentID)
	}
	return d, nil
}

func (s *PostgresStore) GetDocumentByEnvelope(ctx context.Context, envelopeID string) (domain.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE envelope_id = $1
		   OR id = (SELECT document_id FROM signature_requests WHERE envelope_id = $1)
		LIMIT 1
	`, envelopeID))
	if err != nil {
		return domain.Document{}, mapNoRows(err, "envelope", envelopeID)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE case_id = $1 ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, documentID, status)
	if err != nil {
		return err
	}
	return requireRow(res, "document", documentID)
}

func (s *PostgresStore) SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET object_key = $2, updated_at = NOW()
		WHERE id = $1
	`, documentID, objectKey)
	if err != nil {
		return err
	}
	return requireRow(res, "document", documentID)
}

// AttachEnvelope links an envelope to its document and opens the signature
// request that mirrors it. The document keeps its current envelope when that
// one was first seen later, ordered by created_at and then seq.
func (s *PostgresStore) AttachEnvelope(ctx context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT envelope_id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&current)
	if err != nil {
		return mapNoRows(err, "document", documentID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signature_requests (envelope_id, document_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (envelope_id) DO NOTHING
	`, envelopeID, documentID, status, at)
	if err != nil {
		return err
	}

	if current.Valid && current.String != envelopeID {
		var superseded bool
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE((
				SELECT (cur.created_at, cur.seq) > (cand.created_at, cand.seq)
				FROM signature_requests cur, signature_requests cand
				WHERE cur.envelope_id = $1 AND cand.envelope_id = $2
			), false)
		`, current.String, envelopeID).Scan(&superseded)
		if err != nil {
			return err
		}
		if superseded {
			return tx.Commit()
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET envelope_id = $2, updated_at = $3
		WHERE id = $1
	`, documentID, envelopeID, at)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RecordEnvelopeStatus upserts the signature request. Terminal rows are
// left as they are.
func (s *PostgresStore) RecordEnvelopeStatus(ctx context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signature_requests (envelope_id, document_id, status, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, CASE WHEN $3 = 'completed' THEN $4::timestamptz END, $4, $4)
		ON CONFLICT (envelope_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = COALESCE(EXCLUDED.completed_at, signature_requests.completed_at),
			updated_at = EXCLUDED.updated_at
		WHERE signature_requests.status NOT IN ('completed', 'declined', 'expired', 'cancelled')
	`, envelopeID, documentID, status, at)
	return err
}

func (s *PostgresStore) RecordSignerStatus(ctx context.Context, envelopeID, signerID, email string, status domain.SignerStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signature_request_signers (envelope_id, signer_id, email, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (envelope_id, signer_id) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email = '' THEN signature_request_signers.email ELSE EXCLUDED.email END,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE signature_request_signers.status NOT IN ('signed', 'declined')
	`, envelopeID, signerID, email, status, at)
	return err
}

func (s *PostgresStore) GetSignatureRequest(ctx context.Context, envelopeID string) (domain.SignatureRequest, error) {
	var req domain.SignatureRequest
	var completedAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `
		SELECT envelope_id, document_id, status, completed_at, created_at, updated_at
		FROM signature_requests
		WHERE envelope_id = $1
	`, envelopeID)
	if err := row.Scan(&req.EnvelopeID, &req.DocumentID, &req.Status, &completedAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return domain.SignatureRequest{}, mapNoRows(err, "signature request", envelopeID)
	}
	req.ID = req.EnvelopeID
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	return req, nil
}

func (s *PostgresStore) UpsertRule(ctx context.Context, r domain.ComplianceRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_rules (
			id, organization_id, name, description,
			condition_type, condition_field, condition_value,
			requirement_type, requirement_tag, requirement_field, requires_signed,
			severity, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			condition_type = EXCLUDED.condition_type,
			condition_field = EXCLUDED.condition_field,
			condition_value = EXCLUDED.condition_value,
			requirement_type = EXCLUDED.requirement_type,
			requirement_tag = EXCLUDED.requirement_tag,
			requirement_field = EXCLUDED.requirement_field,
			requires_signed = EXCLUDED.requires_signed,
			severity = EXCLUDED.severity,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`, r.ID, r.OrganizationID, r.Name, r.Description,
		r.ConditionType, r.ConditionField, r.ConditionValue,
		r.RequirementType, r.RequirementTag, r.RequirementField, r.RequiresSigned,
		r.Severity, r.IsActive)
	return err
}

func (s *PostgresStore) ListRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error) {
	return s.queryRules(ctx, `WHERE organization_id = $1`, organizationID)
}

func (s *PostgresStore) ListActiveRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error) {
	return s.queryRules(ctx, `WHERE organization_id = $1 AND is_active`, organizationID)
}

func (s *PostgresStore) queryRules(ctx context.Context, where string, args ...any) ([]domain.ComplianceRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, description,
		       condition_type, condition_field, condition_value,
		       requirement_type, requirement_tag, requirement_field, requires_signed,
		       severity, is_active
		FROM compliance_rules
		`+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.ComplianceRule, 0)
	for rows.Next() {
		var r domain.ComplianceRule
		if err := rows.Scan(
			&r.ID, &r.OrganizationID, &r.Name, &r.Description,
			&r.ConditionType, &r.ConditionField, &r.ConditionValue,
			&r.RequirementType, &r.RequirementTag, &r.RequirementField, &r.RequiresSigned,
			&r.Severity, &r.IsActive,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, caseID string) (domain.CaseSnapshot, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return domain.CaseSnapshot{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.tag, d.status, COALESCE(sr.status, '')
		FROM documents d
		LEFT JOIN signature_requests sr ON sr.envelope_id = d.envelope_id
		WHERE d.case_id = $1
		ORDER BY d.id
	`, caseID)
	if err != nil {
		return domain.CaseSnapshot{}, err
	}
	defer rows.Close()

	snap := domain.CaseSnapshot{
		CaseID:         c.ID,
		OrganizationID: c.OrganizationID,
		Stage:          c.Stage,
		Disposition:    c.Disposition,
		ServiceType:    c.ServiceType,
		Fields:         c.Fields,
		Documents:      make([]domain.SnapshotDocument, 0),
	}
	for rows.Next() {
		var d domain.SnapshotDocument
		if err := rows.Scan(&d.ID, &d.Tag, &d.Status, &d.EnvelopeStatus); err != nil {
			return domain.CaseSnapshot{}, err
		}
		snap.Documents = append(snap.Documents, d)
	}
	return snap, rows.Err()
}

func (s *PostgresStore) ListUnresolvedBlockers(ctx context.Context, caseID string) ([]domain.Blocker, error) {
	return s.ListBlockers(ctx, caseID, false)
}

func (s *PostgresStore) ListBlockers(ctx context.Context, caseID string, includeResolved bool) ([]domain.Blocker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, rule_id, rule_name, severity, message, fix_action, fix_url, resolved, resolved_at, created_at
		FROM blockers
		WHERE case_id = $1 AND ($2 OR NOT resolved)
		ORDER BY created_at, rule_id
	`, caseID, includeResolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Blocker, 0)
	for rows.Next() {
		var b domain.Blocker
		var fixAction, fixURL sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.CaseID, &b.RuleID, &b.RuleName, &b.Severity, &b.Message, &fixAction, &fixURL, &b.Resolved, &resolvedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		if fixAction.Valid {
			b.FixAction = &fixAction.String
		}
		if fixURL.Valid {
			b.FixURL = &fixURL.String
		}
		if resolvedAt.Valid {
			b.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBlocker relies on the partial unique index over open blockers; a
// violation is reported as domain.ErrDuplicateBlocker.
func (s *PostgresStore) CreateBlocker(ctx context.Context, b domain.Blocker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blockers (id, case_id, rule_id, rule_name, severity, message, fix_action, fix_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.CaseID, b.RuleID, b.RuleName, b.Severity, b.Message, b.FixAction, b.FixURL, b.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("case %s rule %s: %w", b.CaseID, b.RuleID, domain.ErrDuplicateBlocker)
	}
	return err
}

func (s *PostgresStore) ResolveBlocker(ctx context.Context, blockerID string, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE blockers
		SET resolved = TRUE, resolved_at = $2
		WHERE id = $1 AND NOT resolved
	`, blockerID, resolvedAt)
	return err
}

// LockCase takes a session advisory lock keyed by the case id on a
// dedicated connection. The returned func releases it.
func (s *PostgresStore) LockCase(ctx context.Context, caseID string) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, caseID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock for case %s: %w", caseID, err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, caseID)
		_ = conn.Close()
	}, nil
}
