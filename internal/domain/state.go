package domain

type Stage string

const (
	StageIntake      Stage = "intake"
	StageArrangement Stage = "arrangement"
	StageDocuments   Stage = "documents"
	StageSignatures  Stage = "signatures"
	StageService     Stage = "service"
	StageDisposition Stage = "disposition"
	StageClose       Stage = "close"
)

// Stages lists every lifecycle stage in progression order.
var Stages = []Stage{
	StageIntake,
	StageArrangement,
	StageDocuments,
	StageSignatures,
	StageService,
	StageDisposition,
	StageClose,
}

// Order returns the 1-based position of s in the lifecycle, or 0 for an
// unrecognized stage.
func (s Stage) Order() int {
	for i, st := range Stages {
		if st == s {
			return i + 1
		}
	}
	return 0
}

func (s Stage) Valid() bool {
	return s.Order() > 0
}

// AtLeast reports whether s is at or past other. Unknown stages on either
// side never compare as reached.
func (s Stage) AtLeast(other Stage) bool {
	so, oo := s.Order(), other.Order()
	if so == 0 || oo == 0 {
		return false
	}
	return so >= oo
}

type Disposition string

const (
	DispositionBurial     Disposition = "burial"
	DispositionCremation  Disposition = "cremation"
	DispositionEntombment Disposition = "entombment"
	DispositionDonation   Disposition = "donation"
	DispositionTransfer   Disposition = "transfer"
)

type DocumentStatus string

const (
	DocumentDraft            DocumentStatus = "draft"
	DocumentGenerated        DocumentStatus = "generated"
	DocumentUploaded         DocumentStatus = "uploaded"
	DocumentSentForSignature DocumentStatus = "sent_for_signature"
	DocumentSigned           DocumentStatus = "signed"
	DocumentArchived         DocumentStatus = "archived"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentDraft, DocumentGenerated, DocumentUploaded, DocumentSentForSignature, DocumentSigned, DocumentArchived:
		return true
	default:
		return false
	}
}

type EnvelopeStatus string

const (
	EnvelopeDraft           EnvelopeStatus = "draft"
	EnvelopeSent            EnvelopeStatus = "sent"
	EnvelopeViewed          EnvelopeStatus = "viewed"
	EnvelopePartiallySigned EnvelopeStatus = "partially_signed"
	EnvelopeCompleted       EnvelopeStatus = "completed"
	EnvelopeDeclined        EnvelopeStatus = "declined"
	EnvelopeExpired         EnvelopeStatus = "expired"
	EnvelopeCancelled       EnvelopeStatus = "cancelled"
)

// Terminal reports whether no further transition is defined out of s.
func (s EnvelopeStatus) Terminal() bool {
	switch s {
	case EnvelopeCompleted, EnvelopeDeclined, EnvelopeExpired, EnvelopeCancelled:
		return true
	default:
		return false
	}
}

type SignerStatus string

const (
	SignerPending  SignerStatus = "pending"
	SignerSent     SignerStatus = "sent"
	SignerViewed   SignerStatus = "viewed"
	SignerSigned   SignerStatus = "signed"
	SignerDeclined SignerStatus = "declined"
)

func (s SignerStatus) Final() bool {
	return s == SignerSigned || s == SignerDeclined
}
