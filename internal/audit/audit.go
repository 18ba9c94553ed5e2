// Package audit records lifecycle events into the append-only audit_logs
// table. Recording is best-effort: a failed write is logged and swallowed so
// the audit trail can never block or fail the primary pipeline.
package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Event types form a closed enumeration.
const (
	EventDocumentCreated    = "document_created"
	EventDocumentSent       = "document_sent"
	EventSignatureSubmitted = "signature_submitted"
	EventPDFBurned          = "pdf_burned"
	EventDocumentCompleted  = "document_completed"
	EventSignerDeclined     = "signer_declined"
	EventDocumentCancelled  = "document_cancelled"
)

type Event struct {
	DocumentID string
	SignerID   *string
	ActorEmail string
	EventType  string
	Metadata   map[string]any
}

// Entry is an audit row as read back for a document's trail.
type Entry struct {
	ID         int64          `json:"id"`
	DocumentID string         `json:"document_id"`
	SignerID   *string        `json:"signer_id,omitempty"`
	ActorEmail string         `json:"actor_email"`
	EventType  string         `json:"event_type"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  string         `json:"created_at"`
}

// Execer is the slice of pgxpool.Pool the sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Sink struct {
	db  Execer
	log *zap.Logger
}

func NewSink(db Execer, log *zap.Logger) *Sink {
	return &Sink{db: db, log: log.With(zap.String("component", "audit"))}
}

// Record appends one event. Errors are swallowed by contract.
func (s *Sink) Record(ctx context.Context, e Event) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		s.log.Warn("audit metadata not serializable", zap.String("event_type", e.EventType), zap.Error(err))
		b = []byte("{}")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO audit_logs(document_id, signer_id, actor_email, event_type, metadata)
VALUES($1,$2,$3,$4,$5::jsonb)`,
		e.DocumentID, e.SignerID, e.ActorEmail, e.EventType, string(b))
	if err != nil {
		s.log.Warn("audit write failed",
			zap.String("document_id", e.DocumentID),
			zap.String("event_type", e.EventType),
			zap.Error(err))
	}
}
