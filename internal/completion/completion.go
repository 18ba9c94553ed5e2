// Package completion runs the self-sign completion pipeline: validate the
// submission, persist its signatures, burn them onto the stored PDF, upload
// the result and finalize the document, with an audit event at each
// milestone.
//
// The pipeline is deliberately retry-safe short of the final status write:
// the signer upsert and the delete-then-insert signature replace can repeat
// without duplicating rows, burning is a pure function of the stored bytes
// plus the signature set, and the finalize step is a conditional update so
// two racing attempts cannot both complete the document.
package completion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pateljiya28/UtilSign-sub001/internal/audit"
	"github.com/pateljiya28/UtilSign-sub001/internal/burn"
	"github.com/pateljiya28/UtilSign-sub001/internal/metrics"
	"github.com/pateljiya28/UtilSign-sub001/internal/model"
)

// Store is the slice of the repository the pipeline needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	PlaceholdersByDocument(ctx context.Context, documentID string) ([]model.Placeholder, error)
	UpsertSigner(ctx context.Context, documentID, email, id string, signedAt time.Time) (model.Signer, error)
	ReplaceSignatures(ctx context.Context, signerID string, sigs []model.Signature) error
	CompleteDocument(ctx context.Context, documentID string) (bool, error)
}

// ObjectStorage moves document bytes in and out of the hosted store.
type ObjectStorage interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

// Auditor records lifecycle events; it never returns an error by contract.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

// Burner stamps signature images onto a PDF buffer.
type Burner interface {
	Burn(pdf []byte, entries []burn.Entry) ([]byte, burn.Report, error)
}

// Caller is the authenticated identity submitting signatures.
type Caller struct {
	ID    string
	Email string
}

// SubmittedSignature pairs a placeholder with its drawn image.
type SubmittedSignature struct {
	PlaceholderID string `json:"placeholderId"`
	ImageBase64   string `json:"imageBase64"`
}

// Submission is the inbound signing payload.
type Submission struct {
	Signatures []SubmittedSignature `json:"signatures"`
}

type Orchestrator struct {
	store   Store
	storage ObjectStorage
	burner  Burner
	auditor Auditor
	metrics *metrics.Metrics
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(st Store, os ObjectStorage, b Burner, a Auditor, m *metrics.Metrics, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:   st,
		storage: os,
		burner:  b,
		auditor: a,
		metrics: m,
		log:     log.With(zap.String("component", "completion")),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CompleteSelfSign runs the pipeline for one submission. The returned error
// is always a *Failure carrying the caller-facing category and message.
func (o *Orchestrator) CompleteSelfSign(ctx context.Context, documentID string, caller Caller, sub Submission) error {
	start := o.now()
	err := o.complete(ctx, documentID, caller, sub)
	o.observe(start, err)
	return err
}

func (o *Orchestrator) observe(start time.Time, err error) {
	o.metrics.CompletionDuration.Observe(o.now().Sub(start).Seconds())
	outcome := "completed"
	var f *Failure
	switch {
	case err == nil:
	case errors.As(err, &f) && f.cause == nil:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	o.metrics.CompletionsTotal.WithLabelValues(outcome).Inc()
}

func (o *Orchestrator) complete(ctx context.Context, documentID string, caller Caller, sub Submission) error {
	// validating: nothing is mutated before every check passes.
	doc, assigned, failure := o.validate(ctx, documentID, caller, sub)
	if failure != nil {
		return failure
	}

	// persisting-signatures: idempotent signer upsert, full signature
	// replace.
	signer, err := o.store.UpsertSigner(ctx, doc.ID, caller.Email, o.newID(), o.now().UTC())
	if err != nil {
		return dependency("persist signer", err)
	}
	sigs := make([]model.Signature, 0, len(sub.Signatures))
	for _, in := range sub.Signatures {
		sigs = append(sigs, model.Signature{
			ID:            o.newID(),
			SignerID:      signer.ID,
			PlaceholderID: in.PlaceholderID,
			ImageBase64:   in.ImageBase64,
		})
	}
	if err := o.store.ReplaceSignatures(ctx, signer.ID, sigs); err != nil {
		return dependency("persist signatures", err)
	}
	o.auditor.Record(ctx, audit.Event{
		DocumentID: doc.ID,
		SignerID:   &signer.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventSignatureSubmitted,
		Metadata:   map[string]any{"count": len(sigs)},
	})

	// burning: the stored bytes are required; persisted signatures survive
	// a failure here so a retry re-enters at this stage.
	pdf, err := o.storage.Download(ctx, doc.FilePath)
	if err != nil {
		return dependency("download document", err)
	}
	burned, report, err := o.burner.Burn(pdf, burnEntries(assigned, sub))
	if err != nil {
		return dependency("burn signatures", err)
	}
	o.metrics.BurnEntriesTotal.WithLabelValues("burned").Add(float64(report.BurnedCount()))
	o.metrics.BurnEntriesTotal.WithLabelValues("skipped").Add(float64(report.SkippedCount()))

	// uploading: overwrite in place; on failure the document keeps its
	// pre-burn content and status.
	if err := o.storage.Upload(ctx, doc.FilePath, burned, "application/pdf"); err != nil {
		return dependency("upload burned document", err)
	}
	o.auditor.Record(ctx, audit.Event{
		DocumentID: doc.ID,
		SignerID:   &signer.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventPDFBurned,
		Metadata:   map[string]any{"burned": report.BurnedCount(), "skipped": report.SkippedCount()},
	})

	// finalizing: conditional update; losing the race means another attempt
	// already completed the document.
	ok, err := o.store.CompleteDocument(ctx, doc.ID)
	if err != nil {
		return dependency("finalize document", err)
	}
	if !ok {
		return reject(CategoryConflict, "document was completed by a concurrent attempt")
	}
	o.auditor.Record(ctx, audit.Event{
		DocumentID: doc.ID,
		SignerID:   &signer.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventDocumentCompleted,
		Metadata:   map[string]any{"mode": string(model.TypeSelfSign)},
	})
	o.log.Info("document completed",
		zap.String("document_id", doc.ID),
		zap.Int("burned", report.BurnedCount()),
		zap.Int("skipped", report.SkippedCount()))
	return nil
}

// validate enforces every precondition before any mutation. It returns the
// document and the caller's assigned placeholders on success.
func (o *Orchestrator) validate(ctx context.Context, documentID string, caller Caller, sub Submission) (model.Document, []model.Placeholder, *Failure) {
	var none model.Document

	if caller.Email == "" {
		return none, nil, reject(CategoryUnauthorized, "caller is not authenticated")
	}

	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return none, nil, reject(CategoryNotFound, "document not found")
		}
		return none, nil, dependency("load document", err)
	}
	if doc.SenderID != caller.ID {
		return none, nil, reject(CategoryForbidden, "caller does not own this document")
	}
	if doc.Type != model.TypeSelfSign {
		return none, nil, reject(CategoryBadRequest, "document is not a self-sign document")
	}
	if doc.Status == model.StatusCompleted {
		return none, nil, reject(CategoryConflict, "document is already completed")
	}
	if len(sub.Signatures) == 0 {
		return none, nil, reject(CategoryBadRequest, "signature list is empty")
	}

	placeholders, err := o.store.PlaceholdersByDocument(ctx, doc.ID)
	if err != nil {
		return none, nil, dependency("load placeholders", err)
	}
	assigned := make([]model.Placeholder, 0, len(placeholders))
	assignedIDs := make(map[string]bool)
	for _, p := range placeholders {
		if p.AssignedSignerEmail == caller.Email {
			assigned = append(assigned, p)
			assignedIDs[p.ID] = true
		}
	}
	for _, in := range sub.Signatures {
		if !assignedIDs[in.PlaceholderID] {
			return none, nil, rejectf(CategoryForbidden, "placeholder %s is not assigned to caller", in.PlaceholderID)
		}
	}
	// All-or-nothing: partial submissions are rejected outright.
	if len(sub.Signatures) != len(assigned) {
		return none, nil, rejectf(CategoryBadRequest,
			"expected %d signatures, got %d", len(assigned), len(sub.Signatures))
	}

	return doc, assigned, nil
}

// burnEntries resolves submitted images against the placeholder geometry
// loaded during validation.
func burnEntries(assigned []model.Placeholder, sub Submission) []burn.Entry {
	byID := make(map[string]model.Placeholder, len(assigned))
	for _, p := range assigned {
		byID[p.ID] = p
	}
	entries := make([]burn.Entry, 0, len(sub.Signatures))
	for _, in := range sub.Signatures {
		p := byID[in.PlaceholderID]
		entries = append(entries, burn.Entry{
			PlaceholderID: p.ID,
			PageNumber:    p.PageNumber,
			Geometry: burn.Geometry{
				XPercent:      p.XPercent,
				YPercent:      p.YPercent,
				WidthPercent:  p.WidthPercent,
				HeightPercent: p.HeightPercent,
			},
			ImageBase64: in.ImageBase64,
		})
	}
	return entries
}
