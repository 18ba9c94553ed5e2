// Package server wires the HTTP surface: document lifecycle endpoints plus
// the signing submission that drives the completion pipeline.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pateljiya28/UtilSign-sub001/internal/audit"
	"github.com/pateljiya28/UtilSign-sub001/internal/authn"
	"github.com/pateljiya28/UtilSign-sub001/internal/completion"
	"github.com/pateljiya28/UtilSign-sub001/internal/model"
	"github.com/pateljiya28/UtilSign-sub001/pkg/httpx"
)

const maxBodyBytes = 20 << 20 // signature images ride in the JSON body

// DocumentStore is the slice of the repository the handlers need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d model.Document) error
	GetDocument(ctx context.Context, id string) (model.Document, error)
	ListDocumentsBySender(ctx context.Context, senderID string, status model.DocumentStatus) ([]model.Document, error)
	AddPlaceholders(ctx context.Context, phs []model.Placeholder) error
	PlaceholdersByDocument(ctx context.Context, documentID string) ([]model.Placeholder, error)
	SignersByDocument(ctx context.Context, documentID string) ([]model.Signer, error)
	SendDocument(ctx context.Context, documentID string, signerEmails []string, newID func() string) (bool, error)
	DeclineSigner(ctx context.Context, documentID, email, id string) (model.Signer, error)
	CancelDocument(ctx context.Context, documentID string) (bool, error)
	AuditTrail(ctx context.Context, documentID string) ([]audit.Entry, error)
}

// Completer runs the signing pipeline.
type Completer interface {
	CompleteSelfSign(ctx context.Context, documentID string, caller completion.Caller, sub completion.Submission) error
}

type Server struct {
	store     DocumentStore
	completer Completer
	auditor   completion.Auditor
	jwtSecret string
	metricsH  http.Handler
	log       *zap.Logger
	newID     func() string
}

func New(store DocumentStore, completer Completer, auditor completion.Auditor, jwtSecret string, metricsHandler http.Handler, log *zap.Logger) *Server {
	return &Server{
		store:     store,
		completer: completer,
		auditor:   auditor,
		jwtSecret: jwtSecret,
		metricsH:  metricsHandler,
		log:       log.With(zap.String("component", "server")),
		newID:     uuid.NewString,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	if s.metricsH != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsH)
	}

	r.Route("/documents", func(api chi.Router) {
		api.Use(authn.Middleware(s.jwtSecret))
		api.Post("/", s.handleCreateDocument)
		api.Get("/", s.handleListDocuments)
		api.Get("/{document_id}", s.handleGetDocument)
		api.Post("/{document_id}/placeholders", s.handleAddPlaceholders)
		api.Post("/{document_id}/send", s.handleSendDocument)
		api.Post("/{document_id}/sign", s.handleSign)
		api.Post("/{document_id}/decline", s.handleDecline)
		api.Post("/{document_id}/cancel", s.handleCancel)
		api.Get("/{document_id}/audit", s.handleAuditTrail)
	})
	return r
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	caller := authn.CallerFromContext(r.Context())
	var req struct {
		FilePath string `json:"file_path"`
		FileName string `json:"file_name"`
		Category string `json:"category"`
		Type     string `json:"type"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	if req.FilePath == "" || req.FileName == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "file_path and file_name are required", nil)
		return
	}
	docType := model.DocumentType(req.Type)
	if docType == "" {
		docType = model.TypeSelfSign
	}
	if docType != model.TypeSelfSign && docType != model.TypeRequestSign {
		httpx.WriteError(w, 400, "BAD_REQUEST", "unknown document type", nil)
		return
	}

	doc := model.Document{
		ID:       s.newID(),
		FilePath: req.FilePath,
		FileName: req.FileName,
		SenderID: caller.UserID,
		Status:   model.StatusDraft,
		Type:     docType,
		Category: req.Category,
	}
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.log.Error("create document", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not create document", nil)
		return
	}
	s.auditor.Record(r.Context(), audit.Event{
		DocumentID: doc.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventDocumentCreated,
		Metadata:   map[string]any{"file_name": doc.FileName, "type": string(doc.Type)},
	})
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	caller := authn.CallerFromContext(r.Context())
	status := model.DocumentStatus(r.URL.Query().Get("status"))
	docs, err := s.store.ListDocumentsBySender(r.Context(), caller.UserID, status)
	if err != nil {
		s.log.Error("list documents", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not list documents", nil)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "documents": docs})
}

// loadOwnedDocument fetches a document and checks the caller is its sender.
func (s *Server) loadOwnedDocument(w http.ResponseWriter, r *http.Request) (model.Document, *authn.Claims, bool) {
	caller := authn.CallerFromContext(r.Context())
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", "document not found", nil)
		} else {
			s.log.Error("load document", zap.Error(err))
			httpx.WriteError(w, 500, "DB_ERROR", "could not load document", nil)
		}
		return model.Document{}, nil, false
	}
	if doc.SenderID != caller.UserID {
		httpx.WriteError(w, 403, "FORBIDDEN", "caller does not own this document", nil)
		return model.Document{}, nil, false
	}
	return doc, caller, true
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.loadOwnedDocument(w, r)
	if !ok {
		return
	}
	placeholders, err := s.store.PlaceholdersByDocument(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("load placeholders", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not load placeholders", nil)
		return
	}
	signers, err := s.store.SignersByDocument(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("load signers", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not load signers", nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"document":     doc,
		"placeholders": orEmptyPlaceholders(placeholders),
		"signers":      orEmptySigners(signers),
	})
}

func (s *Server) handleAddPlaceholders(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.loadOwnedDocument(w, r)
	if !ok {
		return
	}
	if doc.Status != model.StatusDraft {
		httpx.WriteError(w, 409, "CONFLICT", "placeholders can only be added to a draft", nil)
		return
	}
	var req struct {
		Placeholders []struct {
			PageNumber          int     `json:"page_number"`
			XPercent            float64 `json:"x_percent"`
			YPercent            float64 `json:"y_percent"`
			WidthPercent        float64 `json:"width_percent"`
			HeightPercent       float64 `json:"height_percent"`
			AssignedSignerEmail string  `json:"assigned_signer_email"`
		} `json:"placeholders"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	if len(req.Placeholders) == 0 {
		httpx.WriteError(w, 400, "BAD_REQUEST", "placeholders list is empty", nil)
		return
	}
	phs := make([]model.Placeholder, 0, len(req.Placeholders))
	for _, in := range req.Placeholders {
		if in.PageNumber < 1 || in.AssignedSignerEmail == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "each placeholder needs a page_number >= 1 and an assigned_signer_email", nil)
			return
		}
		phs = append(phs, model.Placeholder{
			ID:                  s.newID(),
			DocumentID:          doc.ID,
			PageNumber:          in.PageNumber,
			XPercent:            in.XPercent,
			YPercent:            in.YPercent,
			WidthPercent:        in.WidthPercent,
			HeightPercent:       in.HeightPercent,
			AssignedSignerEmail: in.AssignedSignerEmail,
		})
	}
	if err := s.store.AddPlaceholders(r.Context(), phs); err != nil {
		s.log.Error("add placeholders", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not add placeholders", nil)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "placeholders": phs})
}

func (s *Server) handleSendDocument(w http.ResponseWriter, r *http.Request) {
	doc, caller, ok := s.loadOwnedDocument(w, r)
	if !ok {
		return
	}
	placeholders, err := s.store.PlaceholdersByDocument(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("load placeholders", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not load placeholders", nil)
		return
	}
	emails := distinctEmails(placeholders)
	if len(emails) == 0 {
		httpx.WriteError(w, 400, "BAD_REQUEST", "document has no placeholders to send", nil)
		return
	}
	sent, err := s.store.SendDocument(r.Context(), doc.ID, emails, s.newID)
	if err != nil {
		s.log.Error("send document", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not send document", nil)
		return
	}
	if !sent {
		httpx.WriteError(w, 409, "CONFLICT", "only draft documents can be sent", nil)
		return
	}
	s.auditor.Record(r.Context(), audit.Event{
		DocumentID: doc.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventDocumentSent,
		Metadata:   map[string]any{"signers": len(emails)},
	})
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "sent": true, "signers": len(emails)})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	caller := authn.CallerFromContext(r.Context())
	documentID := chi.URLParam(r, "document_id")

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var sub completion.Submission
	if err := httpx.ReadJSON(r, &sub); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}

	err := s.completer.CompleteSelfSign(r.Context(), documentID,
		completion.Caller{ID: caller.UserID, Email: caller.Email}, sub)
	if err != nil {
		s.writeCompletionError(w, documentID, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "completed": true})
}

func (s *Server) writeCompletionError(w http.ResponseWriter, documentID string, err error) {
	var f *completion.Failure
	if !errors.As(err, &f) {
		s.log.Error("completion failed", zap.String("document_id", documentID), zap.Error(err))
		httpx.WriteError(w, 500, "INTERNAL", "completion failed", nil)
		return
	}
	if f.Category == completion.CategoryInternal {
		// Dependency failures keep their diagnostic detail in the logs.
		s.log.Error("completion failed",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
	status, code := statusForCategory(f.Category)
	httpx.WriteError(w, status, code, f.Message, nil)
}

func statusForCategory(c completion.Category) (int, string) {
	switch c {
	case completion.CategoryUnauthorized:
		return 401, "UNAUTHORIZED"
	case completion.CategoryForbidden:
		return 403, "FORBIDDEN"
	case completion.CategoryNotFound:
		return 404, "NOT_FOUND"
	case completion.CategoryConflict:
		return 409, "CONFLICT"
	case completion.CategoryBadRequest:
		return 400, "BAD_REQUEST"
	default:
		return 500, "INTERNAL"
	}
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	caller := authn.CallerFromContext(r.Context())
	documentID := chi.URLParam(r, "document_id")

	doc, err := s.store.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", "document not found", nil)
		} else {
			s.log.Error("load document", zap.Error(err))
			httpx.WriteError(w, 500, "DB_ERROR", "could not load document", nil)
		}
		return
	}
	if doc.Status == model.StatusCompleted || doc.Status == model.StatusCancelled {
		httpx.WriteError(w, 409, "CONFLICT", "document is no longer open for signing", nil)
		return
	}
	placeholders, err := s.store.PlaceholdersByDocument(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("load placeholders", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not load placeholders", nil)
		return
	}
	if !assignedTo(placeholders, caller.Email) {
		httpx.WriteError(w, 403, "FORBIDDEN", "caller is not an assigned signer", nil)
		return
	}
	signer, err := s.store.DeclineSigner(r.Context(), doc.ID, caller.Email, s.newID())
	if err != nil {
		s.log.Error("decline signer", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not record decline", nil)
		return
	}
	s.auditor.Record(r.Context(), audit.Event{
		DocumentID: doc.ID,
		SignerID:   &signer.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventSignerDeclined,
	})
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "declined": true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	doc, caller, ok := s.loadOwnedDocument(w, r)
	if !ok {
		return
	}
	cancelled, err := s.store.CancelDocument(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("cancel document", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not cancel document", nil)
		return
	}
	if !cancelled {
		httpx.WriteError(w, 409, "CONFLICT", "document is already completed or cancelled", nil)
		return
	}
	s.auditor.Record(r.Context(), audit.Event{
		DocumentID: doc.ID,
		ActorEmail: caller.Email,
		EventType:  audit.EventDocumentCancelled,
	})
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "cancelled": true})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.loadOwnedDocument(w, r)
	if !ok {
		return
	}
	trail, err := s.store.AuditTrail(r.Context(), doc.ID)
	if err != nil {
		s.log.Error("load audit trail", zap.Error(err))
		httpx.WriteError(w, 500, "DB_ERROR", "could not load audit trail", nil)
		return
	}
	if trail == nil {
		trail = []audit.Entry{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "audit": trail})
}

func distinctEmails(phs []model.Placeholder) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range phs {
		if !seen[p.AssignedSignerEmail] {
			seen[p.AssignedSignerEmail] = true
			out = append(out, p.AssignedSignerEmail)
		}
	}
	return out
}

func assignedTo(phs []model.Placeholder, email string) bool {
	for _, p := range phs {
		if p.AssignedSignerEmail == email {
			return true
		}
	}
	return false
}

func orEmptyPlaceholders(in []model.Placeholder) []model.Placeholder {
	if in == nil {
		return []model.Placeholder{}
	}
	return in
}

func orEmptySigners(in []model.Signer) []model.Signer {
	if in == nil {
		return []model.Signer{}
	}
	return in
}
