package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pateljiya28/UtilSign-sub001/internal/audit"
	"github.com/pateljiya28/UtilSign-sub001/internal/burn"
	"github.com/pateljiya28/UtilSign-sub001/internal/metrics"
	"github.com/pateljiya28/UtilSign-sub001/internal/model"
)

type fakeStore struct {
	doc          model.Document
	docErr       error
	placeholders []model.Placeholder
	phErr        error

	upsertCalls    int
	upsertedEmail  string
	replacedSigner string
	replaced       []model.Signature
	replaceErr     error

	completeCalls int
	completeOK    bool
	completeErr   error
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (model.Document, error) {
	if f.docErr != nil {
		return model.Document{}, f.docErr
	}
	return f.doc, nil
}

func (f *fakeStore) PlaceholdersByDocument(ctx context.Context, documentID string) ([]model.Placeholder, error) {
	return f.placeholders, f.phErr
}

func (f *fakeStore) UpsertSigner(ctx context.Context, documentID, email, id string, signedAt time.Time) (model.Signer, error) {
	f.upsertCalls++
	f.upsertedEmail = email
	return model.Signer{ID: "signer-1", DocumentID: documentID, Email: email, Status: model.SignerSigned}, nil
}

func (f *fakeStore) ReplaceSignatures(ctx context.Context, signerID string, sigs []model.Signature) error {
	f.replacedSigner = signerID
	f.replaced = sigs
	return f.replaceErr
}

func (f *fakeStore) CompleteDocument(ctx context.Context, documentID string) (bool, error) {
	f.completeCalls++
	return f.completeOK, f.completeErr
}

type fakeStorage struct {
	data        []byte
	downloadErr error

	uploadedPath string
	uploaded     []byte
	uploadedType string
	uploadErr    error
}

func (f *fakeStorage) Download(ctx context.Context, path string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

func (f *fakeStorage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	f.uploadedPath = path
	f.uploaded = data
	f.uploadedType = contentType
	return f.uploadErr
}

type fakeBurner struct {
	out     []byte
	report  burn.Report
	err     error
	entries []burn.Entry
}

func (f *fakeBurner) Burn(pdf []byte, entries []burn.Entry) ([]byte, burn.Report, error) {
	f.entries = entries
	return f.out, f.report, f.err
}

type fakeAuditor struct {
	events []audit.Event
}

func (f *fakeAuditor) Record(ctx context.Context, e audit.Event) {
	f.events = append(f.events, e)
}

func (f *fakeAuditor) types() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

const (
	senderID    = "user-1"
	senderEmail = "owner@example.com"
)

func selfSignDoc() model.Document {
	return model.Document{
		ID:       "doc-1",
		FilePath: "user-1/doc-1.pdf",
		FileName: "contract.pdf",
		SenderID: senderID,
		Status:   model.StatusDraft,
		Type:     model.TypeSelfSign,
	}
}

func ownerPlaceholders() []model.Placeholder {
	return []model.Placeholder{
		{ID: "ph-1", DocumentID: "doc-1", PageNumber: 1, XPercent: 10, YPercent: 10, WidthPercent: 20, HeightPercent: 10, AssignedSignerEmail: senderEmail},
		{ID: "ph-2", DocumentID: "doc-1", PageNumber: 2, XPercent: 50, YPercent: 80, WidthPercent: 15, HeightPercent: 5, AssignedSignerEmail: senderEmail},
	}
}

func fullSubmission() Submission {
	return Submission{Signatures: []SubmittedSignature{
		{PlaceholderID: "ph-1", ImageBase64: "img-1"},
		{PlaceholderID: "ph-2", ImageBase64: "img-2"},
	}}
}

func newTestOrchestrator(st *fakeStore, sg *fakeStorage, b *fakeBurner, a *fakeAuditor) *Orchestrator {
	return NewOrchestrator(st, sg, b, a, metrics.New(), zap.NewNop())
}

func caller() Caller { return Caller{ID: senderID, Email: senderEmail} }

func TestCompleteSelfSign(t *testing.T) {
	st := &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders(), completeOK: true}
	sg := &fakeStorage{data: []byte("original pdf")}
	b := &fakeBurner{
		out: []byte("burned pdf"),
		report: burn.Report{Outcomes: []burn.Outcome{
			{PlaceholderID: "ph-1", Burned: true},
			{PlaceholderID: "ph-2", Burned: true},
		}},
	}
	a := &fakeAuditor{}

	err := newTestOrchestrator(st, sg, b, a).CompleteSelfSign(context.Background(), "doc-1", caller(), fullSubmission())
	if err != nil {
		t.Fatalf("CompleteSelfSign: %v", err)
	}

	if st.upsertCalls != 1 || st.upsertedEmail != senderEmail {
		t.Fatalf("signer upsert calls=%d email=%q", st.upsertCalls, st.upsertedEmail)
	}
	if st.replacedSigner != "signer-1" || len(st.replaced) != 2 {
		t.Fatalf("replaced signer=%q count=%d", st.replacedSigner, len(st.replaced))
	}
	if len(b.entries) != 2 {
		t.Fatalf("burner got %d entries, want 2", len(b.entries))
	}
	if b.entries[0].PageNumber != 1 || b.entries[0].Geometry.XPercent != 10 {
		t.Fatalf("entry geometry not resolved from placeholder: %+v", b.entries[0])
	}
	if sg.uploadedPath != "user-1/doc-1.pdf" || string(sg.uploaded) != "burned pdf" || sg.uploadedType != "application/pdf" {
		t.Fatalf("upload path=%q type=%q body=%q", sg.uploadedPath, sg.uploadedType, sg.uploaded)
	}
	if st.completeCalls != 1 {
		t.Fatalf("CompleteDocument calls = %d, want 1", st.completeCalls)
	}

	want := []string{audit.EventSignatureSubmitted, audit.EventPDFBurned, audit.EventDocumentCompleted}
	got := a.types()
	if len(got) != len(want) {
		t.Fatalf("audit events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit events = %v, want %v", got, want)
		}
	}
}

func requireFailure(t *testing.T, err error, cat Category) *Failure {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error %v is not a *Failure", err)
	}
	if f.Category != cat {
		t.Fatalf("category = %s, want %s", f.Category, cat)
	}
	return f
}

func TestCompleteValidationRejections(t *testing.T) {
	cases := []struct {
		name   string
		store  func() *fakeStore
		caller Caller
		sub    Submission
		want   Category
	}{
		{
			name:   "unauthenticated caller",
			store:  func() *fakeStore { return &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders()} },
			caller: Caller{ID: senderID},
			sub:    fullSubmission(),
			want:   CategoryUnauthorized,
		},
		{
			name:   "unknown document",
			store:  func() *fakeStore { return &fakeStore{docErr: model.ErrNotFound} },
			caller: caller(),
			sub:    fullSubmission(),
			want:   CategoryNotFound,
		},
		{
			name: "foreign document",
			store: func() *fakeStore {
				doc := selfSignDoc()
				doc.SenderID = "someone-else"
				return &fakeStore{doc: doc, placeholders: ownerPlaceholders()}
			},
			caller: caller(),
			sub:    fullSubmission(),
			want:   CategoryForbidden,
		},
		{
			name: "request-sign document",
			store: func() *fakeStore {
				doc := selfSignDoc()
				doc.Type = model.TypeRequestSign
				return &fakeStore{doc: doc, placeholders: ownerPlaceholders()}
			},
			caller: caller(),
			sub:    fullSubmission(),
			want:   CategoryBadRequest,
		},
		{
			name: "already completed",
			store: func() *fakeStore {
				doc := selfSignDoc()
				doc.Status = model.StatusCompleted
				return &fakeStore{doc: doc, placeholders: ownerPlaceholders()}
			},
			caller: caller(),
			sub:    fullSubmission(),
			want:   CategoryConflict,
		},
		{
			name:   "empty submission",
			store:  func() *fakeStore { return &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders()} },
			caller: caller(),
			sub:    Submission{},
			want:   CategoryBadRequest,
		},
		{
			name:   "partial submission",
			store:  func() *fakeStore { return &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders()} },
			caller: caller(),
			sub:    Submission{Signatures: []SubmittedSignature{{PlaceholderID: "ph-1", ImageBase64: "img"}}},
			want:   CategoryBadRequest,
		},
		{
			name:   "unassigned placeholder",
			store:  func() *fakeStore { return &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders()} },
			caller: caller(),
			sub: Submission{Signatures: []SubmittedSignature{
				{PlaceholderID: "ph-1", ImageBase64: "img"},
				{PlaceholderID: "ph-other", ImageBase64: "img"},
			}},
			want: CategoryForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.store()
			sg := &fakeStorage{data: []byte("pdf")}
			b := &fakeBurner{out: []byte("pdf")}
			a := &fakeAuditor{}

			err := newTestOrchestrator(st, sg, b, a).CompleteSelfSign(context.Background(), "doc-1", tc.caller, tc.sub)
			requireFailure(t, err, tc.want)

			// Rejections happen before any mutation.
			if st.upsertCalls != 0 || st.replaced != nil || st.completeCalls != 0 {
				t.Fatalf("rejected submission mutated state: %+v", st)
			}
			if sg.uploaded != nil {
				t.Fatal("rejected submission uploaded a document")
			}
			if len(a.events) != 0 {
				t.Fatalf("rejected submission recorded audit events: %v", a.types())
			}
		})
	}
}

func TestCompleteLosesFinalizeRace(t *testing.T) {
	st := &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders(), completeOK: false}
	sg := &fakeStorage{data: []byte("pdf")}
	b := &fakeBurner{out: []byte("pdf")}
	a := &fakeAuditor{}

	err := newTestOrchestrator(st, sg, b, a).CompleteSelfSign(context.Background(), "doc-1", caller(), fullSubmission())
	requireFailure(t, err, CategoryConflict)

	for _, et := range a.types() {
		if et == audit.EventDocumentCompleted {
			t.Fatal("losing attempt must not record the completion event")
		}
	}
}

func TestCompleteDependencyFailures(t *testing.T) {
	sentinel := errors.New("backend down")
	cases := []struct {
		name string
		rig  func(st *fakeStore, sg *fakeStorage, b *fakeBurner)
	}{
		{"download fails", func(st *fakeStore, sg *fakeStorage, b *fakeBurner) { sg.downloadErr = sentinel }},
		{"burn fails", func(st *fakeStore, sg *fakeStorage, b *fakeBurner) { b.err = sentinel }},
		{"upload fails", func(st *fakeStore, sg *fakeStorage, b *fakeBurner) { sg.uploadErr = sentinel }},
		{"replace fails", func(st *fakeStore, sg *fakeStorage, b *fakeBurner) { st.replaceErr = sentinel }},
		{"finalize fails", func(st *fakeStore, sg *fakeStorage, b *fakeBurner) { st.completeErr = sentinel }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders(), completeOK: true}
			sg := &fakeStorage{data: []byte("pdf")}
			b := &fakeBurner{out: []byte("pdf")}
			tc.rig(st, sg, b)

			err := newTestOrchestrator(st, sg, b, &fakeAuditor{}).CompleteSelfSign(context.Background(), "doc-1", caller(), fullSubmission())
			f := requireFailure(t, err, CategoryInternal)
			if !errors.Is(f, sentinel) {
				t.Fatalf("failure should wrap the dependency error, got %v", err)
			}
		})
	}
}

func TestCompleteIsRetrySafe(t *testing.T) {
	st := &fakeStore{doc: selfSignDoc(), placeholders: ownerPlaceholders(), completeOK: true}
	sg := &fakeStorage{data: []byte("pdf")}
	b := &fakeBurner{out: []byte("pdf")}
	orch := newTestOrchestrator(st, sg, b, &fakeAuditor{})

	// First attempt dies at upload; the retry must succeed without
	// duplicating signer rows (the upsert runs again, the replace swaps
	// the same set).
	sg.uploadErr = errors.New("transient")
	err := orch.CompleteSelfSign(context.Background(), "doc-1", caller(), fullSubmission())
	requireFailure(t, err, CategoryInternal)

	sg.uploadErr = nil
	if err := orch.CompleteSelfSign(context.Background(), "doc-1", caller(), fullSubmission()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st.upsertCalls != 2 {
		t.Fatalf("upsert calls = %d, want 2", st.upsertCalls)
	}
	if len(st.replaced) != 2 {
		t.Fatalf("retry left %d signatures, want 2", len(st.replaced))
	}
}
