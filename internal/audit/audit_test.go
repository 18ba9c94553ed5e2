package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, f.err
}

func TestRecordWritesRow(t *testing.T) {
	db := &fakeExecer{}
	sink := NewSink(db, zap.NewNop())

	signerID := "signer-1"
	sink.Record(context.Background(), Event{
		DocumentID: "doc-1",
		SignerID:   &signerID,
		ActorEmail: "owner@example.com",
		EventType:  EventSignatureSubmitted,
		Metadata:   map[string]any{"count": 2},
	})

	if !strings.Contains(db.sql, "INSERT INTO audit_logs") {
		t.Fatalf("unexpected sql: %s", db.sql)
	}
	if len(db.args) != 5 {
		t.Fatalf("got %d args, want 5", len(db.args))
	}
	if db.args[0] != "doc-1" || db.args[3] != EventSignatureSubmitted {
		t.Fatalf("unexpected args: %v", db.args)
	}
	if meta, ok := db.args[4].(string); !ok || !strings.Contains(meta, `"count":2`) {
		t.Fatalf("metadata arg = %v", db.args[4])
	}
}

func TestRecordDefaultsEmptyMetadata(t *testing.T) {
	db := &fakeExecer{}
	NewSink(db, zap.NewNop()).Record(context.Background(), Event{
		DocumentID: "doc-1",
		ActorEmail: "owner@example.com",
		EventType:  EventDocumentCreated,
	})
	if db.args[4] != "{}" {
		t.Fatalf("metadata arg = %v, want {}", db.args[4])
	}
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	sink := NewSink(db, zap.NewNop())

	// Must not panic or surface the error.
	sink.Record(context.Background(), Event{
		DocumentID: "doc-1",
		ActorEmail: "owner@example.com",
		EventType:  EventDocumentCompleted,
	})
}
