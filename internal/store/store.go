// Package store is the pgx repository over the hosted Postgres. Mutations
// the completion pipeline depends on are written as explicitly idempotent
// SQL (upsert-on-conflict, delete-then-insert, conditional update) rather
// than absence checks, so concurrent retries cannot duplicate rows.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pateljiya28/UtilSign-sub001/internal/audit"
	"github.com/pateljiya28/UtilSign-sub001/internal/model"
)

//go:embed schema.sql
var schema string

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Migrate applies the schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}

func (s *Store) CreateDocument(ctx context.Context, d model.Document) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO documents(id, file_path, file_name, sender_id, status, type, category)
VALUES($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.FilePath, d.FileName, d.SenderID, d.Status, d.Type, d.Category)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (model.Document, error) {
	var d model.Document
	err := s.DB.QueryRow(ctx, `
SELECT id, file_path, file_name, sender_id, status, type, category, created_at, updated_at
FROM documents WHERE id=$1`, id).
		Scan(&d.ID, &d.FilePath, &d.FileName, &d.SenderID, &d.Status, &d.Type, &d.Category, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Document{}, model.ErrNotFound
	}
	return d, err
}

func (s *Store) ListDocumentsBySender(ctx context.Context, senderID string, status model.DocumentStatus) ([]model.Document, error) {
	query := `
SELECT id, file_path, file_name, sender_id, status, type, category, created_at, updated_at
FROM documents WHERE sender_id=$1`
	args := []any{senderID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.FilePath, &d.FileName, &d.SenderID, &d.Status, &d.Type, &d.Category, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddPlaceholders inserts a batch in one transaction. Placeholders are
// immutable once created; there is no update path.
func (s *Store) AddPlaceholders(ctx context.Context, phs []model.Placeholder) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range phs {
		_, err := tx.Exec(ctx, `
INSERT INTO placeholders(id, document_id, page_number, x_percent, y_percent, width_percent, height_percent, assigned_signer_email)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, p.DocumentID, p.PageNumber, p.XPercent, p.YPercent, p.WidthPercent, p.HeightPercent, p.AssignedSignerEmail)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) PlaceholdersByDocument(ctx context.Context, documentID string) ([]model.Placeholder, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id, document_id, page_number, x_percent, y_percent, width_percent, height_percent, assigned_signer_email
FROM placeholders WHERE document_id=$1 ORDER BY page_number, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Placeholder
	for rows.Next() {
		var p model.Placeholder
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.XPercent, &p.YPercent, &p.WidthPercent, &p.HeightPercent, &p.AssignedSignerEmail); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SignersByDocument(ctx context.Context, documentID string) ([]model.Signer, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id, document_id, email, priority, status, signed_at
FROM signers WHERE document_id=$1 ORDER BY priority, email`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signer
	for rows.Next() {
		var sg model.Signer
		if err := rows.Scan(&sg.ID, &sg.DocumentID, &sg.Email, &sg.Priority, &sg.Status, &sg.SignedAt); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// SendDocument moves a draft to sent and seeds pending signer rows for the
// assigned emails. Reports false when the document was not in draft.
func (s *Store) SendDocument(ctx context.Context, documentID string, signerEmails []string, newID func() string) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE documents SET status='sent', updated_at=now() WHERE id=$1 AND status='draft'`, documentID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for i, email := range signerEmails {
		_, err := tx.Exec(ctx, `
INSERT INTO signers(id, document_id, email, priority, status)
VALUES($1,$2,$3,$4,'pending')
ON CONFLICT (document_id, email) DO NOTHING`,
			newID(), documentID, email, i)
		if err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

// UpsertSigner creates or refreshes the (document, email) signer row as
// signed. Safe to repeat: retries land on the conflict branch.
func (s *Store) UpsertSigner(ctx context.Context, documentID, email, id string, signedAt time.Time) (model.Signer, error) {
	var sg model.Signer
	err := s.DB.QueryRow(ctx, `
INSERT INTO signers(id, document_id, email, priority, status, signed_at)
VALUES($1,$2,$3,0,'signed',$4)
ON CONFLICT (document_id, email)
DO UPDATE SET status='signed', signed_at=$4
RETURNING id, document_id, email, priority, status, signed_at`,
		id, documentID, email, signedAt).
		Scan(&sg.ID, &sg.DocumentID, &sg.Email, &sg.Priority, &sg.Status, &sg.SignedAt)
	return sg, err
}

// ReplaceSignatures swaps the signer's signature set wholesale inside one
// transaction. A submission is a full replace, never an append.
func (s *Store) ReplaceSignatures(ctx context.Context, signerID string, sigs []model.Signature) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM signatures WHERE signer_id=$1`, signerID); err != nil {
		return err
	}
	for _, sig := range sigs {
		_, err := tx.Exec(ctx, `
INSERT INTO signatures(id, signer_id, placeholder_id, image_base64)
VALUES($1,$2,$3,$4)`,
			sig.ID, signerID, sig.PlaceholderID, sig.ImageBase64)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CompleteDocument is the compare-and-swap finalize: it only succeeds when
// the document has not already been completed by another attempt.
func (s *Store) CompleteDocument(ctx context.Context, documentID string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE documents SET status='completed', updated_at=now()
WHERE id=$1 AND status <> 'completed'`, documentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeclineSigner marks the (document, email) signer declined, creating the
// row if the signer never submitted.
func (s *Store) DeclineSigner(ctx context.Context, documentID, email, id string) (model.Signer, error) {
	var sg model.Signer
	err := s.DB.QueryRow(ctx, `
INSERT INTO signers(id, document_id, email, priority, status)
VALUES($1,$2,$3,0,'declined')
ON CONFLICT (document_id, email)
DO UPDATE SET status='declined'
RETURNING id, document_id, email, priority, status, signed_at`,
		id, documentID, email).
		Scan(&sg.ID, &sg.DocumentID, &sg.Email, &sg.Priority, &sg.Status, &sg.SignedAt)
	return sg, err
}

// CancelDocument moves any non-terminal document to cancelled. Completed
// documents never regress.
func (s *Store) CancelDocument(ctx context.Context, documentID string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE documents SET status='cancelled', updated_at=now()
WHERE id=$1 AND status NOT IN ('completed','cancelled')`, documentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AuditTrail reads a document's audit entries oldest first. The core never
// updates or deletes them.
func (s *Store) AuditTrail(ctx context.Context, documentID string) ([]audit.Entry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id, document_id, signer_id, actor_email, event_type, metadata, created_at
FROM audit_logs WHERE document_id=$1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var meta []byte
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.SignerID, &e.ActorEmail, &e.EventType, &meta, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	return out, rows.Err()
}
