// Package model defines the persistent record types shared by the store,
// the completion pipeline and the HTTP surface.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no matching row exists.
var ErrNotFound = errors.New("not found")

type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusSent       DocumentStatus = "sent"
	StatusInProgress DocumentStatus = "in_progress"
	StatusCompleted  DocumentStatus = "completed"
	StatusCancelled  DocumentStatus = "cancelled"
)

type DocumentType string

const (
	TypeSelfSign    DocumentType = "self_sign"
	TypeRequestSign DocumentType = "request_sign"
)

type SignerStatus string

const (
	SignerPending  SignerStatus = "pending"
	SignerSigned   SignerStatus = "signed"
	SignerDeclined SignerStatus = "declined"
)

type Document struct {
	ID        string         `json:"id"`
	FilePath  string         `json:"file_path"`
	FileName  string         `json:"file_name"`
	SenderID  string         `json:"sender_id"`
	Status    DocumentStatus `json:"status"`
	Type      DocumentType   `json:"type"`
	Category  string         `json:"category"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Placeholder geometry is expressed as percentages of the page dimensions
// with the origin at the top-left corner, the way fields are authored in the
// document editor. Placeholders are immutable once created.
type Placeholder struct {
	ID                  string  `json:"id"`
	DocumentID          string  `json:"document_id"`
	PageNumber          int     `json:"page_number"`
	XPercent            float64 `json:"x_percent"`
	YPercent            float64 `json:"y_percent"`
	WidthPercent        float64 `json:"width_percent"`
	HeightPercent       float64 `json:"height_percent"`
	AssignedSignerEmail string  `json:"assigned_signer_email"`
}

// Signer rows are unique per (document, email). They are created lazily on
// the first successful submission and updated idempotently on retries.
type Signer struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Email      string       `json:"email"`
	Priority   int          `json:"priority"`
	Status     SignerStatus `json:"status"`
	SignedAt   *time.Time   `json:"signed_at,omitempty"`
}

type Signature struct {
	ID            string `json:"id"`
	SignerID      string `json:"signer_id"`
	PlaceholderID string `json:"placeholder_id"`
	ImageBase64   string `json:"image_base64"`
}
