package domain

import "time"

// AuthorType indicates who authored a comment or change.
type AuthorType string

const (
	AuthorTypeCitizen AuthorType = "CITIZEN"
	AuthorTypeStaff   AuthorType = "STAFF"
	AuthorTypeSystem  AuthorType = "SYSTEM"
)

// CommentVisibility differentiates public replies from internal notes.
type CommentVisibility string

const (
	CommentPublic       CommentVisibility = "PUBLIC"
	CommentInternalNote CommentVisibility = "INTERNAL_NOTE"
)

// RequestComment captures communications on a service request thread.
type RequestComment struct {
	ID          string
	RequestID   string
	AuthorType  AuthorType
	AuthorID    *string
	Visibility  CommentVisibility
	Body        string
	Attachments []AttachmentReference
	CreatedAt   time.Time
}

// AttachmentReference stores metadata for uploaded photos/documents.
// StorageKey is the opaque reference handed back by the blob store;
// the engine never touches the bytes.
type AttachmentReference struct {
	ID         string
	CommentID  string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
