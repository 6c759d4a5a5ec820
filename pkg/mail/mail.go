// Package mail handles both directions of claimant correspondence: polling
// the claims inbox over IMAP and sending HTML replies over SMTP. The ingress
// loop feeds admitted messages into the orchestrator.
package mail

import (
	"context"
	netmail "net/mail"
	"path/filepath"
	"strings"
)

// DefaultMaxAttachmentSize is the admission cap per attachment unless
// configured otherwise.
const DefaultMaxAttachmentSize = 10 << 20 // 10 MiB

var acceptedExt = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".bmp": true, ".tiff": true, ".webp": true, ".txt": true,
	".rtf": true, ".csv": true, ".json": true, ".xml": true, ".zip": true,
	".rar": true, ".7z": true, ".tar": true, ".gz": true,
}

// Attachment is a file carried by an inbound message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Inbound is a normalized message pulled from the inbox.
type Inbound struct {
	UID         uint32
	Sender      string // bare email address
	Subject     string
	Text        string
	Attachments []Attachment
}

// Sender delivers an HTML email to a claimant.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Inbox fetches unseen messages from the claims mailbox.
type Inbox interface {
	FetchUnseen(ctx context.Context) ([]Inbound, error)
}

// Admissible reports whether an attachment passes the admission rules:
// accepted extension and size within the cap. maxSize <= 0 selects the
// default cap. Rejected attachments are silently dropped by the caller.
func Admissible(filename string, size, maxSize int64) bool {
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}
	if size > maxSize {
		return false
	}
	return acceptedExt[strings.ToLower(filepath.Ext(filename))]
}

// BareAddress reduces "Name <user@host>" to "user@host".
func BareAddress(addr string) string {
	parsed, err := netmail.ParseAddress(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return parsed.Address
}
