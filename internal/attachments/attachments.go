// Package attachments turns uploaded file bytes into durable URLs. Every file
// of a message is resolved here before the message store is touched.
package attachments

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/apperr"
)

// DefaultMaxFiles caps the number of files accepted with one message
const DefaultMaxFiles = 10

const genericContentType = "application/octet-stream"

// formOverhead covers text fields, part headers and the byte past each
// file's limit that lets Check see an oversized file
const formOverhead = 64 << 10

// Store persists one file and returns the URL clients use to fetch it
type Store interface {
	Store(ctx context.Context, data []byte, contentTypeHint, name string) (string, error)
}

// Limits bounds what a single message may carry
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// Check rejects requests that exceed the limits before anything is uploaded
func (l Limits) Check(sizes []int64) error {
	if l.MaxFiles > 0 && len(sizes) > l.MaxFiles {
		return apperr.Validation(fmt.Sprintf("At most %d files can be attached", l.MaxFiles), nil)
	}
	for _, size := range sizes {
		if l.MaxBytes > 0 && size > l.MaxBytes {
			return apperr.Validation(fmt.Sprintf("Attachments must be at most %d bytes", l.MaxBytes), nil)
		}
		if size == 0 {
			return apperr.Validation("Attachments must not be empty", nil)
		}
	}
	return nil
}

// MaxRequestBytes bounds a whole multipart message request. Zero means no
// per-file limit is configured.
func (l Limits) MaxRequestBytes() int64 {
	if l.MaxBytes <= 0 {
		return 0
	}
	files := l.MaxFiles
	if files <= 0 {
		files = DefaultMaxFiles
	}
	return int64(files)*l.MaxBytes + formOverhead
}

// ContentType returns hint unless it is missing or generic, in which case the
// type is sniffed from the data
func ContentType(data []byte, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint != "" && hint != genericContentType {
		return hint
	}
	return mimetype.Detect(data).String()
}

// ObjectKey builds a collision-free key that keeps a readable file name
func ObjectKey(name string, now time.Time) string {
	return path.Join("attachments", now.UTC().Format("2006/01/02"), uuid.NewString()+"-"+sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "file"
	}
	return clean
}

// Disabled is used when no content store is configured. Text messages keep
// working; any message with files fails with an upload error.
type Disabled struct{}

func (Disabled) Store(ctx context.Context, data []byte, contentTypeHint, name string) (string, error) {
	return "", apperr.Upload("File uploads are not configured", nil)
}
