// Package staging builds the object keys of the staging area. A staging key
// encodes a put-if-nonexistent command so a retried write with the same
// request id is deduplicated by the backend:
//
//	staging/2/<appId>[:<anonymousId>]/[touch:]put-if-nonexistent/<category>/<name>.<ext>/<requestId>
package staging

import (
	"strings"

	"github.com/google/uuid"
)

// Category selects the staging folder.
type Category string

const (
	CategoryFiles    Category = "temp"
	CategoryMessages Category = "msgs"
)

// Ext is the object kind inside a folder.
type Ext string

const (
	ExtRecord Ext = "rcrd"
	ExtData   Ext = "data"
)

const (
	prefix  = "staging/2/"
	command = "put-if-nonexistent"
	touch   = "touch:"
)

// Target identifies one staged object independently of who writes it.
type Target struct {
	Category  Category
	Name      string
	Ext       Ext
	RequestID string
}

// Path returns the staging key for t written under the given identity.
// anonymousID may be empty.
func Path(appID, anonymousID string, t Target) string {
	return build(appID, anonymousID, false, t)
}

// TouchPath returns the key of the write that refreshes t's expiry.
func TouchPath(appID, anonymousID string, t Target) string {
	return build(appID, anonymousID, true, t)
}

func build(appID, anonymousID string, isTouch bool, t Target) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(appID)
	if anonymousID != "" {
		b.WriteByte(':')
		b.WriteString(anonymousID)
	}
	b.WriteByte('/')
	if isTouch {
		b.WriteString(touch)
	}
	b.WriteString(command)
	b.WriteByte('/')
	b.WriteString(string(t.Category))
	b.WriteByte('/')
	b.WriteString(t.Name)
	b.WriteByte('.')
	b.WriteString(string(t.Ext))
	b.WriteByte('/')
	b.WriteString(t.RequestID)
	return b.String()
}

// CloudPath is the path of the committed object relative to the owner's
// root, as referenced by message attachments.
func CloudPath(t Target) string {
	return string(t.Category) + "/" + t.Name + "." + string(t.Ext)
}

// NewRequestID returns a fresh idempotency token.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
