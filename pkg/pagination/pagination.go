// Package pagination implements keyset paging over (created_at, id), newest
// first. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultLimit is the page size when a request does not name one.
	DefaultLimit = 25
	// MaxLimit caps any single page.
	MaxLimit = 100

	cursorVersion = "c1"
)

// ErrInvalidCursor is returned for tokens this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds the raw paging inputs of a list request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Window is a decoded page request.
type Window struct {
	Size  int
	After *Cursor
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for
// non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Window normalizes the limit and decodes the cursor.
func (p Params) Window() (Window, error) {
	w := Window{Size: NormalizeLimit(p.Limit)}
	if strings.TrimSpace(p.Cursor) == "" {
		return w, nil
	}
	after, err := Decode(p.Cursor)
	if err != nil {
		return Window{}, err
	}
	w.After = &after
	return w, nil
}

// Scope applies the keyset predicate and ordering to q. It asks for one row
// more than the page size so Trim can tell whether another page follows.
func (w Window) Scope(q *gorm.DB) *gorm.DB {
	if w.After != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", w.After.CreatedAt, w.After.CreatedAt, w.After.ID)
	}
	return q.Order("created_at DESC").Order("id DESC").Limit(w.fetchSize())
}

func (w Window) fetchSize() int {
	return NormalizeLimit(w.Size) + 1
}

// Trim cuts rows down to the page size and returns the cursor of the next
// page, or "" when rows was the last page.
func Trim[T any](rows []T, w Window, position func(T) Cursor) ([]T, string) {
	size := NormalizeLimit(w.Size)
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, Encode(position(rows[size-1]))
}

// Encode renders c as a URL-safe token.
func Encode(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 36) + "." + c.ID.String()
	return cursorVersion + "." + base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	version, body, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || version != cursorVersion {
		return Cursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return Cursor{}, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: parsed}, nil
}
