package dto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Page size limits for list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor is returned when a cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// PaginationRequest is bound from the cursor and limit query parameters.
type PaginationRequest struct {
	// Cursor is the NextCursor of a previous page. Empty means the first page.
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"  validate:"omitempty,gte=1,lte=100"`
}

// GetLimit returns the limit clamped to [1, MaxLimit], DefaultLimit when
// unset.
func (p *PaginationRequest) GetLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Offset decodes the cursor into a list position. The first page is 0.
func (p *PaginationRequest) Offset() (int, error) {
	if p.Cursor == "" {
		return 0, nil
	}

	c, err := DecodeCursor(p.Cursor)
	if err != nil {
		return 0, err
	}

	return c.Offset, nil
}

// PaginatedResponse is one page of a list.
type PaginatedResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
	Total      int    `json:"total"`
}

// Paginate cuts the page starting at offset out of items. An offset past the
// end yields an empty page.
func Paginate[T any](items []T, offset, limit int) *PaginatedResponse[T] {
	total := len(items)
	start := min(max(offset, 0), total)
	end := min(start+limit, total)

	page := &PaginatedResponse[T]{
		Items:   append([]T{}, items[start:end]...),
		HasMore: end < total,
		Total:   total,
	}

	if page.HasMore {
		page.NextCursor = EncodeCursor(&CursorData{Offset: end})
	}

	return page
}

// CursorData is the decoded content of an opaque cursor. Offsets index the
// insertion-ordered quote list, which only grows.
type CursorData struct {
	Offset int `json:"o"`
}

// EncodeCursor encodes data as URL-safe base64 JSON.
func EncodeCursor(data *CursorData) string {
	if data == nil {
		return ""
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. Negative offsets are rejected.
func DecodeCursor(encoded string) (*CursorData, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var data CursorData
	if err := json.Unmarshal(raw, &data); err != nil || data.Offset < 0 {
		return nil, ErrInvalidCursor
	}

	return &data, nil
}
