package service

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"retailcore/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type cursorPayload struct {
	CreatedAt time.Time `json:"c"`
	ID        uuid.UUID `json:"i"`
}

// encodeCursor produces the opaque token for the row a page ended on.
func encodeCursor(createdAt time.Time, id uuid.UUID) string {
	raw, _ := json.Marshal(cursorPayload{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeCursor returns nil for an empty token (first page).
func decodeCursor(token string) (*repository.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == uuid.Nil || p.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &repository.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}
