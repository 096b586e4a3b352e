// Package cursor provides opaque, restartable page tokens for list queries.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the decoded resume position of a list query.
type Cursor struct {
	// Key is the store-specific resume key: the next assertion id for a
	// lineage walk, or the last-seen sort key for record listings.
	Key string `json:"key"`
	// FilterHash pins the token to the filter it was issued under.
	FilterHash string `json:"filter_hash,omitempty"`
}

// New creates a cursor resuming at key under the given filter.
func New(key, filter string) Cursor {
	return Cursor{Key: key, FilterHash: HashFilter(filter)}
}

// Encode serializes a cursor into an opaque page token.
func Encode(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decode parses an opaque page token back into a cursor.
func Decode(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, fmt.Errorf("page token is required")
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode page token: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal page token: %w", err)
	}
	if c.Key == "" {
		return Cursor{}, fmt.Errorf("page token is missing a resume key")
	}
	return c, nil
}

// HashFilter returns a short stable hash for a filter expression.
// Empty filters hash to the empty string.
func HashFilter(filter string) string {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(sum[:])[:16]
}

// ValidateFilterHash checks a decoded cursor against the live filter.
func ValidateFilterHash(c Cursor, filter string) error {
	if c.FilterHash != HashFilter(filter) {
		return fmt.Errorf("page token does not match the current filter")
	}
	return nil
}
