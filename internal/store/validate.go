package store

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MaxIDLength is the maximum allowed length for project and category strings.
// Matches the VARCHAR(255) constraint in the database schema.
const MaxIDLength = 255

// MaxContentLength bounds memory content (bytes).
const MaxContentLength = 32 * 1024

// Search and list bounds.
const (
	DefaultSearchLimit     = 5
	MaxSearchLimit         = 50
	DefaultSearchThreshold = 0.5
	DefaultListLimit       = 20
	MaxListLimit           = 100
)

// ValidateRequired checks that a required string is non-blank and fits the column.
func ValidateRequired(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return NewValidationError(field, "must be a non-empty string")
	}
	if len(v) > MaxIDLength {
		return NewValidationError(field, "too long: %d chars (max %d)", len(v), MaxIDLength)
	}
	return nil
}

// ValidateCategoryFilter checks an optional category filter.
func ValidateCategoryFilter(v string) error {
	if len(v) > MaxIDLength {
		return NewValidationError("category", "too long: %d chars (max %d)", len(v), MaxIDLength)
	}
	return nil
}

// ValidateContent checks memory content or a search query.
func ValidateContent(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return NewValidationError(field, "must be a non-empty string")
	}
	if len(v) > MaxContentLength {
		return NewValidationError(field, "too long: %d bytes (max %d)", len(v), MaxContentLength)
	}
	return nil
}

// ValidateSearchLimit checks limit ∈ [1, MaxSearchLimit].
func ValidateSearchLimit(limit int) error {
	if limit < 1 || limit > MaxSearchLimit {
		return NewValidationError("limit", "must be between 1 and %d, got %d", MaxSearchLimit, limit)
	}
	return nil
}

// ValidateThreshold checks threshold ∈ [0, 1].
func ValidateThreshold(threshold float64) error {
	// NaN fails both comparisons, so check the accepted range positively.
	if !(threshold >= 0 && threshold <= 1) {
		return NewValidationError("similarity_threshold", "must be between 0 and 1, got %v", threshold)
	}
	return nil
}

// ValidateListWindow checks list limit ∈ [1, MaxListLimit] and offset ≥ 0.
func ValidateListWindow(limit, offset int) error {
	if limit < 1 || limit > MaxListLimit {
		return NewValidationError("limit", "must be between 1 and %d, got %d", MaxListLimit, limit)
	}
	if offset < 0 {
		return NewValidationError("offset", "must be >= 0, got %d", offset)
	}
	return nil
}

// ValidateMetadata checks that metadata can be stored as a JSON object.
func ValidateMetadata(md Metadata) error {
	if md == nil {
		return nil
	}
	if _, err := json.Marshal(md); err != nil {
		return NewValidationError("metadata", "not JSON-serializable: %v", err)
	}
	return nil
}

// DecodeMetadata parses a stored metadata document. Numbers are kept as
// json.Number so integers beyond 2^53 come back exactly as stored.
func DecodeMetadata(data []byte) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var md Metadata
	if err := dec.Decode(&md); err != nil {
		return nil, err
	}
	return md, nil
}
