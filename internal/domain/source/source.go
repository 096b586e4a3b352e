// Package source models data origins and their reliability metrics.
package source

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/vitalyst/provenance/internal/platform/errors"
	"github.com/vitalyst/provenance/internal/platform/id"
)

// Kind describes the origin category of a source.
type Kind int

const (
	// KindUnspecified represents an invalid source kind value.
	KindUnspecified Kind = iota
	// KindManual indicates hand-entered data.
	KindManual
	// KindCSV indicates a bulk CSV import.
	KindCSV
	// KindAI indicates AI-generated enrichment.
	KindAI
	// KindPublication indicates a scientific publication.
	KindPublication
	// KindDatabase indicates an upstream reference database.
	KindDatabase
)

// Verification describes the manual vetting state of a source.
type Verification int

const (
	// VerificationUnspecified represents an invalid verification value.
	VerificationUnspecified Verification = iota
	// VerificationUnverified indicates the source has never been vetted.
	VerificationUnverified
	// VerificationPending indicates vetting is underway.
	VerificationPending
	// VerificationVerified indicates the source has been vetted.
	VerificationVerified
)

// MaxExtensionKeys bounds the free-form extension bag per source.
const MaxExtensionKeys = 16

var (
	// ErrEmptyName indicates a missing source name.
	ErrEmptyName = apperrors.New(apperrors.CodeSourceEmptyName, "source name is required")
	// ErrInvalidKind indicates a missing or invalid source kind.
	ErrInvalidKind = apperrors.New(apperrors.CodeSourceInvalidKind, "source kind is required")
	// ErrMetadataTooLarge indicates the extension bag exceeds its key budget.
	ErrMetadataTooLarge = apperrors.New(apperrors.CodeSourceMetadataTooLarge, "source extension metadata exceeds key budget")
)

// Source represents the origin of assertions, carrying its metrics snapshot.
type Source struct {
	ID   string
	Kind Kind
	Name string
	// URL is the canonical reference for the source, when one exists.
	URL          string
	Verification Verification
	// LastVerifiedAt is when the source last passed vetting; drives freshness.
	LastVerifiedAt *time.Time
	// License and Notes are the documented bounded metadata fields.
	License string
	Notes   string
	// Extensions is the constrained free-form bag (at most MaxExtensionKeys).
	Extensions map[string]string
	// Metrics is the latest computed reliability snapshot.
	Metrics   Metrics
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput describes the metadata needed to register a source.
type CreateInput struct {
	Kind       Kind
	Name       string
	URL        string
	License    string
	Notes      string
	Extensions map[string]string
}

// Create registers a new source with a generated ID and a neutral metrics
// snapshot. Sources start unverified.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Source, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return Source{}, err
	}

	sourceID, err := idGenerator()
	if err != nil {
		return Source{}, fmt.Errorf("generate source id: %w", err)
	}

	createdAt := now().UTC()
	return Source{
		ID:           sourceID,
		Kind:         normalized.Kind,
		Name:         normalized.Name,
		URL:          normalized.URL,
		Verification: VerificationUnverified,
		License:      normalized.License,
		Notes:        normalized.Notes,
		Extensions:   normalized.Extensions,
		Metrics:      NeutralMetrics(createdAt),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// NormalizeCreateInput trims and validates source input metadata.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateInput{}, ErrEmptyName
	}
	if input.Kind == KindUnspecified {
		return CreateInput{}, ErrInvalidKind
	}
	input.URL = strings.TrimSpace(input.URL)
	input.License = strings.TrimSpace(input.License)
	input.Notes = strings.TrimSpace(input.Notes)
	if len(input.Extensions) > MaxExtensionKeys {
		return CreateInput{}, ErrMetadataTooLarge
	}
	return input, nil
}

// Label returns a stable label for a source kind.
func (k Kind) Label() string {
	switch k {
	case KindManual:
		return "MANUAL"
	case KindCSV:
		return "CSV"
	case KindAI:
		return "AI"
	case KindPublication:
		return "PUBLICATION"
	case KindDatabase:
		return "DATABASE"
	default:
		return "UNSPECIFIED"
	}
}

// KindFromLabel parses a string label into a Kind.
func KindFromLabel(value string) (Kind, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return KindUnspecified, fmt.Errorf("source kind is required")
	}
	switch strings.ToUpper(trimmed) {
	case "MANUAL", "SOURCE_KIND_MANUAL":
		return KindManual, nil
	case "CSV", "SOURCE_KIND_CSV":
		return KindCSV, nil
	case "AI", "SOURCE_KIND_AI":
		return KindAI, nil
	case "PUBLICATION", "SOURCE_KIND_PUBLICATION":
		return KindPublication, nil
	case "DATABASE", "SOURCE_KIND_DATABASE":
		return KindDatabase, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown source kind: %s", trimmed)
	}
}

// Label returns a stable label for a verification state.
func (v Verification) Label() string {
	switch v {
	case VerificationUnverified:
		return "UNVERIFIED"
	case VerificationPending:
		return "PENDING"
	case VerificationVerified:
		return "VERIFIED"
	default:
		return "UNSPECIFIED"
	}
}

// VerificationFromLabel parses a string label into a Verification.
func VerificationFromLabel(value string) (Verification, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return VerificationUnspecified, fmt.Errorf("verification state is required")
	}
	switch strings.ToUpper(trimmed) {
	case "UNVERIFIED", "VERIFICATION_UNVERIFIED":
		return VerificationUnverified, nil
	case "PENDING", "VERIFICATION_PENDING":
		return VerificationPending, nil
	case "VERIFIED", "VERIFICATION_VERIFIED":
		return VerificationVerified, nil
	default:
		return VerificationUnspecified, fmt.Errorf("unknown verification state: %s", trimmed)
	}
}
