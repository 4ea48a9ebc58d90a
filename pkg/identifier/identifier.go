package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned when a scheme or value cannot be canonicalized
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Well-known identifier schemes
const (
	// SchemePeppolParticipant is the PEPPOL participant identifier scheme
	SchemePeppolParticipant = "iso6523-actorid-upis"
	// SchemePeppolDocType is the PEPPOL document type identifier scheme
	SchemePeppolDocType = "busdox-docid-qns"
	// SchemePeppolProcess is the PEPPOL process identifier scheme
	SchemePeppolProcess = "cenbii-procid-ubl"
	// SchemeEbCorePrefix is the URN prefix of ebCore Party Identifiers
	SchemeEbCorePrefix = "urn:oasis:names:tc:ebcore:partyid-type"
)

// URISeparator separates scheme and value in the URI-encoded form
const URISeparator = "::"

var (
	schemePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9+.\-_:]*$`)
	ebCorePattern = regexp.MustCompile(`^urn:oasis:names:tc:ebcore:partyid-type:([^:]+):([^:]+):(.+)$`)
)

// Identifier is a canonical (scheme, value) pair.
// The zero value is not a valid identifier; use Canonicalize.
type Identifier struct {
	Scheme string
	Value  string
}

// Canonicalize validates scheme and value and returns the canonical identifier.
// The scheme is lower-cased, the value is preserved exactly (no trimming).
func Canonicalize(scheme, value string) (Identifier, error) {
	if value == "" {
		return Identifier{}, fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}
	if scheme != "" && !schemePattern.MatchString(scheme) {
		return Identifier{}, fmt.Errorf("%w: scheme %q contains invalid characters", ErrInvalidIdentifier, scheme)
	}
	return Identifier{
		Scheme: strings.ToLower(scheme),
		Value:  value,
	}, nil
}

// MustCanonicalize is like Canonicalize but panics on error.
// Intended for constants in tests and examples.
func MustCanonicalize(scheme, value string) Identifier {
	id, err := Canonicalize(scheme, value)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseURIEncoded parses "<scheme>::<value>". A string without separator is
// taken as a value with an empty scheme.
func ParseURIEncoded(s string) (Identifier, error) {
	scheme, value, found := strings.Cut(s, URISeparator)
	if !found {
		return Canonicalize("", s)
	}
	return Canonicalize(scheme, value)
}

// URIEncoded returns "<scheme>::<value>", or just the value if the scheme is empty.
func (id Identifier) URIEncoded() string {
	if id.Scheme == "" {
		return id.Value
	}
	return id.Scheme + URISeparator + id.Value
}

// IsZero reports whether id is the zero Identifier
func (id Identifier) IsZero() bool {
	return id.Scheme == "" && id.Value == ""
}

func (id Identifier) String() string {
	return id.URIEncoded()
}

// FormatEbCorePartyID formats an ebCore Party Identifier.
// Returns: urn:oasis:names:tc:ebcore:partyid-type:<catalog>:<scheme>:<identifier>
func FormatEbCorePartyID(catalog, scheme, identifier string) string {
	return fmt.Sprintf("%s:%s:%s:%s", SchemeEbCorePrefix, catalog, scheme, identifier)
}

// ParseEbCorePartyID parses an ebCore Party Identifier.
// Returns catalog, scheme, identifier, and error.
func ParseEbCorePartyID(partyID string) (catalog, scheme, identifier string, err error) {
	matches := ebCorePattern.FindStringSubmatch(partyID)
	if matches == nil {
		return "", "", "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, partyID)
	}
	return matches[1], matches[2], matches[3], nil
}

// FormatPEPPOLPartyID formats the value part of a PEPPOL participant identifier.
// Returns: <scheme>:<identifier>
func FormatPEPPOLPartyID(scheme, identifier string) string {
	return scheme + ":" + identifier
}

// ParsePEPPOLPartyID splits a PEPPOL participant value into ISO 6523 scheme code
// and identifier.
func ParsePEPPOLPartyID(partyID string) (scheme, identifier string, err error) {
	scheme, identifier, found := strings.Cut(partyID, ":")
	if !found || scheme == "" || identifier == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, partyID)
	}
	return scheme, identifier, nil
}

// NewPeppolParticipant builds a canonical PEPPOL participant identifier from an
// ISO 6523 scheme code and the party identifier.
func NewPeppolParticipant(iso6523Code, partyID string) (Identifier, error) {
	if iso6523Code == "" || partyID == "" {
		return Identifier{}, fmt.Errorf("%w: empty PEPPOL participant part", ErrInvalidIdentifier)
	}
	return Canonicalize(SchemePeppolParticipant, FormatPEPPOLPartyID(iso6523Code, partyID))
}
