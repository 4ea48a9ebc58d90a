// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package naming derives the DNS name under which a participant's service
// metadata location is published.
//
// The name is built from a hash of the canonical identifier, an optional
// scheme label and the zone suffix of the network:
//
//	<prefix><hash>.<scheme-label>.<zone>
//
// Both sides of an exchange must derive exactly the same name, so every knob
// of the construction (digest, text encoding, hash input, label) is part of the
// ZoneConfig rather than a package default.
package naming

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/miekg/dns"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
)

// ErrUnsupportedZone is returned when a zone configuration is missing or unusable
var ErrUnsupportedZone = errors.New("unsupported zone configuration")

// Well-known SML zones
const (
	// ZonePeppolProduction is the PEPPOL production SML zone
	ZonePeppolProduction = "edelivery.tech.ec.europa.eu."
	// ZonePeppolTest is the PEPPOL test (SMK) zone
	ZonePeppolTest = "acc.edelivery.tech.ec.europa.eu."
)

// DefaultSeparator joins scheme and value in the hash input
const DefaultSeparator = "::"

// HashAlgorithm selects the digest applied to the identifier
type HashAlgorithm int

const (
	// MD5 is used by the legacy PEPPOL CNAME layout
	MD5 HashAlgorithm = iota + 1
	// SHA1 is accepted for older private networks
	SHA1
	// SHA256 is used by BDXL and the PEPPOL NAPTR layout
	SHA256
)

var hashNames = map[HashAlgorithm]string{
	MD5:    "md5",
	SHA1:   "sha1",
	SHA256: "sha256",
}

func (h HashAlgorithm) String() string {
	if name, ok := hashNames[h]; ok {
		return name
	}
	return fmt.Sprintf("HashAlgorithm(%d)", int(h))
}

// MarshalText implements encoding.TextMarshaler
func (h HashAlgorithm) MarshalText() ([]byte, error) {
	name, ok := hashNames[h]
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash algorithm %d", ErrUnsupportedZone, int(h))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *HashAlgorithm) UnmarshalText(text []byte) error {
	normalized := strings.ReplaceAll(strings.ToLower(string(text)), "-", "")
	for alg, name := range hashNames {
		if name == normalized {
			*h = alg
			return nil
		}
	}
	return fmt.Errorf("%w: unknown hash algorithm %q", ErrUnsupportedZone, string(text))
}

func (h HashAlgorithm) newHash() (hash.Hash, bool) {
	switch h {
	case MD5:
		return md5.New(), true
	case SHA1:
		return sha1.New(), true
	case SHA256:
		return sha256.New(), true
	}
	return nil, false
}

// Encoding selects how the digest is turned into a DNS label
type Encoding int

const (
	// Base32 is lower-case RFC 4648 base32 without padding
	Base32 Encoding = iota + 1
	// Hex is lower-case hexadecimal
	Hex
)

var encodingNames = map[Encoding]string{
	Base32: "base32",
	Hex:    "hex",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// MarshalText implements encoding.TextMarshaler
func (e Encoding) MarshalText() ([]byte, error) {
	name, ok := encodingNames[e]
	if !ok {
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrUnsupportedZone, int(e))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *Encoding) UnmarshalText(text []byte) error {
	normalized := strings.ToLower(string(text))
	for enc, name := range encodingNames {
		if name == normalized {
			*e = enc
			return nil
		}
	}
	return fmt.Errorf("%w: unknown encoding %q", ErrUnsupportedZone, string(text))
}

func (e Encoding) encode(digest []byte) (string, bool) {
	switch e {
	case Base32:
		return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(digest)), true
	case Hex:
		return hex.EncodeToString(digest), true
	}
	return "", false
}

// HashInput selects which part of the identifier is hashed
type HashInput int

const (
	// SchemeAndValue hashes "<scheme><separator><value>"
	SchemeAndValue HashInput = iota
	// ValueOnly hashes the value alone
	ValueOnly
)

// MarshalText implements encoding.TextMarshaler
func (in HashInput) MarshalText() ([]byte, error) {
	switch in {
	case SchemeAndValue:
		return []byte("scheme-and-value"), nil
	case ValueOnly:
		return []byte("value"), nil
	}
	return nil, fmt.Errorf("%w: unknown hash input %d", ErrUnsupportedZone, int(in))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (in *HashInput) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "scheme-and-value":
		*in = SchemeAndValue
	case "value", "value-only":
		*in = ValueOnly
	default:
		return fmt.Errorf("%w: unknown hash input %q", ErrUnsupportedZone, string(text))
	}
	return nil
}

// ZoneConfig describes how a network derives DNS names from identifiers.
// A ZoneConfig is created once per deployment environment and not modified
// afterwards.
type ZoneConfig struct {
	// Name identifies the network (e.g. "production", "test", "pilot")
	Name string `yaml:"name"`

	// ZoneSuffix is the DNS zone, e.g. "edelivery.tech.ec.europa.eu."
	ZoneSuffix string `yaml:"zone"`

	HashAlgorithm HashAlgorithm `yaml:"hashAlgorithm"`
	Encoding      Encoding      `yaml:"encoding"`
	HashInput     HashInput     `yaml:"hashInput"`

	// Separator between scheme and value in the hash input; "::" when empty
	Separator string `yaml:"separator"`

	// SchemeLabel is a fixed label placed between hash and zone
	SchemeLabel string `yaml:"schemeLabel"`

	// LabelFromScheme uses the identifier scheme as label when SchemeLabel is empty
	LabelFromScheme bool `yaml:"labelFromScheme"`

	// HashPrefix is prepended to the encoded hash, e.g. "B-"
	HashPrefix string `yaml:"hashPrefix"`

	// LowercaseValue lower-cases the value before hashing
	LowercaseValue bool `yaml:"lowercaseValue"`
}

// Validate reports whether the configuration can be used to build names
func (c *ZoneConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrUnsupportedZone)
	}
	if strings.Trim(c.ZoneSuffix, ".") == "" {
		return fmt.Errorf("%w: empty zone suffix", ErrUnsupportedZone)
	}
	if _, ok := c.HashAlgorithm.newHash(); !ok {
		return fmt.Errorf("%w: unknown hash algorithm %s", ErrUnsupportedZone, c.HashAlgorithm)
	}
	if _, ok := encodingNames[c.Encoding]; !ok {
		return fmt.Errorf("%w: unknown encoding %s", ErrUnsupportedZone, c.Encoding)
	}
	if c.HashInput != SchemeAndValue && c.HashInput != ValueOnly {
		return fmt.Errorf("%w: unknown hash input %d", ErrUnsupportedZone, int(c.HashInput))
	}
	if _, ok := dns.IsDomainName(c.ZoneSuffix); !ok {
		return fmt.Errorf("%w: invalid zone suffix %q", ErrUnsupportedZone, c.ZoneSuffix)
	}
	return nil
}

// BuildName computes the fully qualified domain name for id in the zone
// described by cfg. The result always ends with a dot.
func BuildName(id identifier.Identifier, cfg *ZoneConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if id.Value == "" {
		return "", fmt.Errorf("%w: empty value", identifier.ErrInvalidIdentifier)
	}

	h, _ := cfg.HashAlgorithm.newHash()
	h.Write([]byte(cfg.hashInput(id)))
	encoded, _ := cfg.Encoding.encode(h.Sum(nil))

	labels := []string{cfg.HashPrefix + encoded}
	if label := cfg.schemeLabel(id); label != "" {
		labels = append(labels, label)
	}
	labels = append(labels, strings.Trim(cfg.ZoneSuffix, "."))

	name := dns.Fqdn(strings.Join(labels, "."))
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("%w: derived name %q is not a valid domain name", identifier.ErrInvalidIdentifier, name)
	}
	return name, nil
}

func (c *ZoneConfig) hashInput(id identifier.Identifier) string {
	value := id.Value
	if c.LowercaseValue {
		value = strings.ToLower(value)
	}
	if c.HashInput == ValueOnly {
		return value
	}
	sep := c.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	return id.Scheme + sep + value
}

func (c *ZoneConfig) schemeLabel(id identifier.Identifier) string {
	if c.SchemeLabel != "" {
		return c.SchemeLabel
	}
	if c.LabelFromScheme {
		return id.Scheme
	}
	return ""
}

// PeppolNAPTR returns the PEPPOL NAPTR layout: base32(sha256(lowercase value))
// under a label equal to the identifier scheme.
func PeppolNAPTR(name, zone string) ZoneConfig {
	return ZoneConfig{
		Name:            name,
		ZoneSuffix:      zone,
		HashAlgorithm:   SHA256,
		Encoding:        Base32,
		HashInput:       ValueOnly,
		LabelFromScheme: true,
		LowercaseValue:  true,
	}
}

// PeppolCNAME returns the legacy PEPPOL layout: "B-" + hex(md5(lowercase value))
// under a label equal to the identifier scheme.
func PeppolCNAME(name, zone string) ZoneConfig {
	return ZoneConfig{
		Name:            name,
		ZoneSuffix:      zone,
		HashAlgorithm:   MD5,
		Encoding:        Hex,
		HashInput:       ValueOnly,
		LabelFromScheme: true,
		HashPrefix:      "B-",
		LowercaseValue:  true,
	}
}

// OASISBDXL returns the OASIS BDXL layout: base32(sha256(scheme::value))
// directly under the zone.
func OASISBDXL(name, zone string) ZoneConfig {
	return ZoneConfig{
		Name:          name,
		ZoneSuffix:    zone,
		HashAlgorithm: SHA256,
		Encoding:      Base32,
		HashInput:     SchemeAndValue,
	}
}
