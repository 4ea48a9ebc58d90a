package trust

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"time"
)

// AnchorSet is a named bundle of trust anchors. It is treated as immutable
// once built.
type AnchorSet struct {
	// Name identifies the bundle, e.g. "Peppol2025"
	Name string
	// Root is the only certificate accepted as a chain root
	Root *x509.Certificate
	// Intermediates may be used to link a certificate to Root
	Intermediates []*x509.Certificate
	// Revocation is consulted after chain verification. Optional.
	Revocation RevocationSource

	id string
}

// NewAnchorSet creates an anchor set. The intermediates slice is copied.
func NewAnchorSet(name string, root *x509.Certificate, intermediates []*x509.Certificate, source RevocationSource) *AnchorSet {
	a := &AnchorSet{
		Name:          name,
		Root:          root,
		Intermediates: append([]*x509.Certificate(nil), intermediates...),
		Revocation:    source,
	}
	a.id = a.fingerprint()
	return a
}

// ID returns the bundle name followed by a fingerprint of its certificates.
// Two anchor sets with the same name but different certificates have
// different IDs.
func (a *AnchorSet) ID() string {
	if a == nil {
		return ""
	}
	if a.id != "" {
		return a.id
	}
	return a.fingerprint()
}

func (a *AnchorSet) fingerprint() string {
	h := sha256.New()
	if a.Root != nil {
		h.Write(a.Root.Raw)
	}
	for _, c := range a.Intermediates {
		if c != nil {
			h.Write(c.Raw)
		}
	}
	return a.Name + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (a *AnchorSet) verifyOptions(asOf time.Time) x509.VerifyOptions {
	roots := x509.NewCertPool()
	roots.AddCert(a.Root)

	intermediates := x509.NewCertPool()
	for _, c := range a.Intermediates {
		if c != nil {
			intermediates.AddCert(c)
		}
	}

	return x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   asOf,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
}
