package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCertificate is the reason for VerdictNoCertificateProvided
	ErrNoCertificate = errors.New("no certificate provided")
	// ErrCertificateNotYetValid is the reason for VerdictNotYetValid
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrCertificateExpired is the reason for VerdictExpired
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateUntrusted is the reason for VerdictUntrustedIssuer
	ErrCertificateUntrusted = errors.New("certificate is not trusted")
	// ErrCertificateRevoked is the reason for VerdictRevoked
	ErrCertificateRevoked = errors.New("certificate has been revoked")
	// ErrRevocationUnavailable is the reason for VerdictRevocationCheckFailed
	ErrRevocationUnavailable = errors.New("revocation status unavailable")
)

// Result is a verdict together with the reason for it. Reason is nil for
// VerdictValid.
type Result struct {
	Verdict Verdict
	Reason  error
}

// Check evaluates cert at asOf against anchors
func Check(cert *x509.Certificate, asOf time.Time, anchors *AnchorSet) Verdict {
	return Evaluate(cert, asOf, anchors).Verdict
}

// Evaluate is Check reporting the reason behind the verdict
func Evaluate(cert *x509.Certificate, asOf time.Time, anchors *AnchorSet) Result {
	if cert == nil {
		return Result{VerdictNoCertificateProvided, ErrNoCertificate}
	}
	if asOf.Before(cert.NotBefore) {
		return Result{VerdictNotYetValid, fmt.Errorf("%w: valid from %s", ErrCertificateNotYetValid, cert.NotBefore.UTC().Format(time.RFC3339))}
	}
	if asOf.After(cert.NotAfter) {
		return Result{VerdictExpired, fmt.Errorf("%w: valid until %s", ErrCertificateExpired, cert.NotAfter.UTC().Format(time.RFC3339))}
	}

	if anchors == nil || anchors.Root == nil {
		return Result{VerdictUntrustedIssuer, fmt.Errorf("%w: no trust anchor configured", ErrCertificateUntrusted)}
	}

	chains, err := cert.Verify(anchors.verifyOptions(asOf))
	if err != nil {
		return Result{VerdictUntrustedIssuer, fmt.Errorf("%w: %v", ErrCertificateUntrusted, err)}
	}

	if anchors.Revocation == nil {
		return Result{Verdict: VerdictValid}
	}

	revoked, err := anchors.Revocation.RevocationStatus(cert, issuerOf(chains[0]), asOf)
	if revoked {
		return Result{VerdictRevoked, fmt.Errorf("%w: serial %s", ErrCertificateRevoked, cert.SerialNumber)}
	}
	if err != nil {
		if !errors.Is(err, ErrRevocationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
		}
		return Result{VerdictRevocationCheckFailed, err}
	}

	return Result{Verdict: VerdictValid}
}

// issuerOf returns the issuer of the first certificate in a verified chain.
// A chain of length one is the root itself.
func issuerOf(chain []*x509.Certificate) *x509.Certificate {
	if len(chain) > 1 {
		return chain[1]
	}
	return chain[0]
}

// Checker binds an anchor set for repeated checks
type Checker struct {
	anchors *AnchorSet
	now     func() time.Time
}

// NewChecker creates a checker for anchors
func NewChecker(anchors *AnchorSet) *Checker {
	return &Checker{anchors: anchors, now: time.Now}
}

// WithClock returns a copy of the checker using now as the current time
func (c *Checker) WithClock(now func() time.Time) *Checker {
	return &Checker{anchors: c.anchors, now: now}
}

// Anchors returns the bound anchor set
func (c *Checker) Anchors() *AnchorSet {
	return c.anchors
}

// Check evaluates cert at asOf
func (c *Checker) Check(cert *x509.Certificate, asOf time.Time) Verdict {
	return Check(cert, asOf, c.anchors)
}

// CheckNow evaluates cert at the checker's current time
func (c *Checker) CheckNow(cert *x509.Certificate) Verdict {
	return Check(cert, c.now(), c.anchors)
}
