package trust

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"
)

// RevocationSource reports whether a certificate is revoked as of a point in
// time. issuer is the certificate that signed cert in the verified chain.
// An error means the status could not be determined.
type RevocationSource interface {
	RevocationStatus(cert, issuer *x509.Certificate, asOf time.Time) (revoked bool, err error)
}

// CRLSource evaluates revocation against a parsed certificate revocation list
type CRLSource struct {
	crl *x509.RevocationList
	err error
}

// NewCRLSource wraps an already parsed CRL
func NewCRLSource(crl *x509.RevocationList) *CRLSource {
	return &CRLSource{crl: crl}
}

// ParseCRLSource parses a DER or PEM encoded CRL. A parse failure is kept and
// reported by RevocationStatus.
func ParseCRLSource(data []byte) *CRLSource {
	crl, err := ParseCRL(data)
	if err != nil {
		return &CRLSource{err: err}
	}
	return &CRLSource{crl: crl}
}

// ParseCRL parses a DER or PEM ("X509 CRL") encoded CRL
func ParseCRL(data []byte) (*x509.RevocationList, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "X509 CRL" {
			return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
		}
		data = block.Bytes
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CRL: %w", err)
	}
	return crl, nil
}

// CRL returns the wrapped list, nil if parsing failed
func (s *CRLSource) CRL() *x509.RevocationList {
	return s.crl
}

// RevocationStatus implements RevocationSource. The CRL must be signed by
// issuer, name the certificate's issuer and not be past its NextUpdate.
func (s *CRLSource) RevocationStatus(cert, issuer *x509.Certificate, asOf time.Time) (bool, error) {
	if s == nil || (s.crl == nil && s.err == nil) {
		return false, fmt.Errorf("%w: no CRL loaded", ErrRevocationUnavailable)
	}
	if s.err != nil {
		return false, fmt.Errorf("%w: %w", ErrRevocationUnavailable, s.err)
	}

	if !bytes.Equal(s.crl.RawIssuer, cert.RawIssuer) {
		return false, fmt.Errorf("%w: CRL issued by %s does not cover certificates from %s",
			ErrRevocationUnavailable, s.crl.Issuer, cert.Issuer)
	}
	if issuer != nil {
		if err := s.crl.CheckSignatureFrom(issuer); err != nil {
			return false, fmt.Errorf("%w: CRL signature: %v", ErrRevocationUnavailable, err)
		}
	}
	if !s.crl.NextUpdate.IsZero() && asOf.After(s.crl.NextUpdate) {
		return false, fmt.Errorf("%w: CRL expired at %s", ErrRevocationUnavailable, s.crl.NextUpdate.UTC().Format(time.RFC3339))
	}

	for _, entry := range s.crl.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(cert.SerialNumber) != 0 {
			continue
		}
		if entry.RevocationTime.After(asOf) {
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

// OCSPSource evaluates revocation against pre-fetched OCSP responses. Each
// response is matched to a certificate by serial number.
type OCSPSource struct {
	responses map[string][]byte
	errs      []error
}

// NewOCSPSource indexes DER encoded OCSP responses. Responses that cannot be
// parsed are remembered and reported when no usable response matches.
func NewOCSPSource(responses ...[]byte) *OCSPSource {
	s := &OCSPSource{responses: make(map[string][]byte)}
	for _, raw := range responses {
		resp, err := ocsp.ParseResponse(raw, nil)
		if err != nil {
			s.errs = append(s.errs, fmt.Errorf("failed to parse OCSP response: %w", err))
			continue
		}
		s.responses[serialKey(resp.SerialNumber)] = raw
	}
	return s
}

// RevocationStatus implements RevocationSource
func (s *OCSPSource) RevocationStatus(cert, issuer *x509.Certificate, asOf time.Time) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("%w: no OCSP responses loaded", ErrRevocationUnavailable)
	}

	raw, ok := s.responses[serialKey(cert.SerialNumber)]
	if !ok {
		err := fmt.Errorf("%w: no OCSP response for serial %s", ErrRevocationUnavailable, cert.SerialNumber)
		if len(s.errs) > 0 {
			err = errors.Join(append([]error{err}, s.errs...)...)
		}
		return false, err
	}

	resp, err := ocsp.ParseResponseForCert(raw, cert, issuer)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if !resp.NextUpdate.IsZero() && asOf.After(resp.NextUpdate) {
		return false, fmt.Errorf("%w: OCSP response expired at %s", ErrRevocationUnavailable, resp.NextUpdate.UTC().Format(time.RFC3339))
	}

	switch resp.Status {
	case ocsp.Good:
		return false, nil
	case ocsp.Revoked:
		if resp.RevokedAt.After(asOf) {
			return false, nil
		}
		return true, nil
	case ocsp.Unknown:
		return false, fmt.Errorf("%w: OCSP status unknown", ErrRevocationUnavailable)
	default:
		return false, fmt.Errorf("%w: unexpected OCSP status: %d", ErrRevocationUnavailable, resp.Status)
	}
}

func serialKey(serial *big.Int) string {
	if serial == nil {
		return ""
	}
	return serial.Text(16)
}

// MultiSource consults every source. Any source reporting the certificate
// revoked wins; otherwise any failure makes the status undetermined.
type MultiSource []RevocationSource

// RevocationStatus implements RevocationSource
func (m MultiSource) RevocationStatus(cert, issuer *x509.Certificate, asOf time.Time) (bool, error) {
	var errs []error
	for _, src := range m {
		if src == nil {
			continue
		}
		revoked, err := src.RevocationStatus(cert, issuer, asOf)
		if revoked {
			return true, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// UnavailableSource always reports that revocation status cannot be
// determined. It stands in for revocation data that failed to load.
type UnavailableSource struct {
	Err error
}

// RevocationStatus implements RevocationSource
func (u UnavailableSource) RevocationStatus(*x509.Certificate, *x509.Certificate, time.Time) (bool, error) {
	if u.Err == nil {
		return false, ErrRevocationUnavailable
	}
	return false, fmt.Errorf("%w: %w", ErrRevocationUnavailable, u.Err)
}
