package trust

import (
	"fmt"
)

// Verdict is the outcome of a certificate check. Values after VerdictUnknown
// are ordered by evaluation priority. The zero value is VerdictUnknown so an
// unchecked Result is never valid.
type Verdict int

const (
	// VerdictUnknown means no check was performed
	VerdictUnknown Verdict = iota
	// VerdictNoCertificateProvided means there was no certificate to check
	VerdictNoCertificateProvided
	// VerdictNotYetValid means the evaluation time is before NotBefore
	VerdictNotYetValid
	// VerdictExpired means the evaluation time is after NotAfter
	VerdictExpired
	// VerdictUntrustedIssuer means no chain to the anchor root could be verified
	VerdictUntrustedIssuer
	// VerdictRevoked means the revocation source lists the certificate
	VerdictRevoked
	// VerdictRevocationCheckFailed means the revocation source could not be evaluated
	VerdictRevocationCheckFailed
	// VerdictValid means the certificate chains to the anchors and is not revoked
	VerdictValid
)

var verdictNames = [...]string{
	VerdictUnknown:               "UNKNOWN",
	VerdictNoCertificateProvided: "NO_CERTIFICATE_PROVIDED",
	VerdictNotYetValid:           "NOT_YET_VALID",
	VerdictExpired:               "EXPIRED",
	VerdictUntrustedIssuer:       "UNTRUSTED_ISSUER",
	VerdictRevoked:               "REVOKED",
	VerdictRevocationCheckFailed: "REVOCATION_CHECK_FAILED",
	VerdictValid:                 "VALID",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
	return verdictNames[v]
}

// IsValid reports whether v is VerdictValid
func (v Verdict) IsValid() bool {
	return v == VerdictValid
}

// MarshalText implements encoding.TextMarshaler
func (v Verdict) MarshalText() ([]byte, error) {
	if v < 0 || int(v) >= len(verdictNames) {
		return nil, fmt.Errorf("unknown verdict %d", int(v))
	}
	return []byte(verdictNames[v]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *Verdict) UnmarshalText(text []byte) error {
	for i, name := range verdictNames {
		if name == string(text) {
			*v = Verdict(i)
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", text)
}
