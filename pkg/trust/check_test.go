package trust

import (
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func TestCheckValidityWindow(t *testing.T) {
	pki := newTestPKI(t)
	anchors := pki.anchors(nil)

	assert.Equal(t, VerdictNotYetValid, Check(pki.leaf, date(2000), anchors))
	assert.Equal(t, VerdictExpired, Check(pki.leaf, date(2099), anchors))
	assert.Equal(t, VerdictValid, Check(pki.leaf, date(2025), anchors))
}

func TestCheckNoCertificate(t *testing.T) {
	pki := newTestPKI(t)

	for _, anchors := range []*AnchorSet{nil, pki.anchors(nil), pki.anchors(UnavailableSource{})} {
		assert.Equal(t, VerdictNoCertificateProvided, Check(nil, date(2025), anchors))
	}
}

func TestCheckTimeBeforeTrust(t *testing.T) {
	pki := newTestPKI(t)
	stranger := issueCA(t, "Other Root", 9, nil)
	foreign := issueLeaf(t, "foreign.example.com", 77, date(2020), date(2030), stranger)

	revokedCRL := createCRL(t, pki.intermediate, date(2024), date(2026),
		x509.RevocationListEntry{SerialNumber: pki.leaf.SerialNumber, RevocationTime: date(2021)})

	// time checks win over untrusted issuer and over revocation
	assert.Equal(t, VerdictNotYetValid, Check(foreign, date(2000), pki.anchors(nil)))
	assert.Equal(t, VerdictExpired, Check(foreign, date(2099), nil))
	assert.Equal(t, VerdictExpired, Check(pki.leaf, date(2099), pki.anchors(ParseCRLSource(revokedCRL))))
	assert.Equal(t, VerdictNotYetValid, Check(pki.leaf, date(2000), pki.anchors(UnavailableSource{})))
}

func TestCheckUntrustedIssuer(t *testing.T) {
	pki := newTestPKI(t)
	stranger := issueCA(t, "Other Root", 9, nil)
	foreign := issueLeaf(t, "foreign.example.com", 77, date(2020), date(2030), stranger)

	tests := []struct {
		name    string
		cert    *x509.Certificate
		anchors *AnchorSet
	}{
		{name: "nil anchors", cert: pki.leaf, anchors: nil},
		{name: "nil root", cert: pki.leaf, anchors: NewAnchorSet("empty", nil, nil, nil)},
		{name: "different root", cert: foreign, anchors: pki.anchors(nil)},
		{name: "missing intermediate", cert: pki.leaf, anchors: NewAnchorSet("root-only", pki.root.cert, nil, nil)},
		{
			name:    "intermediate used as root is not enough for a foreign leaf",
			cert:    foreign,
			anchors: NewAnchorSet("inter", pki.intermediate.cert, nil, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.cert, date(2025), tt.anchors)
			assert.Equal(t, VerdictUntrustedIssuer, res.Verdict)
			assert.ErrorIs(t, res.Reason, ErrCertificateUntrusted)
		})
	}
}

func TestCheckUntrustedWhenRevocationWouldFail(t *testing.T) {
	pki := newTestPKI(t)
	stranger := issueCA(t, "Other Root", 9, nil)
	foreign := issueLeaf(t, "foreign.example.com", 77, date(2020), date(2030), stranger)

	// chain verification precedes revocation lookup
	assert.Equal(t, VerdictUntrustedIssuer, Check(foreign, date(2025), pki.anchors(UnavailableSource{})))
}

func TestCheckIntermediateAsRoot(t *testing.T) {
	pki := newTestPKI(t)
	anchors := NewAnchorSet("inter", pki.intermediate.cert, nil, nil)
	assert.Equal(t, VerdictValid, Check(pki.leaf, date(2025), anchors))
}

func TestCheckCRL(t *testing.T) {
	pki := newTestPKI(t)
	other := issueLeaf(t, "other.example.com", 2000, date(2020), date(2030), pki.intermediate)

	revokedEntry := x509.RevocationListEntry{SerialNumber: pki.leaf.SerialNumber, RevocationTime: date(2024)}
	crl := createCRL(t, pki.intermediate, date(2024), date(2026), revokedEntry)
	anchors := pki.anchors(ParseCRLSource(crl))

	assert.Equal(t, VerdictRevoked, Check(pki.leaf, date(2025), anchors))
	assert.Equal(t, VerdictValid, Check(other, date(2025), anchors))

	res := Evaluate(pki.leaf, date(2025), anchors)
	assert.ErrorIs(t, res.Reason, ErrCertificateRevoked)
}

func TestCheckCRLRevokedAfterAsOf(t *testing.T) {
	pki := newTestPKI(t)
	entry := x509.RevocationListEntry{SerialNumber: pki.leaf.SerialNumber, RevocationTime: date(2025).Add(30 * 24 * time.Hour)}
	crl := createCRL(t, pki.intermediate, date(2024), date(2026), entry)

	assert.Equal(t, VerdictValid, Check(pki.leaf, date(2025), pki.anchors(ParseCRLSource(crl))))
}

func TestCheckRevocationCheckFailed(t *testing.T) {
	pki := newTestPKI(t)
	impostor := issueCA(t, "Test SMP CA", 3, nil)

	tests := []struct {
		name   string
		source RevocationSource
	}{
		{name: "unparsable CRL", source: ParseCRLSource([]byte("not a crl"))},
		{name: "stale CRL", source: ParseCRLSource(createCRL(t, pki.intermediate, date(2022), date(2023)))},
		{name: "CRL from another issuer", source: ParseCRLSource(createCRL(t, pki.root, date(2024), date(2026)))},
		{name: "CRL with bad signature", source: ParseCRLSource(createCRL(t, impostor, date(2024), date(2026)))},
		{name: "fetch failure", source: UnavailableSource{Err: errors.New("connection refused")}},
		{name: "empty CRL source", source: &CRLSource{}},
		{name: "no OCSP response", source: NewOCSPSource()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(pki.leaf, date(2025), pki.anchors(tt.source))
			assert.Equal(t, VerdictRevocationCheckFailed, res.Verdict)
			assert.ErrorIs(t, res.Reason, ErrRevocationUnavailable)
		})
	}
}

func TestCheckOCSP(t *testing.T) {
	pki := newTestPKI(t)

	tests := []struct {
		name   string
		status int
		next   time.Time
		want   Verdict
	}{
		{name: "good", status: ocsp.Good, next: date(2026), want: VerdictValid},
		{name: "revoked", status: ocsp.Revoked, next: date(2026), want: VerdictRevoked},
		{name: "unknown", status: ocsp.Unknown, next: date(2026), want: VerdictRevocationCheckFailed},
		{name: "stale", status: ocsp.Good, next: date(2024), want: VerdictRevocationCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := createOCSP(t, pki.intermediate, pki.leaf, tt.status, date(2022), date(2023), tt.next)
			got := Check(pki.leaf, date(2025), pki.anchors(NewOCSPSource(resp)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOCSPWrongSigner(t *testing.T) {
	pki := newTestPKI(t)
	impostor := issueCA(t, "Test SMP CA", 3, nil)
	resp := createOCSP(t, impostor, pki.leaf, ocsp.Good, time.Time{}, date(2024), date(2026))

	res := Evaluate(pki.leaf, date(2025), pki.anchors(NewOCSPSource(resp)))
	assert.Equal(t, VerdictRevocationCheckFailed, res.Verdict)
}

func TestCheckOCSPInvalidResponse(t *testing.T) {
	pki := newTestPKI(t)
	src := NewOCSPSource([]byte("garbage"))

	revoked, err := src.RevocationStatus(pki.leaf, pki.intermediate.cert, date(2025))
	assert.False(t, revoked)
	assert.ErrorIs(t, err, ErrRevocationUnavailable)
	assert.Contains(t, err.Error(), "failed to parse OCSP response")
}

func TestCheckMultiSource(t *testing.T) {
	pki := newTestPKI(t)
	good := createOCSP(t, pki.intermediate, pki.leaf, ocsp.Good, time.Time{}, date(2024), date(2026))
	cleanCRL := createCRL(t, pki.intermediate, date(2024), date(2026))
	revokedCRL := createCRL(t, pki.intermediate, date(2024), date(2026),
		x509.RevocationListEntry{SerialNumber: pki.leaf.SerialNumber, RevocationTime: date(2024)})

	tests := []struct {
		name   string
		source MultiSource
		want   Verdict
	}{
		{name: "all good", source: MultiSource{NewOCSPSource(good), ParseCRLSource(cleanCRL)}, want: VerdictValid},
		{name: "revoked wins over failure", source: MultiSource{UnavailableSource{}, ParseCRLSource(revokedCRL)}, want: VerdictRevoked},
		{name: "failure without revocation", source: MultiSource{NewOCSPSource(good), UnavailableSource{}}, want: VerdictRevocationCheckFailed},
		{name: "empty", source: MultiSource{}, want: VerdictValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(pki.leaf, date(2025), pki.anchors(tt.source)))
		})
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	pki := newTestPKI(t)
	anchors := pki.anchors(ParseCRLSource(createCRL(t, pki.intermediate, date(2024), date(2026))))

	first := Check(pki.leaf, date(2025), anchors)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Check(pki.leaf, date(2025), anchors))
	}
}

func TestChecker(t *testing.T) {
	pki := newTestPKI(t)
	checker := NewChecker(pki.anchors(nil)).WithClock(func() time.Time { return date(2025) })

	assert.Equal(t, VerdictValid, checker.CheckNow(pki.leaf))
	assert.Equal(t, VerdictExpired, checker.Check(pki.leaf, date(2031)))
	assert.Equal(t, "Test2025", checker.Anchors().Name)
}

func TestAnchorSetID(t *testing.T) {
	pki := newTestPKI(t)
	other := newTestPKI(t)

	a := pki.anchors(nil)
	b := NewAnchorSet("Test2025", pki.root.cert, []*x509.Certificate{pki.intermediate.cert}, UnavailableSource{})
	c := other.anchors(nil)

	assert.Equal(t, a.ID(), b.ID(), "revocation data does not change the anchor identity")
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Contains(t, a.ID(), "Test2025:")
	assert.Empty(t, (*AnchorSet)(nil).ID())
}

func TestNewAnchorSetCopiesIntermediates(t *testing.T) {
	pki := newTestPKI(t)
	inter := []*x509.Certificate{pki.intermediate.cert}
	anchors := pki.anchors(nil)
	anchors2 := NewAnchorSet("x", pki.root.cert, inter, nil)

	inter[0] = nil
	assert.NotNil(t, anchors2.Intermediates[0])
	assert.Equal(t, VerdictValid, Check(pki.leaf, date(2025), anchors))
}

func TestVerdictText(t *testing.T) {
	for v := VerdictUnknown; v <= VerdictValid; v++ {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var parsed Verdict
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, v, parsed)
		assert.Equal(t, string(text), v.String())
	}

	assert.Equal(t, "REVOCATION_CHECK_FAILED", VerdictRevocationCheckFailed.String())
	assert.Equal(t, "VALID", VerdictValid.String())
	assert.True(t, VerdictValid.IsValid())
	assert.False(t, VerdictRevoked.IsValid())
	assert.Equal(t, "Verdict(42)", Verdict(42).String())

	var v Verdict
	assert.Error(t, v.UnmarshalText([]byte("MAYBE")))
}

func TestVerdictZeroValue(t *testing.T) {
	var r Result
	assert.Equal(t, VerdictUnknown, r.Verdict)
	assert.False(t, r.Verdict.IsValid())
	assert.Equal(t, "UNKNOWN", r.Verdict.String())

	for v := VerdictNoCertificateProvided; v < VerdictValid; v++ {
		assert.False(t, v.IsValid(), v.String())
	}
}
