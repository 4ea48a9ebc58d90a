package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func date(year int) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
}

// testCA is a certificate with its signing key
type testCA struct {
	cert *x509.Certificate
	key  crypto.Signer
}

// testPKI is a root, an intermediate and a leaf valid 2020-2030
type testPKI struct {
	root         testCA
	intermediate testCA
	leaf         *x509.Certificate
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func issueCA(t *testing.T, cn string, serial int64, parent *testCA) testCA {
	t.Helper()
	key := generateKey(t)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Network"}},
		NotBefore:             date(2015),
		NotAfter:              date(2045),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	signerCert, signerKey := template, crypto.Signer(key)
	if parent != nil {
		signerCert, signerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return testCA{cert: cert, key: key}
}

func issueLeaf(t *testing.T, cn string, serial int64, notBefore, notAfter time.Time, issuer testCA) *x509.Certificate {
	t.Helper()
	key := generateKey(t)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuer.cert, &key.PublicKey, issuer.key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	root := issueCA(t, "Test Root CA", 1, nil)
	intermediate := issueCA(t, "Test SMP CA", 2, &root)
	leaf := issueLeaf(t, "smp.example.com", 1000, date(2020), date(2030), intermediate)
	return &testPKI{root: root, intermediate: intermediate, leaf: leaf}
}

func (p *testPKI) anchors(source RevocationSource) *AnchorSet {
	return NewAnchorSet("Test2025", p.root.cert, []*x509.Certificate{p.intermediate.cert}, source)
}

func createCRL(t *testing.T, issuer testCA, thisUpdate, nextUpdate time.Time, revoked ...x509.RevocationListEntry) []byte {
	t.Helper()
	template := &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                thisUpdate,
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: revoked,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer.cert, issuer.key)
	require.NoError(t, err)
	return der
}

func createOCSP(t *testing.T, issuer testCA, cert *x509.Certificate, status int, revokedAt, thisUpdate, nextUpdate time.Time) []byte {
	t.Helper()
	template := ocsp.Response{
		Status:       status,
		SerialNumber: cert.SerialNumber,
		ThisUpdate:   thisUpdate,
		NextUpdate:   nextUpdate,
	}
	if status == ocsp.Revoked {
		template.RevokedAt = revokedAt
		template.RevocationReason = ocsp.KeyCompromise
	}
	der, err := ocsp.CreateResponse(issuer.cert, issuer.cert, template, issuer.key)
	require.NoError(t, err)
	return der
}
