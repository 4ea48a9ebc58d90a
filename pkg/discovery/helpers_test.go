package discovery

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
	"github.com/sirosfoundation/go-bdxl/pkg/naptr"
	"github.com/sirosfoundation/go-bdxl/pkg/smp"
)

var (
	testParticipant = identifier.MustCanonicalize(identifier.SchemePeppolParticipant, "0088:5798000000001")
	testDocType     = identifier.MustCanonicalize(identifier.SchemePeppolDocType,
		"urn:oasis:names:specification:ubl:schema:xsd:Invoice-2::Invoice##urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0::2.1")
	testProcess = identifier.MustCanonicalize(identifier.SchemePeppolProcess, "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0")

	testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type issuedCert struct {
	cert *x509.Certificate
	key  crypto.Signer
}

var serial atomic.Int64

func issue(t *testing.T, template *x509.Certificate, key crypto.Signer, parent *issuedCert) *issuedCert {
	t.Helper()
	template.SerialNumber = big.NewInt(serial.Add(1))
	parentCert, parentKey := template, key
	if parent != nil {
		parentCert, parentKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parentCert, key.Public(), parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &issuedCert{cert: cert, key: key}
}

func newRoot(t *testing.T, cn string) *issuedCert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return issue(t, &x509.Certificate{
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test PKI"}},
		NotBefore:             time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2045, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, key, nil)
}

// newLeaf issues a certificate valid 2020-2030. SMP certificates need an RSA
// key for the XML signature.
func newLeaf(t *testing.T, cn string, parent *issuedCert, useRSA bool) *issuedCert {
	t.Helper()
	var key crypto.Signer
	var err error
	if useRSA {
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	} else {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	require.NoError(t, err)
	return issue(t, &x509.Certificate{
		Subject:     pkix.Name{CommonName: cn, Organization: []string{"Test PKI"}},
		NotBefore:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}, key, parent)
}

// testPKI has separate hierarchies for SMPs and access points
type testPKI struct {
	smpRoot, apRoot *issuedCert
	smpCert, apCert *issuedCert
}

var (
	pkiOnce   sync.Once
	sharedPKI *testPKI
)

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	pkiOnce.Do(func() {
		p := &testPKI{
			smpRoot: newRoot(t, "Test SMP CA"),
			apRoot:  newRoot(t, "Test AP CA"),
		}
		p.smpCert = newLeaf(t, "SMP 1", p.smpRoot, true)
		p.apCert = newLeaf(t, "AP 1", p.apRoot, false)
		sharedPKI = p
	})
	require.NotNil(t, sharedPKI)
	return sharedPKI
}

type endpointSpec struct {
	transport string
	url       string
	cert      *x509.Certificate
}

// signedMetadata renders SMP 1.0 metadata for one process and signs it
func signedMetadata(t *testing.T, signer *issuedCert, endpoints ...endpointSpec) []byte {
	t.Helper()

	doc := etree.NewDocument()
	root := doc.CreateElement("SignedServiceMetadata")
	root.CreateAttr("xmlns", "http://busdox.org/serviceMetadata/publishing/1.0/")
	root.CreateAttr("xmlns:ids", "http://busdox.org/transport/identifiers/1.0/")
	root.CreateAttr("xmlns:wsa", "http://www.w3.org/2005/08/addressing")

	si := root.CreateElement("ServiceMetadata").CreateElement("ServiceInformation")
	participant := si.CreateElement("ids:ParticipantIdentifier")
	participant.CreateAttr("scheme", testParticipant.Scheme)
	participant.SetText(testParticipant.Value)
	docType := si.CreateElement("ids:DocumentIdentifier")
	docType.CreateAttr("scheme", testDocType.Scheme)
	docType.SetText(testDocType.Value)

	process := si.CreateElement("ProcessList").CreateElement("Process")
	processID := process.CreateElement("ids:ProcessIdentifier")
	processID.CreateAttr("scheme", testProcess.Scheme)
	processID.SetText(testProcess.Value)

	list := process.CreateElement("ServiceEndpointList")
	for _, want := range endpoints {
		ep := list.CreateElement("Endpoint")
		ep.CreateAttr("transportProfile", want.transport)
		ep.CreateElement("wsa:EndpointReference").CreateElement("wsa:Address").SetText(want.url)
		ep.CreateElement("RequireBusinessLevelSignature").SetText("false")
		if want.cert != nil {
			ep.CreateElement("Certificate").SetText(base64.StdEncoding.EncodeToString(want.cert.Raw))
		}
		ep.CreateElement("ServiceDescription").SetText("Test access point")
		ep.CreateElement("TechnicalContactUrl").SetText("mailto:ops@ap.example.com")
	}

	sig := root.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	signedInfo := sig.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/10/xml-exc-c14n#")
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256")
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "")
	transforms := ref.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", "http://www.w3.org/2000/09/xmldsig#enveloped-signature")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", "http://www.w3.org/2001/10/xml-exc-c14n#")
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#sha256")
	ref.CreateElement("ds:DigestValue")
	sig.CreateElement("ds:SignatureValue").SetText("placeholder")
	sig.CreateElement("ds:KeyInfo").CreateElement("ds:X509Data").CreateElement("ds:X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(signer.cert.Raw))

	xmlStr, err := doc.WriteToString()
	require.NoError(t, err)
	s, err := signedxml.NewSigner(xmlStr)
	require.NoError(t, err)
	signed, err := s.Sign(signer.key)
	require.NoError(t, err)
	return []byte(signed)
}

// smpServer serves one metadata document and a service group for
// testParticipant
type smpServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newSMPServer(t *testing.T, metadata []byte) *smpServer {
	t.Helper()
	s := &smpServer{}
	client := smp.NewClient()
	metadataPath := client.ServiceMetadataURL("", testParticipant, testDocType)
	groupPath := client.ServiceGroupURL("", testParticipant)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		switch r.URL.EscapedPath() {
		case metadataPath:
			_, _ = w.Write(metadata)
		case groupPath:
			_, _ = fmt.Fprintf(w, `<ServiceGroup xmlns="http://busdox.org/serviceMetadata/publishing/1.0/" xmlns:ids="http://busdox.org/transport/identifiers/1.0/">`+
				`<ids:ParticipantIdentifier scheme="%s">%s</ids:ParticipantIdentifier>`+
				`<ServiceMetadataReferenceCollection><ServiceMetadataReference href="%s"/></ServiceMetadataReferenceCollection>`+
				`</ServiceGroup>`, testParticipant.Scheme, testParticipant.Value, "http://"+r.Host+metadataPath)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// fakeDNS answers every NAPTR query with a U record pointing at target
type fakeDNS struct {
	target string
	err    error
	delay  time.Duration
	calls  atomic.Int32
	names  sync.Map
}

func (f *fakeDNS) LookupNAPTR(ctx context.Context, fqdn string) ([]naptr.Record, error) {
	f.calls.Add(1)
	f.names.Store(fqdn, true)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return []naptr.Record{{
		Order:      100,
		Preference: 10,
		Flags:      "U",
		Service:    string(naptr.ServiceTypeSMP1),
		Regexp:     "!^.*$!" + f.target + "!",
	}}, nil
}

func fixedClock() time.Time {
	return testNow
}
