package smp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
)

var (
	testParticipant = identifier.MustCanonicalize(identifier.SchemePeppolParticipant, "0088:5798000000001")
	testDocType     = identifier.MustCanonicalize(identifier.SchemePeppolDocType,
		"urn:oasis:names:specification:ubl:schema:xsd:Invoice-2::Invoice##urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0::2.1")
	testProcess = identifier.MustCanonicalize(identifier.SchemePeppolProcess, "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0")
)

// testSigner holds an SMP signing key and its self-signed certificate
type testSigner struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func newTestSigner(t *testing.T, cn, serialNumber string) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   cn,
			SerialNumber: serialNumber,
			Organization: []string{"Test SMP"},
			Country:      []string{"SE"},
		},
		NotBefore:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:    time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &testSigner{key: key, cert: cert}
}

// newAPCertificate returns an access point certificate for endpoint fixtures
func newAPCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(4711),
		Subject:      pkix.Name{CommonName: "PNO000001", Organization: []string{"Test AP"}},
		NotBefore:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// signDocument adds an enveloped signature to the root of unsigned
func signDocument(t *testing.T, unsigned string, signer *testSigner) []byte {
	t.Helper()
	return signDocumentRef(t, unsigned, signer, "")
}

// signDocumentRef signs with a single reference to uri. A non-empty uri
// "#id" sets ID="id" on the root element.
func signDocumentRef(t *testing.T, unsigned string, signer *testSigner, uri string) []byte {
	t.Helper()

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(unsigned))
	if uri != "" {
		doc.Root().CreateAttr("ID", strings.TrimPrefix(uri, "#"))
	}

	sig := doc.Root().CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")

	signedInfo := sig.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/10/xml-exc-c14n#")
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256")

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", uri)
	transforms := ref.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", "http://www.w3.org/2000/09/xmldsig#enveloped-signature")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", "http://www.w3.org/2001/10/xml-exc-c14n#")
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#sha256")
	ref.CreateElement("ds:DigestValue")

	sig.CreateElement("ds:SignatureValue").SetText("placeholder")

	x509Data := sig.CreateElement("ds:KeyInfo").CreateElement("ds:X509Data")
	x509Data.CreateElement("ds:X509SubjectName").SetText(signer.cert.Subject.String())
	x509Data.CreateElement("ds:X509Certificate").SetText(base64.StdEncoding.EncodeToString(signer.cert.Raw))

	xmlStr, err := doc.WriteToString()
	require.NoError(t, err)

	s, err := signedxml.NewSigner(xmlStr)
	require.NoError(t, err)
	signed, err := s.Sign(signer.key)
	require.NoError(t, err)

	return []byte(signed)
}

// endpointFixture describes one endpoint of a metadata fixture
type endpointFixture struct {
	transportProfile string
	url              string
	cert             *x509.Certificate
	activation       string
	expiration       string
}

func (e endpointFixture) certBase64() string {
	if e.cert == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(e.cert.Raw)
}

// metadataV1 renders an unsigned Peppol SMP 1.0 SignedServiceMetadata
func metadataV1(participant, docType, process identifier.Identifier, endpoints ...endpointFixture) string {
	var eps string
	for _, ep := range endpoints {
		eps += fmt.Sprintf(`<Endpoint transportProfile="%s">`+
			`<wsa:EndpointReference><wsa:Address>%s</wsa:Address></wsa:EndpointReference>`+
			`<RequireBusinessLevelSignature>false</RequireBusinessLevelSignature>`,
			ep.transportProfile, ep.url)
		if ep.activation != "" {
			eps += "<ServiceActivationDate>" + ep.activation + "</ServiceActivationDate>"
		}
		if ep.expiration != "" {
			eps += "<ServiceExpirationDate>" + ep.expiration + "</ServiceExpirationDate>"
		}
		eps += "<Certificate>" + ep.certBase64() + "</Certificate>" +
			"<ServiceDescription>Test access point</ServiceDescription>" +
			"<TechnicalContactUrl>mailto:ops@ap.example.com</TechnicalContactUrl>" +
			"</Endpoint>"
	}

	return fmt.Sprintf(`<SignedServiceMetadata xmlns="http://busdox.org/serviceMetadata/publishing/1.0/" `+
		`xmlns:ids="http://busdox.org/transport/identifiers/1.0/" xmlns:wsa="http://www.w3.org/2005/08/addressing">`+
		`<ServiceMetadata><ServiceInformation>`+
		`<ids:ParticipantIdentifier scheme="%s">%s</ids:ParticipantIdentifier>`+
		`<ids:DocumentIdentifier scheme="%s">%s</ids:DocumentIdentifier>`+
		`<ProcessList><Process><ids:ProcessIdentifier scheme="%s">%s</ids:ProcessIdentifier>`+
		`<ServiceEndpointList>%s</ServiceEndpointList></Process></ProcessList>`+
		`</ServiceInformation></ServiceMetadata></SignedServiceMetadata>`,
		participant.Scheme, participant.Value, docType.Scheme, docType.Value, process.Scheme, process.Value, eps)
}

// redirectV1 renders an unsigned SMP 1.0 redirect
func redirectV1(href, certificateUID string) string {
	return fmt.Sprintf(`<SignedServiceMetadata xmlns="http://busdox.org/serviceMetadata/publishing/1.0/">`+
		`<ServiceMetadata><Redirect href="%s"><CertificateUID>%s</CertificateUID></Redirect></ServiceMetadata>`+
		`</SignedServiceMetadata>`, href, certificateUID)
}

// metadataV2 renders an unsigned OASIS SMP 2.0 ServiceMetadata
func metadataV2(participant, docType, process identifier.Identifier, ep endpointFixture) string {
	return fmt.Sprintf(`<ServiceMetadata xmlns="http://docs.oasis-open.org/bdxr/ns/SMP/2/ServiceMetadata" `+
		`xmlns:cac="http://docs.oasis-open.org/bdxr/ns/SMP/2/AggregateComponents" `+
		`xmlns:cbc="http://docs.oasis-open.org/bdxr/ns/SMP/2/BasicComponents">`+
		`<cbc:SMPVersionID>2.0</cbc:SMPVersionID>`+
		`<cbc:ID schemeID="%s">%s</cbc:ID>`+
		`<cbc:ParticipantID schemeID="%s">%s</cbc:ParticipantID>`+
		`<cac:ProcessMetadata>`+
		`<cac:Process><cbc:ID schemeID="%s">%s</cbc:ID></cac:Process>`+
		`<cac:Endpoint>`+
		`<cbc:TransportProfileID>%s</cbc:TransportProfileID>`+
		`<cbc:Description>Test access point</cbc:Description>`+
		`<cbc:ContactURI>mailto:ops@ap.example.com</cbc:ContactURI>`+
		`<cbc:AddressURI>%s</cbc:AddressURI>`+
		`<cbc:ActivationDate>%s</cbc:ActivationDate>`+
		`<cbc:ExpirationDate>%s</cbc:ExpirationDate>`+
		`<cac:Certificate><cbc:ContentBinaryObject mimeCode="application/base64">%s</cbc:ContentBinaryObject></cac:Certificate>`+
		`</cac:Endpoint>`+
		`</cac:ProcessMetadata>`+
		`</ServiceMetadata>`,
		docType.Scheme, docType.Value, participant.Scheme, participant.Value, process.Scheme, process.Value,
		ep.transportProfile, ep.url, ep.activation, ep.expiration, ep.certBase64())
}
