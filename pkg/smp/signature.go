package smp

import (
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// verifySignature validates the enveloped signature of the document and
// returns the certificate that produced it. The certificate is taken from the
// signature's KeyInfo; whether it is trusted is for the caller to decide.
func verifySignature(data []byte, root *etree.Element) (*x509.Certificate, error) {
	sig := root.FindElement(".//Signature")
	if sig == nil {
		return nil, fmt.Errorf("%w: document is not signed", ErrInvalidSignature)
	}

	// A single reference to the whole document, so the parsed root is what
	// was signed
	refs := sig.FindElements("./SignedInfo/Reference")
	if len(refs) != 1 {
		return nil, fmt.Errorf("%w: expected one reference, got %d", ErrInvalidSignature, len(refs))
	}
	if uri := refs[0].SelectAttrValue("URI", ""); uri != "" {
		return nil, fmt.Errorf("%w: reference %q does not cover the whole document", ErrInvalidSignature, uri)
	}

	certElem := sig.FindElement("./KeyInfo/X509Data/X509Certificate")
	if certElem == nil {
		return nil, fmt.Errorf("%w: no X509Certificate in KeyInfo", ErrInvalidSignature)
	}
	cert, err := parseCertificate(strings.TrimSpace(certElem.Text()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: empty X509Certificate", ErrInvalidSignature)
	}

	validator, err := signedxml.NewValidator(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	validator.Certificates = []x509.Certificate{*cert}

	if _, err := validator.ValidateReferences(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return cert, nil
}

// matchesCertificateUID reports whether uid identifies cert. SMP 1.0 names the
// subject (full DN or its serialNumber/CN attribute); SMP 2.0 embeds the
// certificate itself.
func matchesCertificateUID(cert *x509.Certificate, uid string) bool {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return true
	}

	if other, err := parseCertificate(uid); err == nil && other != nil {
		return other.Equal(cert)
	}

	if strings.EqualFold(uid, cert.Subject.String()) {
		return true
	}
	if cert.Subject.SerialNumber != "" && uid == cert.Subject.SerialNumber {
		return true
	}
	return uid == cert.Subject.CommonName
}
