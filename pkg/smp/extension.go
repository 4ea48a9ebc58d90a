package smp

import (
	"crypto/x509"

	"github.com/beevik/etree"
)

// SDK certificate publishing extension identifiers
const (
	ExtensionCertPub        = "urn:fdc:digg.se:edelivery:certpub"
	ExtensionSigningCert    = "urn:fdc:digg.se:edelivery:certpub:signing-cert"
	ExtensionEncryptionCert = "urn:fdc:digg.se:edelivery:certpub:encryption-cert"
)

// Extension is an extension element attached to an endpoint
type Extension struct {
	ID         string
	Name       string
	AgencyID   string
	AgencyName string
	AgencyURI  string
	VersionID  string
	// Certificates holds the certificates of a certificate publishing
	// extension. Malformed entries are skipped.
	Certificates []PublishedCertificate
}

// PublishedCertificate is a certificate published in an extension
type PublishedCertificate struct {
	// Type is ExtensionSigningCert, ExtensionEncryptionCert or a
	// federation-specific value
	Type        string
	Certificate *x509.Certificate
}

// PublishedCertificate returns the first certificate of certType found in
// the endpoint extensions, or nil.
func (e *Endpoint) PublishedCertificate(certType string) *x509.Certificate {
	for _, ext := range e.Extensions {
		for _, pc := range ext.Certificates {
			if pc.Type == certType {
				return pc.Certificate
			}
		}
	}
	return nil
}

// parseExtensions reads SMP 1.0 Extension and SMP 2.0 SMPExtension children
func parseExtensions(e *etree.Element) []Extension {
	elements := e.SelectElements("Extension")
	if list := e.SelectElement("SMPExtensions"); list != nil {
		elements = append(elements, list.SelectElements("SMPExtension")...)
	}

	var result []Extension
	for _, el := range elements {
		ext := Extension{
			ID:         firstChildText(el, "ExtensionID", "ID"),
			Name:       firstChildText(el, "ExtensionName", "Name"),
			AgencyID:   firstChildText(el, "ExtensionAgencyID", "AgencyID"),
			AgencyName: firstChildText(el, "ExtensionAgencyName", "AgencyName"),
			AgencyURI:  firstChildText(el, "ExtensionAgencyURI", "AgencyURI"),
			VersionID:  firstChildText(el, "ExtensionVersionID", "VersionID"),
		}

		for _, c := range el.FindElements(".//CertificateList/Certificate") {
			cert, err := parseCertificate(c.Text())
			if err != nil || cert == nil {
				continue
			}
			ext.Certificates = append(ext.Certificates, PublishedCertificate{
				Type:        c.SelectAttrValue("type", ""),
				Certificate: cert,
			})
		}

		// Older publishers put the certificate directly in an extension
		// named after its type
		switch ext.ID {
		case ExtensionSigningCert, ExtensionEncryptionCert:
			if cert, err := parseCertificate(directText(el)); err == nil && cert != nil {
				ext.Certificates = append(ext.Certificates, PublishedCertificate{Type: ext.ID, Certificate: cert})
			}
		}

		result = append(result, ext)
	}
	return result
}

func firstChildText(e *etree.Element, tags ...string) string {
	for _, tag := range tags {
		if s := childText(e, tag); s != "" {
			return s
		}
	}
	return ""
}

// directText concatenates the character data directly below e
func directText(e *etree.Element) string {
	var s string
	for _, t := range e.Child {
		if cd, ok := t.(*etree.CharData); ok {
			s += cd.Data
		}
	}
	return s
}
