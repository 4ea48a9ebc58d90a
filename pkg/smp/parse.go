package smp

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
)

// parseDocument reads data and returns its root element
func parseDocument(data []byte) (*etree.Document, *etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
	}
	return doc, root, nil
}

// detectVersion tells SMP 1.0 and SMP 2.0 documents apart by namespace
func detectVersion(root *etree.Element) Version {
	if strings.Contains(root.NamespaceURI(), "bdxr/ns/SMP/2") {
		return V2
	}
	return V1
}

// parseServiceGroup parses an SMP ServiceGroup response.
func parseServiceGroup(data []byte) (*ServiceGroup, error) {
	_, root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	if root.Tag != "ServiceGroup" {
		return nil, fmt.Errorf("%w: unexpected root element %s", ErrMalformedResponse, root.Tag)
	}

	sg := &ServiceGroup{}
	if detectVersion(root) == V2 {
		sg.Participant, err = schemeIDIdentifier(root.SelectElement("ParticipantID"))
		if err != nil {
			return nil, err
		}
		for _, ref := range root.SelectElements("ServiceReference") {
			docType, err := schemeIDIdentifier(ref.SelectElement("ID"))
			if err != nil {
				return nil, err
			}
			sg.ServiceReferences = append(sg.ServiceReferences, docType.URIEncoded())
			sg.DocumentTypes = append(sg.DocumentTypes, docType)
		}
		return sg, nil
	}

	sg.Participant, err = schemeIdentifier(root.SelectElement("ParticipantIdentifier"))
	if err != nil {
		return nil, err
	}
	if coll := root.SelectElement("ServiceMetadataReferenceCollection"); coll != nil {
		for _, ref := range coll.SelectElements("ServiceMetadataReference") {
			href := ref.SelectAttrValue("href", "")
			if href == "" {
				continue
			}
			sg.ServiceReferences = append(sg.ServiceReferences, href)
			if docType, ok := documentTypeFromHref(href); ok {
				sg.DocumentTypes = append(sg.DocumentTypes, docType)
			}
		}
	}
	return sg, nil
}

// documentTypeFromHref decodes the last path segment of a
// ".../services/{documentType}" reference
func documentTypeFromHref(href string) (identifier.Identifier, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return identifier.Identifier{}, false
	}
	path := u.EscapedPath()
	i := strings.LastIndex(path, "/services/")
	if i < 0 {
		return identifier.Identifier{}, false
	}
	segment, err := url.PathUnescape(path[i+len("/services/"):])
	if err != nil {
		return identifier.Identifier{}, false
	}
	id, err := identifier.ParseURIEncoded(segment)
	if err != nil {
		return identifier.Identifier{}, false
	}
	return id, true
}

// parseServiceMetadata parses an SMP 1.0 SignedServiceMetadata or an SMP 2.0
// ServiceMetadata document.
func parseServiceMetadata(root *etree.Element) (*ServiceMetadata, error) {
	if detectVersion(root) == V2 {
		return parseServiceMetadataV2(root)
	}
	return parseServiceMetadataV1(root)
}

func parseServiceMetadataV1(root *etree.Element) (*ServiceMetadata, error) {
	if root.Tag != "SignedServiceMetadata" {
		return nil, fmt.Errorf("%w: unexpected root element %s", ErrMalformedResponse, root.Tag)
	}
	sm := root.SelectElement("ServiceMetadata")
	if sm == nil {
		return nil, fmt.Errorf("%w: missing ServiceMetadata", ErrMalformedResponse)
	}

	result := &ServiceMetadata{Version: V1}

	if redirect := sm.SelectElement("Redirect"); redirect != nil {
		result.Redirect = &Redirect{
			Href:           redirect.SelectAttrValue("href", ""),
			CertificateUID: childText(redirect, "CertificateUID"),
		}
		if result.Redirect.Href == "" {
			return nil, fmt.Errorf("%w: redirect without href", ErrMalformedResponse)
		}
		return result, nil
	}

	si := sm.SelectElement("ServiceInformation")
	if si == nil {
		return nil, fmt.Errorf("%w: missing ServiceInformation", ErrMalformedResponse)
	}

	var err error
	if result.Participant, err = schemeIdentifier(si.SelectElement("ParticipantIdentifier")); err != nil {
		return nil, err
	}
	if result.DocumentType, err = schemeIdentifier(si.SelectElement("DocumentIdentifier")); err != nil {
		return nil, err
	}

	processList := si.SelectElement("ProcessList")
	if processList == nil {
		return result, nil
	}
	for _, p := range processList.SelectElements("Process") {
		process := Process{}
		if process.ProcessID, err = schemeIdentifier(p.SelectElement("ProcessIdentifier")); err != nil {
			return nil, err
		}
		if list := p.SelectElement("ServiceEndpointList"); list != nil {
			for _, e := range list.SelectElements("Endpoint") {
				ep, err := parseEndpointV1(e)
				if err != nil {
					return nil, err
				}
				process.Endpoints = append(process.Endpoints, *ep)
			}
		}
		result.Processes = append(result.Processes, process)
	}
	return result, nil
}

func parseEndpointV1(e *etree.Element) (*Endpoint, error) {
	ep := &Endpoint{
		TransportProfile:           e.SelectAttrValue("transportProfile", ""),
		MinimumAuthenticationLevel: childText(e, "MinimumAuthenticationLevel"),
		TechnicalContactURL:        childText(e, "TechnicalContactUrl"),
		Description:                childText(e, "ServiceDescription"),
	}

	// Peppol SMP uses a WS-Addressing reference, OASIS SMP 1.0 an EndpointURI
	if ref := e.SelectElement("EndpointReference"); ref != nil {
		ep.EndpointURL = childText(ref, "Address")
	}
	if ep.EndpointURL == "" {
		ep.EndpointURL = childText(e, "EndpointURI")
	}
	if ep.EndpointURL == "" {
		return nil, fmt.Errorf("%w: endpoint without address", ErrMalformedResponse)
	}

	switch childText(e, "RequireBusinessLevelSignature") {
	case "true", "1":
		ep.RequireBusinessLevelSignature = true
	}

	var err error
	if ep.ServiceActivationDate, err = parseDate(childText(e, "ServiceActivationDate")); err != nil {
		return nil, err
	}
	if ep.ServiceExpirationDate, err = parseDate(childText(e, "ServiceExpirationDate")); err != nil {
		return nil, err
	}
	if ep.Certificate, err = parseCertificate(childText(e, "Certificate")); err != nil {
		return nil, err
	}
	ep.Extensions = parseExtensions(e)
	return ep, nil
}

func parseServiceMetadataV2(root *etree.Element) (*ServiceMetadata, error) {
	if root.Tag != "ServiceMetadata" {
		return nil, fmt.Errorf("%w: unexpected root element %s", ErrMalformedResponse, root.Tag)
	}

	result := &ServiceMetadata{Version: V2}

	var err error
	if result.Participant, err = schemeIDIdentifier(root.SelectElement("ParticipantID")); err != nil {
		return nil, err
	}
	if result.DocumentType, err = schemeIDIdentifier(root.SelectElement("ID")); err != nil {
		return nil, err
	}

	for _, pm := range root.SelectElements("ProcessMetadata") {
		if redirect := pm.SelectElement("Redirect"); redirect != nil {
			result.Redirect = &Redirect{Href: childText(redirect, "PublisherURI")}
			if cert := redirect.SelectElement("Certificate"); cert != nil {
				result.Redirect.CertificateUID = childText(cert, "ContentBinaryObject")
			}
			if result.Redirect.Href == "" {
				return nil, fmt.Errorf("%w: redirect without publisher URI", ErrMalformedResponse)
			}
			return result, nil
		}

		var endpoints []Endpoint
		for _, e := range pm.SelectElements("Endpoint") {
			ep, err := parseEndpointV2(e)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, *ep)
		}

		// one ProcessMetadata may list several processes sharing the endpoints
		for _, p := range pm.SelectElements("Process") {
			processID, err := schemeIDIdentifier(p.SelectElement("ID"))
			if err != nil {
				return nil, err
			}
			result.Processes = append(result.Processes, Process{ProcessID: processID, Endpoints: endpoints})
		}
	}
	return result, nil
}

func parseEndpointV2(e *etree.Element) (*Endpoint, error) {
	ep := &Endpoint{
		TransportProfile:    childText(e, "TransportProfileID"),
		EndpointURL:         childText(e, "AddressURI"),
		TechnicalContactURL: childText(e, "ContactURI"),
		Description:         childText(e, "Description"),
	}
	if ep.EndpointURL == "" {
		return nil, fmt.Errorf("%w: endpoint without address", ErrMalformedResponse)
	}

	var err error
	if ep.ServiceActivationDate, err = parseDate(childText(e, "ActivationDate")); err != nil {
		return nil, err
	}
	if ep.ServiceExpirationDate, err = parseDate(childText(e, "ExpirationDate")); err != nil {
		return nil, err
	}
	if cert := e.SelectElement("Certificate"); cert != nil {
		if ep.Certificate, err = parseCertificate(childText(cert, "ContentBinaryObject")); err != nil {
			return nil, err
		}
	}
	ep.Extensions = parseExtensions(e)
	return ep, nil
}

// schemeIdentifier reads an SMP 1.0 identifier element (scheme attribute)
func schemeIdentifier(e *etree.Element) (identifier.Identifier, error) {
	return elementIdentifier(e, "scheme")
}

// schemeIDIdentifier reads an SMP 2.0 identifier element (schemeID attribute)
func schemeIDIdentifier(e *etree.Element) (identifier.Identifier, error) {
	return elementIdentifier(e, "schemeID")
}

func elementIdentifier(e *etree.Element, attr string) (identifier.Identifier, error) {
	if e == nil {
		return identifier.Identifier{}, fmt.Errorf("%w: missing identifier", ErrMalformedResponse)
	}
	id, err := identifier.Canonicalize(e.SelectAttrValue(attr, ""), strings.TrimSpace(e.Text()))
	if err != nil {
		return identifier.Identifier{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, e.Tag, err)
	}
	return id, nil
}

func childText(e *etree.Element, tag string) string {
	child := e.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// parseDate accepts xs:dateTime and xs:date values
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid date %q", ErrMalformedResponse, s)
}

// parseCertificate decodes a base64 DER certificate, tolerating line breaks
// and PEM armour
func parseCertificate(s string) (*x509.Certificate, error) {
	if s == "" {
		return nil, nil
	}
	if block, _ := pem.Decode([]byte(s)); block != nil {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate: %v", ErrMalformedResponse, err)
		}
		return cert, nil
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: certificate encoding: %v", ErrMalformedResponse, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrMalformedResponse, err)
	}
	return cert, nil
}
