package smp

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
)

// Version is the SMP specification version
type Version int

const (
	// V1 is OASIS SMP 1.0 / Peppol SMP
	V1 Version = 1
	// V2 is OASIS SMP 2.0
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "1.0"
	case V2:
		return "2.0"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// Transport profile constants
const (
	// TransportAS4V2 is the eDelivery AS4 2.0 transport profile
	TransportAS4V2 = "bdxr-transport-ebms3-as4-v2p0"
	// TransportAS4V1 is the legacy AS4 transport profile
	TransportAS4V1 = "busdox-transport-ebms3-as4-v1p0"
	// TransportPeppolAS4 is the PEPPOL AS4 transport profile
	TransportPeppolAS4 = "peppol-transport-as4-v2_0"
)

// ServiceGroup lists the document types a participant accepts
type ServiceGroup struct {
	Participant       identifier.Identifier
	ServiceReferences []string
	// DocumentTypes holds the document types of the references, when they
	// could be decoded
	DocumentTypes []identifier.Identifier
}

// ServiceMetadata describes how a participant receives one document type
type ServiceMetadata struct {
	Version      Version
	Participant  identifier.Identifier
	DocumentType identifier.Identifier
	Processes    []Process
	// Redirect is set when the SMP delegates to another SMP
	Redirect *Redirect
}

// Redirect points to the SMP holding the actual metadata. CertificateUID
// identifies the certificate expected to sign the target metadata.
type Redirect struct {
	Href           string
	CertificateUID string
}

// Process lists the endpoints for a business process
type Process struct {
	ProcessID identifier.Identifier
	Endpoints []Endpoint
}

// Endpoint is an access point receiving a document type
type Endpoint struct {
	// TransportProfile is the transport protocol (e.g., "peppol-transport-as4-v2_0")
	TransportProfile string
	// EndpointURL is the URL of the AS4 endpoint
	EndpointURL string
	// Certificate is the access point certificate
	Certificate *x509.Certificate
	// RequireBusinessLevelSignature is an SMP 1.0 flag
	RequireBusinessLevelSignature bool
	// MinimumAuthenticationLevel is an SMP 1.0 field
	MinimumAuthenticationLevel string
	// ServiceActivationDate is when the service becomes active
	ServiceActivationDate *time.Time
	// ServiceExpirationDate is when the service expires
	ServiceExpirationDate *time.Time
	// TechnicalContactURL is the URL for technical contact
	TechnicalContactURL string
	// Description is a human-readable description
	Description string
	// Extensions are the endpoint extension elements
	Extensions []Extension
}

// SignedServiceMetadata is service metadata with a verified XML signature
type SignedServiceMetadata struct {
	Metadata ServiceMetadata
	// SigningCertificate signed the metadata. Its trust is not checked here.
	SigningCertificate *x509.Certificate
	// SourceURL is the URL the metadata was fetched from
	SourceURL string
}

// ActiveAt reports whether the endpoint is active at t
func (e *Endpoint) ActiveAt(t time.Time) bool {
	if e.ServiceActivationDate != nil && e.ServiceActivationDate.After(t) {
		return false
	}
	if e.ServiceExpirationDate != nil && e.ServiceExpirationDate.Before(t) {
		return false
	}
	return true
}

// FindEndpoint returns the first endpoint for processID using transportProfile
// that is active at t. An empty processID matches any process and an empty
// transportProfile matches any profile.
func (m *ServiceMetadata) FindEndpoint(processID identifier.Identifier, transportProfile string, t time.Time) (*Endpoint, error) {
	processFound := false
	for i := range m.Processes {
		p := &m.Processes[i]
		if !processID.IsZero() && p.ProcessID != processID {
			continue
		}
		processFound = true
		for j := range p.Endpoints {
			ep := &p.Endpoints[j]
			if transportProfile != "" && ep.TransportProfile != transportProfile {
				continue
			}
			if !ep.ActiveAt(t) {
				continue
			}
			return ep, nil
		}
	}

	if !processFound {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	return nil, fmt.Errorf("%w: process %s, transport %q", ErrEndpointNotFound, processID, transportProfile)
}

// FilterEndpointsByTransport filters endpoints by transport profile.
func FilterEndpointsByTransport(endpoints []Endpoint, transportProfile string) []Endpoint {
	var result []Endpoint
	for _, ep := range endpoints {
		if ep.TransportProfile == transportProfile {
			result = append(result, ep)
		}
	}
	return result
}

// ActiveEndpoints filters endpoints to those active at t.
func ActiveEndpoints(endpoints []Endpoint, t time.Time) []Endpoint {
	var result []Endpoint
	for _, ep := range endpoints {
		if ep.ActiveAt(t) {
			result = append(result, ep)
		}
	}
	return result
}
