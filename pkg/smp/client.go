package smp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
	"github.com/sirosfoundation/go-bdxl/pkg/transport"
)

// SMP errors
var (
	// ErrParticipantNotFound is returned when the SMP answers 404
	ErrParticipantNotFound = errors.New("participant not found in SMP")
	// ErrProcessNotFound is returned when the metadata has no such process
	ErrProcessNotFound = errors.New("process not found")
	// ErrEndpointNotFound is returned when no active endpoint uses the transport profile
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrInvalidSignature is returned when the metadata signature does not validate
	ErrInvalidSignature = errors.New("invalid service metadata signature")
	// ErrMalformedResponse is returned when an SMP document cannot be parsed
	ErrMalformedResponse = errors.New("malformed SMP response")
	// ErrTooManyRedirects is returned when a redirect points to another redirect
	ErrTooManyRedirects = errors.New("too many SMP redirects")
)

const acceptXML = "application/xml"

// Client fetches documents from SMP servers
type Client struct {
	http    *transport.HTTPSClient
	version Version
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client *transport.HTTPSClient) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithVersion selects the URL layout. Responses of either version are parsed
// regardless.
func WithVersion(v Version) Option {
	return func(c *Client) {
		c.version = v
	}
}

// NewClient creates a new SMP client
func NewClient(opts ...Option) *Client {
	c := &Client{version: V1}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = transport.NewHTTPSClient(nil)
	}
	return c
}

// Version returns the URL layout the client uses
func (c *Client) Version() Version {
	return c.version
}

// GetServiceGroup fetches the ServiceGroup of participant
func (c *Client) GetServiceGroup(ctx context.Context, smpURL string, participant identifier.Identifier) (*ServiceGroup, error) {
	data, err := c.get(ctx, c.ServiceGroupURL(smpURL, participant))
	if err != nil {
		return nil, err
	}
	return parseServiceGroup(data)
}

// GetSignedServiceMetadata fetches the ServiceMetadata of participant for
// docType and validates its signature. A redirect is followed once.
func (c *Client) GetSignedServiceMetadata(ctx context.Context, smpURL string, participant, docType identifier.Identifier) (*SignedServiceMetadata, error) {
	signed, err := c.fetchSigned(ctx, c.ServiceMetadataURL(smpURL, participant, docType))
	if err != nil {
		return nil, err
	}

	redirect := signed.Metadata.Redirect
	if redirect == nil {
		return signed, nil
	}

	target, err := c.fetchSigned(ctx, redirect.Href)
	if err != nil {
		return nil, fmt.Errorf("redirect to %s: %w", redirect.Href, err)
	}
	if target.Metadata.Redirect != nil {
		return nil, fmt.Errorf("%w: %s", ErrTooManyRedirects, redirect.Href)
	}
	if !matchesCertificateUID(target.SigningCertificate, redirect.CertificateUID) {
		return nil, fmt.Errorf("%w: redirect target signed by %s, expected %s",
			ErrInvalidSignature, target.SigningCertificate.Subject, redirect.CertificateUID)
	}
	return target, nil
}

// fetchSigned fetches, verifies and parses one metadata document
func (c *Client) fetchSigned(ctx context.Context, reqURL string) (*SignedServiceMetadata, error) {
	data, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	_, root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	cert, err := verifySignature(data, root)
	if err != nil {
		return nil, err
	}

	metadata, err := parseServiceMetadata(root)
	if err != nil {
		return nil, err
	}

	return &SignedServiceMetadata{
		Metadata:           *metadata,
		SigningCertificate: cert,
		SourceURL:          reqURL,
	}, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	data, err := c.http.Get(ctx, reqURL, acceptXML)
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, reqURL)
		}
		return nil, fmt.Errorf("SMP request failed: %w", err)
	}
	return data, nil
}

// ServiceGroupURL constructs the URL for ServiceGroup lookup.
func (c *Client) ServiceGroupURL(smpURL string, participant identifier.Identifier) string {
	return fmt.Sprintf("%s/%s", c.base(smpURL), escapeIdentifier(participant))
}

// ServiceMetadataURL constructs the URL for ServiceMetadata lookup.
func (c *Client) ServiceMetadataURL(smpURL string, participant, docType identifier.Identifier) string {
	return fmt.Sprintf("%s/%s/services/%s", c.base(smpURL), escapeIdentifier(participant), escapeIdentifier(docType))
}

func (c *Client) base(smpURL string) string {
	base := strings.TrimRight(smpURL, "/")
	if c.version == V2 {
		base += "/bdxr-smp-2"
	}
	return base
}

// escapeIdentifier percent-encodes the URI form of id, including ':' and '#'
func escapeIdentifier(id identifier.Identifier) string {
	return strings.ReplaceAll(url.PathEscape(id.URIEncoded()), ":", "%3A")
}
