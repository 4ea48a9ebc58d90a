package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-bdxl/pkg/cache"
	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
	"github.com/sirosfoundation/go-bdxl/pkg/naming"
	"github.com/sirosfoundation/go-bdxl/pkg/naptr"
	"github.com/sirosfoundation/go-bdxl/pkg/smp"
	"github.com/sirosfoundation/go-bdxl/pkg/trust"
)

// ErrServiceNotFound is returned when no usable endpoint is published
var ErrServiceNotFound = errors.New("service not found")

// DefaultTransportProfiles is the endpoint preference order used when a
// Network names none: AS4 v2.0 > PEPPOL AS4 > AS4 v1.0
var DefaultTransportProfiles = []string{smp.TransportAS4V2, smp.TransportPeppolAS4, smp.TransportAS4V1}

// Network is one discovery environment: how names are derived and which
// anchors SMP and access point certificates must chain to.
type Network struct {
	Zone naming.ZoneConfig

	// SMPAnchors are checked against the certificate signing service metadata
	SMPAnchors *trust.AnchorSet

	// APAnchors are checked against access point certificates
	APAnchors *trust.AnchorSet

	// TransportProfiles lists acceptable transport profiles in order of
	// preference. Empty means DefaultTransportProfiles.
	TransportProfiles []string
}

// Result is the outcome of DiscoverEndpoint. Trust verdicts are reported,
// not enforced; see Trusted.
type Result struct {
	LookupID     string
	Participant  identifier.Identifier
	DocumentType identifier.Identifier

	// SMP is the resolved SMP location
	SMP naptr.ResolvedEndpoint

	// Metadata is the signed service metadata the endpoint was selected from
	Metadata *smp.SignedServiceMetadata

	// Endpoint is the selected access point
	Endpoint *smp.Endpoint

	// SMPTrust is the check of the metadata signing certificate
	SMPTrust trust.Result

	// APTrust is the check of the access point certificate
	APTrust trust.Result

	// CheckedAt is the time the certificates were evaluated at
	CheckedAt time.Time
}

// Trusted reports whether both the SMP signature and the access point
// certificate are valid
func (r *Result) Trusted() bool {
	return r.SMPTrust.Verdict.IsValid() && r.APTrust.Verdict.IsValid()
}

// Client combines BDXL and SMP discovery into a unified interface.
// It provides high-level discovery operations that automatically:
// 1. Discover the SMP URL via BDXL DNS lookup
// 2. Query the SMP for signed service metadata
// 3. Find the appropriate endpoint and check its certificates
//
// Client is safe for concurrent use. SMP locations and service metadata are
// cached; concurrent lookups for the same key share one resolution.
type Client struct {
	resolver *naptr.Resolver
	smp      *smp.Client
	logger   *slog.Logger
	now      func() time.Time

	ttl   time.Duration
	store cache.Store[naptr.ResolvedEndpoint]

	locations *cache.Cache[naptr.ResolvedEndpoint]
	metadata  *cache.Cache[*smp.SignedServiceMetadata]
}

// Option configures a Client
type Option func(*Client)

// WithResolver sets the NAPTR resolver. The default resolves through the
// system's resolv.conf.
func WithResolver(resolver *naptr.Resolver) Option {
	return func(c *Client) {
		c.resolver = resolver
	}
}

// WithSMPClient sets the SMP client
func WithSMPClient(client *smp.Client) Option {
	return func(c *Client) {
		c.smp = client
	}
}

// WithCacheTTL sets how long SMP locations and metadata are cached
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithCacheStore adds a shared cache level for SMP locations
func WithCacheStore(store cache.Store[naptr.ResolvedEndpoint]) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock sets the time source for cache expiry and certificate checks
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a discovery client
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		logger: slog.Default(),
		now:    time.Now,
		ttl:    cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.resolver == nil {
		lookup, err := naptr.NewDNSLookup(naptr.DNSConfig{})
		if err != nil {
			return nil, fmt.Errorf("failed to create DNS lookup: %w", err)
		}
		c.resolver = naptr.NewResolver(lookup, naptr.WithClock(c.now))
	}
	if c.smp == nil {
		c.smp = smp.NewClient()
	}

	locationOpts := []cache.Option[naptr.ResolvedEndpoint]{
		cache.WithTTL[naptr.ResolvedEndpoint](c.ttl),
		cache.WithClock[naptr.ResolvedEndpoint](c.now),
		cache.WithLogger[naptr.ResolvedEndpoint](c.logger),
	}
	if c.store != nil {
		locationOpts = append(locationOpts, cache.WithStore[naptr.ResolvedEndpoint](c.store))
	}
	c.locations = cache.New(locationOpts...)
	c.metadata = cache.New(
		cache.WithTTL[*smp.SignedServiceMetadata](c.ttl),
		cache.WithClock[*smp.SignedServiceMetadata](c.now),
		cache.WithLogger[*smp.SignedServiceMetadata](c.logger),
	)

	return c, nil
}

// LookupSMP canonicalizes (scheme, value), derives its DNS name in the
// network's zone and resolves the SMP location.
func (c *Client) LookupSMP(ctx context.Context, scheme, value string, network Network) (naptr.ResolvedEndpoint, error) {
	id, err := identifier.Canonicalize(scheme, value)
	if err != nil {
		return naptr.ResolvedEndpoint{}, err
	}
	logger := c.logger.With("lookup_id", uuid.NewString(), "participant", id.String(), "zone", network.Zone.Name)
	return c.lookupSMP(ctx, id, network, logger)
}

func (c *Client) lookupSMP(ctx context.Context, id identifier.Identifier, network Network, logger *slog.Logger) (naptr.ResolvedEndpoint, error) {
	fqdn, err := naming.BuildName(id, &network.Zone)
	if err != nil {
		return naptr.ResolvedEndpoint{}, err
	}

	ep, err := c.locations.GetOrResolve(ctx, locationKey(id, network, fqdn), func(ctx context.Context) (naptr.ResolvedEndpoint, error) {
		logger.Debug("resolving SMP location", "fqdn", fqdn)
		return c.resolver.ResolveEndpoint(ctx, fqdn)
	})
	if err != nil {
		logger.Warn("SMP lookup failed", "fqdn", fqdn, "error", err)
		return naptr.ResolvedEndpoint{}, fmt.Errorf("BDXL discovery failed: %w", err)
	}
	return ep, nil
}

// DiscoverEndpoint performs full dynamic discovery to find an AS4 endpoint.
// Steps:
//  1. Resolve the SMP location of participant via BDXL
//  2. Fetch the signed service metadata for docType
//  3. Select the endpoint for processID (empty for any process)
//  4. Check the SMP signing certificate and the endpoint certificate
//
// Certificate verdicts are part of the Result; an untrusted certificate is
// not an error.
func (c *Client) DiscoverEndpoint(ctx context.Context, participant, docType identifier.Identifier, processID string, network Network) (*Result, error) {
	participant, err := canonical(participant)
	if err != nil {
		return nil, err
	}
	docType, err = canonical(docType)
	if err != nil {
		return nil, err
	}

	lookupID := uuid.NewString()
	logger := c.logger.With("lookup_id", lookupID, "participant", participant.String(), "zone", network.Zone.Name)

	location, err := c.lookupSMP(ctx, participant, network, logger)
	if err != nil {
		return nil, err
	}

	key := cache.Key{
		Identifier: participant,
		Zone:       network.Zone.Name,
		Anchors:    network.SMPAnchors.ID(),
		Extra:      docType.URIEncoded() + "@" + location.TargetURL,
	}
	signed, err := c.metadata.GetOrResolve(ctx, key, func(ctx context.Context) (*smp.SignedServiceMetadata, error) {
		logger.Debug("fetching service metadata", "smp", location.TargetURL, "document_type", docType.String())
		return c.smp.GetSignedServiceMetadata(ctx, location.TargetURL, participant, docType)
	})
	if err != nil {
		logger.Warn("SMP query failed", "smp", location.TargetURL, "error", err)
		return nil, fmt.Errorf("SMP lookup failed: %w", err)
	}

	now := c.now()
	endpoint, err := selectEndpoint(&signed.Metadata, processID, network.transportProfiles(), now)
	if err != nil {
		logger.Warn("no endpoint selected", "process", processID, "error", err)
		return nil, err
	}

	result := &Result{
		LookupID:     lookupID,
		Participant:  participant,
		DocumentType: docType,
		SMP:          location,
		Metadata:     signed,
		Endpoint:     endpoint,
		SMPTrust:     trust.Evaluate(signed.SigningCertificate, now, network.SMPAnchors),
		APTrust:      trust.Evaluate(endpoint.Certificate, now, network.APAnchors),
		CheckedAt:    now,
	}

	level := slog.LevelInfo
	if !result.Trusted() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "endpoint discovered",
		"endpoint", endpoint.EndpointURL,
		"transport", endpoint.TransportProfile,
		"smp_verdict", result.SMPTrust.Verdict.String(),
		"ap_verdict", result.APTrust.Verdict.String(),
	)

	return result, nil
}

// ListDocumentTypes lists all document types registered for a participant.
func (c *Client) ListDocumentTypes(ctx context.Context, participant identifier.Identifier, network Network) ([]identifier.Identifier, error) {
	participant, err := canonical(participant)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("lookup_id", uuid.NewString(), "participant", participant.String(), "zone", network.Zone.Name)

	location, err := c.lookupSMP(ctx, participant, network, logger)
	if err != nil {
		return nil, err
	}

	group, err := c.smp.GetServiceGroup(ctx, location.TargetURL, participant)
	if err != nil {
		logger.Warn("SMP query failed", "smp", location.TargetURL, "error", err)
		return nil, fmt.Errorf("SMP lookup failed: %w", err)
	}
	return group.DocumentTypes, nil
}

// Forget drops the cached SMP location of participant, e.g. after a delivery
// failure.
func (c *Client) Forget(ctx context.Context, participant identifier.Identifier, network Network) error {
	participant, err := canonical(participant)
	if err != nil {
		return err
	}
	fqdn, err := naming.BuildName(participant, &network.Zone)
	if err != nil {
		return err
	}
	return c.locations.Invalidate(ctx, locationKey(participant, network, fqdn))
}

// Purge drops expired cache entries and returns how many were removed
func (c *Client) Purge() int {
	return c.locations.Purge() + c.metadata.Purge()
}

// SMPClient returns the underlying SMP client for advanced usage.
func (c *Client) SMPClient() *smp.Client {
	return c.smp
}

// canonical re-applies Canonicalize to identifiers built as struct literals
func canonical(id identifier.Identifier) (identifier.Identifier, error) {
	return identifier.Canonicalize(id.Scheme, id.Value)
}

func locationKey(id identifier.Identifier, network Network, fqdn string) cache.Key {
	return cache.Key{Identifier: id, Zone: network.Zone.Name, Extra: fqdn}
}

func (n Network) transportProfiles() []string {
	if len(n.TransportProfiles) > 0 {
		return n.TransportProfiles
	}
	return DefaultTransportProfiles
}

// selectEndpoint picks the first active endpoint of a matching process,
// trying transport profiles in order of preference. processID matches
// either the "<scheme>::<value>" form or the bare value.
func selectEndpoint(md *smp.ServiceMetadata, processID string, profiles []string, at time.Time) (*smp.Endpoint, error) {
	var candidates []smp.Endpoint
	processFound := false
	for _, p := range md.Processes {
		if processID != "" && p.ProcessID.URIEncoded() != processID && p.ProcessID.Value != processID {
			continue
		}
		processFound = true
		candidates = append(candidates, p.Endpoints...)
	}
	if !processFound {
		return nil, fmt.Errorf("%w: %s", smp.ErrProcessNotFound, processID)
	}

	active := smp.ActiveEndpoints(candidates, at)
	for _, profile := range profiles {
		if filtered := smp.FilterEndpointsByTransport(active, profile); len(filtered) > 0 {
			return &filtered[0], nil
		}
	}
	return nil, fmt.Errorf("%w: no active endpoint for process %q with transport %v", ErrServiceNotFound, processID, profiles)
}
