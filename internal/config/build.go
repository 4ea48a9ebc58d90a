package config

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirosfoundation/go-bdxl/internal/storage/mongodb"
	redisstore "github.com/sirosfoundation/go-bdxl/internal/storage/redis"
	"github.com/sirosfoundation/go-bdxl/pkg/cache"
	"github.com/sirosfoundation/go-bdxl/pkg/discovery"
	"github.com/sirosfoundation/go-bdxl/pkg/naptr"
	"github.com/sirosfoundation/go-bdxl/pkg/smp"
	"github.com/sirosfoundation/go-bdxl/pkg/transport"
	"github.com/sirosfoundation/go-bdxl/pkg/trust"
)

// Networks builds the configured networks. Anchor bundles are loaded from
// disk; CRL URLs are fetched once with fetcher, and a failed fetch yields
// REVOCATION_CHECK_FAILED verdicts rather than an error. A nil fetcher
// creates a default one.
func (c *Config) Networks(ctx context.Context, fetcher *trust.CRLFetcher) (map[string]discovery.Network, error) {
	if fetcher == nil {
		fetcher = trust.NewCRLFetcher(nil, c.Cache.TTL)
	}

	anchors := make(map[string]*trust.AnchorSet)
	load := func(ref string) (*trust.AnchorSet, error) {
		if ref == "" {
			return nil, nil
		}
		if set, ok := anchors[ref]; ok {
			return set, nil
		}
		set, err := c.loadAnchorSet(ctx, ref, fetcher)
		if err != nil {
			return nil, fmt.Errorf("trustAnchors.%s: %w", ref, err)
		}
		anchors[ref] = set
		return set, nil
	}

	networks := make(map[string]discovery.Network, len(c.Networks))
	for _, name := range c.NetworkNames() {
		n := c.Networks[name]
		zone, err := n.zoneConfig()
		if err != nil {
			return nil, fmt.Errorf("networks.%s: %w", name, err)
		}
		smpAnchors, err := load(n.SMPAnchors)
		if err != nil {
			return nil, err
		}
		apAnchors, err := load(n.APAnchors)
		if err != nil {
			return nil, err
		}
		networks[name] = discovery.Network{
			Zone:              zone,
			SMPAnchors:        smpAnchors,
			APAnchors:         apAnchors,
			TransportProfiles: n.TransportProfiles,
		}
	}
	return networks, nil
}

func (c *Config) loadAnchorSet(ctx context.Context, ref string, fetcher *trust.CRLFetcher) (*trust.AnchorSet, error) {
	a := c.TrustAnchors[ref]

	root, err := trust.LoadCertificateFile(a.Root)
	if err != nil {
		return nil, err
	}

	var intermediates []*x509.Certificate
	for _, path := range a.Intermediates {
		certs, err := trust.LoadCertificatesFile(path)
		if err != nil {
			return nil, err
		}
		intermediates = append(intermediates, certs...)
	}

	var sources trust.MultiSource
	if a.CRLFile != "" {
		data, err := os.ReadFile(a.CRLFile)
		if err != nil {
			return nil, fmt.Errorf("reading CRL: %w", err)
		}
		sources = append(sources, trust.ParseCRLSource(data))
	}
	if a.CRLURL != "" {
		sources = append(sources, fetcher.Source(ctx, a.CRLURL))
	}
	if len(a.OCSPFiles) > 0 {
		var responses [][]byte
		for _, path := range a.OCSPFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading OCSP response: %w", err)
			}
			responses = append(responses, data)
		}
		sources = append(sources, trust.NewOCSPSource(responses...))
	}

	var source trust.RevocationSource
	switch len(sources) {
	case 0:
	case 1:
		source = sources[0]
	default:
		source = sources
	}

	name := ref
	if a.Version != "" {
		name = ref + "@" + a.Version
	}
	return trust.NewAnchorSet(name, root, intermediates, source), nil
}

// Logger creates the slog logger described by the log section
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got '%s'", s)
	}
	return level, nil
}

// DNSLookup creates the NAPTR lookup described by the dns section
func (c *Config) DNSLookup() (*naptr.DNSLookup, error) {
	return naptr.NewDNSLookup(naptr.DNSConfig{
		Server:     c.DNS.Server,
		ResolvConf: c.DNS.ResolvConf,
		Timeout:    c.DNS.Timeout,
	})
}

// SMPClient creates the SMP client described by the smp section
func (c *Config) SMPClient() *smp.Client {
	httpConfig := transport.DefaultHTTPSConfig()
	httpConfig.Timeout = c.SMP.Timeout
	if c.SMP.UserAgent != "" {
		httpConfig.UserAgent = c.SMP.UserAgent
	}
	if c.SMP.MaxResponseBytes > 0 {
		httpConfig.MaxResponseBytes = c.SMP.MaxResponseBytes
	}
	return smp.NewClient(
		smp.WithHTTPClient(transport.NewHTTPSClient(httpConfig)),
		smp.WithVersion(smp.Version(c.SMP.Version)),
	)
}

// LocationStore connects the shared cache level of the cache section. It
// returns a nil store for the memory backend. The returned close function
// releases the connection.
func (c *Config) LocationStore(ctx context.Context) (cache.Store[naptr.ResolvedEndpoint], func() error, error) {
	switch c.Cache.Backend {
	case BackendRedis:
		client, err := redisstore.Connect(ctx, c.Cache.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewStore[naptr.ResolvedEndpoint](client, c.Cache.Redis.Prefix), client.Close, nil
	case BackendMongoDB:
		store, err := mongodb.NewStore[naptr.ResolvedEndpoint](ctx, &mongodb.Config{
			URI:        c.Cache.MongoDB.URI,
			Database:   c.Cache.MongoDB.Database,
			Collection: c.Cache.MongoDB.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return store.Close(context.Background()) }, nil
	default:
		return nil, func() error { return nil }, nil
	}
}

// NewDiscoveryClient creates a discovery client from the configuration.
// The returned close function releases the shared cache connection.
func (c *Config) NewDiscoveryClient(ctx context.Context, logger *slog.Logger) (*discovery.Client, func() error, error) {
	lookup, err := c.DNSLookup()
	if err != nil {
		return nil, nil, err
	}

	opts := []discovery.Option{
		discovery.WithResolver(naptr.NewResolver(lookup)),
		discovery.WithSMPClient(c.SMPClient()),
		discovery.WithCacheTTL(c.Cache.TTL),
		discovery.WithLogger(logger),
	}

	store, closeStore, err := c.LocationStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		opts = append(opts, discovery.WithCacheStore(store))
	}

	client, err := discovery.NewClient(opts...)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return client, closeStore, nil
}
