// Package config handles configuration loading for the discovery client.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows values like
// database credentials to be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP lookup service settings
//   - dns: the DNS server queried for NAPTR records
//   - smp: SMP client settings (version, timeout)
//   - cache: cache TTL and shared backend (memory, redis or mongodb)
//   - log: log level and format
//   - trustAnchors: named, versioned anchor bundles (root, intermediates, revocation data)
//   - networks: named discovery zones referencing anchor bundles
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	  adminKey: ${BDXL_ADMIN_KEY}
//
//	dns:
//	  server: 192.0.2.53:53
//	  timeout: 3s
//
//	cache:
//	  backend: redis
//	  ttl: 30m
//	  redis:
//	    url: ${REDIS_URL}
//
//	trustAnchors:
//	  peppol-smp:
//	    version: "2025"
//	    root: /etc/bdxl/peppol-root.pem
//	    intermediates: [/etc/bdxl/peppol-smp-ca.pem]
//	    crlUrl: http://crl.example.com/smp.crl
//
//	networks:
//	  production:
//	    layout: peppol-naptr
//	    zone: edelivery.tech.ec.europa.eu.
//	    smpAnchors: peppol-smp
//	    apAnchors: peppol-ap
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-bdxl/pkg/naming"
)

// Network layouts
const (
	LayoutPeppolNAPTR = "peppol-naptr"
	LayoutPeppolCNAME = "peppol-cname"
	LayoutOASISBDXL   = "oasis-bdxl"
	LayoutCustom      = "custom"
)

// Cache backends
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendMongoDB = "mongodb"
)

// Config is the root configuration structure
type Config struct {
	Server       ServerConfig                 `yaml:"server"`
	DNS          DNSConfig                    `yaml:"dns"`
	SMP          SMPConfig                    `yaml:"smp"`
	Cache        CacheConfig                  `yaml:"cache"`
	Log          LogConfig                    `yaml:"log"`
	TrustAnchors map[string]TrustAnchorConfig `yaml:"trustAnchors"`
	Networks     map[string]NetworkConfig     `yaml:"networks"`
}

// ServerConfig holds HTTP lookup service settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	AdminKey string `yaml:"adminKey"` // API key for cache management endpoints
	TLS      struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
}

// DNSConfig holds NAPTR lookup settings
type DNSConfig struct {
	// Server is "ip:port"; empty uses the first server of ResolvConf
	Server     string        `yaml:"server"`
	ResolvConf string        `yaml:"resolvConf"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SMPConfig holds SMP client settings
type SMPConfig struct {
	// Version selects the URL layout, 1 or 2
	Version          int           `yaml:"version"`
	Timeout          time.Duration `yaml:"timeout"`
	UserAgent        string        `yaml:"userAgent"`
	MaxResponseBytes int64         `yaml:"maxResponseBytes"`
}

// CacheConfig holds cache settings
type CacheConfig struct {
	// Backend is the shared cache level: "memory" (none), "redis" or "mongodb"
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	// URL is a redis:// URL or a plain host:port address
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// TrustAnchorConfig is a named anchor bundle. File paths may point to PEM or
// DER data.
type TrustAnchorConfig struct {
	Version       string   `yaml:"version"`
	Root          string   `yaml:"root"`
	Intermediates []string `yaml:"intermediates"`
	// CRLFile is a CRL on disk
	CRLFile string `yaml:"crlFile"`
	// CRLURL is fetched once when the networks are built
	CRLURL string `yaml:"crlUrl"`
	// OCSPFiles are DER OCSP responses on disk
	OCSPFiles []string `yaml:"ocspFiles"`
}

// NetworkConfig is one discovery zone. With a layout other than "custom"
// only name and zone are read from the inline zone settings.
type NetworkConfig struct {
	Layout            string            `yaml:"layout"`
	Zone              naming.ZoneConfig `yaml:",inline"`
	SMPAnchors        string            `yaml:"smpAnchors"`
	APAnchors         string            `yaml:"apAnchors"`
	TransportProfiles []string          `yaml:"transportProfiles"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML data
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.DNS.Timeout == 0 {
		c.DNS.Timeout = 5 * time.Second
	}
	if c.SMP.Version == 0 {
		c.SMP.Version = 1
	}
	if c.SMP.Timeout == 0 {
		c.SMP.Timeout = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "bdxl:cache:"
	}
	if c.Cache.MongoDB.Database == "" {
		c.Cache.MongoDB.Database = "bdxl"
	}
	if c.Cache.MongoDB.Collection == "" {
		c.Cache.MongoDB.Collection = "discovery_cache"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for name, n := range c.Networks {
		if n.Layout == "" {
			n.Layout = LayoutOASISBDXL
		}
		if n.Zone.Name == "" {
			n.Zone.Name = name
		}
		c.Networks[name] = n
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when TLS is enabled")
	}

	switch c.SMP.Version {
	case 1, 2:
	default:
		return fmt.Errorf("smp.version must be 1 or 2, got %d", c.SMP.Version)
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.Redis.URL == "" {
			return fmt.Errorf("cache.redis.url is required when backend is 'redis'")
		}
	case BackendMongoDB:
		if c.Cache.MongoDB.URI == "" {
			return fmt.Errorf("cache.mongodb.uri is required when backend is 'mongodb'")
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis', or 'mongodb', got '%s'", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got '%s'", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	for name, a := range c.TrustAnchors {
		if a.Root == "" {
			return fmt.Errorf("trustAnchors.%s.root is required", name)
		}
	}

	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}
	for _, name := range c.NetworkNames() {
		n := c.Networks[name]
		zone, err := n.zoneConfig()
		if err != nil {
			return fmt.Errorf("networks.%s: %w", name, err)
		}
		if err := zone.Validate(); err != nil {
			return fmt.Errorf("networks.%s: %w", name, err)
		}
		for _, ref := range []string{n.SMPAnchors, n.APAnchors} {
			if ref == "" {
				continue
			}
			if _, ok := c.TrustAnchors[ref]; !ok {
				return fmt.Errorf("networks.%s: unknown trust anchor bundle '%s'", name, ref)
			}
		}
	}

	return nil
}

// NetworkNames returns the configured network names in sorted order
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// zoneConfig applies the layout preset to the configured zone
func (n NetworkConfig) zoneConfig() (naming.ZoneConfig, error) {
	switch n.Layout {
	case LayoutPeppolNAPTR:
		return naming.PeppolNAPTR(n.Zone.Name, n.Zone.ZoneSuffix), nil
	case LayoutPeppolCNAME:
		return naming.PeppolCNAME(n.Zone.Name, n.Zone.ZoneSuffix), nil
	case LayoutOASISBDXL:
		return naming.OASISBDXL(n.Zone.Name, n.Zone.ZoneSuffix), nil
	case LayoutCustom:
		return n.Zone, nil
	default:
		return naming.ZoneConfig{}, fmt.Errorf("unknown layout '%s'", n.Layout)
	}
}
