package naptr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ErrNXDomain is returned by a Lookup when the queried name does not exist
var ErrNXDomain = errors.New("name does not exist")

// Record is a single NAPTR resource record
type Record struct {
	Order       uint16
	Preference  uint16
	Flags       string
	Service     string
	Regexp      string
	Replacement string
}

// Lookup performs NAPTR queries. Implementations must perform a single logical
// attempt per call.
type Lookup interface {
	LookupNAPTR(ctx context.Context, fqdn string) ([]Record, error)
}

// LookupFunc adapts a function to the Lookup interface
type LookupFunc func(ctx context.Context, fqdn string) ([]Record, error)

// LookupNAPTR implements Lookup
func (f LookupFunc) LookupNAPTR(ctx context.Context, fqdn string) ([]Record, error) {
	return f(ctx, fqdn)
}

// DNSConfig configures a DNSLookup
type DNSConfig struct {
	// Server is the DNS server to query, "ip:port" (e.g. "8.8.8.8:53").
	// If empty, the first server from ResolvConf is used.
	Server string

	// ResolvConf is the resolver configuration file consulted when Server is empty.
	// Defaults to /etc/resolv.conf
	ResolvConf string

	// Timeout bounds a single exchange. Defaults to 5 seconds.
	Timeout time.Duration
}

// DNSLookup implements Lookup using github.com/miekg/dns
type DNSLookup struct {
	server    string
	udpClient *dns.Client
	tcpClient *dns.Client
}

// NewDNSLookup creates a DNS-backed Lookup
func NewDNSLookup(config DNSConfig) (*DNSLookup, error) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	server := config.Server
	if server == "" {
		path := config.ResolvConf
		if path == "" {
			path = "/etc/resolv.conf"
		}
		cc, err := dns.ClientConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read DNS config: %w", err)
		}
		if len(cc.Servers) == 0 {
			return nil, errors.New("no DNS servers configured")
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	}

	return &DNSLookup{
		server:    server,
		udpClient: &dns.Client{Net: "udp", Timeout: config.Timeout},
		tcpClient: &dns.Client{Net: "tcp", Timeout: config.Timeout},
	}, nil
}

// Server returns the DNS server queried by this lookup
func (l *DNSLookup) Server() string {
	return l.server
}

// LookupNAPTR implements Lookup. A truncated UDP answer is repeated over TCP
// as part of the same exchange.
func (l *DNSLookup) LookupNAPTR(ctx context.Context, fqdn string) ([]Record, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeNAPTR)
	msg.RecursionDesired = true

	resp, _, err := l.udpClient.ExchangeContext(ctx, msg, l.server)
	if err == nil && resp.Truncated {
		resp, _, err = l.tcpClient.ExchangeContext(ctx, msg, l.server)
	}
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed for %s: %w", fqdn, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, fmt.Errorf("%w: %s", ErrNXDomain, fqdn)
	default:
		return nil, fmt.Errorf("DNS lookup failed for %s: rcode=%s", fqdn, dns.RcodeToString[resp.Rcode])
	}

	var records []Record
	for _, rr := range resp.Answer {
		if rec, ok := rr.(*dns.NAPTR); ok {
			records = append(records, Record{
				Order:       rec.Order,
				Preference:  rec.Preference,
				Flags:       rec.Flags,
				Service:     rec.Service,
				Regexp:      rec.Regexp,
				Replacement: rec.Replacement,
			})
		}
	}
	return records, nil
}
