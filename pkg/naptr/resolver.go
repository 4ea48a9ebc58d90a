package naptr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Common errors
var (
	// ErrNoRecordFound is returned when the query succeeded but no usable U-NAPTR record exists
	ErrNoRecordFound = errors.New("no matching NAPTR record found")
	// ErrResolutionFailed is matched by every *ResolutionError
	ErrResolutionFailed = errors.New("NAPTR resolution failed")
)

// ServiceType is the service tag of a U-NAPTR record
type ServiceType string

const (
	// ServiceTypeSMP1 is the service type for OASIS SMP 1.0 and PEPPOL (Meta:SMP)
	ServiceTypeSMP1 ServiceType = "Meta:SMP"
	// ServiceTypeSMP2 is the service type for OASIS SMP 2.0 (oasis-bdxr-smp-2)
	ServiceTypeSMP2 ServiceType = "oasis-bdxr-smp-2"
)

// ResolutionError reports a failed DNS query. It matches ErrResolutionFailed
// with errors.Is and unwraps to the underlying cause.
type ResolutionError struct {
	FQDN string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("NAPTR resolution of %s failed: %v", e.FQDN, e.Err)
}

// Unwrap returns the underlying cause
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrResolutionFailed
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// ResolvedEndpoint is the outcome of a successful resolution
type ResolvedEndpoint struct {
	FQDN       string    `json:"fqdn" bson:"fqdn"`
	TargetURL  string    `json:"target_url" bson:"target_url"`
	ResolvedAt time.Time `json:"resolved_at" bson:"resolved_at"`
}

// Resolver selects and applies U-NAPTR records
type Resolver struct {
	lookup   Lookup
	services []string
	now      func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithServices sets the accepted service tags, replacing the defaults
func WithServices(services ...ServiceType) Option {
	return func(r *Resolver) {
		r.services = r.services[:0]
		for _, s := range services {
			r.services = append(r.services, strings.ToLower(string(s)))
		}
	}
}

// WithClock sets the time source used for ResolvedAt
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver on top of lookup
func NewResolver(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		services: []string{
			strings.ToLower(string(ServiceTypeSMP1)),
			strings.ToLower(string(ServiceTypeSMP2)),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve queries NAPTR records at fqdn and returns the rewritten target URL.
func (r *Resolver) Resolve(ctx context.Context, fqdn string) (string, error) {
	if r.lookup == nil {
		return "", &ResolutionError{FQDN: fqdn, Err: errors.New("no DNS lookup configured")}
	}
	if _, ok := dns.IsDomainName(fqdn); !ok || fqdn == "" {
		return "", &ResolutionError{FQDN: fqdn, Err: fmt.Errorf("invalid domain name %q", fqdn)}
	}

	records, err := r.lookup.LookupNAPTR(ctx, fqdn)
	if err != nil {
		return "", &ResolutionError{FQDN: fqdn, Err: err}
	}

	candidates := r.candidates(records)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoRecordFound, fqdn)
	}

	aus := strings.TrimSuffix(dns.Fqdn(fqdn), ".")
	var errs []error
	for _, rec := range candidates {
		target, err := rewrite(rec, aus)
		if err == nil {
			return target, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("%w: %s: %w", ErrNoRecordFound, fqdn, errors.Join(errs...))
}

// ResolveEndpoint is Resolve returning a timestamped ResolvedEndpoint
func (r *Resolver) ResolveEndpoint(ctx context.Context, fqdn string) (ResolvedEndpoint, error) {
	target, err := r.Resolve(ctx, fqdn)
	if err != nil {
		return ResolvedEndpoint{}, err
	}
	return ResolvedEndpoint{
		FQDN:       dns.Fqdn(fqdn),
		TargetURL:  target,
		ResolvedAt: r.now(),
	}, nil
}

// candidates filters U-flag records with an accepted service and orders them
// by (order, preference). Equal records keep their answer order.
func (r *Resolver) candidates(records []Record) []Record {
	var out []Record
	for _, rec := range records {
		if !strings.EqualFold(rec.Flags, "U") {
			continue
		}
		if !r.acceptsService(rec.Service) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Preference < out[j].Preference
	})
	return out
}

func (r *Resolver) acceptsService(service string) bool {
	service = strings.ToLower(service)
	for _, s := range r.services {
		if s == service {
			return true
		}
	}
	return false
}

func rewrite(rec Record, aus string) (string, error) {
	rw, err := ParseRegexp(rec.Regexp)
	if err != nil {
		return "", err
	}
	target, err := rw.Apply(aus)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %q: %v", ErrInvalidNAPTRRecord, target, err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", fmt.Errorf("%w: invalid URL scheme %q", ErrInvalidNAPTRRecord, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: URL without host %q", ErrInvalidNAPTRRecord, target)
	}
	return target, nil
}
