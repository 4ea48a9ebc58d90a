package trust

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxCRLSize bounds the size of a downloaded CRL
const maxCRLSize = 16 << 20

// CRLFetcher downloads CRLs from explicitly configured URLs and caches them.
// It is used when building anchor sets; Check never calls it.
type CRLFetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]*crlEntry
}

type crlEntry struct {
	source    *CRLSource
	fetchedAt time.Time
}

// NewCRLFetcher creates a fetcher. A nil client gets a default client with a
// 10 second timeout. Cached CRLs are reused for cacheTimeout.
func NewCRLFetcher(client *http.Client, cacheTimeout time.Duration) *CRLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CRLFetcher{
		httpClient: client,
		timeout:    cacheTimeout,
		now:        time.Now,
		cache:      make(map[string]*crlEntry),
	}
}

// Fetch returns the CRL published at url. A cached CRL is returned while it is
// younger than the cache timeout and not past its NextUpdate.
func (f *CRLFetcher) Fetch(ctx context.Context, url string) (*CRLSource, error) {
	if cached, ok := f.get(url); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pkix-crl")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CRL request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CRL server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCRLSize))
	if err != nil {
		return nil, err
	}

	crl, err := ParseCRL(body)
	if err != nil {
		return nil, err
	}

	source := NewCRLSource(crl)
	f.set(url, source)
	return source, nil
}

// Source returns a RevocationSource for url. Fetch failures produce a source
// that reports the failure at check time.
func (f *CRLFetcher) Source(ctx context.Context, url string) RevocationSource {
	source, err := f.Fetch(ctx, url)
	if err != nil {
		return UnavailableSource{Err: fmt.Errorf("fetching %s: %w", url, err)}
	}
	return source
}

func (f *CRLFetcher) get(url string) (*CRLSource, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entry, ok := f.cache[url]
	if !ok {
		return nil, false
	}

	now := f.now()
	if now.Sub(entry.fetchedAt) > f.timeout {
		return nil, false
	}
	if next := entry.source.crl.NextUpdate; !next.IsZero() && now.After(next) {
		return nil, false
	}

	return entry.source, true
}

func (f *CRLFetcher) set(url string, source *CRLSource) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cache[url] = &crlEntry{
		source:    source,
		fetchedAt: f.now(),
	}
}
