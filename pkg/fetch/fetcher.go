// Package fetch retrieves remote resources for repositories and installs.
//
//go:generate mockgen -destination=./mocks/fetcher.go . Fetcher
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
)

const (
	// DefaultMaxRedirects is the number of redirects followed before a request fails.
	DefaultMaxRedirects = 4
	DefaultTimeout      = 30 * time.Second

	userAgent = "plugdex/1.0"
)

// Fetcher downloads a resource. authcfg selects stored credentials and may be empty.
type Fetcher interface {
	Request(ctx context.Context, rawURL, authcfg string) ([]byte, error)
}

// HTTPFetcher is a Fetcher over net/http that follows redirects itself so it can
// count them and re-apply credentials on the same host.
type HTTPFetcher struct {
	client       *http.Client
	auth         *AuthRegistry
	maxRedirects int
	userAgent    string
}

// NewHTTPFetcher creates a fetcher. A nil auth registry disables credentials;
// maxRedirects below zero selects DefaultMaxRedirects.
func NewHTTPFetcher(timeout time.Duration, maxRedirects int, auth *AuthRegistry) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRedirects < 0 {
		maxRedirects = DefaultMaxRedirects
	}
	if auth == nil {
		auth = NewAuthRegistry()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		auth:         auth,
		maxRedirects: maxRedirects,
		userAgent:    userAgent,
	}
}

// Request performs a GET and returns the body of the final response.
func (f *HTTPFetcher) Request(ctx context.Context, rawURL, authcfg string) ([]byte, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", errutils.ErrRequestFailed, rawURL, err)
	}

	var authenticator Authenticator
	if authcfg != "" {
		if authenticator, err = f.auth.Lookup(authcfg); err != nil {
			return nil, err
		}
	}
	origin := target.Host

	for hop := 0; ; hop++ {
		resp, err := f.do(ctx, target, authenticator, origin)
		if err != nil {
			return nil, err
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("%w: %s: redirect without location", errutils.ErrRequestFailed, target)
			}
			if hop >= f.maxRedirects {
				return nil, fmt.Errorf("%w: %s: more than %d redirects", errutils.ErrRequestFailed, rawURL, f.maxRedirects)
			}
			next, err := target.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: invalid redirect %q: %v", errutils.ErrRequestFailed, target, loc, err)
			}
			logger.Debug("Following redirect", logger.Fields{"from": target.String(), "to": next.String()})
			target = next
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: %s: unexpected status code %d", errutils.ErrRequestFailed, target, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: failed to read response body: %v", errutils.ErrRequestFailed, target, err)
		}
		return data, nil
	}
}

func (f *HTTPFetcher) do(ctx context.Context, target *url.URL, a Authenticator, origin string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", errutils.ErrRequestFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if a != nil && target.Host == origin {
		if err := a.Apply(req); err != nil {
			return nil, err
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errutils.ErrRequestFailed, target, err)
	}
	return resp, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
