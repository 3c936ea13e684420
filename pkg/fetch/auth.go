package fetch

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// Authenticator applies credentials to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() AuthType
}

// AuthType names an authentication scheme.
type AuthType string

// Authentication types.
const (
	BasicAuthType  AuthType = "basic"
	HeaderAuthType AuthType = "header"
	BearerAuthType AuthType = "bearer"
)

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

func (b BasicAuth) Type() AuthType { return BasicAuthType }

func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (h HeaderAuth) Type() AuthType { return HeaderAuthType }

func (b BearerAuth) Apply(req *http.Request) error {
	if b.Token == "" {
		return errutils.Wrap(errutils.ErrInvalidValue, "bearer token must not be empty")
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

func (b BearerAuth) Type() AuthType { return BearerAuthType }

// AuthRegistry maps authentication config ids, as stored with a repository, to credentials.
type AuthRegistry struct {
	mu    sync.RWMutex
	items map[string]Authenticator
}

// NewAuthRegistry returns an empty registry.
func NewAuthRegistry() *AuthRegistry {
	return &AuthRegistry{items: make(map[string]Authenticator)}
}

// Register stores a under id, replacing any previous entry.
func (r *AuthRegistry) Register(id string, a Authenticator) error {
	if id == "" {
		return errutils.Wrap(errutils.ErrInvalidValue, "auth config id must not be empty")
	}
	if a == nil {
		return errutils.Wrapf(errutils.ErrTypeMismatch, "auth config %q has no authenticator", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = a
	return nil
}

// Lookup returns the authenticator for id.
func (r *AuthRegistry) Lookup(id string) (Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: auth config %q", errutils.ErrNotFound, id)
	}
	return a, nil
}

// IDs returns the registered ids in sorted order.
func (r *AuthRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
