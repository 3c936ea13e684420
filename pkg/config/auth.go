package config

import (
	"fmt"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fetch"
)

// AuthConfig holds the credentials of one authentication config id. Exactly
// one scheme must be set.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds configuration for custom header-based authentication.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds configuration for Bearer token authentication.
type BearerAuth struct {
	Token string `yaml:"token"`
}

func (a *AuthConfig) validate(id string) error {
	if a == nil {
		return fmt.Errorf("%w: auth config %q is empty", errutils.ErrConfigValidation, id)
	}
	n := 0
	for _, set := range []bool{a.BasicAuth != nil, a.HeaderAuth != nil, a.BearerAuth != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: auth config %q must set exactly one of basic, header, bearer", errutils.ErrConfigValidation, id)
	}
	return nil
}

// Authenticator converts the configured scheme.
func (a *AuthConfig) Authenticator() fetch.Authenticator {
	switch {
	case a.BasicAuth != nil:
		return fetch.BasicAuth{Username: a.BasicAuth.Username, Password: a.BasicAuth.Password}
	case a.HeaderAuth != nil:
		return fetch.HeaderAuth{Headers: a.HeaderAuth.Headers}
	case a.BearerAuth != nil:
		return fetch.BearerAuth{Token: a.BearerAuth.Token}
	}
	return nil
}

// AuthRegistry builds the registry the fetcher resolves repository authcfg ids with.
func (c *Config) AuthRegistry() (*fetch.AuthRegistry, error) {
	reg := fetch.NewAuthRegistry()
	for id, a := range c.Auth {
		if err := a.validate(id); err != nil {
			return nil, err
		}
		if err := reg.Register(id, a.Authenticator()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
