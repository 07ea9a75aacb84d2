// Package endpoints derives the federation trust endpoints for a domain
// from the federation server's public hostname. Pure string construction,
// no network access.
package endpoints

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dirfed/fedctl/pkg/constants"
)

// FederationEndpoints holds the trust URIs applied to a federated domain.
type FederationEndpoints struct {
	// ActiveLogOn is the WS-Trust username/password endpoint.
	ActiveLogOn string
	// PassiveLogOn is the browser sign-on endpoint.
	PassiveLogOn string
	// LogOff is the sign-off endpoint; same location as passive sign-on.
	LogOff string
	// MetadataExchange is the WS-Trust MEX endpoint.
	MetadataExchange string
	// Issuer is the token issuer URI, rooted at the federated domain.
	Issuer string
}

// Build derives the federation endpoints for the given federation server
// hostname and domain name.
func Build(serverHost, domain string) (*FederationEndpoints, error) {
	if err := validateHost(serverHost, "server host"); err != nil {
		return nil, err
	}
	if err := validateHost(domain, "domain"); err != nil {
		return nil, err
	}

	passive := fmt.Sprintf("https://%s%s", serverHost, constants.PassiveLogOnPath)
	return &FederationEndpoints{
		ActiveLogOn:      fmt.Sprintf("https://%s%s", serverHost, constants.ActiveLogOnPath),
		PassiveLogOn:     passive,
		LogOff:           passive,
		MetadataExchange: fmt.Sprintf("https://%s%s", serverHost, constants.MetadataExchangePath),
		Issuer:           fmt.Sprintf("http://%s%s", domain, constants.IssuerPath),
	}, nil
}

// validateHost checks that the value is a bare hostname usable in a URL.
func validateHost(host, what string) error {
	if host == "" {
		return fmt.Errorf("%s is required", what)
	}
	if strings.Contains(host, "://") {
		return fmt.Errorf("%s %q must be a hostname, not a URL", what, host)
	}
	if strings.ContainsAny(host, "/ ") {
		return fmt.Errorf("%s %q must not contain slashes or spaces", what, host)
	}

	// Parse as a URL host to catch anything else that would corrupt the
	// derived endpoints (ports are allowed, userinfo is not).
	parsed, err := url.Parse("https://" + host)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", what, host, err)
	}
	if parsed.Host != host || parsed.User != nil {
		return fmt.Errorf("invalid %s %q", what, host)
	}
	return nil
}
