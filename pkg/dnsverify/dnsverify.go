// Package dnsverify checks that the DNS TXT ownership proof required by the
// directory service is published on the domain.
package dnsverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dirfed/fedctl/pkg/constants"
	federrors "github.com/dirfed/fedctl/pkg/errors"
)

// Resolver is the subset of DNS resolution this package needs.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Checker verifies TXT ownership proofs.
type Checker struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewChecker creates a Checker. A nil resolver uses the system resolver.
func NewChecker(resolver Resolver, logger *slog.Logger) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{resolver: resolver, logger: logger}
}

// Check resolves the domain's TXT records once and confirms the expected
// token is among them. An absent token is a verification-pending error; the
// caller publishes the record and re-runs.
func (c *Checker) Check(ctx context.Context, domain, expected string) error {
	c.logger.Debug("resolving TXT records", "domain", domain)

	records, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		// NXDOMAIN and empty answers both mean the proof is not published yet.
		if isNotFound(err) {
			return pendingError(domain, expected, err)
		}
		return federrors.NewDirectoryError(constants.ComponentRegistrar,
			fmt.Sprintf("failed to resolve TXT records for %s", domain), err)
	}

	for _, record := range records {
		if record == expected {
			c.logger.Info("ownership proof found in DNS", "domain", domain)
			return nil
		}
	}
	return pendingError(domain, expected, nil)
}

// WaitOptions bounds the opt-in polling mode.
type WaitOptions struct {
	// Timeout caps total polling time.
	Timeout time.Duration
	// InitialInterval is the first delay between attempts.
	InitialInterval time.Duration
}

// Wait polls Check with exponential backoff until the proof appears, the
// timeout elapses, or a non-pending error occurs. One-shot Check remains the
// default path; Wait is opt-in for callers prepared to ride out DNS
// propagation delay.
func (c *Checker) Wait(ctx context.Context, domain, expected string, opts WaitOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 5 * time.Second
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialInterval
	policy.MaxElapsedTime = opts.Timeout

	attempt := 0
	operation := func() error {
		attempt++
		err := c.Check(ctx, domain, expected)
		if err == nil {
			return nil
		}
		if !federrors.IsVerificationPendingError(err) {
			return backoff.Permanent(err)
		}
		c.logger.Info("ownership proof not visible yet, retrying",
			"domain", domain,
			"attempt", attempt)
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// pendingError builds the caller-recoverable verification error. The message
// carries the expected token so the caller can publish it.
func pendingError(domain, expected string, err error) error {
	return federrors.NewVerificationPendingError(constants.ComponentRegistrar,
		fmt.Sprintf("TXT record %q not found on %s; publish it and re-run", expected, domain), err)
}

// isNotFound reports whether the lookup error means the record set is absent
// rather than the lookup failing.
func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}
