// Package federate implements the domain federation workflow: obtain a
// signing certificate, establish a tenant session, ensure the domain is
// registered and verified, and apply federation trust settings.
package federate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/dirfed/fedctl/pkg/certsource"
	"github.com/dirfed/fedctl/pkg/constants"
	"github.com/dirfed/fedctl/pkg/directory"
	"github.com/dirfed/fedctl/pkg/dnsverify"
	"github.com/dirfed/fedctl/pkg/endpoints"
	federrors "github.com/dirfed/fedctl/pkg/errors"
	"github.com/dirfed/fedctl/pkg/session"
)

// Request is the caller's intent: federate one domain with one federation
// server against one tenant. Constructed from CLI input, consumed once.
type Request struct {
	TenantID   string
	Domain     string
	ServerHost string

	// Certificate is an optional base64 signing certificate, used verbatim.
	Certificate string
	// CertificateFile is an optional path to a PEM or DER certificate.
	CertificateFile string

	// Username and Password are the optional tenant credential.
	Username string
	Password string
	// ClientID overrides the public client for password authentication.
	ClientID string
	// Credential is an optional existing session credential to reuse.
	Credential azcore.TokenCredential

	// DefaultDomainSuffix promotes the domain to tenant default when the
	// domain name ends with this suffix. Empty disables promotion.
	DefaultDomainSuffix string

	// DNSWait enables bounded-backoff polling for the TXT proof instead of
	// the default single check.
	DNSWait            bool
	DNSTimeout         time.Duration
	DNSInitialInterval time.Duration
}

// Federator runs the federation workflow.
type Federator struct {
	certs    *certsource.Resolver
	sessions *session.Establisher
	dns      *dnsverify.Checker
	logger   *slog.Logger
}

// New creates a Federator from its collaborators.
func New(certs *certsource.Resolver, sessions *session.Establisher, dns *dnsverify.Checker, logger *slog.Logger) *Federator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Federator{
		certs:    certs,
		sessions: sessions,
		dns:      dns,
		logger:   logger,
	}
}

// Federate runs the four phases strictly top to bottom and returns the final
// domain record. A missing DNS ownership proof surfaces as a
// verification-pending error before any federation settings are applied.
func (f *Federator) Federate(ctx context.Context, req Request) (*directory.DomainRecord, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Phase 1: signing certificate.
	cert, err := f.certs.Resolve(ctx, certsource.Options{
		Literal:    req.Certificate,
		FilePath:   req.CertificateFile,
		ServerHost: req.ServerHost,
	})
	if err != nil {
		return nil, err
	}

	// Phase 2: tenant session.
	sess, err := f.sessions.Establish(ctx, session.Options{
		TenantID:   req.TenantID,
		ClientID:   req.ClientID,
		Username:   req.Username,
		Password:   req.Password,
		Credential: req.Credential,
	})
	if err != nil {
		return nil, err
	}

	// Phase 3: domain registration and DNS ownership proof.
	record, err := f.ensureRegistered(ctx, sess.Client, req)
	if err != nil {
		return nil, err
	}

	// Phase 4: federation trust settings.
	return f.configure(ctx, sess.Client, req, record, cert)
}

// ensureRegistered guarantees the domain exists in the tenant. A newly
// created domain must have its TXT proof visible in public DNS before the
// run continues.
func (f *Federator) ensureRegistered(ctx context.Context, client directory.Client, req Request) (*directory.DomainRecord, error) {
	record, err := client.GetDomain(ctx, req.Domain)
	if err == nil {
		f.logger.Info("domain already registered",
			"domain", req.Domain,
			"status", record.Status,
			"authentication", record.Authentication)
		return record, nil
	}
	if !errors.Is(err, directory.ErrDomainNotFound) {
		return nil, err
	}

	f.logger.Info("registering domain with tenant", "domain", req.Domain, "tenant", req.TenantID)
	record, err = client.CreateDomain(ctx, req.Domain)
	if err != nil {
		return nil, err
	}

	token, err := f.verificationToken(ctx, client, req.Domain)
	if err != nil {
		return nil, err
	}
	f.logger.Info("domain requires DNS ownership proof",
		"domain", req.Domain,
		"txt_record", token)

	if req.DNSWait {
		err = f.dns.Wait(ctx, req.Domain, token, dnsverify.WaitOptions{
			Timeout:         req.DNSTimeout,
			InitialInterval: req.DNSInitialInterval,
		})
	} else {
		err = f.dns.Check(ctx, req.Domain, token)
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// verificationToken fetches the TXT token the tenant expects to find on the
// domain.
func (f *Federator) verificationToken(ctx context.Context, client directory.Client, domain string) (string, error) {
	records, err := client.VerificationRecords(ctx, domain)
	if err != nil {
		return "", err
	}

	for _, r := range records {
		if strings.EqualFold(r.RecordType, "Txt") && r.Text != "" {
			return r.Text, nil
		}
	}
	// Older tenants omit the record type; fall back on the token prefix.
	for _, r := range records {
		if strings.HasPrefix(r.Text, constants.TXTTokenPrefix) {
			return r.Text, nil
		}
	}
	return "", federrors.NewDirectoryError(constants.ComponentRegistrar,
		fmt.Sprintf("tenant returned no TXT verification record for %s", domain), nil)
}

// configure drives the domain to Verified, optionally promotes it to tenant
// default, and applies federation settings. Settings are applied only after
// verification succeeds.
func (f *Federator) configure(ctx context.Context, client directory.Client, req Request, record *directory.DomainRecord, cert string) (*directory.DomainRecord, error) {
	if record.Status != directory.StatusVerified {
		verified, err := client.VerifyDomain(ctx, req.Domain)
		if err != nil && record.Authentication == directory.AuthFederated {
			// A domain stuck unverified while marked Federated blocks
			// verification in the directory service. Downgrade to Managed
			// and confirm again before re-entering Federated.
			f.logger.Warn("verification failed on federated domain, downgrading to managed first",
				"domain", req.Domain)
			if err := client.SetAuthentication(ctx, req.Domain, directory.AuthManaged); err != nil {
				return nil, err
			}
			verified, err = client.VerifyDomain(ctx, req.Domain)
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		record = verified
	}

	if record.Status != directory.StatusVerified {
		return nil, federrors.NewDirectoryError(constants.ComponentConfigurer,
			fmt.Sprintf("domain %s did not reach verified state", req.Domain), nil)
	}

	if req.DefaultDomainSuffix != "" && strings.HasSuffix(record.Name, req.DefaultDomainSuffix) && !record.IsDefault {
		f.logger.Info("promoting domain to tenant default", "domain", req.Domain)
		if err := client.SetDefault(ctx, req.Domain); err != nil {
			return nil, err
		}
	}

	eps, err := endpoints.Build(req.ServerHost, req.Domain)
	if err != nil {
		return nil, federrors.NewValidationError(constants.ComponentConfigurer,
			"failed to derive federation endpoints", err)
	}

	settings := directory.FederationSettings{
		IssuerURI:           eps.Issuer,
		ActiveLogOnURI:      eps.ActiveLogOn,
		PassiveLogOnURI:     eps.PassiveLogOn,
		LogOffURI:           eps.LogOff,
		MetadataExchangeURI: eps.MetadataExchange,
		SigningCertificate:  cert,
		DisplayName:         req.Domain,
	}
	if err := client.SetFederationSettings(ctx, req.Domain, settings); err != nil {
		return nil, err
	}

	final, err := client.GetDomain(ctx, req.Domain)
	if err != nil {
		return nil, err
	}
	f.logger.Info("domain federated",
		"domain", final.Name,
		"status", final.Status,
		"authentication", final.Authentication,
		"issuer_uri", settings.IssuerURI)
	return final, nil
}

// validateRequest checks the inputs every phase depends on.
func validateRequest(req Request) error {
	if req.TenantID == "" {
		return federrors.NewValidationError(constants.ComponentConfigurer, "tenant ID is required", nil)
	}
	if req.Domain == "" {
		return federrors.NewValidationError(constants.ComponentConfigurer, "domain is required", nil)
	}
	if req.ServerHost == "" {
		return federrors.NewValidationError(constants.ComponentConfigurer, "federation server host is required", nil)
	}
	return nil
}
