// Package directory provides the interface to the cloud directory tenant:
// domain registration, ownership verification, and federation settings.
package directory

import (
	"context"
	"errors"
)

// ErrDomainNotFound is returned when the tenant has no record of the domain.
var ErrDomainNotFound = errors.New("domain not found in tenant")

// AuthenticationMode is the authentication mode of a domain in the tenant.
type AuthenticationMode string

const (
	// AuthManaged means credentials are validated by the cloud directory itself.
	AuthManaged AuthenticationMode = "Managed"
	// AuthFederated means authentication is delegated to the on-premises
	// federation server.
	AuthFederated AuthenticationMode = "Federated"
)

// VerificationStatus is the ownership verification state of a domain.
type VerificationStatus string

const (
	// StatusUnverified means the tenant has not confirmed domain ownership.
	StatusUnverified VerificationStatus = "Unverified"
	// StatusVerified means domain ownership is confirmed.
	StatusVerified VerificationStatus = "Verified"
)

// DomainRecord is the state of a domain in the tenant directory. The record
// is owned by the directory service; this tool only reads and mutates it.
type DomainRecord struct {
	Name           string
	Status         VerificationStatus
	Authentication AuthenticationMode
	IsDefault      bool
}

// DNSRecord is a DNS record the tenant requires for a domain, typically the
// TXT ownership proof surfaced after domain creation.
type DNSRecord struct {
	Label      string
	Text       string
	RecordType string
	TTLSeconds int
}

// FederationSettings are the trust parameters applied to a federated domain.
type FederationSettings struct {
	IssuerURI           string
	ActiveLogOnURI      string
	PassiveLogOnURI     string
	LogOffURI           string
	MetadataExchangeURI string
	// SigningCertificate is the base64-encoded DER token-signing certificate.
	SigningCertificate string
	// DisplayName labels the federation configuration in the tenant.
	DisplayName string
}

// Client defines the operations fedctl needs from the directory tenant.
type Client interface {
	// Organization returns the tenant's display name; used as a cheap probe
	// that the session is valid.
	Organization(ctx context.Context) (string, error)

	// GetDomain returns the domain record, or ErrDomainNotFound.
	GetDomain(ctx context.Context, domain string) (*DomainRecord, error)

	// ListDomains returns all domains registered for the tenant.
	ListDomains(ctx context.Context) ([]DomainRecord, error)

	// CreateDomain registers the domain with the tenant. The returned record
	// starts Unverified.
	CreateDomain(ctx context.Context, domain string) (*DomainRecord, error)

	// VerificationRecords returns the DNS records the tenant requires to
	// prove ownership of the domain.
	VerificationRecords(ctx context.Context, domain string) ([]DNSRecord, error)

	// VerifyDomain asks the tenant to confirm ownership. Returns the updated
	// record; the call fails if the DNS proof is not visible to the tenant.
	VerifyDomain(ctx context.Context, domain string) (*DomainRecord, error)

	// SetAuthentication changes the domain's authentication mode without
	// touching federation settings. Used to downgrade Federated to Managed.
	SetAuthentication(ctx context.Context, domain string, mode AuthenticationMode) error

	// SetDefault marks the domain as the tenant's default domain.
	SetDefault(ctx context.Context, domain string) error

	// SetFederationSettings applies federation trust parameters and switches
	// the domain's authentication mode to Federated.
	SetFederationSettings(ctx context.Context, domain string, settings FederationSettings) error
}
