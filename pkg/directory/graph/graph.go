// Package graph provides a cloud directory Client implementation over the
// Microsoft Graph REST API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/dirfed/fedctl/pkg/constants"
	"github.com/dirfed/fedctl/pkg/directory"
	federrors "github.com/dirfed/fedctl/pkg/errors"
)

// Ensure graphClient implements directory.Client interface.
var _ directory.Client = (*graphClient)(nil)

// graphClient implements directory.Client against the Graph REST API.
type graphClient struct {
	baseURL    string
	scope      string
	cred       azcore.TokenCredential
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures the Graph client.
type Options struct {
	// BaseURL overrides the Graph API base URL. Defaults to the public cloud.
	BaseURL string
	// Scope overrides the token scope requested from the credential.
	Scope string
	// HTTPClient overrides the HTTP client used for API calls.
	HTTPClient *http.Client
}

// New creates a directory client backed by the Graph REST API.
func New(cred azcore.TokenCredential, logger *slog.Logger, opts *Options) (directory.Client, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts == nil {
		opts = &Options{}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = constants.DefaultGraphBaseURL
	}
	scope := opts.Scope
	if scope == "" {
		scope = constants.DefaultGraphScope
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &graphClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		scope:      scope,
		cred:       cred,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// --- wire types ---

// domainResource mirrors the Graph domain resource.
type domainResource struct {
	ID                 string `json:"id"`
	IsVerified         bool   `json:"isVerified"`
	IsDefault          bool   `json:"isDefault"`
	AuthenticationType string `json:"authenticationType"`
}

// dnsRecordResource mirrors the Graph domainDnsRecord resource.
type dnsRecordResource struct {
	RecordType string `json:"recordType"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	TTL        int    `json:"ttl"`
}

// federationResource mirrors the Graph internalDomainFederation resource.
type federationResource struct {
	ODataType           string `json:"@odata.type,omitempty"`
	ID                  string `json:"id,omitempty"`
	DisplayName         string `json:"displayName"`
	IssuerURI           string `json:"issuerUri"`
	ActiveSignInURI     string `json:"activeSignInUri"`
	PassiveSignInURI    string `json:"passiveSignInUri"`
	SignOutURI          string `json:"signOutUri"`
	MetadataExchangeURI string `json:"metadataExchangeUri"`
	SigningCertificate  string `json:"signingCertificate"`
}

// listResponse is the Graph collection envelope.
type listResponse[T any] struct {
	Value []T `json:"value"`
}

// apiError is the Graph error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- directory.Client implementation ---

// Organization returns the tenant's display name.
func (g *graphClient) Organization(ctx context.Context) (string, error) {
	var resp listResponse[struct {
		DisplayName string `json:"displayName"`
	}]
	if err := g.do(ctx, http.MethodGet, "/organization", nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Value) == 0 {
		return "", federrors.NewDirectoryError(constants.ComponentDirectory,
			"tenant returned no organization", nil)
	}
	return resp.Value[0].DisplayName, nil
}

// GetDomain returns the domain record, or directory.ErrDomainNotFound.
func (g *graphClient) GetDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	var resp domainResource
	if err := g.do(ctx, http.MethodGet, "/domains/"+domain, nil, &resp); err != nil {
		if federrors.IsNotFoundError(err) {
			return nil, directory.ErrDomainNotFound
		}
		return nil, err
	}
	return toRecord(&resp), nil
}

// ListDomains returns all domains registered for the tenant.
func (g *graphClient) ListDomains(ctx context.Context) ([]directory.DomainRecord, error) {
	var resp listResponse[domainResource]
	if err := g.do(ctx, http.MethodGet, "/domains", nil, &resp); err != nil {
		return nil, err
	}
	records := make([]directory.DomainRecord, 0, len(resp.Value))
	for i := range resp.Value {
		records = append(records, *toRecord(&resp.Value[i]))
	}
	return records, nil
}

// CreateDomain registers the domain with the tenant.
func (g *graphClient) CreateDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	g.logger.Info("creating domain in tenant", "domain", domain)

	body := map[string]string{"id": domain}
	var resp domainResource
	if err := g.do(ctx, http.MethodPost, "/domains", body, &resp); err != nil {
		return nil, err
	}
	return toRecord(&resp), nil
}

// VerificationRecords returns the DNS records required to prove ownership.
func (g *graphClient) VerificationRecords(ctx context.Context, domain string) ([]directory.DNSRecord, error) {
	var resp listResponse[dnsRecordResource]
	if err := g.do(ctx, http.MethodGet, "/domains/"+domain+"/verificationDnsRecords", nil, &resp); err != nil {
		return nil, err
	}
	records := make([]directory.DNSRecord, 0, len(resp.Value))
	for _, r := range resp.Value {
		records = append(records, directory.DNSRecord{
			Label:      r.Label,
			Text:       r.Text,
			RecordType: r.RecordType,
			TTLSeconds: r.TTL,
		})
	}
	return records, nil
}

// VerifyDomain asks the tenant to confirm ownership.
func (g *graphClient) VerifyDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	g.logger.Info("verifying domain ownership", "domain", domain)

	var resp domainResource
	if err := g.do(ctx, http.MethodPost, "/domains/"+domain+"/verify", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return toRecord(&resp), nil
}

// SetAuthentication changes the domain's authentication mode.
func (g *graphClient) SetAuthentication(ctx context.Context, domain string, mode directory.AuthenticationMode) error {
	g.logger.Info("setting domain authentication mode", "domain", domain, "mode", mode)

	body := map[string]string{"authenticationType": string(mode)}
	return g.do(ctx, http.MethodPatch, "/domains/"+domain, body, nil)
}

// SetDefault marks the domain as the tenant's default domain.
func (g *graphClient) SetDefault(ctx context.Context, domain string) error {
	g.logger.Info("promoting domain to tenant default", "domain", domain)

	return g.do(ctx, http.MethodPost, "/domains/"+domain+"/promote", struct{}{}, nil)
}

// SetFederationSettings applies federation trust parameters. A domain holds
// at most one internal domain federation, so an existing configuration is
// updated in place; only the first run creates one, which converts the domain
// to Federated authentication.
func (g *graphClient) SetFederationSettings(ctx context.Context, domain string, settings directory.FederationSettings) error {
	g.logger.Info("applying federation settings",
		"domain", domain,
		"issuer_uri", settings.IssuerURI)

	existingID, err := g.federationConfigurationID(ctx, domain)
	if err != nil {
		return err
	}

	body := federationResource{
		DisplayName:         settings.DisplayName,
		IssuerURI:           settings.IssuerURI,
		ActiveSignInURI:     settings.ActiveLogOnURI,
		PassiveSignInURI:    settings.PassiveLogOnURI,
		SignOutURI:          settings.LogOffURI,
		MetadataExchangeURI: settings.MetadataExchangeURI,
		SigningCertificate:  settings.SigningCertificate,
	}
	if existingID != "" {
		return g.do(ctx, http.MethodPatch,
			"/domains/"+domain+"/federationConfiguration/"+existingID, body, nil)
	}
	body.ODataType = "#microsoft.graph.internalDomainFederation"
	return g.do(ctx, http.MethodPost, "/domains/"+domain+"/federationConfiguration", body, nil)
}

// federationConfigurationID returns the ID of the domain's federation
// configuration, or empty when none exists yet.
func (g *graphClient) federationConfigurationID(ctx context.Context, domain string) (string, error) {
	var resp listResponse[federationResource]
	if err := g.do(ctx, http.MethodGet, "/domains/"+domain+"/federationConfiguration", nil, &resp); err != nil {
		if federrors.IsNotFoundError(err) {
			return "", nil
		}
		return "", err
	}
	if len(resp.Value) == 0 {
		return "", nil
	}
	return resp.Value[0].ID, nil
}

// --- transport ---

// do performs an authenticated JSON round trip against the Graph API.
func (g *graphClient) do(ctx context.Context, method, path string, body, out any) error {
	token, err := g.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{g.scope}})
	if err != nil {
		return federrors.NewAuthenticationError(constants.ComponentDirectory,
			"failed to acquire directory access token", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return federrors.NewInternalError(constants.ComponentDirectory,
				"failed to marshal request body", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return federrors.NewInternalError(constants.ComponentDirectory,
			"failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return federrors.NewDirectoryError(constants.ComponentDirectory,
			fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return federrors.NewDirectoryError(constants.ComponentDirectory,
			fmt.Sprintf("failed to read %s %s response", method, path), err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return federrors.NewNotFoundError(constants.ComponentDirectory,
			fmt.Sprintf("%s %s: %s", method, path, graphErrorMessage(data)), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return federrors.NewDirectoryError(constants.ComponentDirectory,
			fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, graphErrorMessage(data)), nil)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return federrors.NewDirectoryError(constants.ComponentDirectory,
				fmt.Sprintf("failed to decode %s %s response", method, path), err)
		}
	}
	return nil
}

// graphErrorMessage extracts the message from a Graph error envelope,
// falling back to the raw body.
func graphErrorMessage(data []byte) string {
	var envelope apiError
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Code != "" {
			return fmt.Sprintf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// toRecord converts a Graph domain resource to a DomainRecord.
func toRecord(r *domainResource) *directory.DomainRecord {
	record := &directory.DomainRecord{
		Name:      r.ID,
		Status:    directory.StatusUnverified,
		IsDefault: r.IsDefault,
	}
	if r.IsVerified {
		record.Status = directory.StatusVerified
	}
	switch strings.ToLower(r.AuthenticationType) {
	case "federated":
		record.Authentication = directory.AuthFederated
	default:
		record.Authentication = directory.AuthManaged
	}
	return record
}
