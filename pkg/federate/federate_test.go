package federate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirfed/fedctl/pkg/certsource"
	"github.com/dirfed/fedctl/pkg/directory"
	"github.com/dirfed/fedctl/pkg/dnsverify"
	federrors "github.com/dirfed/fedctl/pkg/errors"
	"github.com/dirfed/fedctl/pkg/session"
)

const (
	testTenant = "11111111-2222-3333-4444-555555555555"
	testToken  = "MS=ms12345"
	testCert   = "TUlJQ3NpZ25pbmdjZXJ0"
)

// fakeDirectory simulates the tenant directory's domain state machine.
type fakeDirectory struct {
	domains map[string]*directory.DomainRecord
	// tenantSeesDNS controls whether VerifyDomain succeeds, simulating the
	// directory service's own DNS check.
	tenantSeesDNS bool
	// verifyBlockedWhileFederated makes VerifyDomain fail for domains still
	// marked Federated, forcing the Managed downgrade cycle.
	verifyBlockedWhileFederated bool

	federation map[string]directory.FederationSettings
	calls      []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		domains:       map[string]*directory.DomainRecord{},
		federation:    map[string]directory.FederationSettings{},
		tenantSeesDNS: true,
	}
}

func (f *fakeDirectory) record(op string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(op, args...))
}

func (f *fakeDirectory) Organization(ctx context.Context) (string, error) {
	f.record("Organization")
	return "Contoso", nil
}

func (f *fakeDirectory) GetDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	f.record("GetDomain(%s)", domain)
	rec, ok := f.domains[domain]
	if !ok {
		return nil, directory.ErrDomainNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeDirectory) ListDomains(ctx context.Context) ([]directory.DomainRecord, error) {
	f.record("ListDomains")
	var out []directory.DomainRecord
	for _, rec := range f.domains {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeDirectory) CreateDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	f.record("CreateDomain(%s)", domain)
	rec := &directory.DomainRecord{
		Name:           domain,
		Status:         directory.StatusUnverified,
		Authentication: directory.AuthManaged,
	}
	f.domains[domain] = rec
	copied := *rec
	return &copied, nil
}

func (f *fakeDirectory) VerificationRecords(ctx context.Context, domain string) ([]directory.DNSRecord, error) {
	f.record("VerificationRecords(%s)", domain)
	return []directory.DNSRecord{
		{Label: domain, Text: testToken, RecordType: "Txt", TTLSeconds: 3600},
	}, nil
}

func (f *fakeDirectory) VerifyDomain(ctx context.Context, domain string) (*directory.DomainRecord, error) {
	f.record("VerifyDomain(%s)", domain)
	rec, ok := f.domains[domain]
	if !ok {
		return nil, directory.ErrDomainNotFound
	}
	if f.verifyBlockedWhileFederated && rec.Authentication == directory.AuthFederated {
		return nil, errors.New("domain has federation settings and cannot be verified")
	}
	if !f.tenantSeesDNS {
		return nil, errors.New("verification record not found in DNS")
	}
	rec.Status = directory.StatusVerified
	copied := *rec
	return &copied, nil
}

func (f *fakeDirectory) SetAuthentication(ctx context.Context, domain string, mode directory.AuthenticationMode) error {
	f.record("SetAuthentication(%s,%s)", domain, mode)
	rec, ok := f.domains[domain]
	if !ok {
		return directory.ErrDomainNotFound
	}
	rec.Authentication = mode
	return nil
}

func (f *fakeDirectory) SetDefault(ctx context.Context, domain string) error {
	f.record("SetDefault(%s)", domain)
	rec, ok := f.domains[domain]
	if !ok {
		return directory.ErrDomainNotFound
	}
	rec.IsDefault = true
	return nil
}

func (f *fakeDirectory) SetFederationSettings(ctx context.Context, domain string, settings directory.FederationSettings) error {
	f.record("SetFederationSettings(%s)", domain)
	rec, ok := f.domains[domain]
	if !ok {
		return directory.ErrDomainNotFound
	}
	if rec.Status != directory.StatusVerified {
		return errors.New("cannot federate an unverified domain")
	}
	rec.Authentication = directory.AuthFederated
	f.federation[domain] = settings
	return nil
}

// fakeTXTResolver serves canned TXT answers.
type fakeTXTResolver struct {
	mu      sync.Mutex
	records map[string][]string
}

func (f *fakeTXTResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[name], nil
}

func (f *fakeTXTResolver) publish(name string, records ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[name] = records
}

// stubCredential satisfies azcore.TokenCredential without network access.
type stubCredential struct{}

func (c *stubCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "tok", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

type noPrompter struct{ t *testing.T }

func (p *noPrompter) Username(ctx context.Context) (string, error) {
	p.t.Fatal("unexpected interactive prompt")
	return "", nil
}

func (p *noPrompter) Password(ctx context.Context) (string, error) {
	p.t.Fatal("unexpected interactive prompt")
	return "", nil
}

// newFederator wires a Federator over the fakes.
func newFederator(t *testing.T, dir *fakeDirectory, txt map[string][]string) (*Federator, *fakeTXTResolver) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if txt == nil {
		txt = map[string][]string{}
	}
	resolver := &fakeTXTResolver{records: txt}

	establisher := session.NewEstablisher(
		func(cred azcore.TokenCredential) (directory.Client, error) { return dir, nil },
		logger,
		&session.EstablisherOptions{
			CredentialFactory: func(tenantID, clientID, username, password string) (azcore.TokenCredential, error) {
				return &stubCredential{}, nil
			},
			Prompter: &noPrompter{t: t},
		},
	)

	federator := New(
		certsource.NewResolver(logger),
		establisher,
		dnsverify.NewChecker(resolver, logger),
		logger,
	)
	return federator, resolver
}

func baseRequest() Request {
	return Request{
		TenantID:    testTenant,
		Domain:      "example.org",
		ServerHost:  "fs.example.org",
		Certificate: testCert,
		Username:    "admin@contoso.com",
		Password:    "hunter2",
	}
}

func TestFederate_NewDomainWithPublishedProof(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{
		"example.org": {testToken},
	})

	final, err := federator.Federate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "example.org", final.Name)
	assert.Equal(t, directory.StatusVerified, final.Status)
	assert.Equal(t, directory.AuthFederated, final.Authentication)

	settings := dir.federation["example.org"]
	assert.Equal(t, "http://example.org/adfs/services/trust/", settings.IssuerURI)
	assert.Equal(t, "https://fs.example.org/adfs/services/trust/2005/usernamemixed", settings.ActiveLogOnURI)
	assert.Equal(t, "https://fs.example.org/adfs/ls/", settings.PassiveLogOnURI)
	assert.Equal(t, "https://fs.example.org/adfs/ls/", settings.LogOffURI)
	assert.Equal(t, "https://fs.example.org/adfs/services/trust/mex", settings.MetadataExchangeURI)
	assert.Equal(t, testCert, settings.SigningCertificate)
}

func TestFederate_MissingProofHaltsBeforeAnySettings(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{
		"example.org": {"v=spf1 -all"},
	})

	_, err := federator.Federate(context.Background(), baseRequest())
	require.Error(t, err)
	assert.True(t, federrors.IsVerificationPendingError(err))
	assert.Contains(t, err.Error(), testToken)
	assert.Contains(t, err.Error(), "example.org")

	// Domain was created but nothing beyond that happened.
	rec := dir.domains["example.org"]
	require.NotNil(t, rec)
	assert.Equal(t, directory.StatusUnverified, rec.Status)
	assert.Equal(t, directory.AuthManaged, rec.Authentication)
	assert.NotContains(t, dir.calls, "SetFederationSettings(example.org)")
	assert.NotContains(t, dir.calls, "VerifyDomain(example.org)")
}

func TestFederate_ExplicitCertificateSkipsExport(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{
		"example.org": {testToken},
	})

	// The server host does not exist; a metadata export attempt would fail.
	// The literal certificate must make that path unreachable.
	req := baseRequest()
	req.ServerHost = "fs.invalid"

	final, err := federator.Federate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, directory.AuthFederated, final.Authentication)
	assert.Equal(t, testCert, dir.federation["example.org"].SigningCertificate)
}

func TestFederate_IdempotentOnFederatedDomain(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{
		"example.org": {testToken},
	})

	first, err := federator.Federate(context.Background(), baseRequest())
	require.NoError(t, err)

	dir.calls = nil
	second, err := federator.Federate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// No re-registration, no verification churn, no downgrade.
	assert.NotContains(t, dir.calls, "CreateDomain(example.org)")
	assert.NotContains(t, dir.calls, "VerifyDomain(example.org)")
	assert.NotContains(t, dir.calls, fmt.Sprintf("SetAuthentication(example.org,%s)", directory.AuthManaged))
}

func TestFederate_ExistingUnverifiedDomainIsConfirmed(t *testing.T) {
	dir := newFakeDirectory()
	dir.domains["example.org"] = &directory.DomainRecord{
		Name:           "example.org",
		Status:         directory.StatusUnverified,
		Authentication: directory.AuthManaged,
	}
	federator, _ := newFederator(t, dir, nil)

	final, err := federator.Federate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, directory.StatusVerified, final.Status)
	assert.Equal(t, directory.AuthFederated, final.Authentication)
	// Already registered: no creation, no local DNS check needed.
	assert.NotContains(t, dir.calls, "CreateDomain(example.org)")
}

func TestFederate_StuckFederatedDomainIsCycledThroughManaged(t *testing.T) {
	dir := newFakeDirectory()
	dir.verifyBlockedWhileFederated = true
	dir.domains["example.org"] = &directory.DomainRecord{
		Name:           "example.org",
		Status:         directory.StatusUnverified,
		Authentication: directory.AuthFederated,
	}
	federator, _ := newFederator(t, dir, nil)

	final, err := federator.Federate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, directory.StatusVerified, final.Status)
	assert.Equal(t, directory.AuthFederated, final.Authentication)

	// Downgrade happened between the two verification attempts.
	downgrade := fmt.Sprintf("SetAuthentication(example.org,%s)", directory.AuthManaged)
	assert.Contains(t, dir.calls, downgrade)
	assert.Equal(t, []string{
		"Organization",
		"GetDomain(example.org)",
		"VerifyDomain(example.org)",
		downgrade,
		"VerifyDomain(example.org)",
		"SetFederationSettings(example.org)",
		"GetDomain(example.org)",
	}, dir.calls)
}

func TestFederate_VerificationFailureOnManagedDomainIsFatal(t *testing.T) {
	dir := newFakeDirectory()
	dir.tenantSeesDNS = false
	dir.domains["example.org"] = &directory.DomainRecord{
		Name:           "example.org",
		Status:         directory.StatusUnverified,
		Authentication: directory.AuthManaged,
	}
	federator, _ := newFederator(t, dir, nil)

	_, err := federator.Federate(context.Background(), baseRequest())
	require.Error(t, err)
	assert.False(t, federrors.IsVerificationPendingError(err))
	assert.NotContains(t, dir.calls, "SetFederationSettings(example.org)")
}

func TestFederate_DefaultDomainPromotion(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{"corp.example.org": {testToken}})

	req := baseRequest()
	req.Domain = "corp.example.org"
	req.DefaultDomainSuffix = ".example.org"

	final, err := federator.Federate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, final.IsDefault)
	assert.Contains(t, dir.calls, "SetDefault(corp.example.org)")
}

func TestFederate_NoPromotionWhenSuffixDoesNotMatch(t *testing.T) {
	dir := newFakeDirectory()
	federator, _ := newFederator(t, dir, map[string][]string{"example.org": {testToken}})

	req := baseRequest()
	req.DefaultDomainSuffix = ".contoso.com"

	final, err := federator.Federate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, final.IsDefault)
	assert.NotContains(t, dir.calls, "SetDefault(example.org)")
}

func TestFederate_DNSWaitRidesOutPropagation(t *testing.T) {
	dir := newFakeDirectory()
	federator, resolver := newFederator(t, dir, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		resolver.publish("example.org", testToken)
	}()

	req := baseRequest()
	req.DNSWait = true
	req.DNSTimeout = 5 * time.Second
	req.DNSInitialInterval = 10 * time.Millisecond

	final, err := federator.Federate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, directory.AuthFederated, final.Authentication)
}

func TestFederate_RequestValidation(t *testing.T) {
	federator, _ := newFederator(t, newFakeDirectory(), nil)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{name: "missing tenant", mutate: func(r *Request) { r.TenantID = "" }},
		{name: "missing domain", mutate: func(r *Request) { r.Domain = "" }},
		{name: "missing server", mutate: func(r *Request) { r.ServerHost = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := federator.Federate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, federrors.IsValidationError(err))
		})
	}
}
