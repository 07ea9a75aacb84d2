package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/spf13/cobra"

	"github.com/dirfed/fedctl/pkg/certsource"
	"github.com/dirfed/fedctl/pkg/config"
	"github.com/dirfed/fedctl/pkg/directory"
	"github.com/dirfed/fedctl/pkg/directory/graph"
	"github.com/dirfed/fedctl/pkg/dnsverify"
	federrors "github.com/dirfed/fedctl/pkg/errors"
	"github.com/dirfed/fedctl/pkg/federate"
	"github.com/dirfed/fedctl/pkg/session"
)

// federateFlags collects the CLI inputs for the federate command.
type federateFlags struct {
	configPath    string
	tenantID      string
	domain        string
	serverHost    string
	certificate   string
	certFile      string
	username      string
	password      string
	defaultSuffix string
	dnsWait       bool
	dnsTimeout    time.Duration
}

// newFederateCommand creates the federate command.
func newFederateCommand() *cobra.Command {
	var flags federateFlags

	cmd := &cobra.Command{
		Use:   "federate",
		Short: "Federate a domain with the cloud directory tenant",
		Long: `Federate a domain with the cloud directory tenant.

This command registers the domain with the tenant if needed, checks that the
required DNS TXT ownership proof is published, verifies the domain, and
applies federation trust settings derived from the federation server's public
hostname. If the TXT record is not yet visible, the command reports the
record to publish and stops; re-run it after updating DNS.`,
		Example: `  # Federate a domain, exporting the signing certificate from the server
  fedctl federate --tenant 11111111-2222-3333-4444-555555555555 \
    --domain example.org --server fs.example.org

  # Supply the signing certificate explicitly
  fedctl federate --tenant 11111111-2222-3333-4444-555555555555 \
    --domain example.org --server fs.example.org \
    --certificate "$(base64 -w0 signing.cer)"

  # Ride out DNS propagation instead of failing on the first check
  fedctl federate --tenant 11111111-2222-3333-4444-555555555555 \
    --domain example.org --server fs.example.org --dns-wait --dns-timeout 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFederate(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&flags.tenantID, "tenant", "", "Tenant identifier, a GUID (required unless set in config)")
	cmd.Flags().StringVar(&flags.domain, "domain", "", "Domain to federate (required)")
	cmd.Flags().StringVar(&flags.serverHost, "server", "", "Federation server public hostname (required unless set in config)")
	cmd.Flags().StringVar(&flags.certificate, "certificate", "", "Base64 token-signing certificate; skips certificate export")
	cmd.Flags().StringVar(&flags.certFile, "cert-file", "", "Path to a PEM or DER token-signing certificate")
	cmd.Flags().StringVar(&flags.username, "username", "", "Tenant administrator user; prompted for if omitted")
	cmd.Flags().StringVar(&flags.password, "password", "", "Tenant administrator password; prompted for if omitted")
	cmd.Flags().StringVar(&flags.defaultSuffix, "default-domain-suffix", "", "Promote the domain to tenant default when its name ends with this suffix")
	cmd.Flags().BoolVar(&flags.dnsWait, "dns-wait", false, "Poll for the DNS TXT proof with backoff instead of checking once")
	cmd.Flags().DurationVar(&flags.dnsTimeout, "dns-timeout", 0, "Total polling time when --dns-wait is set (default 5m)")

	if err := cmd.MarkFlagRequired("domain"); err != nil {
		panic(err)
	}

	return cmd
}

func runFederate(ctx context.Context, flags federateFlags) error {
	logger := newLogger()

	cfg, err := loadMergedConfig(flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return federrors.NewValidationError("cli", "invalid configuration", err)
	}

	fmt.Printf("Federating domain with tenant...\n")
	fmt.Printf("  Tenant: %s\n", cfg.TenantID)
	fmt.Printf("  Domain: %s\n", flags.domain)
	fmt.Printf("  Server: %s\n", cfg.ServerHost)

	dnsTimeout, err := cfg.DNS.ParseTimeout()
	if err != nil {
		return err
	}
	dnsInterval, err := cfg.DNS.ParseInitialInterval()
	if err != nil {
		return err
	}
	if flags.dnsTimeout > 0 {
		dnsTimeout = flags.dnsTimeout
	}

	federator := federate.New(
		certsource.NewResolver(logger),
		session.NewEstablisher(directoryFactory(cfg, logger), logger, nil),
		dnsverify.NewChecker(nil, logger),
		logger,
	)

	result, err := federator.Federate(ctx, federate.Request{
		TenantID:            cfg.TenantID,
		Domain:              flags.domain,
		ServerHost:          cfg.ServerHost,
		Certificate:         flags.certificate,
		CertificateFile:     flags.certFile,
		Username:            flags.username,
		Password:            flags.password,
		ClientID:            cfg.ClientID,
		DefaultDomainSuffix: cfg.DefaultDomainSuffix,
		DNSWait:             flags.dnsWait || cfg.DNS.Wait,
		DNSTimeout:          dnsTimeout,
		DNSInitialInterval:  dnsInterval,
	})
	if err != nil {
		if federrors.IsVerificationPendingError(err) {
			// Recoverable by the caller: report what to publish and end the
			// run without a hard failure.
			fmt.Printf("\nDomain ownership is not proven yet.\n")
			fmt.Printf("  %v\n", err)
			fmt.Printf("\nPublish the TXT record shown above, wait for DNS propagation, and re-run this command.\n")
			return nil
		}
		return err
	}

	fmt.Printf("\n✓ Domain federated successfully!\n")
	fmt.Printf("  Domain:         %s\n", result.Name)
	fmt.Printf("  Status:         %s\n", result.Status)
	fmt.Printf("  Authentication: %s\n", result.Authentication)
	if result.IsDefault {
		fmt.Printf("  Default:        yes\n")
	}

	return nil
}

// loadMergedConfig loads the optional config file and overlays CLI flags.
func loadMergedConfig(flags federateFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.tenantID != "" {
		cfg.TenantID = flags.tenantID
	}
	if flags.serverHost != "" {
		cfg.ServerHost = flags.serverHost
	}
	if flags.defaultSuffix != "" {
		cfg.DefaultDomainSuffix = flags.defaultSuffix
	}
	return cfg, nil
}

// directoryFactory builds directory clients bound to the configured API base.
func directoryFactory(cfg *config.Config, logger *slog.Logger) session.ClientFactory {
	return func(cred azcore.TokenCredential) (directory.Client, error) {
		return graph.New(cred, logger, &graph.Options{BaseURL: cfg.GraphBaseURL})
	}
}
