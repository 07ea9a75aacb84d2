package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirfed/fedctl/pkg/config"
	"github.com/dirfed/fedctl/pkg/directory"
	federrors "github.com/dirfed/fedctl/pkg/errors"
	"github.com/dirfed/fedctl/pkg/session"
)

// newStatusCommand creates the status command.
func newStatusCommand() *cobra.Command {
	var (
		configPath string
		tenantID   string
		domain     string
		username   string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a domain's registration and federation status",
		Long:  `Shows the domain's state in the tenant directory: verification status, authentication mode, and whether it is the tenant default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), configPath, tenantID, domain, username, password)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier, a GUID (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "Domain to inspect; omit to list all domains")
	cmd.Flags().StringVar(&username, "username", "", "Tenant administrator user; prompted for if omitted")
	cmd.Flags().StringVar(&password, "password", "", "Tenant administrator password; prompted for if omitted")

	return cmd
}

func runStatus(ctx context.Context, configPath, tenantID, domain, username, password string) error {
	logger := newLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if tenantID != "" {
		cfg.TenantID = tenantID
	}
	if cfg.TenantID == "" {
		return federrors.NewValidationError("cli", "tenant ID is required", nil)
	}

	establisher := session.NewEstablisher(directoryFactory(cfg, logger), logger, nil)
	sess, err := establisher.Establish(ctx, session.Options{
		TenantID: cfg.TenantID,
		ClientID: cfg.ClientID,
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Tenant: %s (%s)\n\n", sess.Organization, cfg.TenantID)

	if domain != "" {
		record, err := sess.Client.GetDomain(ctx, domain)
		if err != nil {
			return err
		}
		printDomain(record)
		return nil
	}

	records, err := sess.Client.ListDomains(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		printDomain(&records[i])
		fmt.Println()
	}
	return nil
}

// printDomain prints a domain record in a formatted way.
func printDomain(record *directory.DomainRecord) {
	fmt.Printf("Domain:         %s\n", record.Name)
	fmt.Printf("Status:         %s\n", record.Status)
	fmt.Printf("Authentication: %s\n", record.Authentication)
	if record.IsDefault {
		fmt.Printf("Default:        yes\n")
	}
}
