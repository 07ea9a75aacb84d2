package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirfed/fedctl/pkg/endpoints"
)

// newEndpointsCommand creates the endpoints command.
func newEndpointsCommand() *cobra.Command {
	var (
		serverHost string
		domain     string
	)

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Print the federation endpoints derived for a server and domain",
		Long: `Prints the federation trust endpoints that the federate command would
apply, derived purely from the federation server hostname and the domain.
No network access and no tenant session required.`,
		Example: `  fedctl endpoints --server fs.example.org --domain example.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eps, err := endpoints.Build(serverHost, domain)
			if err != nil {
				return err
			}

			fmt.Printf("Active logon:      %s\n", eps.ActiveLogOn)
			fmt.Printf("Passive logon:     %s\n", eps.PassiveLogOn)
			fmt.Printf("Logoff:            %s\n", eps.LogOff)
			fmt.Printf("Metadata exchange: %s\n", eps.MetadataExchange)
			fmt.Printf("Issuer:            %s\n", eps.Issuer)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverHost, "server", "", "Federation server public hostname (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "Domain name (required)")

	for _, flag := range []string{"server", "domain"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}

	return cmd
}
