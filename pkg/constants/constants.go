// Package constants provides shared constants for the application.
package constants

const (
	// AppName is the CLI binary name.
	AppName = "fedctl"

	// DefaultGraphBaseURL is the base URL of the cloud directory REST API.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultGraphScope is the OAuth scope requested for directory access.
	DefaultGraphScope = "https://graph.microsoft.com/.default"

	// DefaultPublicClientID is the well-known public client used for
	// username/password authentication when no client ID is configured.
	DefaultPublicClientID = "1b730954-1685-4b74-9bfd-dac224a7b894"

	// TXTTokenPrefix is the prefix of the DNS TXT ownership proof issued
	// by the directory service.
	TXTTokenPrefix = "MS="

	// FederationMetadataPath is where a federation server publishes its
	// metadata document, including the active token-signing certificate.
	FederationMetadataPath = "/FederationMetadata/2007-06/FederationMetadata.xml"

	// ActiveLogOnPath is the WS-Trust username endpoint path on the federation server.
	ActiveLogOnPath = "/adfs/services/trust/2005/usernamemixed"

	// PassiveLogOnPath is the browser sign-on (and sign-off) path.
	PassiveLogOnPath = "/adfs/ls/"

	// MetadataExchangePath is the WS-Trust MEX path.
	MetadataExchangePath = "/adfs/services/trust/mex"

	// IssuerPath is the issuer URI path, rooted at the federated domain.
	IssuerPath = "/adfs/services/trust/"

	// ComponentCertSource is the component name for certificate acquisition.
	ComponentCertSource = "cert-source"

	// ComponentSession is the component name for session establishment.
	ComponentSession = "session"

	// ComponentRegistrar is the component name for domain registration.
	ComponentRegistrar = "registrar"

	// ComponentConfigurer is the component name for federation configuration.
	ComponentConfigurer = "configurer"

	// ComponentDirectory is the component name for the directory client.
	ComponentDirectory = "directory"
)
