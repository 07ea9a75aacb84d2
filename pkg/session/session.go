// Package session establishes an authenticated session against the cloud
// directory tenant. The session is an explicit object handed to every
// operation that needs directory access; nothing here is ambient or global.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/term"

	"github.com/dirfed/fedctl/pkg/constants"
	"github.com/dirfed/fedctl/pkg/directory"
	federrors "github.com/dirfed/fedctl/pkg/errors"
)

// Session is an authenticated handle to the directory tenant.
type Session struct {
	TenantID     string
	Organization string
	Credential   azcore.TokenCredential
	Client       directory.Client
}

// ClientFactory builds a directory client from a credential.
type ClientFactory func(cred azcore.TokenCredential) (directory.Client, error)

// CredentialFactory builds a token credential from username/password input.
type CredentialFactory func(tenantID, clientID, username, password string) (azcore.TokenCredential, error)

// Prompter collects credentials interactively.
type Prompter interface {
	Username(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// Options carries the inputs for establishing a session.
type Options struct {
	TenantID string
	// ClientID is the public client used for the password grant; defaults to
	// the well-known CLI client.
	ClientID string
	// Username and Password are the supplied credential, if any.
	Username string
	Password string
	// Credential, when set, is an existing session credential to probe and
	// reuse before authenticating from scratch.
	Credential azcore.TokenCredential
}

// Establisher creates sessions.
type Establisher struct {
	clients  ClientFactory
	creds    CredentialFactory
	prompter Prompter
	logger   *slog.Logger
}

// EstablisherOptions overrides collaborators, mainly for tests.
type EstablisherOptions struct {
	CredentialFactory CredentialFactory
	Prompter          Prompter
}

// NewEstablisher creates an Establisher producing sessions through the given
// client factory.
func NewEstablisher(clients ClientFactory, logger *slog.Logger, opts *EstablisherOptions) *Establisher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts == nil {
		opts = &EstablisherOptions{}
	}

	creds := opts.CredentialFactory
	if creds == nil {
		creds = usernamePasswordCredential
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
	}

	return &Establisher{
		clients:  clients,
		creds:    creds,
		prompter: prompter,
		logger:   logger,
	}
}

// Establish guarantees an authenticated session to the tenant. An existing
// credential is probed and reused when functional; otherwise a credential is
// built from the supplied username/password, prompting for whichever is
// missing. Authentication failure is fatal, with no retry.
func (e *Establisher) Establish(ctx context.Context, opts Options) (*Session, error) {
	if opts.TenantID == "" {
		return nil, federrors.NewValidationError(constants.ComponentSession,
			"tenant ID is required", nil)
	}

	if opts.Credential != nil {
		if session, err := e.probe(ctx, opts.TenantID, opts.Credential); err == nil {
			e.logger.Info("reusing existing directory session",
				"tenant", opts.TenantID,
				"organization", session.Organization)
			return session, nil
		}
		e.logger.Debug("existing session not functional, re-authenticating")
	}

	username, password, err := e.collectCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = constants.DefaultPublicClientID
	}

	cred, err := e.creds(opts.TenantID, clientID, username, password)
	if err != nil {
		return nil, federrors.NewAuthenticationError(constants.ComponentSession,
			"failed to build tenant credential", err)
	}

	session, err := e.probe(ctx, opts.TenantID, cred)
	if err != nil {
		return nil, federrors.NewAuthenticationError(constants.ComponentSession,
			fmt.Sprintf("failed to authenticate to tenant %s", opts.TenantID), err)
	}

	e.logger.Info("directory session established",
		"tenant", opts.TenantID,
		"organization", session.Organization,
		"user", username)
	return session, nil
}

// collectCredentials fills in whichever of username/password was not supplied.
func (e *Establisher) collectCredentials(ctx context.Context, opts Options) (string, string, error) {
	username := opts.Username
	password := opts.Password

	if username == "" {
		u, err := e.prompter.Username(ctx)
		if err != nil {
			return "", "", federrors.NewAuthenticationError(constants.ComponentSession,
				"failed to read username", err)
		}
		username = u
	}
	if password == "" {
		p, err := e.prompter.Password(ctx)
		if err != nil {
			return "", "", federrors.NewAuthenticationError(constants.ComponentSession,
				"failed to read password", err)
		}
		password = p
	}

	if username == "" || password == "" {
		return "", "", federrors.NewAuthenticationError(constants.ComponentSession,
			"username and password are required", nil)
	}
	return username, password, nil
}

// probe validates the credential with a cheap directory call and wraps it
// into a Session.
func (e *Establisher) probe(ctx context.Context, tenantID string, cred azcore.TokenCredential) (*Session, error) {
	client, err := e.clients(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory client: %w", err)
	}

	org, err := client.Organization(ctx)
	if err != nil {
		return nil, err
	}

	return &Session{
		TenantID:     tenantID,
		Organization: org,
		Credential:   cred,
		Client:       client,
	}, nil
}

// usernamePasswordCredential is the default CredentialFactory.
func usernamePasswordCredential(tenantID, clientID, username, password string) (azcore.TokenCredential, error) {
	return azidentity.NewUsernamePasswordCredential(tenantID, clientID, username, password, nil)
}

// TerminalPrompter reads a username from the input stream and a password
// without echo when the input is a terminal.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// Username prompts for and reads a username.
func (p *TerminalPrompter) Username(ctx context.Context) (string, error) {
	fmt.Fprint(p.Out, "Username: ")
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password prompts for and reads a password, suppressing echo on terminals.
func (p *TerminalPrompter) Password(ctx context.Context) (string, error) {
	fmt.Fprint(p.Out, "Password: ")
	defer fmt.Fprintln(p.Out)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
