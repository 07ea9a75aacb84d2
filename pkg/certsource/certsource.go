// Package certsource obtains the base64-encoded token-signing certificate
// for a federation trust. The certificate may be supplied verbatim by the
// caller, loaded from a file, or exported from the federation server's
// published metadata document.
package certsource

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/dirfed/fedctl/pkg/constants"
	federrors "github.com/dirfed/fedctl/pkg/errors"
)

// Options selects where the signing certificate comes from. Sources are
// tried in order: Literal, FilePath, then metadata export from ServerHost.
type Options struct {
	// Literal is a caller-supplied base64 certificate, used verbatim.
	Literal string
	// FilePath points at a PEM or DER certificate file.
	FilePath string
	// ServerHost is the federation server to export the active token-signing
	// certificate from, via its published federation metadata.
	ServerHost string
	// HTTPClient overrides the client used for the metadata fetch.
	HTTPClient *http.Client
}

// Resolver obtains signing certificates.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a certificate resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve produces the base64-encoded DER signing certificate.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (string, error) {
	if opts.Literal != "" {
		r.logger.Debug("using caller-supplied signing certificate")
		return opts.Literal, nil
	}

	if opts.FilePath != "" {
		r.logger.Debug("loading signing certificate from file", "path", opts.FilePath)
		return r.fromFile(opts.FilePath)
	}

	if opts.ServerHost == "" {
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			"must run on federation server, or supply a certificate", nil)
	}

	r.logger.Debug("exporting signing certificate from federation metadata",
		"server", opts.ServerHost)
	cert, err := r.fromMetadata(ctx, opts)
	if err != nil {
		return "", err
	}
	return cert, nil
}

// fromFile loads a PEM or DER certificate and re-encodes it canonically.
func (r *Resolver) fromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			fmt.Sprintf("failed to read certificate file %s", path), err)
	}

	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return "", federrors.NewValidationError(constants.ComponentCertSource,
				fmt.Sprintf("certificate file %s contains a %s block, expected CERTIFICATE", path, block.Type), nil)
		}
		der = block.Bytes
	}

	return canonicalBase64(der)
}

// fromMetadata fetches the federation server's metadata document and extracts
// the active token-signing certificate.
func (r *Resolver) fromMetadata(ctx context.Context, opts Options) (string, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	metadataURL := fmt.Sprintf("https://%s%s", opts.ServerHost, constants.FederationMetadataPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", federrors.NewInternalError(constants.ComponentCertSource,
			"failed to build metadata request", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		// Unreachable metadata endpoint means no export capability here.
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			"must run on federation server, or supply a certificate", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			fmt.Sprintf("federation metadata at %s returned %d; supply a certificate instead", metadataURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			"failed to read federation metadata", err)
	}

	raw, err := signingCertificateFromMetadata(body)
	if err != nil {
		return "", federrors.NewPreconditionError(constants.ComponentCertSource,
			fmt.Sprintf("no token-signing certificate in metadata at %s", metadataURL), err)
	}

	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", federrors.NewValidationError(constants.ComponentCertSource,
			"federation metadata certificate is not valid base64", err)
	}

	return canonicalBase64(der)
}

// federationMetadata matches the subset of the metadata document carrying
// signing key descriptors. Element names are matched by local name, so the
// SAML metadata and XML-DSig namespaces both resolve.
type federationMetadata struct {
	XMLName         xml.Name         `xml:"EntityDescriptor"`
	RoleDescriptors []roleDescriptor `xml:"RoleDescriptor"`
}

type roleDescriptor struct {
	KeyDescriptors []keyDescriptor `xml:"KeyDescriptor"`
}

type keyDescriptor struct {
	Use          string   `xml:"use,attr"`
	Certificates []string `xml:"KeyInfo>X509Data>X509Certificate"`
}

// signingCertificateFromMetadata returns the first signing-use certificate
// found in the metadata document.
func signingCertificateFromMetadata(doc []byte) (string, error) {
	var metadata federationMetadata
	if err := xml.Unmarshal(doc, &metadata); err != nil {
		return "", fmt.Errorf("failed to parse federation metadata: %w", err)
	}

	for _, role := range metadata.RoleDescriptors {
		for _, key := range role.KeyDescriptors {
			if key.Use != "signing" {
				continue
			}
			for _, cert := range key.Certificates {
				trimmed := strings.Join(strings.Fields(cert), "")
				if trimmed != "" {
					return trimmed, nil
				}
			}
		}
	}
	return "", fmt.Errorf("metadata contains no signing key descriptor")
}

// canonicalBase64 re-encodes certificate bytes into canonical DER base64.
// The DER bytes are staged through a temporary file that is removed even on
// failure, so a partial export never survives the call.
func canonicalBase64(der []byte) (string, error) {
	tmp, err := os.CreateTemp("", "fedctl-signing-cert-*.cer")
	if err != nil {
		return "", federrors.NewInternalError(constants.ComponentCertSource,
			"failed to create temporary certificate file", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(der); err != nil {
		_ = tmp.Close()
		return "", federrors.NewInternalError(constants.ComponentCertSource,
			"failed to stage certificate bytes", err)
	}
	if err := tmp.Close(); err != nil {
		return "", federrors.NewInternalError(constants.ComponentCertSource,
			"failed to flush temporary certificate file", err)
	}

	staged, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", federrors.NewInternalError(constants.ComponentCertSource,
			"failed to re-read staged certificate", err)
	}

	cert, err := x509.ParseCertificate(staged)
	if err != nil {
		return "", federrors.NewValidationError(constants.ComponentCertSource,
			"certificate is not valid DER", err)
	}

	return base64.StdEncoding.EncodeToString(cert.Raw), nil
}
