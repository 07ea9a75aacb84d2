package certsource

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	federrors "github.com/dirfed/fedctl/pkg/errors"
)

// newTestCert generates a self-signed certificate and returns its DER bytes.
func newTestCert(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ADFS Signing - fs.example.org"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func testResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestResolve_LiteralBypassesAllOtherSources(t *testing.T) {
	// No file, no server host: a literal certificate must still succeed.
	got, err := testResolver().Resolve(context.Background(), Options{Literal: "TUlJQ2NlcnQ="})
	require.NoError(t, err)
	assert.Equal(t, "TUlJQ2NlcnQ=", got)
}

func TestResolve_NoSourceIsPreconditionError(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, federrors.IsPreconditionError(err))
	assert.Contains(t, err.Error(), "must run on federation server, or supply a certificate")
}

func TestResolve_FromDERFile(t *testing.T) {
	der := newTestCert(t)
	path := filepath.Join(t.TempDir(), "signing.cer")
	require.NoError(t, os.WriteFile(path, der, 0o600))

	got, err := testResolver().Resolve(context.Background(), Options{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(der), got)
}

func TestResolve_FromPEMFile(t *testing.T) {
	der := newTestCert(t)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pemData, 0o600))

	got, err := testResolver().Resolve(context.Background(), Options{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(der), got)
}

func TestResolve_FileWrongPEMType(t *testing.T) {
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("nope")})
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, pemData, 0o600))

	_, err := testResolver().Resolve(context.Background(), Options{FilePath: path})
	require.Error(t, err)
	assert.True(t, federrors.IsValidationError(err))
}

func TestResolve_FileMissing(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), Options{
		FilePath: filepath.Join(t.TempDir(), "absent.cer"),
	})
	require.Error(t, err)
	assert.True(t, federrors.IsPreconditionError(err))
}

// metadataDoc renders a minimal federation metadata document.
func metadataDoc(signingCert string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="http://fs.example.org/adfs/services/trust">
  <RoleDescriptor xmlns:fed="http://docs.oasis-open.org/wsfed/federation/200706">
    <KeyDescriptor use="encryption">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>aXJyZWxldmFudA==</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>
          %s
        </X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
  </RoleDescriptor>
</EntityDescriptor>`, signingCert)
}

func TestResolve_FromFederationMetadata(t *testing.T) {
	der := newTestCert(t)
	encoded := base64.StdEncoding.EncodeToString(der)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/FederationMetadata/2007-06/FederationMetadata.xml", r.URL.Path)
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		_, _ = w.Write([]byte(metadataDoc(encoded)))
	}))
	defer server.Close()

	got, err := testResolver().Resolve(context.Background(), Options{
		ServerHost: strings.TrimPrefix(server.URL, "https://"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, encoded, got)
}

func TestResolve_MetadataUnreachable(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := strings.TrimPrefix(server.URL, "https://")
	client := server.Client()
	server.Close()

	_, err := testResolver().Resolve(context.Background(), Options{
		ServerHost: host,
		HTTPClient: client,
	})
	require.Error(t, err)
	assert.True(t, federrors.IsPreconditionError(err))
	assert.Contains(t, err.Error(), "supply a certificate")
}

func TestResolve_MetadataWithoutSigningKey(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"><RoleDescriptor/></EntityDescriptor>`))
	}))
	defer server.Close()

	_, err := testResolver().Resolve(context.Background(), Options{
		ServerHost: strings.TrimPrefix(server.URL, "https://"),
		HTTPClient: server.Client(),
	})
	require.Error(t, err)
	assert.True(t, federrors.IsPreconditionError(err))
}

func TestSigningCertificateFromMetadata_StripsWhitespace(t *testing.T) {
	cert, err := signingCertificateFromMetadata([]byte(metadataDoc("AAAA\n          BBBB")))
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", cert)
}
