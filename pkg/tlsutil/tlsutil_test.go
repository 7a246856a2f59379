package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCACert(t *testing.T) {
	t.Run("empty path uses system pool", func(t *testing.T) {
		pool, err := LoadCACert("")
		require.NoError(t, err)
		assert.NotNil(t, pool)
	})

	t.Run("valid PEM file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, selfSignedPEM(t), 0o644))

		pool, err := LoadCACert(path)
		require.NoError(t, err)
		assert.NotNil(t, pool)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCACert(filepath.Join(t.TempDir(), "absent.pem"))
		require.Error(t, err)
	})

	t.Run("garbage content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o644))

		_, err := LoadCACert(path)
		require.Error(t, err)
	})
}

func selfSignedPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
