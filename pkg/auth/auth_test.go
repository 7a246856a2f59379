package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64("key123")
const testKey = "a2V5MTIz"

func TestResourceURI(t *testing.T) {
	t.Run("lowercase percent escapes", func(t *testing.T) {
		assert.Equal(t, "myhub.azure-devices.net%2fdevices%2fdev1",
			ResourceURI("myhub.azure-devices.net", "dev1"))
	})

	t.Run("unreserved characters untouched", func(t *testing.T) {
		assert.Equal(t, "Host-1.example.com%2fdevices%2fDev_2",
			ResourceURI("Host-1.example.com", "Dev_2"))
	})
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "myhub.azure-devices.net/devices/dev1",
		Username("myhub.azure-devices.net", "dev1"))
}

func TestGenerateSASToken(t *testing.T) {
	resource := ResourceURI("myhub.azure-devices.net", "dev1")
	// 1699996400 + 1h = 1700000000
	now := time.Unix(1699996400, 0).UTC()

	t.Run("known vector", func(t *testing.T) {
		token, err := GenerateSASToken(resource, testKey, time.Hour, now)
		require.NoError(t, err)

		// HMAC-SHA256(key="key123",
		// msg="myhub.azure-devices.net%2fdevices%2fdev1\n1700000000"),
		// base64 then percent-encoded, computed independently.
		assert.Equal(t, "SharedAccessSignature sr=myhub.azure-devices.net%2fdevices%2fdev1"+
			"&sig=9o9Xtfx9XeBSjlY1Hd7yP69bQnXIhfMu1awISLwJIm4%3d&se=1700000000", token)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := GenerateSASToken(resource, testKey, time.Hour, now)
		require.NoError(t, err)
		b, err := GenerateSASToken(resource, testKey, time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("field order", func(t *testing.T) {
		token, err := GenerateSASToken(resource, testKey, time.Hour, now)
		require.NoError(t, err)

		require.True(t, strings.HasPrefix(token, "SharedAccessSignature sr="))
		assert.Equal(t, 1, strings.Count(token, "sr="))
		assert.Equal(t, 1, strings.Count(token, "&sig="))
		assert.Equal(t, 1, strings.Count(token, "&se="))
		assert.Less(t, strings.Index(token, "sr="), strings.Index(token, "&sig="))
		assert.Less(t, strings.Index(token, "&sig="), strings.Index(token, "&se="))
	})

	t.Run("invalid key encoding", func(t *testing.T) {
		_, err := GenerateSASToken(resource, "not base64!!", time.Hour, now)
		require.ErrorIs(t, err, ErrInvalidKeyEncoding)
	})
}

func TestExpiryCeiling(t *testing.T) {
	resource := ResourceURI("myhub.azure-devices.net", "dev1")

	t.Run("whole second is not rounded up", func(t *testing.T) {
		token, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996400, 0))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(token, "&se=1700000000"))
	})

	t.Run("fractional second rounds up", func(t *testing.T) {
		token, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996400, 1))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(token, "&se=1700000001"))
	})

	t.Run("sub-second shift within same ceiling leaves output unchanged", func(t *testing.T) {
		a, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996400, 1))
		require.NoError(t, err)
		b, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996400, 999999999))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("one second shift crosses the boundary", func(t *testing.T) {
		a, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996400, 0))
		require.NoError(t, err)
		b, err := GenerateSASToken(resource, testKey, time.Hour, time.Unix(1699996401, 0))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.True(t, strings.HasSuffix(b, "&se=1700000001"))
	})
}

func TestGenerateMQTTCredentials(t *testing.T) {
	now := time.Unix(1699996400, 0)

	creds, err := GenerateMQTTCredentials("myhub.azure-devices.net", "dev1", testKey, time.Hour, now)
	require.NoError(t, err)

	assert.Equal(t, "dev1", creds.ClientID)
	assert.Equal(t, "myhub.azure-devices.net/devices/dev1", creds.Username)
	assert.True(t, strings.HasPrefix(creds.Password, "SharedAccessSignature sr="))

	t.Run("bad key surfaces error", func(t *testing.T) {
		_, err := GenerateMQTTCredentials("myhub.azure-devices.net", "dev1", "%%%", time.Hour, now)
		require.ErrorIs(t, err, ErrInvalidKeyEncoding)
	})
}
