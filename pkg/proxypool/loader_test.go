package proxypool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grigta/outreach/pkg/crypto"
	"github.com/grigta/outreach/pkg/logger"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadInventory(t *testing.T) {
	path := writeInventory(t, `
proxies:
  - id: res_us_1
    host: 10.0.0.1
    port: 8080
    protocol: http
    username: user1
    password: secret1
    quality: residential
    country: US
    provider: brightdata
  - id: dc_de_1
    host: 10.0.0.2
    port: 1080
    protocol: socks5
    quality: datacenter
    country: DE
`)

	proxies, err := LoadInventory(path, nil)
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	assert.Equal(t, "res_us_1", proxies[0].ID)
	assert.Equal(t, "secret1", proxies[0].Password)
	assert.Equal(t, QualityResidential, proxies[0].Quality)
	assert.Equal(t, ProtocolSOCKS5, proxies[1].Protocol)
}

func TestLoadInventory_EncryptedPassword(t *testing.T) {
	enc, err := crypto.NewEncryptor("12345678901234567890123456789012")
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("topsecret")
	require.NoError(t, err)

	path := writeInventory(t, `
proxies:
  - id: p1
    host: 10.0.0.1
    port: 8080
    username: u
    password_encrypted: "`+ciphertext+`"
`)

	proxies, err := LoadInventory(path, enc)
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "topsecret", proxies[0].Password)
}

func TestLoadInventory_EncryptedWithoutKey(t *testing.T) {
	path := writeInventory(t, `
proxies:
  - id: p1
    host: 10.0.0.1
    port: 8080
    password_encrypted: "abc"
`)

	_, err := LoadInventory(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no encryption key")
}

func TestLoadInventory_EnvExpansion(t *testing.T) {
	t.Setenv("PROXY_TEST_USER", "envuser")

	path := writeInventory(t, `
proxies:
  - host: 10.0.0.1
    port: 8080
    username: ${PROXY_TEST_USER}
`)

	proxies, err := LoadInventory(path, nil)
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "envuser", proxies[0].Username)
}

func TestLoadInventory_MissingHost(t *testing.T) {
	path := writeInventory(t, `
proxies:
  - port: 8080
`)

	_, err := LoadInventory(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host and port are required")
}

func TestLoadInventory_FileMissing(t *testing.T) {
	_, err := LoadInventory("/nonexistent/proxies.yaml", nil)
	assert.Error(t, err)
}

func TestPool_LoadFromFile(t *testing.T) {
	path := writeInventory(t, `
proxies:
  - host: 10.0.0.1
    port: 8080
  - host: 10.0.0.2
    port: 8081
`)

	pool := NewPool(logger.Nop(), nil)
	n, err := pool.LoadFromFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, pool.Stats().Total)
}
