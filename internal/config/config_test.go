package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	c, err := LoadClient(NewClientViper())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", c.APIURL)
	require.Equal(t, 30*time.Second, c.Timeout)
	require.Equal(t, filepath.Join("/tmp/xdg", "medalert"), c.ConfigDir)
	require.Equal(t, "warn", c.LogLevel)
}

func TestLoadClient_Env(t *testing.T) {
	t.Setenv("MEDALERT_API_URL", "https://api.example.com")
	t.Setenv("MEDALERT_TIMEOUT", "5s")
	t.Setenv("MEDALERT_INSECURE", "true")
	t.Setenv("MEDALERT_CONFIG_DIR", "/var/lib/medalert")

	c, err := LoadClient(NewClientViper())
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", c.APIURL)
	require.Equal(t, 5*time.Second, c.Timeout)
	require.True(t, c.Insecure)
	require.Equal(t, "/var/lib/medalert", c.ConfigDir)
}

func TestLoadClient_Invalid(t *testing.T) {
	v := NewClientViper()
	v.Set("api_url", "")
	_, err := LoadClient(v)
	require.Error(t, err)

	v = NewClientViper()
	v.Set("timeout", "0s")
	_, err = LoadClient(v)
	require.Error(t, err)
}

func TestLoadSandbox(t *testing.T) {
	_, err := LoadSandbox(NewSandboxViper())
	require.Error(t, err)

	t.Setenv("SANDBOX_JWT_KEY", "secret")
	t.Setenv("SANDBOX_LOGIN_MAX_FAILS", "3")
	c, err := LoadSandbox(NewSandboxViper())
	require.NoError(t, err)
	require.Equal(t, "secret", c.JWTKey)
	require.Equal(t, 3, c.LoginMaxFails)
	require.Equal(t, ":8080", c.Addr)
	require.True(t, c.Seed)

	t.Setenv("SANDBOX_TLS_CERT", "cert.pem")
	_, err = LoadSandbox(NewSandboxViper())
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte("MEDALERT_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("MEDALERT_LOG_LEVEL", "")
	os.Unsetenv("MEDALERT_LOG_LEVEL")

	require.NoError(t, LoadDotEnv(p))
	c, err := LoadClient(NewClientViper())
	require.NoError(t, err)
	require.Equal(t, "debug", c.LogLevel)
}
