package config

import (
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccess  = "access-secret-0123456789abcdef0123"
	testRefresh = "refresh-secret-0123456789abcdef012"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", testAccess)
	t.Setenv("JWT_REFRESH_SECRET", testRefresh)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: " 1h30m ", want: 90 * time.Minute},
		{in: "xd", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL.Std())
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, ReadPolicyOwner, cfg.Recipes.ReadPolicy)
	assert.True(t, cfg.Recipes.GroupForeignRecipes)
	assert.Equal(t, "http://localhost:4000/auth/github/callback", cfg.GitHub.CallbackURL)
	assert.False(t, cfg.GitHub.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_REFRESH_TTL", "30d")
	t.Setenv("RECIPE_READ_POLICY", "any")
	t.Setenv("GROUP_FOREIGN_RECIPES", "false")
	t.Setenv("MEDIA_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL.Std())
	assert.Equal(t, ReadPolicyAny, cfg.Recipes.ReadPolicy)
	assert.False(t, cfg.Recipes.GroupForeignRecipes)
	assert.Equal(t, 8, cfg.Media.Workers)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
port: 5000
dbPath: /tmp/x.db
auth:
  accessSecret: ` + testAccess + `
  refreshSecret: ` + testRefresh + `
  accessTTL: 5m
  refreshTTL: 2d
recipes:
  readPolicy: owner-forbidden
media:
  bucket: photos
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Port, "env beats file")
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL.Std())
	assert.Equal(t, 48*time.Hour, cfg.Auth.RefreshTTL.Std())
	assert.Equal(t, ReadPolicyOwnerForbidden, cfg.Recipes.ReadPolicy)
	assert.Equal(t, "photos", cfg.Media.Bucket)
	assert.Equal(t, 4, cfg.Media.Workers, "defaults survive a partial file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secrets", env: map[string]string{}},
		{name: "short secret", env: map[string]string{"JWT_ACCESS_SECRET": "short", "JWT_REFRESH_SECRET": testRefresh}},
		{name: "same secrets", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testAccess}},
		{name: "bad port", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testRefresh, "PORT": "http"}},
		{name: "bad policy", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testRefresh, "RECIPE_READ_POLICY": "everyone"}},
		{name: "bad cost", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testRefresh, "BCRYPT_COST": "40"}},
		{name: "bad proxy", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testRefresh, "TRUSTED_PROXIES": "10.0.0.0/33"}},
		{name: "bad ttl", env: map[string]string{"JWT_ACCESS_SECRET": testAccess, "JWT_REFRESH_SECRET": testRefresh, "JWT_ACCESS_TTL": "later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_ACCESS_SECRET", "")
			t.Setenv("JWT_REFRESH_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	setSecrets(t)
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.7,::1 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.7", "::1"}, cfg.TrustedProxies)

	prefixes, err := cfg.ProxyPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, prefixes)
}

func TestProxyPrefixes_Empty(t *testing.T) {
	cfg := Default()
	prefixes, err := cfg.ProxyPrefixes()
	require.NoError(t, err)
	assert.Empty(t, prefixes)
}
