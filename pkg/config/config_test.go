package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	cfg, err := Load("1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, "8443", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "machshop_cutover", cfg.Database.Database)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 5, cfg.Metrics.PredictionSamples)
	assert.Equal(t, float64(10), cfg.Alerting.DeviationMedium)
	assert.Equal(t, float64(20), cfg.Alerting.DeviationHigh)
	assert.Equal(t, float64(40), cfg.Alerting.DeviationCritical)
	assert.Equal(t, float64(5), cfg.Alerting.ErrorRatePercent)
	assert.Equal(t, 90, cfg.Retention.Days)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("RETENTION_DAYS", "14")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 14, cfg.Retention.Days)
}

func TestLoad_JWKSEndpoints(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")
	t.Setenv("JWKS_ENDPOINTS", "https://issuer.example.com=https://issuer.example.com/jwks.json")

	cfg, err := Load("dev")
	require.NoError(t, err)

	require.Len(t, cfg.Auth.JWKSEndpoints, 1)
	assert.Equal(t, "https://issuer.example.com/jwks.json",
		cfg.Auth.JWKSEndpoints["https://issuer.example.com"])
}

func TestLoad_VerificationRequiresEndpoints(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")
	t.Setenv("JWKS_ENDPOINTS", "")

	_, err := Load("dev")
	assert.Error(t, err)
}

func TestLoad_TLSRequiresBothPaths(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("TLS_CERT_PATH", "/tmp/cert.pem")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load("dev")
	assert.Error(t, err)
}

func TestLoad_TLSPathsMustExist(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	t.Setenv("TLS_CERT_PATH", certPath)
	t.Setenv("TLS_KEY_PATH", keyPath)

	_, err := Load("dev")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

	_, err = Load("dev")
	assert.NoError(t, err)
}

func TestLoad_PredictionSamplesValidated(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("METRICS_PREDICTION_SAMPLES", "1")

	_, err := Load("dev")
	assert.Error(t, err)
}

func TestParseJWKSEndpoints(t *testing.T) {
	endpoints := parseJWKSEndpoints("a=1, b=2,malformed,=nokey,novalue=")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, endpoints)

	assert.Empty(t, parseJWKSEndpoints(""))
}

func TestDatabaseURL(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "cutover",
		Password: "pw",
		Database: "machshop_cutover",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"postgres://cutover:pw@localhost:5432/machshop_cutover?sslmode=disable",
		cfg.URL())
}
