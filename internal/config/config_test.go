package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
		Blob: BlobConfig{Bucket: "pricedex-embeddings"},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MissingBlobBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Blob.Bucket = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing blob bucket")
	}
}

func TestValidate_MinSimilarityBounds(t *testing.T) {
	for _, v := range []float64{-0.1, 1.5} {
		cfg := validConfig()
		cfg.Search.MinSimilarity = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for min_similarity=%g", v)
		}
	}

	cfg := validConfig()
	cfg.Search.MinSimilarity = 0.7
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for min_similarity=0.7: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Database.KeyPrefix != "pricedex:" {
		t.Errorf("expected KeyPrefix='pricedex:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Cache.Namespace != "search" {
		t.Errorf("expected Namespace='search', got %q", cfg.Cache.Namespace)
	}
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("expected MaxEntries=1000, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.DefaultTTLSec != 300 {
		t.Errorf("expected DefaultTTLSec=300, got %d", cfg.Cache.DefaultTTLSec)
	}
	if cfg.Search.DaysBack != 90 {
		t.Errorf("expected DaysBack=90, got %d", cfg.Search.DaysBack)
	}
	if cfg.Search.RetentionDays != 730 {
		t.Errorf("expected RetentionDays=730, got %d", cfg.Search.RetentionDays)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15, KeyPrefix: "custom:"},
		Cache:    CacheConfig{Namespace: "other", MaxEntries: 50, DefaultTTLSec: 30},
		Search:   SearchConfig{DaysBack: 30, RetentionDays: 365},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("expected MaxEntries=50, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Search.DaysBack != 30 {
		t.Errorf("expected DaysBack=30, got %d", cfg.Search.DaysBack)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PRICEDEX_TEST_PASSWORD", "s3cret")

	in := []byte("password: ${PRICEDEX_TEST_PASSWORD}\nbucket: ${PRICEDEX_TEST_BUCKET:-fallback}\n")
	out := string(expandEnvVars(in))

	want := "password: s3cret\nbucket: fallback\n"
	if out != want {
		t.Errorf("expanded:\ngot:  %q\nwant: %q", out, want)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: 9090
database:
  addrs: ["localhost:6379"]
blob:
  bucket: test-bucket
  region: eu-west-1
search:
  days_back: 30
`
	if err := os.WriteFile(filepath.Join(cfgDir, "test.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("test")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Blob.Region != "eu-west-1" {
		t.Errorf("region = %q", cfg.Blob.Region)
	}
	if cfg.Search.DaysBack != 30 {
		t.Errorf("days_back = %d", cfg.Search.DaysBack)
	}
	// Defaults applied on top of the file.
	if cfg.Database.KeyPrefix != "pricedex:" {
		t.Errorf("key_prefix = %q", cfg.Database.KeyPrefix)
	}
}
