package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("healthlens-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Catalog.Driver != "sqlite" {
		t.Fatalf("Catalog.Driver = %q", cfg.Catalog.Driver)
	}
	if cfg.Catalog.Path != "healthlens.db" {
		t.Fatalf("Catalog.Path = %q", cfg.Catalog.Path)
	}
	if cfg.Upload.MaxBytes != 200<<20 {
		t.Fatalf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Upload.SampleRows != 3 {
		t.Fatalf("Upload.SampleRows = %d", cfg.Upload.SampleRows)
	}
	if cfg.Query.DefaultRowLimit != 200 {
		t.Fatalf("Query.DefaultRowLimit = %d", cfg.Query.DefaultRowLimit)
	}
	if cfg.AI.Enabled {
		t.Fatal("AI.Enabled should default to false")
	}
	if cfg.AI.Model != "gpt-5" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.Archive.Enabled {
		t.Fatal("Archive.Enabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"HEALTHLENS_PROFILE": "prod"})
	cfg, err := Load("healthlens-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Archive.UseSSL {
		t.Fatal("Archive.UseSSL should default to true in prod")
	}
	if cfg.Archive.AutoCreateBucket {
		t.Fatal("Archive.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"HEALTHLENS_PROFILE":                 "test",
		"HEALTHLENS_HTTP_ADDR":               ":9999",
		"HEALTHLENS_HTTP_READ_TIMEOUT":       "2s",
		"HEALTHLENS_HTTP_WRITE_TIMEOUT":      "3s",
		"HEALTHLENS_LOG_LEVEL":               "error",
		"HEALTHLENS_AUTH_REQUIRED":           "true",
		"HEALTHLENS_AUTH_STATIC_KEYS":        "k1:user-a:reader",
		"HEALTHLENS_SERVICE_NAME":            "healthlens-custom",
		"HEALTHLENS_CATALOG_DRIVER":          "postgres",
		"HEALTHLENS_CATALOG_DSN":             "postgres://example",
		"HEALTHLENS_CATALOG_MAX_OPEN_CONNS":  "42",
		"HEALTHLENS_CATALOG_MAX_IDLE_CONNS":  "17",
		"HEALTHLENS_WAREHOUSE_DATA_DIR":      "/var/lib/healthlens",
		"HEALTHLENS_UPLOAD_MAX_BYTES":        "1048576",
		"HEALTHLENS_UPLOAD_MAX_DATASETS":     "4",
		"HEALTHLENS_UPLOAD_SAMPLE_ROWS":      "2",
		"HEALTHLENS_QUERY_DEFAULT_ROW_LIMIT": "500",
		"HEALTHLENS_QUERY_TIMEOUT":           "12s",
		"HEALTHLENS_AI_ENABLED":              "true",
		"HEALTHLENS_AI_BASE_URL":             "https://api.example.com",
		"HEALTHLENS_AI_API_KEY":              "secret-key",
		"HEALTHLENS_AI_MODEL":                "gpt-5.2",
		"HEALTHLENS_AI_TEMPERATURE":          "0.3",
		"HEALTHLENS_AI_TIMEOUT":              "21s",
		"HEALTHLENS_ARCHIVE_ENABLED":         "true",
		"HEALTHLENS_ARCHIVE_ENDPOINT":        "s3.example.com",
		"HEALTHLENS_ARCHIVE_BUCKET":          "healthlens-prod",
		"HEALTHLENS_ARCHIVE_REGION":          "us-west-2",
		"HEALTHLENS_ARCHIVE_ACCESS_KEY":      "abc",
		"HEALTHLENS_ARCHIVE_SECRET_KEY":      "def",
		"HEALTHLENS_ARCHIVE_USE_SSL":         "true",
		"HEALTHLENS_ARCHIVE_PREFIX":          "uploads",
	})
	cfg, err := Load("healthlens-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "healthlens-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:user-a:reader" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Catalog.Driver != "postgres" {
		t.Fatalf("Catalog.Driver = %q", cfg.Catalog.Driver)
	}
	if cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}
	if cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Catalog.MaxIdleConns != 17 {
		t.Fatalf("Catalog.MaxIdleConns = %d", cfg.Catalog.MaxIdleConns)
	}
	if cfg.Warehouse.DataDir != "/var/lib/healthlens" {
		t.Fatalf("Warehouse.DataDir = %q", cfg.Warehouse.DataDir)
	}
	if cfg.Upload.MaxBytes != 1<<20 {
		t.Fatalf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Upload.MaxDatasets != 4 {
		t.Fatalf("Upload.MaxDatasets = %d", cfg.Upload.MaxDatasets)
	}
	if cfg.Upload.SampleRows != 2 {
		t.Fatalf("Upload.SampleRows = %d", cfg.Upload.SampleRows)
	}
	if cfg.Query.DefaultRowLimit != 500 {
		t.Fatalf("Query.DefaultRowLimit = %d", cfg.Query.DefaultRowLimit)
	}
	if cfg.Query.Timeout != 12*time.Second {
		t.Fatalf("Query.Timeout = %s", cfg.Query.Timeout)
	}
	if !cfg.AI.Enabled {
		t.Fatal("AI.Enabled = false, want true")
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if !cfg.Archive.Enabled {
		t.Fatal("Archive.Enabled = false, want true")
	}
	if cfg.Archive.Endpoint != "s3.example.com" {
		t.Fatalf("Archive.Endpoint = %q", cfg.Archive.Endpoint)
	}
	if cfg.Archive.Bucket != "healthlens-prod" {
		t.Fatalf("Archive.Bucket = %q", cfg.Archive.Bucket)
	}
	if !cfg.Archive.UseSSL {
		t.Fatal("Archive.UseSSL = false, want true")
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"HEALTHLENS_PROFILE": "oops"},
		{"HEALTHLENS_HTTP_READ_TIMEOUT": "NaN"},
		{"HEALTHLENS_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"HEALTHLENS_CATALOG_DRIVER": "mysql"},
		{"HEALTHLENS_CATALOG_DRIVER": "postgres"},
		{"HEALTHLENS_UPLOAD_MAX_BYTES": "oops"},
		{"HEALTHLENS_QUERY_DEFAULT_ROW_LIMIT": "oops"},
		{"HEALTHLENS_AI_TEMPERATURE": "bad"},
		{"HEALTHLENS_AUTH_REQUIRED": "not-bool"},
		{"HEALTHLENS_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("healthlens-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
