package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kinos.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `
region: eu-west-1
tag_key: Backup
tag_values: ["Yes", "True"]
retention_days: 14
sns_topic: arn:aws:sns:eu-west-1:123456789012:kinos

daemon:
  interval: 12h
  schedule: "17 3 * * *"
  metrics_addr: ":9191"

catalog:
  path: /var/lib/kinos/catalog.db

journal:
  dir: /var/lib/kinos/journal
  retention_days: 60

guard:
  policy_dir: /etc/kinos/policies

otel_endpoint: otel-collector:4317
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %v, want eu-west-1", cfg.Region)
	}
	if cfg.TagKey != "Backup" {
		t.Errorf("TagKey = %v, want Backup", cfg.TagKey)
	}
	if len(cfg.TagValues) != 2 || cfg.TagValues[1] != "True" {
		t.Errorf("TagValues = %v, want [Yes True]", cfg.TagValues)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("RetentionDays = %v, want 14", cfg.RetentionDays)
	}
	if cfg.SNSTopic != "arn:aws:sns:eu-west-1:123456789012:kinos" {
		t.Errorf("SNSTopic = %v", cfg.SNSTopic)
	}
	if cfg.Daemon.Interval != 12*time.Hour {
		t.Errorf("Daemon.Interval = %v, want 12h", cfg.Daemon.Interval)
	}
	if cfg.Daemon.Schedule != "17 3 * * *" {
		t.Errorf("Daemon.Schedule = %v", cfg.Daemon.Schedule)
	}
	if cfg.Daemon.MetricsAddr != ":9191" {
		t.Errorf("Daemon.MetricsAddr = %v", cfg.Daemon.MetricsAddr)
	}
	if cfg.Catalog.Path != "/var/lib/kinos/catalog.db" {
		t.Errorf("Catalog.Path = %v", cfg.Catalog.Path)
	}
	if cfg.Journal.RetentionDays != 60 {
		t.Errorf("Journal.RetentionDays = %v, want 60", cfg.Journal.RetentionDays)
	}
	if cfg.Guard.PolicyDir != "/etc/kinos/policies" {
		t.Errorf("Guard.PolicyDir = %v", cfg.Guard.PolicyDir)
	}
	if cfg.OTELEndpoint != "otel-collector:4317" {
		t.Errorf("OTELEndpoint = %v", cfg.OTELEndpoint)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TagKey != "Snapshot" {
		t.Errorf("TagKey = %v, want Snapshot", cfg.TagKey)
	}
	if len(cfg.TagValues) != 1 || cfg.TagValues[0] != "Yes" {
		t.Errorf("TagValues = %v, want [Yes]", cfg.TagValues)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %v, want 7", cfg.RetentionDays)
	}
	if cfg.Daemon.Interval != 24*time.Hour {
		t.Errorf("Daemon.Interval = %v, want 24h", cfg.Daemon.Interval)
	}
}

func TestLoad_MalformedFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{{{ not yaml"))
	if err == nil {
		t.Fatal("expected parse error")
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}

	if cfg == nil || cfg.TagKey != "Snapshot" || cfg.RetentionDays != 7 {
		t.Errorf("malformed config should yield defaults, got %+v", cfg)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "region: ap-southeast-2\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Region != "ap-southeast-2" {
		t.Errorf("Region = %v", cfg.Region)
	}
	if cfg.TagKey != "Snapshot" || cfg.RetentionDays != 7 {
		t.Errorf("unset keys should keep defaults, got %+v", cfg)
	}
}

func TestLoad_ExplicitZeroRetention(t *testing.T) {
	cfg, err := Load(writeConfig(t, "retention_days: 0\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetentionDays != 0 {
		t.Errorf("RetentionDays = %v, want explicit 0", cfg.RetentionDays)
	}
}

func TestLoad_InvalidAfterParse(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tag_key: \"\"\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if cfg != nil {
		t.Errorf("invalid config should not be returned, got %+v", cfg)
	}

	var perr *ParseError
	if errors.As(err, &perr) {
		t.Error("validation failure must not be a ParseError")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing tag key",
			mutate:  func(c *Config) { c.TagKey = "" },
			wantErr: true,
		},
		{
			name:    "empty tag values",
			mutate:  func(c *Config) { c.TagValues = nil },
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.RetentionDays = -1 },
			wantErr: true,
		},
		{
			name:    "zero interval without schedule",
			mutate:  func(c *Config) { c.Daemon.Interval = 0 },
			wantErr: true,
		},
		{
			name: "zero interval with schedule",
			mutate: func(c *Config) {
				c.Daemon.Interval = 0
				c.Daemon.Schedule = "0 3 * * *"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Filter(t *testing.T) {
	cfg := Default()
	filter := cfg.Filter()

	if filter.Key != "Snapshot" {
		t.Errorf("Key = %v, want Snapshot", filter.Key)
	}
	if len(filter.Values) != 1 || filter.Values[0] != "Yes" {
		t.Errorf("Values = %v, want [Yes]", filter.Values)
	}
}
