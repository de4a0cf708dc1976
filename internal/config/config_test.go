package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.IntervalMinutes != 360 || cfg.Scheduler.MaxParallelTenants != 5 {
		t.Errorf("scheduler defaults: %+v", cfg.Scheduler)
	}
	if !cfg.Scheduler.RunOnStartup {
		t.Error("run_on_startup should default true")
	}
	if cfg.Queue.Capacity != 10 {
		t.Errorf("queue capacity = %d", cfg.Queue.Capacity)
	}
	if !cfg.CustomDetection.ByConvention {
		t.Error("by_convention should default true")
	}
	if cfg.Gateway.Port != 6390 {
		t.Errorf("gateway port = %d", cfg.Gateway.Port)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"database": {"driver": "mysql", "dsn": "scan:pw@tcp(db:3306)/procwatch"},
		"scheduler": {"interval_minutes": 60, "max_parallel_tenants": 2},
		"tenants": [{
			"id": 3, "code": "acme", "name": "ACME",
			"environments": [{
				"environment": "production",
				"host": "db.acme.internal", "port": 3306,
				"database": "acme_prod", "user": "scan", "password": "enc:abc"
			}],
			"custom_objects": ["dbo.usp_acme_Report"]
		}],
		"tracked_objects": [{"full_name": "dbo.GetOrders", "tenant_id": 0}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != "mysql" || cfg.Scheduler.IntervalMinutes != 60 {
		t.Fatalf("cfg: %+v", cfg)
	}
	tenant := cfg.Tenant(3)
	if tenant == nil || tenant.Code != "acme" || len(tenant.Environments) != 1 {
		t.Fatalf("tenant: %+v", tenant)
	}
	if tenant.Environments[0].Password != "enc:abc" {
		t.Fatal("password must load verbatim; decryption happens at scan time")
	}
	if cfg.Tenant(99) != nil {
		t.Fatal("unknown tenant should be nil")
	}
}

func TestLoadRejectsInvalidTenants(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "duplicate tenant id",
			body:    `{"tenants": [{"id":1,"code":"a","environments":[]},{"id":1,"code":"b","environments":[]}]}`,
			wantErr: "tenant id 1",
		},
		{
			name:    "unknown environment",
			body:    `{"tenants": [{"id":1,"code":"a","environments":[{"environment":"qa","host":"h","database":"d"}]}]}`,
			wantErr: "unknown environment",
		},
		{
			name:    "missing host",
			body:    `{"tenants": [{"id":1,"code":"a","environments":[{"environment":"production","database":"d"}]}]}`,
			wantErr: "host and database are required",
		},
		{
			name:    "missing code",
			body:    `{"tenants": [{"id":1,"environments":[]}]}`,
			wantErr: "code is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, `{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := &Config{
		Database:  DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"},
		Scheduler: SchedulerConfig{IntervalMinutes: 15},
		Tenants: []TenantConfig{{
			ID: 1, Code: "acme",
			Environments: []EnvironmentConfig{{
				Environment: "development", Host: "localhost", Database: "d",
			}},
		}},
	}
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Scheduler.IntervalMinutes != 15 || len(loaded.Tenants) != 1 {
		t.Fatalf("round trip: %+v", loaded)
	}
}
