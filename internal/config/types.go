package config

// Config is the root configuration structure for procwatch.
// Serialised to ~/.procwatch/config.json.
type Config struct {
	Database        DatabaseConfig        `mapstructure:"database"         json:"database"`
	Scheduler       SchedulerConfig       `mapstructure:"scheduler"        json:"scheduler"`
	Queue           QueueConfig           `mapstructure:"queue"            json:"queue"`
	CustomDetection CustomDetectionConfig `mapstructure:"custom_detection" json:"custom_detection"`
	Tenants         []TenantConfig        `mapstructure:"tenants"          json:"tenants"`
	TrackedObjects  []TrackedObjectConfig `mapstructure:"tracked_objects"  json:"tracked_objects"`
	Notify          NotifyConfig          `mapstructure:"notify"           json:"notify"`
	Gateway         GatewayConfig         `mapstructure:"gateway"          json:"gateway"`
}

// DatabaseConfig controls the analytical store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// SchedulerConfig controls the serve-mode scan loop.
type SchedulerConfig struct {
	// IntervalMinutes is the gap between automatic full scans.
	IntervalMinutes int `mapstructure:"interval_minutes" json:"interval_minutes"`
	// MaxParallelTenants caps how many tenants are scanned concurrently.
	MaxParallelTenants int `mapstructure:"max_parallel_tenants" json:"max_parallel_tenants"`
	// ConnectionTimeoutSeconds bounds the per-target connection test.
	// The per-target hard cap of 90s over connect+extract+write is fixed.
	ConnectionTimeoutSeconds int `mapstructure:"connection_timeout_seconds" json:"connection_timeout_seconds"`
	// RunOnStartup triggers a full scan as soon as serve starts.
	RunOnStartup bool `mapstructure:"run_on_startup" json:"run_on_startup"`
}

// QueueConfig controls the on-demand scan queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity" json:"capacity"`
}

// CustomDetectionConfig controls how tenant-custom objects are recognised.
type CustomDetectionConfig struct {
	// ByConvention marks an object custom when its name contains the
	// tenant code (case-insensitive), in addition to the explicit
	// per-tenant custom object registry.
	ByConvention bool `mapstructure:"by_convention" json:"by_convention"`
}

// TenantConfig describes one tenant and its monitored environments.
type TenantConfig struct {
	ID   int    `mapstructure:"id"   json:"id"`
	Code string `mapstructure:"code" json:"code"`
	Name string `mapstructure:"name" json:"name"`
	// Environments lists the databases to scan for this tenant.
	Environments []EnvironmentConfig `mapstructure:"environments" json:"environments"`
	// CustomObjects is the explicit registry of tenant-custom full names.
	CustomObjects []string `mapstructure:"custom_objects" json:"custom_objects"`
}

// EnvironmentConfig is the connection record for one tenant environment.
type EnvironmentConfig struct {
	// Environment is development, staging or production.
	Environment string `mapstructure:"environment" json:"environment"`
	Host        string `mapstructure:"host"        json:"host"`
	Port        int    `mapstructure:"port"        json:"port"`
	Database    string `mapstructure:"database"    json:"database"`
	User        string `mapstructure:"user"        json:"user"`
	// Password may be plain text or an "enc:" tagged value decrypted at
	// scan time via the master key.
	Password string `mapstructure:"password" json:"password"`
}

// TrackedObjectConfig is one entry of the tracked base object registry.
// When the registry is non-empty, a scan without --all only includes the
// listed objects (plus custom objects). TenantID 0 means the entry applies
// to every tenant.
type TrackedObjectConfig struct {
	FullName string `mapstructure:"full_name" json:"full_name"`
	TenantID int    `mapstructure:"tenant_id" json:"tenant_id"`
}

// NotifyConfig holds the post-scan notification channels.
type NotifyConfig struct {
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
	Email   EmailNotifyConfig   `mapstructure:"email"   json:"email"`
}

// WebhookNotifyConfig posts scan summaries to a generic HTTP endpoint.
type WebhookNotifyConfig struct {
	URL string `mapstructure:"url" json:"url"`
	// Secret enables HMAC-SHA256 signing of the payload.
	Secret string `mapstructure:"secret" json:"secret"`
}

// EmailNotifyConfig sends scan summaries via SMTP.
type EmailNotifyConfig struct {
	SMTPHost string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" json:"smtp_port"`
	From     string `mapstructure:"from"      json:"from"`
	To       string `mapstructure:"to"        json:"to"`
	Username string `mapstructure:"username"  json:"username"`
	Password string `mapstructure:"password"  json:"password"`
	UseTLS   bool   `mapstructure:"use_tls"   json:"use_tls"`
}

// GatewayConfig controls the localhost REST API in serve mode.
type GatewayConfig struct {
	// Port is the localhost HTTP port (default: 6390). 0 disables the API.
	Port int `mapstructure:"port" json:"port"`
}

// Tenant returns the tenant with the given id, or nil.
func (c *Config) Tenant(id int) *TenantConfig {
	for i := range c.Tenants {
		if c.Tenants[i].ID == id {
			return &c.Tenants[i]
		}
	}
	return nil
}
