package models

// Environment names form a closed set: every monitored database belongs to
// exactly one stage of a tenant's pipeline.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Environments returns the closed set of valid environment names in
// pipeline order.
func Environments() []string {
	return []string{EnvDevelopment, EnvStaging, EnvProduction}
}

// ValidEnvironment reports whether env is one of the known environment names.
func ValidEnvironment(env string) bool {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	}
	return false
}

// ConnectionInfo describes how to reach one monitored database. The password
// is the plain-text credential; encrypted config values are decrypted before
// a ConnectionInfo is built.
type ConnectionInfo struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Target identifies one monitored database: a (tenant, environment) pair plus
// the connection descriptor needed to reach it. Targets are immutable values
// and are passed by value between goroutines.
type Target struct {
	TenantID    int
	TenantName  string
	TenantCode  string
	Environment string
	Conn        ConnectionInfo
}

// Key returns a human-readable identifier for log lines, e.g. "acme/production".
func (t Target) Key() string {
	return t.TenantCode + "/" + t.Environment
}
