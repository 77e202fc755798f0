package config

import "time"

// Config represents the complete audit configuration structure.
// It contains Azure connection settings, scan tuning and report output settings.
type Config struct {
	Azure   AzureConfig   `json:"azure"`
	Agent   AgentConfig   `json:"agent"`
	Scan    ScanConfig    `json:"scan"`
	Sources SourcesConfig `json:"sources"`
	Report  ReportConfig  `json:"report"`
}

// AzureConfig holds the Azure settings needed to enumerate Arc machines.
type AzureConfig struct {
	SubscriptionID   string                  `json:"subscriptionId"`             // Subscription holding the Arc machines
	TenantID         string                  `json:"tenantId"`                   // Azure tenant ID, optional for Azure CLI authentication
	Cloud            string                  `json:"cloud"`                      // Azure cloud environment (defaults to AzurePublicCloud)
	ServicePrincipal *ServicePrincipalConfig `json:"servicePrincipal,omitempty"` // Optional service principal authentication
	ResourceGroups   []string                `json:"resourceGroups,omitempty"`   // Restrict the scan to these resource groups
}

// ServicePrincipalConfig holds Azure service principal authentication configuration.
// When provided, service principal authentication will be used instead of Azure CLI.
type ServicePrincipalConfig struct {
	TenantID     string `json:"tenantId"`     // Azure AD tenant ID
	ClientID     string `json:"clientId"`     // Azure AD application (client) ID
	ClientSecret string `json:"clientSecret"` // Azure AD application client secret
}

// AgentConfig holds process-level operational configuration.
type AgentConfig struct {
	LogLevel string `json:"logLevel"` // Logging level: debug, info, warning, error
	LogDir   string `json:"logDir"`   // Directory for log files, empty logs to stderr only
}

// ScanConfig controls fan-out and the behavior of outbound version lookups.
type ScanConfig struct {
	MaxConcurrency    int           `json:"maxConcurrency"`    // Machines audited at once
	RequestTimeout    time.Duration `json:"requestTimeout"`    // Per-attempt timeout for version lookups
	RetryAttempts     uint          `json:"retryAttempts"`     // Attempts per lookup, including the first
	RetryDelay        time.Duration `json:"retryDelay"`        // Initial backoff between attempts
	RetryMaxDelay     time.Duration `json:"retryMaxDelay"`     // Backoff cap
	RequestsPerSecond float64       `json:"requestsPerSecond"` // Outbound lookup rate, 0 disables limiting
}

// SourcesConfig points the version lookups at their upstream pages.
type SourcesConfig struct {
	CatalogURL   string            `json:"catalogUrl"`   // Update catalog search page for the Windows agent
	AgentPackage string            `json:"agentPackage"` // Linux agent package name in repository listings
	Repositories map[string]string `json:"repositories"` // Per-family repository URL templates with one %s for the version
}

// ReportConfig controls where scan output is written.
type ReportConfig struct {
	OutputDir   string `json:"outputDir"`   // Directory of the daily CSV report
	FilePrefix  string `json:"filePrefix"`  // CSV file name prefix
	SummaryPath string `json:"summaryPath"` // Optional scan summary, .json or .yaml
	MetricsPath string `json:"metricsPath"` // Optional prometheus textfile output
}

// IsSPConfigured checks if service principal credentials are provided in the configuration
func (cfg *Config) IsSPConfigured() bool {
	return cfg.Azure.ServicePrincipal != nil &&
		cfg.Azure.ServicePrincipal.ClientID != "" &&
		cfg.Azure.ServicePrincipal.ClientSecret != "" &&
		cfg.Azure.ServicePrincipal.TenantID != ""
}

// GetSubscriptionID returns the Azure subscription ID from configuration
func (cfg *Config) GetSubscriptionID() string {
	return cfg.Azure.SubscriptionID
}

// GetTenantID returns the Azure tenant ID from configuration
func (cfg *Config) GetTenantID() string {
	return cfg.Azure.TenantID
}
