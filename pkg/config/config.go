package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Default configuration values
	defaultLogLevel       = "info"
	defaultAzureCloud     = "AzurePublicCloud"
	defaultMaxConcurrency = 10
	defaultRequestTimeout = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultReportDir      = "."
	defaultReportPrefix   = "arc-fleet-audit"

	// Environment variable prefix
	envPrefix = "ARC_FLEET_AUDIT"
)

// envKeys are the settings that may be provided through the environment without a config file
var envKeys = []string{
	"azure.subscriptionId",
	"azure.tenantId",
	"azure.cloud",
	"azure.servicePrincipal.tenantId",
	"azure.servicePrincipal.clientId",
	"azure.servicePrincipal.clientSecret",
	"agent.logLevel",
	"agent.logDir",
	"scan.maxConcurrency",
	"scan.requestTimeout",
	"scan.retryAttempts",
	"scan.retryDelay",
	"scan.retryMaxDelay",
	"scan.requestsPerSecond",
	"sources.catalogUrl",
	"sources.agentPackage",
	"report.outputDir",
	"report.filePrefix",
	"report.summaryPath",
	"report.metricsPath",
}

// Singleton instance for configuration
var (
	configInstance *Config
	configMutex    sync.RWMutex
)

// GetConfig returns the singleton configuration instance.
// Returns nil if configuration has not been loaded yet. Use LoadConfig() first.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return configInstance
}

// LoadConfig loads configuration from an optional file and environment variables.
// A .env file in the working directory is loaded first when present.
// Environment variables override file values using the ARC_FLEET_AUDIT_ prefix.
// For example: ARC_FLEET_AUDIT_AZURE_SUBSCRIPTIONID=00000000-0000-0000-0000-000000000000
func LoadConfig(configPath string) (*Config, error) {
	// .env is a convenience for local runs, a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", configPath, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Set defaults for any missing values
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	configMutex.Lock()
	defer configMutex.Unlock()
	configInstance = config

	return config, nil
}

// SetDefaults sets default values for any missing configuration fields
func (c *Config) SetDefaults() {
	if c.Azure.Cloud == "" {
		c.Azure.Cloud = defaultAzureCloud
	}
	if sp := c.Azure.ServicePrincipal; sp != nil && sp.TenantID == "" {
		sp.TenantID = c.Azure.TenantID
	}

	if c.Agent.LogLevel == "" {
		c.Agent.LogLevel = defaultLogLevel
	}

	if c.Scan.MaxConcurrency == 0 {
		c.Scan.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Scan.RequestTimeout == 0 {
		c.Scan.RequestTimeout = defaultRequestTimeout
	}
	if c.Scan.RetryAttempts == 0 {
		c.Scan.RetryAttempts = defaultRetryAttempts
	}
	if c.Scan.RetryDelay == 0 {
		c.Scan.RetryDelay = defaultRetryDelay
	}
	if c.Scan.RetryMaxDelay == 0 {
		c.Scan.RetryMaxDelay = defaultRetryMaxDelay
	}

	// Empty source URLs fall back to the package defaults in pkg/source and pkg/distro
	if c.Sources.Repositories == nil {
		c.Sources.Repositories = make(map[string]string)
	}

	if c.Report.OutputDir == "" {
		c.Report.OutputDir = defaultReportDir
	}
	if c.Report.FilePrefix == "" {
		c.Report.FilePrefix = defaultReportPrefix
	}
}

// validLogLevels defines the allowed logging levels
var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warning": true,
	"error":   true,
}

// azureClouds maps the supported cloud names to their SDK configuration
var azureClouds = map[string]cloud.Configuration{
	"AzurePublicCloud":       cloud.AzurePublic,
	"AzureChinaCloud":        cloud.AzureChina,
	"AzureUSGovernmentCloud": cloud.AzureGovernment,
}

// Validate validates the configuration and ensures all required fields are set
func (c *Config) Validate() error {
	if c.Azure.SubscriptionID == "" {
		return fmt.Errorf("azure.subscriptionId is required")
	}

	if _, ok := azureClouds[c.Azure.Cloud]; !ok {
		return fmt.Errorf("invalid azure.cloud: %s. Valid values are: AzurePublicCloud, AzureChinaCloud, AzureUSGovernmentCloud", c.Azure.Cloud)
	}

	if sp := c.Azure.ServicePrincipal; sp != nil && (sp.ClientID != "" || sp.ClientSecret != "") && !c.IsSPConfigured() {
		return fmt.Errorf("azure.servicePrincipal requires tenantId, clientId and clientSecret")
	}

	if !validLogLevels[c.Agent.LogLevel] {
		return fmt.Errorf("invalid agent.logLevel: %s. Valid values are: debug, info, warning, error", c.Agent.LogLevel)
	}

	if c.Scan.MaxConcurrency < 1 {
		return fmt.Errorf("scan.maxConcurrency must be at least 1, got %d", c.Scan.MaxConcurrency)
	}
	if c.Scan.RequestTimeout < 0 || c.Scan.RetryDelay < 0 || c.Scan.RetryMaxDelay < 0 {
		return fmt.Errorf("scan durations must not be negative")
	}
	if c.Scan.RetryMaxDelay < c.Scan.RetryDelay {
		return fmt.Errorf("scan.retryMaxDelay (%v) must not be less than scan.retryDelay (%v)", c.Scan.RetryMaxDelay, c.Scan.RetryDelay)
	}
	if c.Scan.RequestsPerSecond < 0 {
		return fmt.Errorf("scan.requestsPerSecond must not be negative")
	}

	for family, template := range c.Sources.Repositories {
		if strings.Count(template, "%s") != 1 {
			return fmt.Errorf("sources.repositories.%s must contain exactly one %%s placeholder", family)
		}
	}

	return nil
}

// CloudConfiguration returns the SDK cloud configuration for azure.cloud
func (c *Config) CloudConfiguration() cloud.Configuration {
	if cfg, ok := azureClouds[c.Azure.Cloud]; ok {
		return cfg
	}
	return cloud.AzurePublic
}
