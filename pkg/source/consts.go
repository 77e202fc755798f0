package source

import "time"

const (
	// DefaultCatalogURL is the update-catalog search for the Connected Machine agent
	DefaultCatalogURL = "https://www.catalog.update.microsoft.com/Search.aspx?q=AzureConnectedMachineAgent"
	// DefaultAgentPackage is the package name published to the Linux repositories
	DefaultAgentPackage = "azcmagent"

	defaultRequestTimeout = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second

	// maxBodyBytes caps how much of a catalog or repository page is read
	maxBodyBytes = 8 << 20
)
