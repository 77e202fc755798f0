package inventory

import "strings"

// OSType is the operating system family reported by the agent
type OSType string

const (
	OSTypeWindows OSType = "windows"
	OSTypeLinux   OSType = "linux"
	OSTypeOther   OSType = "other"
)

// ParseOSType normalizes the free-form OS type reported by Azure
func ParseOSType(s string) OSType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows":
		return OSTypeWindows
	case "linux":
		return OSTypeLinux
	default:
		return OSTypeOther
	}
}

const (
	// StatusExpired is reported for machines that have not connected for more than 45 days
	StatusExpired = "Expired"
	// ConfigModeFull is the agent configuration mode with every feature enabled
	ConfigModeFull = "full"
)

// Machine is a registered Arc machine as read from the inventory.
// It is read-only for the duration of an audit.
type Machine struct {
	ID                      string `json:"id" yaml:"id"`
	Name                    string `json:"name" yaml:"name"`
	ResourceGroup           string `json:"resourceGroup" yaml:"resourceGroup"`
	SubscriptionID          string `json:"subscriptionId" yaml:"subscriptionId"`
	Location                string `json:"location" yaml:"location"`
	OSType                  OSType `json:"osType" yaml:"osType"`
	OSSku                   string `json:"osSku" yaml:"osSku"`
	Status                  string `json:"status" yaml:"status"`
	AgentConfigurationMode  string `json:"agentConfigurationMode" yaml:"agentConfigurationMode"`
	AutomaticUpgradeEnabled bool   `json:"automaticUpgradeEnabled" yaml:"automaticUpgradeEnabled"`
	AgentVersion            string `json:"agentVersion" yaml:"agentVersion"`
}

// Extension is one extension deployed on a machine
type Extension struct {
	Name             string `json:"name" yaml:"name"`
	Type             string `json:"type" yaml:"type"`
	Publisher        string `json:"publisher" yaml:"publisher"`
	Location         string `json:"location" yaml:"location"`
	InstalledVersion string `json:"installedVersion" yaml:"installedVersion"`
}
