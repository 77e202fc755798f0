package auditor

import (
	"go.goms.io/arc/ArcFleetAudit/pkg/inventory"
)

// RecommendationKind classifies a finding by the rule that produced it
type RecommendationKind string

const (
	KindConfigModeNotMinimal    RecommendationKind = "configuration-mode-not-minimal"
	KindAgentOutdated           RecommendationKind = "agent-outdated"
	KindAgentVersionUnknown     RecommendationKind = "agent-version-unknown"
	KindExtensionOutdated       RecommendationKind = "extension-outdated"
	KindExtensionVersionUnknown RecommendationKind = "extension-version-unknown"
	KindMachineExpired          RecommendationKind = "machine-expired"
)

// Recommendation is a single finding for one machine
type Recommendation struct {
	Kind    RecommendationKind `json:"kind" yaml:"kind"`
	Message string             `json:"message" yaml:"message"`
}

// ExtensionSummary describes one installed extension and what is known about its latest version
type ExtensionSummary struct {
	Name             string `json:"name" yaml:"name"`
	Type             string `json:"type" yaml:"type"`
	Publisher        string `json:"publisher" yaml:"publisher"`
	InstalledVersion string `json:"installedVersion,omitempty" yaml:"installedVersion,omitempty"`
	LatestVersion    string `json:"latestVersion,omitempty" yaml:"latestVersion,omitempty"`
	UpdateAvailable  bool   `json:"updateAvailable" yaml:"updateAvailable"`
}

// Record is the audit outcome for one machine. It is built once per scan and not modified afterwards.
type Record struct {
	Machine inventory.Machine `json:"machine" yaml:"machine"`

	// LatestAgentVersion is empty when the latest version could not be determined
	LatestAgentVersion string `json:"latestAgentVersion,omitempty" yaml:"latestAgentVersion,omitempty"`
	UpdateAvailable    bool   `json:"updateAvailable" yaml:"updateAvailable"`

	Extensions      []ExtensionSummary `json:"extensions" yaml:"extensions"`
	Recommendations []Recommendation   `json:"recommendations" yaml:"recommendations"`
}

// RecommendationKinds returns the kinds in evaluation order
func (r Record) RecommendationKinds() []RecommendationKind {
	kinds := make([]RecommendationKind, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		kinds = append(kinds, rec.Kind)
	}
	return kinds
}
