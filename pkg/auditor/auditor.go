package auditor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"go.goms.io/arc/ArcFleetAudit/pkg/distro"
	"go.goms.io/arc/ArcFleetAudit/pkg/inventory"
	"go.goms.io/arc/ArcFleetAudit/pkg/version"
)

// ErrInvalidMachine is returned when a machine lacks the identity needed to audit it
var ErrInvalidMachine = errors.New("invalid machine")

// LatestVersionSource looks up published versions. Lookups report unknown instead of failing.
type LatestVersionSource interface {
	LinuxAgentLatest(ctx context.Context, profile distro.Profile) (string, bool)
	ExtensionLatest(ctx context.Context, extensionType, publisher, location string) (string, bool)
}

// ExtensionLister enumerates the extensions deployed on a machine
type ExtensionLister interface {
	ListExtensions(ctx context.Context, machine inventory.Machine) ([]inventory.Extension, error)
}

// DistributionResolver maps an OS SKU to a package repository profile
type DistributionResolver interface {
	Resolve(osSku string) (distro.Profile, error)
}

// Auditor produces the audit record for a single machine
type Auditor struct {
	resolver   DistributionResolver
	source     LatestVersionSource
	extensions ExtensionLister
	logger     *logrus.Logger
}

// New creates an Auditor
func New(resolver DistributionResolver, source LatestVersionSource, extensions ExtensionLister, logger *logrus.Logger) *Auditor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Auditor{
		resolver:   resolver,
		source:     source,
		extensions: extensions,
		logger:     logger,
	}
}

// Audit evaluates one machine against the latest known versions. windowsLatest is the
// precomputed catalog version, empty when unknown. Data-quality problems become
// recommendations; only an invalid machine or a cancelled context return an error.
func (a *Auditor) Audit(ctx context.Context, machine inventory.Machine, windowsLatest string) (Record, error) {
	if machine.Name == "" || machine.ResourceGroup == "" {
		return Record{}, fmt.Errorf("%w: name=%q resourceGroup=%q", ErrInvalidMachine, machine.Name, machine.ResourceGroup)
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	log := a.logger.WithFields(logrus.Fields{
		"machine":       machine.Name,
		"resourceGroup": machine.ResourceGroup,
	})
	log.Debugf("Auditing %s machine (agent %s, status %s)", machine.OSType, machine.AgentVersion, machine.Status)

	var recs []Recommendation

	// Step 1: configuration mode
	if strings.EqualFold(machine.AgentConfigurationMode, inventory.ConfigModeFull) {
		recs = append(recs, Recommendation{
			Kind:    KindConfigModeNotMinimal,
			Message: "Agent configuration mode is 'full'; consider switching to 'monitor' mode to limit the features enabled on the machine",
		})
	}

	// Step 2: latest agent version for this OS
	latest := a.latestAgentVersion(ctx, log, machine, windowsLatest)

	// Step 3: agent comparison
	updateAvailable, agentRec := compareAgent(machine.AgentVersion, latest)
	if agentRec != nil {
		recs = append(recs, *agentRec)
	}

	// Step 4: extensions
	summaries, extRecs := a.auditExtensions(ctx, log, machine)
	recs = append(recs, extRecs...)

	// Step 5: expiry
	if strings.EqualFold(machine.Status, inventory.StatusExpired) {
		recs = append(recs, Recommendation{
			Kind:    KindMachineExpired,
			Message: "Machine status is Expired; the agent has not connected for over 45 days, delete the resource and onboard the machine again",
		})
	}

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	return Record{
		Machine:            machine,
		LatestAgentVersion: latest,
		UpdateAvailable:    updateAvailable,
		Extensions:         summaries,
		Recommendations:    recs,
	}, nil
}

func (a *Auditor) latestAgentVersion(ctx context.Context, log *logrus.Entry, machine inventory.Machine, windowsLatest string) string {
	if machine.OSType != inventory.OSTypeLinux {
		return windowsLatest
	}

	profile, err := a.resolver.Resolve(machine.OSSku)
	if err != nil {
		log.Warnf("Cannot determine package repository: %v", err)
		return ""
	}

	latest, ok := a.source.LinuxAgentLatest(ctx, profile)
	if !ok {
		return ""
	}
	return latest
}

// compareAgent decides whether an agent update is available. Unknown or unparsable versions
// never count as an update and produce an agent-version-unknown recommendation instead.
func compareAgent(current, latest string) (bool, *Recommendation) {
	switch {
	case latest == "":
		return false, &Recommendation{
			Kind:    KindAgentVersionUnknown,
			Message: "Unable to determine the latest agent version, please check manually",
		}
	case current == "":
		return false, &Recommendation{
			Kind:    KindAgentVersionUnknown,
			Message: "Unable to determine the installed agent version, please check manually",
		}
	}

	switch version.Compare(current, latest) {
	case version.Less:
		return true, &Recommendation{
			Kind:    KindAgentOutdated,
			Message: fmt.Sprintf("Agent version %s is older than the latest version %s; update the Connected Machine agent", current, latest),
		}
	case version.Incomparable:
		return false, &Recommendation{
			Kind:    KindAgentVersionUnknown,
			Message: fmt.Sprintf("Unable to verify agent version %s against latest version %s, please check manually", current, latest),
		}
	default:
		return false, nil
	}
}

func (a *Auditor) auditExtensions(ctx context.Context, log *logrus.Entry, machine inventory.Machine) ([]ExtensionSummary, []Recommendation) {
	extensions, err := a.extensions.ListExtensions(ctx, machine)
	if err != nil {
		log.Warnf("Failed to list extensions: %v", err)
		return nil, []Recommendation{{
			Kind:    KindExtensionVersionUnknown,
			Message: "Unable to list installed extensions, please check manually",
		}}
	}

	summaries := make([]ExtensionSummary, 0, len(extensions))
	var recs []Recommendation
	for _, ext := range extensions {
		summary := ExtensionSummary{
			Name:             ext.Name,
			Type:             ext.Type,
			Publisher:        ext.Publisher,
			InstalledVersion: ext.InstalledVersion,
		}

		location := ext.Location
		if location == "" {
			location = machine.Location
		}
		latest, ok := a.source.ExtensionLatest(ctx, ext.Type, ext.Publisher, location)
		if ok {
			summary.LatestVersion = latest
		}

		label := ext.Type
		if label == "" {
			label = ext.Name
		}

		switch {
		case ext.InstalledVersion == "":
			recs = append(recs, Recommendation{
				Kind:    KindExtensionVersionUnknown,
				Message: fmt.Sprintf("Extension %s: unable to find installed version, please check manually", label),
			})
		case !ok:
			recs = append(recs, Recommendation{
				Kind:    KindExtensionVersionUnknown,
				Message: fmt.Sprintf("Extension %s: unable to find latest version, please check manually", label),
			})
		default:
			installed, installedErr := version.Parse(ext.InstalledVersion)
			newest, latestErr := version.Parse(latest)
			if installedErr != nil || latestErr != nil {
				log.Debugf("Extension %s version comparison failed: installed=%v latest=%v", label, installedErr, latestErr)
				recs = append(recs, Recommendation{
					Kind:    KindExtensionVersionUnknown,
					Message: fmt.Sprintf("Extension %s: unable to verify version %s against %s, please check manually", label, ext.InstalledVersion, latest),
				})
			} else if installed.LessThan(newest) {
				summary.UpdateAvailable = true
				recs = append(recs, Recommendation{
					Kind:    KindExtensionOutdated,
					Message: fmt.Sprintf("Extension %s version %s is older than the latest version %s", label, ext.InstalledVersion, latest),
				})
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries, recs
}
