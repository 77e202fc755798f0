package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go.goms.io/arc/ArcFleetAudit/pkg/scanner"
	"go.goms.io/arc/ArcFleetAudit/pkg/utils"
)

// Summary is the machine-readable digest of one scan
type Summary struct {
	ScanID                string            `json:"scanId" yaml:"scanId"`
	StartedAt             time.Time         `json:"startedAt" yaml:"startedAt"`
	FinishedAt            time.Time         `json:"finishedAt" yaml:"finishedAt"`
	DurationSeconds       float64           `json:"durationSeconds" yaml:"durationSeconds"`
	WindowsLatest         string            `json:"windowsLatest,omitempty" yaml:"windowsLatest,omitempty"`
	Machines              int               `json:"machines" yaml:"machines"`
	Audited               int               `json:"audited" yaml:"audited"`
	Failed                int               `json:"failed" yaml:"failed"`
	AgentUpdatesAvailable int               `json:"agentUpdatesAvailable" yaml:"agentUpdatesAvailable"`
	Recommendations       map[string]int    `json:"recommendations" yaml:"recommendations"`
	ReportPath            string            `json:"reportPath,omitempty" yaml:"reportPath,omitempty"`
	Failures              []scanner.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// BuildSummary aggregates a scan result
func BuildSummary(result *scanner.Result, reportPath string) Summary {
	summary := Summary{
		ScanID:          result.ScanID,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		DurationSeconds: result.FinishedAt.Sub(result.StartedAt).Seconds(),
		WindowsLatest:   result.WindowsLatest,
		Machines:        len(result.Records) + len(result.Failures),
		Audited:         len(result.Records),
		Failed:          len(result.Failures),
		Recommendations: map[string]int{},
		ReportPath:      reportPath,
		Failures:        result.Failures,
	}
	for _, record := range result.Records {
		if record.UpdateAvailable {
			summary.AgentUpdatesAvailable++
		}
		for _, rec := range record.Recommendations {
			summary.Recommendations[string(rec.Kind)]++
		}
	}
	return summary
}

// WriteSummary writes the summary atomically, as YAML for .yaml/.yml paths and JSON otherwise
func WriteSummary(path string, summary Summary) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(summary)
	default:
		data, err = json.MarshalIndent(summary, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal scan summary: %w", err)
	}

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scan summary to %s: %w", path, err)
	}
	return nil
}
