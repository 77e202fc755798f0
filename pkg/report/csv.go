package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go.goms.io/arc/ArcFleetAudit/pkg/auditor"
	"go.goms.io/arc/ArcFleetAudit/pkg/utils"
)

const (
	// DefaultFilePrefix names the daily report file
	DefaultFilePrefix = "arc-fleet-audit"

	recommendationSeparator = "; "
	extensionSeparator      = "; "
)

// columns is the CSV header. The order is part of the report format.
var columns = []string{
	"ScanId",
	"SubscriptionId",
	"ResourceGroup",
	"MachineName",
	"Location",
	"OSType",
	"OSSku",
	"Status",
	"AgentConfigurationMode",
	"AutomaticUpgradeEnabled",
	"AgentVersion",
	"LatestAgentVersion",
	"UpdateAvailable",
	"Extensions",
	"Recommendations",
}

// CSVSink appends audit records to one CSV file per calendar day
type CSVSink struct {
	dir    string
	prefix string
	now    func() time.Time
	logger *logrus.Logger
}

// NewCSVSink creates a sink writing into dir. An empty prefix uses DefaultFilePrefix.
func NewCSVSink(dir, prefix string, logger *logrus.Logger) *CSVSink {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CSVSink{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
		logger: logger,
	}
}

// Path returns the report file for the current day
func (s *CSVSink) Path() string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.csv", s.prefix, s.now().Format("2006-01-02")))
}

// Write appends records to the daily file, writing the header only when the file is new.
// It returns the path written to.
func (s *CSVSink) Write(scanID string, records []auditor.Record) (string, error) {
	path := s.Path()
	if err := utils.EnsureDirectory(s.dir, 0o755); err != nil {
		return "", err
	}

	writeHeader := !utils.FileExistsAndValid(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(columns); err != nil {
			return "", fmt.Errorf("failed to write report header: %w", err)
		}
	}
	for _, record := range records {
		if err := w.Write(row(scanID, record)); err != nil {
			return "", fmt.Errorf("failed to write report row for %s: %w", record.Machine.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report %s: %w", path, err)
	}

	s.logger.Infof("Wrote %d audit records to %s", len(records), path)
	return path, nil
}

func row(scanID string, record auditor.Record) []string {
	m := record.Machine
	return []string{
		scanID,
		m.SubscriptionID,
		m.ResourceGroup,
		m.Name,
		m.Location,
		string(m.OSType),
		m.OSSku,
		m.Status,
		m.AgentConfigurationMode,
		strconv.FormatBool(m.AutomaticUpgradeEnabled),
		m.AgentVersion,
		record.LatestAgentVersion,
		strconv.FormatBool(record.UpdateAvailable),
		formatExtensions(record.Extensions),
		formatRecommendations(record.Recommendations),
	}
}

// formatExtensions renders "type installed->latest" per extension, "?" for unknown versions
func formatExtensions(extensions []auditor.ExtensionSummary) string {
	parts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		name := ext.Type
		if name == "" {
			name = ext.Name
		}
		parts = append(parts, fmt.Sprintf("%s %s->%s", name, orUnknown(ext.InstalledVersion), orUnknown(ext.LatestVersion)))
	}
	return strings.Join(parts, extensionSeparator)
}

func formatRecommendations(recs []auditor.Recommendation) string {
	parts := make([]string, 0, len(recs))
	for _, rec := range recs {
		parts = append(parts, rec.Message)
	}
	return strings.Join(parts, recommendationSeparator)
}

func orUnknown(v string) string {
	if v == "" {
		return "?"
	}
	return v
}
