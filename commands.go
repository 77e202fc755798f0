package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.goms.io/arc/ArcFleetAudit/pkg/auditor"
	"go.goms.io/arc/ArcFleetAudit/pkg/auth"
	"go.goms.io/arc/ArcFleetAudit/pkg/config"
	"go.goms.io/arc/ArcFleetAudit/pkg/distro"
	"go.goms.io/arc/ArcFleetAudit/pkg/inventory"
	"go.goms.io/arc/ArcFleetAudit/pkg/logger"
	"go.goms.io/arc/ArcFleetAudit/pkg/report"
	"go.goms.io/arc/ArcFleetAudit/pkg/scanner"
	"go.goms.io/arc/ArcFleetAudit/pkg/source"
)

// Version information variables (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var interactiveLogin bool

// versionSource is every latest-version lookup a scan needs
type versionSource interface {
	auditor.LatestVersionSource
	scanner.WindowsLatestSource
}

// NewScanCommand creates a new scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Audit every Arc machine in the subscription",
		Long:  "List Arc connected machines, compare agent and extension versions with the latest published ones and write the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&interactiveLogin, "login", false, "Run 'az login' when the Azure CLI session is missing or expired")

	return cmd
}

// NewVersionCommand creates a new version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, build commit, and build time information",
		Run: func(cmd *cobra.Command, args []string) {
			runVersion()
		},
	}

	return cmd
}

// runVersion displays version information
func runVersion() {
	fmt.Printf("Arc Fleet Audit\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}

// runScan wires the Azure clients and runs one fleet scan
func runScan(ctx context.Context) error {
	logger := logger.GetLoggerFromContext(ctx)
	cfg := config.GetConfig()
	if cfg == nil {
		return fmt.Errorf("configuration has not been loaded")
	}

	provider := auth.NewAuthProvider()
	if !cfg.IsSPConfigured() && interactiveLogin {
		if err := provider.EnsureAuthenticated(ctx, cfg.GetTenantID()); err != nil {
			return err
		}
	}
	cred, err := provider.UserCredential(cfg)
	if err != nil {
		return err
	}
	if err := provider.VerifyCredential(ctx, cred, cfg); err != nil {
		return err
	}

	clientOptions := &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{Cloud: cfg.CloudConfiguration()},
	}

	inv, err := inventory.NewAzureInventory(cfg.GetSubscriptionID(), cfg.Azure.ResourceGroups, cred, clientOptions, logger)
	if err != nil {
		return err
	}

	extensionMetadata, err := armhybridcompute.NewExtensionMetadataClient(cfg.GetSubscriptionID(), cred, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to create extension metadata client: %w", err)
	}

	fetcher := source.NewFetcher(source.Options{
		CatalogURL:        cfg.Sources.CatalogURL,
		AgentPackage:      cfg.Sources.AgentPackage,
		RequestTimeout:    cfg.Scan.RequestTimeout,
		RetryAttempts:     cfg.Scan.RetryAttempts,
		RetryDelay:        cfg.Scan.RetryDelay,
		RetryMaxDelay:     cfg.Scan.RetryMaxDelay,
		RequestsPerSecond: cfg.Scan.RequestsPerSecond,
	}, &http.Client{}, extensionMetadata, logger)

	_, err = executeScan(ctx, cfg, inv, fetcher)
	return err
}

// executeScan lists the fleet, audits it and writes the configured outputs.
// Only inventory and report failures are returned; per-machine problems are part of the result.
func executeScan(ctx context.Context, cfg *config.Config, inv inventory.Inventory, versions versionSource) (*scanner.Result, error) {
	log := logger.GetLoggerFromContext(ctx)

	machines, err := inv.ListMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate machine inventory: %w", err)
	}
	log.Infof("Found %d Arc machines in subscription %s", len(machines), cfg.GetSubscriptionID())
	if logger.IsDebugEnabled(ctx) {
		for _, m := range machines {
			log.WithFields(logrus.Fields{
				"machine":       m.Name,
				"resourceGroup": m.ResourceGroup,
			}).Debugf("Inventory: os=%s sku=%q status=%s mode=%s agent=%s autoUpgrade=%t",
				m.OSType, m.OSSku, m.Status, m.AgentConfigurationMode, m.AgentVersion, m.AutomaticUpgradeEnabled)
		}
	}

	resolver := distro.NewResolver(cfg.Sources.Repositories)
	machineAuditor := auditor.New(resolver, versions, inv, log)
	metrics := scanner.NewMetrics()

	fleetScanner := scanner.New(machineAuditor, versions, scanner.Options{MaxConcurrency: cfg.Scan.MaxConcurrency}, metrics, log)
	result := fleetScanner.Scan(ctx, machines)

	for _, record := range result.Records {
		if len(record.Recommendations) == 0 {
			continue
		}
		entry := log.WithFields(logrus.Fields{
			"machine":       record.Machine.Name,
			"resourceGroup": record.Machine.ResourceGroup,
		})
		for _, rec := range record.Recommendations {
			entry.Infof("%s: %s", rec.Kind, rec.Message)
		}
	}

	sink := report.NewCSVSink(cfg.Report.OutputDir, cfg.Report.FilePrefix, log)
	reportPath, err := sink.Write(result.ScanID, result.Records)
	if err != nil {
		return result, fmt.Errorf("failed to write audit report: %w", err)
	}

	if cfg.Report.SummaryPath != "" {
		if err := report.WriteSummary(cfg.Report.SummaryPath, report.BuildSummary(result, reportPath)); err != nil {
			log.Warnf("Failed to write scan summary: %v", err)
		} else {
			log.Infof("Scan summary written to %s", cfg.Report.SummaryPath)
		}
	}

	if cfg.Report.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.Report.MetricsPath); err != nil {
			log.Warnf("Failed to write metrics textfile: %v", err)
		} else {
			log.Debugf("Metrics written to %s", cfg.Report.MetricsPath)
		}
	}

	return result, nil
}
