package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.goms.io/arc/ArcFleetAudit/pkg/auditor"
	"go.goms.io/arc/ArcFleetAudit/pkg/inventory"
)

// DefaultMaxConcurrency is the number of machines audited at once when not configured
const DefaultMaxConcurrency = 10

// MachineAuditor audits one machine
type MachineAuditor interface {
	Audit(ctx context.Context, machine inventory.Machine, windowsLatest string) (auditor.Record, error)
}

// WindowsLatestSource provides the latest Windows agent version, computed once per scan
type WindowsLatestSource interface {
	WindowsAgentLatest(ctx context.Context) (string, bool)
}

// Options configures the scanner
type Options struct {
	MaxConcurrency int
}

// Failure is a machine whose audit could not complete
type Failure struct {
	Machine inventory.Machine `json:"machine" yaml:"machine"`
	Error   string            `json:"error" yaml:"error"`
}

// Result is the aggregate of one fleet scan. Records and Failures follow the input order.
type Result struct {
	ScanID        string           `json:"scanId" yaml:"scanId"`
	StartedAt     time.Time        `json:"startedAt" yaml:"startedAt"`
	FinishedAt    time.Time        `json:"finishedAt" yaml:"finishedAt"`
	WindowsLatest string           `json:"windowsLatest,omitempty" yaml:"windowsLatest,omitempty"`
	Records       []auditor.Record `json:"records" yaml:"records"`
	Failures      []Failure        `json:"failures" yaml:"failures"`
}

// Scanner fans machine audits out with a strict concurrency bound
type Scanner struct {
	auditor MachineAuditor
	windows WindowsLatestSource
	opts    Options
	metrics *Metrics
	logger  *logrus.Logger
}

// New creates a Scanner. metrics may be nil.
func New(a MachineAuditor, windows WindowsLatestSource, opts Options, metrics *Metrics, logger *logrus.Logger) *Scanner {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		auditor: a,
		windows: windows,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

type outcome struct {
	index  int
	record auditor.Record
	err    error
}

// Scan audits every machine and returns the aggregate. A failing machine is reported in
// Failures and never stops the others, so len(Records)+len(Failures) == len(machines).
func (s *Scanner) Scan(ctx context.Context, machines []inventory.Machine) *Result {
	result := &Result{
		ScanID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.WithField("scanId", result.ScanID)
	log.Infof("Starting fleet scan of %d machines (maxConcurrency: %d)", len(machines), s.opts.MaxConcurrency)

	if s.windows != nil && hasNonLinux(machines) {
		if latest, ok := s.windows.WindowsAgentLatest(ctx); ok {
			result.WindowsLatest = latest
			log.Infof("Latest Windows agent version: %s", latest)
		} else {
			log.Warn("Latest Windows agent version is unknown, Windows machines will be flagged for manual review")
		}
	}

	outcomes := make(chan outcome)

	// g.Go blocks once MaxConcurrency audits are running, so submission waits for a free slot
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)
	go func() {
		for i, machine := range machines {
			i, machine := i, machine
			g.Go(func() error {
				outcomes <- s.auditOne(ctx, i, machine, result.WindowsLatest)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	// this goroutine is the only writer of the aggregate
	records := make([]*auditor.Record, len(machines))
	failures := make([]error, len(machines))
	done := 0
	for o := range outcomes {
		done++
		machine := machines[o.index]
		if o.err != nil {
			failures[o.index] = o.err
			s.metrics.recordFailure()
			log.WithFields(logrus.Fields{
				"machine":       machine.Name,
				"resourceGroup": machine.ResourceGroup,
			}).Warnf("Machine audit failed and is excluded from the report: %v", o.err)
		} else {
			record := o.record
			records[o.index] = &record
			s.metrics.recordSuccess(record)
		}
		log.Debugf("Audited %d/%d machines", done, len(machines))
	}

	for i, machine := range machines {
		switch {
		case records[i] != nil:
			result.Records = append(result.Records, *records[i])
		case failures[i] != nil:
			result.Failures = append(result.Failures, Failure{Machine: machine, Error: failures[i].Error()})
		}
	}

	result.FinishedAt = time.Now().UTC()
	s.metrics.scanFinished(float64(result.FinishedAt.Unix()))
	log.Infof("Fleet scan completed (duration: %v, records: %d, failures: %d)",
		result.FinishedAt.Sub(result.StartedAt), len(result.Records), len(result.Failures))
	return result
}

// auditOne runs a single audit, turning a panic into a failure for that machine only
func (s *Scanner) auditOne(ctx context.Context, index int, machine inventory.Machine, windowsLatest string) (o outcome) {
	o.index = index
	start := time.Now()
	s.metrics.auditStarted()
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("audit panicked: %v", r)
		}
		s.metrics.auditFinished(time.Since(start).Seconds())
	}()

	o.record, o.err = s.auditor.Audit(ctx, machine, windowsLatest)
	return o
}

func hasNonLinux(machines []inventory.Machine) bool {
	for _, m := range machines {
		if m.OSType != inventory.OSTypeLinux {
			return true
		}
	}
	return false
}
