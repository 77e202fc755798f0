package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute/v2"
	"github.com/Azure/go-autorest/autorest/to"
	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"go.goms.io/arc/ArcFleetAudit/pkg/distro"
)

// ExtensionMetadataClient is the subset of the Azure SDK extension metadata client we need.
// It exists to allow lightweight mocking in unit tests.
type ExtensionMetadataClient interface {
	NewListPager(location, publisher, extensionType string, options *armhybridcompute.ExtensionMetadataClientListOptions) *runtime.Pager[armhybridcompute.ExtensionMetadataClientListResponse]
}

// Options tunes network behaviour of the Fetcher
type Options struct {
	CatalogURL        string
	AgentPackage      string
	RequestTimeout    time.Duration
	RetryAttempts     uint
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
}

func (o *Options) setDefaults() {
	if o.CatalogURL == "" {
		o.CatalogURL = DefaultCatalogURL
	}
	if o.AgentPackage == "" {
		o.AgentPackage = DefaultAgentPackage
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = defaultRetryMaxDelay
	}
}

// Fetcher looks up the latest published agent and extension versions.
// Every lookup fails soft: errors are logged and reported as an unknown version.
// A Fetcher is safe for concurrent use and keeps no cache between lookups.
type Fetcher struct {
	opts       Options
	httpClient *http.Client
	extensions ExtensionMetadataClient
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewFetcher creates a Fetcher. A nil httpClient uses http.DefaultClient,
// a nil extensions client makes every extension lookup unknown.
func NewFetcher(opts Options, httpClient *http.Client, extensions ExtensionMetadataClient, logger *logrus.Logger) *Fetcher {
	opts.setDefaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
	}

	f := &Fetcher{
		opts:       opts,
		httpClient: httpClient,
		extensions: extensions,
		logger:     logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return f
}

// WindowsAgentLatest returns the newest agent version listed on the update catalog
func (f *Fetcher) WindowsAgentLatest(ctx context.Context) (string, bool) {
	body, err := f.getBody(ctx, f.opts.CatalogURL)
	if err != nil {
		f.logger.Warnf("Failed to query update catalog %s: %v", f.opts.CatalogURL, err)
		return "", false
	}

	latest, ok := ParseCatalogVersion(body)
	if !ok {
		f.logger.Warnf("No agent version found on update catalog %s", f.opts.CatalogURL)
		return "", false
	}
	f.logger.Debugf("Latest Windows agent version from catalog: %s", latest)
	return latest, true
}

// LinuxAgentLatest returns the newest agent package published in the profile's repository
func (f *Fetcher) LinuxAgentLatest(ctx context.Context, profile distro.Profile) (string, bool) {
	if profile.Endpoint == "" {
		f.logger.Warnf("No repository endpoint for distribution %q", profile.Family)
		return "", false
	}

	body, err := f.getBody(ctx, profile.Endpoint)
	if err != nil {
		f.logger.Warnf("Failed to query package repository %s: %v", profile.Endpoint, err)
		return "", false
	}

	latest, ok := ParsePackageIndex(body, f.opts.AgentPackage)
	if !ok {
		f.logger.Warnf("No %s packages found in repository %s", f.opts.AgentPackage, profile.Endpoint)
		return "", false
	}
	f.logger.Debugf("Latest %s %s agent version from repository: %s", profile.Family, profile.Version, latest)
	return latest, true
}

// ExtensionLatest returns the version of the first metadata entry for an extension type
func (f *Fetcher) ExtensionLatest(ctx context.Context, extensionType, publisher, location string) (string, bool) {
	log := f.logger.WithFields(logrus.Fields{
		"extension": extensionType,
		"publisher": publisher,
		"location":  location,
	})

	if f.extensions == nil {
		log.Warn("No extension metadata client configured")
		return "", false
	}

	latest, err := retry.DoWithData(func() (string, error) {
		return f.firstExtensionVersion(ctx, extensionType, publisher, location)
	}, f.retryOptions(ctx)...)
	if err != nil {
		log.Warnf("Failed to look up latest extension version: %v", err)
		return "", false
	}
	if latest == "" {
		log.Warn("Extension metadata returned no versions")
		return "", false
	}
	return latest, true
}

func (f *Fetcher) firstExtensionVersion(ctx context.Context, extensionType, publisher, location string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	pager := f.extensions.NewListPager(location, publisher, extensionType, nil)
	if !pager.More() {
		return "", nil
	}
	page, err := pager.NextPage(callCtx)
	if err != nil {
		return "", fmt.Errorf("failed to list extension metadata: %w", err)
	}
	for _, entry := range page.Value {
		if entry == nil {
			continue
		}
		if entry.Properties == nil {
			return "", nil
		}
		return to.String(entry.Properties.Version), nil
	}
	return "", nil
}

// getBody issues a GET with per-attempt timeout and retries, returning the (capped) body text
func (f *Fetcher) getBody(ctx context.Context, url string) (string, error) {
	return retry.DoWithData(func() (string, error) {
		return f.getOnce(ctx, url)
	}, f.retryOptions(ctx)...)
}

func (f *Fetcher) getOnce(ctx context.Context, url string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return string(data), nil
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}

func (f *Fetcher) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(f.opts.RetryAttempts),
		retry.Delay(f.opts.RetryDelay),
		retry.MaxDelay(f.opts.RetryMaxDelay),
		retry.RetryIf(isTransient),
	}
}

// StatusError is a non-200 response from a version source
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
}

// isTransient reports whether a failed lookup is worth another attempt.
// 429 and 5xx are retried, any other HTTP status is final.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return retryableStatus(respErr.StatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
