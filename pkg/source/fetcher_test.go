package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute/v2"
	"github.com/sirupsen/logrus"

	"go.goms.io/arc/ArcFleetAudit/pkg/distro"
)

func ptr[T any](v T) *T { return &v }

type fakeExtensionMetadataClient struct {
	values []*armhybridcompute.ExtensionValue
	err    error
	calls  atomic.Int32
}

func (f *fakeExtensionMetadataClient) NewListPager(location, publisher, extensionType string, options *armhybridcompute.ExtensionMetadataClientListOptions) *runtime.Pager[armhybridcompute.ExtensionMetadataClientListResponse] {
	return runtime.NewPager(runtime.PagingHandler[armhybridcompute.ExtensionMetadataClientListResponse]{
		More: func(armhybridcompute.ExtensionMetadataClientListResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *armhybridcompute.ExtensionMetadataClientListResponse) (armhybridcompute.ExtensionMetadataClientListResponse, error) {
			f.calls.Add(1)
			if f.err != nil {
				return armhybridcompute.ExtensionMetadataClientListResponse{}, f.err
			}
			return armhybridcompute.ExtensionMetadataClientListResponse{
				ExtensionValueListResult: armhybridcompute.ExtensionValueListResult{Value: f.values},
			}, nil
		},
	})
}

func testOptions(url string) Options {
	return Options{
		CatalogURL:     url,
		RequestTimeout: time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		RetryMaxDelay:  time.Millisecond,
	}
}

func TestWindowsAgentLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<td>AzureConnectedMachineAgent Version 1.44</td><td>AzureConnectedMachineAgent Version 1.45</td>`)
	}))
	defer server.Close()

	f := NewFetcher(testOptions(server.URL), server.Client(), nil, logrus.New())
	got, ok := f.WindowsAgentLatest(context.Background())
	if !ok || got != "1.45" {
		t.Fatalf("WindowsAgentLatest() = (%q, %v), want (%q, true)", got, ok, "1.45")
	}
}

func TestWindowsAgentLatestFailsSoft(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFetcher(testOptions(server.URL), server.Client(), nil, logrus.New())
	got, ok := f.WindowsAgentLatest(context.Background())
	if ok || got != "" {
		t.Fatalf("WindowsAgentLatest() = (%q, %v), want unknown", got, ok)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestGetBodyRetriesOnlyTransientStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{name: "missing repository", status: http.StatusNotFound, wantHits: 1},
		{name: "forbidden", status: http.StatusForbidden, wantHits: 1},
		{name: "throttled", status: http.StatusTooManyRequests, wantHits: 2},
		{name: "server error", status: http.StatusBadGateway, wantHits: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			f := NewFetcher(testOptions(server.URL), server.Client(), nil, logrus.New())
			_, err := f.getBody(context.Background(), server.URL)

			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
				t.Fatalf("getBody() error = %v, want status %d", err, tt.status)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("attempts = %d, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network error", err: errors.New("connection reset"), want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", &StatusError{StatusCode: http.StatusNotFound}), want: false},
		{name: "service unavailable", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "arm not found", err: fmt.Errorf("failed to list extension metadata: %w", &azcore.ResponseError{StatusCode: http.StatusNotFound}), want: false},
		{name: "arm throttled", err: &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWindowsAgentLatestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	opts := testOptions(server.URL)
	opts.RequestTimeout = 20 * time.Millisecond
	opts.RetryAttempts = 1
	f := NewFetcher(opts, server.Client(), nil, logrus.New())

	if _, ok := f.WindowsAgentLatest(context.Background()); ok {
		t.Fatal("expected unknown version after request timeout")
	}
}

func TestLinuxAgentLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ubuntu/20.04/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<a href="azcmagent_1.2.3.4_amd64.deb">azcmagent_1.2.3.4_amd64.deb</a>
<a href="azcmagent_1.3.0.0_amd64.rpm">azcmagent_1.3.0.0_amd64.rpm</a>`)
	}))
	defer server.Close()

	resolver := distro.NewResolver(map[string]string{"ubuntu": server.URL + "/ubuntu/%s/"})
	profile, err := resolver.Resolve("Ubuntu 20.04 LTS")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	f := NewFetcher(testOptions(""), server.Client(), nil, logrus.New())
	got, ok := f.LinuxAgentLatest(context.Background(), profile)
	if !ok || got != "1.3.0.0" {
		t.Fatalf("LinuxAgentLatest() = (%q, %v), want (%q, true)", got, ok, "1.3.0.0")
	}

	missing, _ := resolver.Resolve("Ubuntu 18.04 LTS")
	if got, ok := f.LinuxAgentLatest(context.Background(), missing); ok {
		t.Errorf("LinuxAgentLatest() for missing repository = %q, want unknown", got)
	}
}

func TestLinuxAgentLatestEmptyListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><pre>nothing here</pre></html>`)
	}))
	defer server.Close()

	f := NewFetcher(testOptions(""), server.Client(), nil, logrus.New())
	profile := distro.Profile{Family: distro.FamilyRHEL, Version: "8", Endpoint: server.URL}
	if got, ok := f.LinuxAgentLatest(context.Background(), profile); ok {
		t.Errorf("LinuxAgentLatest() = %q, want unknown", got)
	}
	if got, ok := f.LinuxAgentLatest(context.Background(), distro.Profile{}); ok {
		t.Errorf("LinuxAgentLatest() without endpoint = %q, want unknown", got)
	}
}

func TestExtensionLatest(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeExtensionMetadataClient
		want   string
		wantOK bool
	}{
		{
			name: "first entry wins",
			client: &fakeExtensionMetadataClient{values: []*armhybridcompute.ExtensionValue{
				{Properties: &armhybridcompute.ExtensionValueProperties{Version: ptr("1.30.0.0")}},
				{Properties: &armhybridcompute.ExtensionValueProperties{Version: ptr("1.29.0.0")}},
			}},
			want:   "1.30.0.0",
			wantOK: true,
		},
		{
			name:   "no entries",
			client: &fakeExtensionMetadataClient{},
		},
		{
			name:   "entry without version",
			client: &fakeExtensionMetadataClient{values: []*armhybridcompute.ExtensionValue{{}}},
		},
		{
			name:   "lookup error",
			client: &fakeExtensionMetadataClient{err: errors.New("boom")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(testOptions(""), nil, tt.client, logrus.New())
			got, ok := f.ExtensionLatest(context.Background(), "AzureMonitorLinuxAgent", "Microsoft.Azure.Monitor", "eastus")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtensionLatest() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtensionLatestRetriesErrors(t *testing.T) {
	client := &fakeExtensionMetadataClient{err: errors.New("throttled")}
	f := NewFetcher(testOptions(""), nil, client, logrus.New())

	if _, ok := f.ExtensionLatest(context.Background(), "t", "p", "l"); ok {
		t.Fatal("expected unknown version")
	}
	if client.calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", client.calls.Load())
	}
}

func TestExtensionLatestDoesNotRetryNotFound(t *testing.T) {
	client := &fakeExtensionMetadataClient{err: &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}}
	f := NewFetcher(testOptions(""), nil, client, logrus.New())

	if _, ok := f.ExtensionLatest(context.Background(), "t", "p", "l"); ok {
		t.Fatal("expected unknown version")
	}
	if client.calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", client.calls.Load())
	}
}

func TestExtensionLatestWithoutClient(t *testing.T) {
	f := NewFetcher(testOptions(""), nil, nil, logrus.New())
	if _, ok := f.ExtensionLatest(context.Background(), "t", "p", "l"); ok {
		t.Fatal("expected unknown version without a metadata client")
	}
}
