package distro

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		osSku        string
		wantFamily   Family
		wantVersion  string
		wantEndpoint string
	}{
		{
			name:         "ubuntu LTS",
			osSku:        "Ubuntu 20.04 LTS",
			wantFamily:   FamilyUbuntu,
			wantVersion:  "20.04",
			wantEndpoint: "https://packages.microsoft.com/ubuntu/20.04/prod/pool/main/a/azcmagent/",
		},
		{
			name:        "ubuntu point release keeps major.minor",
			osSku:       "Ubuntu 22.04.3 LTS",
			wantFamily:  FamilyUbuntu,
			wantVersion: "22.04",
		},
		{
			name:         "red hat keeps major",
			osSku:        "Red Hat Enterprise Linux 8.6",
			wantFamily:   FamilyRHEL,
			wantVersion:  "8",
			wantEndpoint: "https://packages.microsoft.com/rhel/8/prod/Packages/a/",
		},
		{
			name:        "red hat with build info",
			osSku:       "Red Hat Enterprise Linux 9.2 (Plow)",
			wantFamily:  FamilyRHEL,
			wantVersion: "9",
		},
		{
			name:        "oracle linux aliased to rhel",
			osSku:       "Oracle Linux Server 8.5",
			wantFamily:  FamilyRHEL,
			wantVersion: "8",
		},
		{
			name:        "centos",
			osSku:       "CentOS Linux 7 (Core)",
			wantFamily:  FamilyCentOS,
			wantVersion: "7",
		},
		{
			name:        "debian",
			osSku:       "Debian GNU/Linux 11 (bullseye)",
			wantFamily:  FamilyDebian,
			wantVersion: "11",
		},
		{
			name:        "sles drops service pack",
			osSku:       "SUSE Linux Enterprise Server 15 SP4",
			wantFamily:  FamilySLES,
			wantVersion: "15",
		},
		{
			name:         "amazon linux",
			osSku:        "Amazon Linux 2",
			wantFamily:   FamilyAmazonLinux,
			wantVersion:  "2",
			wantEndpoint: "https://packages.microsoft.com/amazonlinux/2/prod/Packages/a/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.osSku)
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.osSku, err)
			}
			if got.Family != tt.wantFamily {
				t.Errorf("Resolve(%q) family = %q, want %q", tt.osSku, got.Family, tt.wantFamily)
			}
			if got.Version != tt.wantVersion {
				t.Errorf("Resolve(%q) version = %q, want %q", tt.osSku, got.Version, tt.wantVersion)
			}
			if tt.wantEndpoint != "" && got.Endpoint != tt.wantEndpoint {
				t.Errorf("Resolve(%q) endpoint = %q, want %q", tt.osSku, got.Endpoint, tt.wantEndpoint)
			}
		})
	}
}

func TestResolveUnsupported(t *testing.T) {
	tests := []struct {
		osSku     string
		wantToken string
	}{
		{"FreeBSD 13", "FreeBSD"},
		{"Windows Server 2022 Datacenter", "Windows Server"},
		{"", ""},
		{"Ubuntu", "Ubuntu"},
	}

	for _, tt := range tests {
		t.Run(tt.osSku, func(t *testing.T) {
			got, err := Resolve(tt.osSku)
			if err == nil {
				t.Fatalf("Resolve(%q) expected error, got %+v", tt.osSku, got)
			}
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("Resolve(%q) error = %v, want ErrUnsupported", tt.osSku, err)
			}
			var unresolved *UnresolvedError
			if !errors.As(err, &unresolved) {
				t.Fatalf("Resolve(%q) error is not *UnresolvedError: %T", tt.osSku, err)
			}
			if unresolved.Token != tt.wantToken {
				t.Errorf("Resolve(%q) token = %q, want %q", tt.osSku, unresolved.Token, tt.wantToken)
			}
			if got.Family != FamilyUnknown {
				t.Errorf("Resolve(%q) family = %q, want %q", tt.osSku, got.Family, FamilyUnknown)
			}
		})
	}
}

func TestNewResolverOverrides(t *testing.T) {
	r := NewResolver(map[string]string{
		"Ubuntu":  "https://mirror.example.com/ubuntu/%s/",
		"solaris": "https://mirror.example.com/solaris/%s/",
	})

	got, err := r.Resolve("Ubuntu 18.04.6 LTS")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if got.Endpoint != "https://mirror.example.com/ubuntu/18.04/" {
		t.Errorf("expected overridden endpoint, got %q", got.Endpoint)
	}

	if _, err := r.Resolve("Solaris 11"); err == nil {
		t.Error("unknown family override should not make a distribution resolvable")
	}

	got, err = r.Resolve("Debian GNU/Linux 12 (bookworm)")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if got.Endpoint != "https://packages.microsoft.com/debian/12/prod/pool/main/a/azcmagent/" {
		t.Errorf("expected default debian endpoint, got %q", got.Endpoint)
	}
}
