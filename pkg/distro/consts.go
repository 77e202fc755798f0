package distro

// Family identifies a Linux package family with its own Microsoft package repository layout
type Family string

const (
	FamilyUbuntu      Family = "ubuntu"
	FamilyDebian      Family = "debian"
	FamilyRHEL        Family = "rhel"
	FamilyCentOS      Family = "centos"
	FamilySLES        Family = "sles"
	FamilyAmazonLinux Family = "amazonlinux"
	FamilyUnknown     Family = "unknown"
)

var (
	// DefaultEndpointTemplates maps each family to its repository index, %s is the version token
	DefaultEndpointTemplates = map[Family]string{
		FamilyUbuntu:      "https://packages.microsoft.com/ubuntu/%s/prod/pool/main/a/azcmagent/",
		FamilyDebian:      "https://packages.microsoft.com/debian/%s/prod/pool/main/a/azcmagent/",
		FamilyRHEL:        "https://packages.microsoft.com/rhel/%s/prod/Packages/a/",
		FamilyCentOS:      "https://packages.microsoft.com/centos/%s/prod/Packages/a/",
		FamilySLES:        "https://packages.microsoft.com/sles/%s/prod/Packages/a/",
		FamilyAmazonLinux: "https://packages.microsoft.com/amazonlinux/%s/prod/Packages/a/",
	}

	// distroAliases is checked in order against the lower-cased distro token
	distroAliases = []struct {
		prefix string
		family Family
	}{
		{"ubuntu", FamilyUbuntu},
		{"debian", FamilyDebian},
		{"red hat enterprise linux", FamilyRHEL},
		{"rhel", FamilyRHEL},
		{"oracle linux", FamilyRHEL},
		{"centos", FamilyCentOS},
		{"suse linux enterprise", FamilySLES},
		{"sles", FamilySLES},
		{"amazon linux", FamilyAmazonLinux},
	}
)
