package source

import (
	"fmt"
	"regexp"

	"go.goms.io/arc/ArcFleetAudit/pkg/version"
)

// catalogPattern matches update-catalog entries such as "AzureConnectedMachineAgent Version 1.45".
// The catalog page layout is an external contract, keep this pattern in sync with it.
var catalogPattern = regexp.MustCompile(`(?i)AzureConnectedMachineAgent\s+Version\s+(\d+(?:\.\d+){1,3})`)

// ParseCatalogVersion extracts the newest agent version listed on an update-catalog search page
func ParseCatalogVersion(body string) (string, bool) {
	matches := catalogPattern.FindAllStringSubmatch(body, -1)
	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, m[1])
	}
	return version.Max(candidates...)
}

// packageFilePattern builds the matcher for "<name>_<a.b.c.d>_amd64.<deb|rpm>" file names
func packageFilePattern(packageName string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`%s_(\d+\.\d+\.\d+\.\d+)_amd64\.(?:deb|rpm)`, regexp.QuoteMeta(packageName)))
}

// ParsePackageIndex extracts every package file name for packageName from a repository
// directory listing and returns the highest version
func ParsePackageIndex(body, packageName string) (string, bool) {
	matches := packageFilePattern(packageName).FindAllStringSubmatch(body, -1)
	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, m[1])
	}
	return version.Max(candidates...)
}
