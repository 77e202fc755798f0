package distro

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsupported is matched by every UnresolvedError
var ErrUnsupported = errors.New("unsupported distribution")

// skuPattern splits an OS SKU into the distro name and the first version-looking token.
// Trailing "LTS", service-pack and parenthetical build info are ignored.
var skuPattern = regexp.MustCompile(`^\s*([^\d(]+?)\s+(\d\S*)`)

var (
	majorMinorPattern = regexp.MustCompile(`^\d+\.\d+`)
	majorPattern      = regexp.MustCompile(`^\d+`)
)

// Profile describes which package repository serves the agent for a machine's OS SKU
type Profile struct {
	Family   Family `json:"family"`
	Version  string `json:"version"`
	Endpoint string `json:"endpoint"`
}

// UnresolvedError carries the distro token that could not be mapped to a family
type UnresolvedError struct {
	OSSku string
	Token string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unsupported distribution %q in OS SKU %q", e.Token, e.OSSku)
}

// Is makes errors.Is(err, ErrUnsupported) hold for any UnresolvedError
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Resolver maps OS SKUs to repository profiles
type Resolver struct {
	templates map[Family]string
}

// NewResolver creates a resolver using the default endpoint templates.
// Entries in overrides, keyed by family name, replace the default template for that family.
func NewResolver(overrides map[string]string) *Resolver {
	templates := make(map[Family]string, len(DefaultEndpointTemplates))
	for family, tmpl := range DefaultEndpointTemplates {
		templates[family] = tmpl
	}
	for name, tmpl := range overrides {
		family := Family(strings.ToLower(strings.TrimSpace(name)))
		if _, known := templates[family]; known && tmpl != "" {
			templates[family] = tmpl
		}
	}
	return &Resolver{templates: templates}
}

var defaultResolver = NewResolver(nil)

// Resolve maps an OS SKU using the default endpoint templates
func Resolve(osSku string) (Profile, error) {
	return defaultResolver.Resolve(osSku)
}

// Resolve maps an OS SKU such as "Ubuntu 20.04.6 LTS" to a repository profile.
// The returned error is an *UnresolvedError when the distribution is not supported.
func (r *Resolver) Resolve(osSku string) (Profile, error) {
	matches := skuPattern.FindStringSubmatch(osSku)
	if matches == nil {
		return Profile{Family: FamilyUnknown}, &UnresolvedError{OSSku: osSku, Token: strings.TrimSpace(osSku)}
	}

	name := strings.TrimSpace(matches[1])
	family := familyFor(name)
	if family == FamilyUnknown {
		return Profile{Family: FamilyUnknown}, &UnresolvedError{OSSku: osSku, Token: name}
	}

	versionToken := versionFor(family, matches[2])
	if versionToken == "" {
		return Profile{Family: FamilyUnknown}, &UnresolvedError{OSSku: osSku, Token: name}
	}

	tmpl, ok := r.templates[family]
	if !ok {
		return Profile{Family: FamilyUnknown}, &UnresolvedError{OSSku: osSku, Token: name}
	}

	return Profile{
		Family:   family,
		Version:  versionToken,
		Endpoint: fmt.Sprintf(tmpl, versionToken),
	}, nil
}

func familyFor(name string) Family {
	lower := strings.ToLower(name)
	for _, alias := range distroAliases {
		if strings.HasPrefix(lower, alias.prefix) {
			return alias.family
		}
	}
	return FamilyUnknown
}

// versionFor applies the family-specific version token rule
func versionFor(family Family, token string) string {
	switch family {
	case FamilyUbuntu:
		if v := majorMinorPattern.FindString(token); v != "" {
			return v
		}
		return majorPattern.FindString(token)
	case FamilyRHEL, FamilyCentOS:
		return majorPattern.FindString(token)
	default:
		return token
	}
}
