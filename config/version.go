package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ragforge/ragforge/ragerr"
)

// semver is a minimal, comparable SemVer triple. No third-party SemVer
// library appears anywhere in the example pack, so version comparison is
// hand-rolled here rather than borrowed from the ecosystem.
type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, bool) {
	s = strings.TrimPrefix(s, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) == 0 {
		return semver{}, false
	}
	var v semver
	var err error
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return semver{}, false
	}
	if len(parts) > 1 {
		if v.minor, err = strconv.Atoi(parts[1]); err != nil {
			return semver{}, false
		}
	}
	if len(parts) > 2 {
		if v.patch, err = strconv.Atoi(parts[2]); err != nil {
			return semver{}, false
		}
	}
	return v, true
}

func (a semver) less(b semver) bool {
	if a.major != b.major {
		return a.major < b.major
	}
	if a.minor != b.minor {
		return a.minor < b.minor
	}
	return a.patch < b.patch
}

// ResolveVersion selects a concrete version from available for the given
// version specifier:
//   - "latest" selects the highest published version.
//   - an exact version string that appears in available matches exactly.
//   - a range expression ("^1.2.0", "~1.2.0", ">=1.2.0") selects the
//     highest available version satisfying the range.
func ResolveVersion(name, spec string, available []string) (string, error) {
	if len(available) == 0 {
		return "", ragerr.Newf(ragerr.InvalidInput, "no available versions for plugin %q", name)
	}

	sorted := make([]string, len(available))
	copy(sorted, available)
	sort.Slice(sorted, func(i, j int) bool {
		vi, okI := parseSemver(sorted[i])
		vj, okJ := parseSemver(sorted[j])
		if okI && okJ {
			return vi.less(vj)
		}
		return sorted[i] < sorted[j]
	})

	if spec == "" || spec == "latest" {
		return sorted[len(sorted)-1], nil
	}

	for _, v := range sorted {
		if v == spec {
			return v, nil
		}
	}

	rangeFn, ok := rangeMatcher(spec)
	if !ok {
		return "", ragerr.Newf(ragerr.InvalidInput, "version %q for plugin %q matches no available version", spec, name)
	}

	best := ""
	var bestVer semver
	for _, v := range sorted {
		parsed, ok := parseSemver(v)
		if !ok || !rangeFn(parsed) {
			continue
		}
		if best == "" || bestVer.less(parsed) {
			best, bestVer = v, parsed
		}
	}
	if best == "" {
		return "", ragerr.Newf(ragerr.InvalidInput, "no available version of %q satisfies range %q", name, spec)
	}
	return best, nil
}

// rangeMatcher parses a SemVer-style range expression into a predicate.
// Supported forms: "^x.y.z" (compatible within major), "~x.y.z"
// (compatible within minor), ">=x.y.z", "<=x.y.z", ">x.y.z", "<x.y.z".
func rangeMatcher(spec string) (func(semver) bool, bool) {
	switch {
	case strings.HasPrefix(spec, "^"):
		base, ok := parseSemver(spec[1:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool {
			return v.major == base.major && !v.less(base)
		}, true
	case strings.HasPrefix(spec, "~"):
		base, ok := parseSemver(spec[1:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool {
			return v.major == base.major && v.minor == base.minor && !v.less(base)
		}, true
	case strings.HasPrefix(spec, ">="):
		base, ok := parseSemver(spec[2:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool { return !v.less(base) }, true
	case strings.HasPrefix(spec, "<="):
		base, ok := parseSemver(spec[2:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool { return !base.less(v) }, true
	case strings.HasPrefix(spec, ">"):
		base, ok := parseSemver(spec[1:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool { return base.less(v) }, true
	case strings.HasPrefix(spec, "<"):
		base, ok := parseSemver(spec[1:])
		if !ok {
			return nil, false
		}
		return func(v semver) bool { return v.less(base) }, true
	default:
		return nil, false
	}
}
