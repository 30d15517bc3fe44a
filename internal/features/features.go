// Package features describes the capabilities a user can request for an
// extraction session. Overview is always part of a set; Analytics is optional.
// Sets are immutable values and safe to share between goroutines.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

// Feature names a requestable capability.
type Feature string

const (
	// Overview is the primary data set (profile, message and channel aggregates).
	Overview Feature = "overview"

	// Analytics is the optional behavioural/event statistics data set.
	Analytics Feature = "analytics"
)

// Known returns every feature in display order.
func Known() []Feature {
	return []Feature{Overview, Analytics}
}

func (f Feature) bit() Set {
	switch f {
	case Overview:
		return 1 << 0
	case Analytics:
		return 1 << 1
	default:
		return 0
	}
}

// Set is a set of requested features. The zero value is treated as {Overview}.
type Set uint8

// Default is the set used when nothing is configured: overview and analytics.
var Default = Of(Analytics)

// Of builds a set containing Overview plus the given features.
// Unknown features are ignored.
func Of(fs ...Feature) Set {
	s := Overview.bit()
	for _, f := range fs {
		s |= f.bit()
	}
	return s
}

// New creates a Set from a config map (feature name -> enabled).
// Overview cannot be disabled; unknown names are logged and ignored.
func New(m map[string]bool) Set {
	s := Of()
	for name, enabled := range m {
		f := Feature(strings.ToLower(name))
		if f.bit() == 0 {
			log.Debug(log.CatConfig, "Unknown feature in config", "feature", name)
			continue
		}
		if enabled {
			s |= f.bit()
		}
	}
	log.Debug(log.CatConfig, "Feature set initialized", "features", s.String())
	return s
}

// Parse reads a comma separated list such as "overview,analytics".
// An empty string yields {Overview}.
func Parse(list string) (Set, error) {
	s := Of()
	for _, part := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		f := Feature(name)
		if f.bit() == 0 {
			return s, fmt.Errorf("unknown feature %q (want one of: %s)", name, joinKnown())
		}
		s |= f.bit()
	}
	return s, nil
}

// Enabled reports whether f is part of the set.
func (s Set) Enabled(f Feature) bool {
	if f == Overview {
		return true
	}
	return s&f.bit() != 0
}

// With returns a copy of s that includes f.
func (s Set) With(f Feature) Set {
	return s | Overview.bit() | f.bit()
}

// Without returns a copy of s that excludes f. Overview is never removed.
func (s Set) Without(f Feature) Set {
	if f == Overview {
		return s | Overview.bit()
	}
	return (s &^ f.bit()) | Overview.bit()
}

// List returns the enabled features in display order.
func (s Set) List() []Feature {
	var out []Feature
	for _, f := range Known() {
		if s.Enabled(f) {
			out = append(out, f)
		}
	}
	return out
}

// Map returns the set as a name -> enabled map, the shape used in config files.
func (s Set) Map() map[string]bool {
	m := make(map[string]bool, len(Known()))
	for _, f := range Known() {
		m[string(f)] = s.Enabled(f)
	}
	return m
}

func (s Set) String() string {
	names := make([]string, 0, 2)
	for _, f := range s.List() {
		names = append(names, string(f))
	}
	return strings.Join(names, ",")
}

func joinKnown() string {
	names := make([]string, 0, len(Known()))
	for _, f := range Known() {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
