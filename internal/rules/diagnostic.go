package rules

import (
	"fmt"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/gobwas/glob"
)

// GlobDiagnostic tests a batch of candidate hostnames against a single
// glob pattern without needing a live rule to exist on the engine. It is
// a library helper; no mihomoctl subcommand calls it. Patterns are compiled once and reused, mirroring the
// teacher's internal/engine/matcher.go compileMatcher/glob.Compile
// pre-compilation pattern.
type GlobDiagnostic struct {
	pattern string
	g       glob.Glob
}

// CompileGlobDiagnostic compiles pattern once; returns an error for a
// malformed glob.
func CompileGlobDiagnostic(pattern string) (*GlobDiagnostic, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, mherr.InvalidParameter("rules.CompileGlobDiagnostic", fmt.Sprintf("invalid glob %q: %v", pattern, err))
	}
	return &GlobDiagnostic{pattern: pattern, g: g}, nil
}

// Matches reports whether host matches the compiled pattern.
func (d *GlobDiagnostic) Matches(host string) bool {
	return d.g.Match(host)
}

// MatchAll evaluates the compiled pattern against every candidate,
// returning the subset that match, in input order.
func (d *GlobDiagnostic) MatchAll(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if d.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// Pattern returns the original glob source text.
func (d *GlobDiagnostic) Pattern() string { return d.pattern }
