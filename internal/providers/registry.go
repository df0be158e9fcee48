// Package providers holds the closed set of supported usage providers and how codexbar must be
// invoked for each of them.
//
// Provider ids end up interpolated into shell command lines, so every id that did not originate
// in this package has to pass through Normalize first.
package providers

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID is a canonical, lower-case provider identifier.
type ID string

// Supported providers.
const (
	Claude ID = "claude"
	Codex  ID = "codex"
	Gemini ID = "gemini"
)

// Source is the codexbar acquisition mode required by a provider.
type Source string

const (
	// SourceOAuth reads usage through the provider's OAuth API.
	SourceOAuth Source = "oauth"
	// SourceCLI drives the provider's own CLI, which is much slower.
	SourceCLI Source = "cli"
)

var (
	// ErrInvalidProvider is returned for blank or unknown provider ids.
	ErrInvalidProvider = errors.New("invalid provider")
	// ErrUnhandledProvider means an allowed id has no source mapping.
	ErrUnhandledProvider = errors.New("unhandled provider")
)

// allowed lists the providers in their canonical display order.
var allowed = []ID{Claude, Codex, Gemini}

// sources is dictated by codexbar and is intentionally not configurable.
var sources = map[ID]Source{
	Claude: SourceOAuth,
	Codex:  SourceCLI,
	Gemini: SourceCLI,
}

// extraArgs carries per-provider workarounds for codexbar defects.
// codexbar crashes on gemini unless --verbose is passed.
var extraArgs = map[ID][]string{
	Gemini: {"--verbose"},
}

// All returns every supported provider in canonical order.
func All() []ID {
	out := make([]ID, len(allowed))
	copy(out, allowed)
	return out
}

// IsValid reports whether id names a supported provider, ignoring case and surrounding whitespace.
func IsValid(id string) bool {
	_, ok := lookup(id)
	return ok
}

// Normalize validates id and returns its canonical form.
func Normalize(id string) (ID, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: provider id cannot be null or empty", ErrInvalidProvider)
	}

	normalized, ok := lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidProvider, id)
	}
	return normalized, nil
}

// SourceFor returns the acquisition source codexbar needs for id.
func SourceFor(id string) (Source, error) {
	normalized, err := Normalize(id)
	if err != nil {
		return "", err
	}

	source, ok := sources[normalized]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnhandledProvider, normalized)
	}
	return source, nil
}

// ExtraArgs returns additional codexbar flags required for id, if any.
func ExtraArgs(id ID) []string {
	args := extraArgs[id]
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	copy(out, args)
	return out
}

// DisplayName returns a human-readable name for id. Unknown ids are title-cased.
func DisplayName(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(trimmed))
}

func lookup(id string) (ID, bool) {
	candidate := ID(strings.ToLower(strings.TrimSpace(id)))
	if candidate == "" {
		return "", false
	}
	for _, a := range allowed {
		if a == candidate {
			return a, true
		}
	}
	return "", false
}
