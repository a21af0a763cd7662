// Package normalizers provides string normalization for tags, names and slugs
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("hyphenate", Hyphenate)
	Register("alphanumeric", Alphanumeric)
	Register("slug", NormalizeSlug)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims and replaces every whitespace run with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Hyphenate trims and replaces every whitespace run with a single hyphen
func Hyphenate(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var (
	slugSeparatorRe = regexp.MustCompile(`[\s_]+`)
	slugInvalidRe   = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphenRunRe = regexp.MustCompile(`-+`)
)

// NormalizeSlug turns a display name into a URL-safe slug:
// "The Witcher 3: Wild Hunt" becomes "the-witcher-3-wild-hunt".
func NormalizeSlug(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = slugSeparatorRe.ReplaceAllString(s, "-")
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = slugHyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
