package datafile

import "strings"

// PathRewrite replaces a leading Prefix of a data file location with Replacement.
type PathRewrite struct {
	Prefix      string `yaml:"prefix"`
	Replacement string `yaml:"replacement"`
}

// DefaultRewrites maps the ISIS instrument data share onto its Linux mount.
var DefaultRewrites = []PathRewrite{
	{Prefix: `\\isis\inst$\`, Replacement: "/isis/"},
}

// NormalizePath converts a Windows-style network location into a POSIX path.
// The first matching rewrite is applied, then every remaining backslash becomes
// a forward slash.
func NormalizePath(location string, rewrites []PathRewrite) string {
	for _, rw := range rewrites {
		if rw.Prefix == "" {
			continue
		}
		if strings.HasPrefix(location, rw.Prefix) {
			location = rw.Replacement + strings.TrimPrefix(location, rw.Prefix)
			break
		}
	}
	return strings.ReplaceAll(location, `\`, "/")
}
