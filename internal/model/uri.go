package model

import (
	"net/url"
	"path/filepath"
	"strings"
)

// NormalizeURI gives equivalent document URIs one spelling: scheme and host
// are lower-cased, percent-encoding in the path is decoded, and a Windows
// drive letter is lower-cased. Strings that are not URIs are returned as is.
func NormalizeURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	scheme := strings.ToLower(u.Scheme)
	path := u.Path
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = "/" + strings.ToLower(path[1:2]) + path[2:]
	}
	out := scheme + "://" + strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// FileURI converts a filesystem path to a file:// URI.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return NormalizeURI("file://" + slashed)
}

// URIToPath returns the filesystem path of a file:// URI.
func URIToPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || !strings.EqualFold(u.Scheme, "file") {
		return "", false
	}
	path := u.Path
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), true
}
