// Package urlutil provides URL normalization helpers shared by the spiders.
package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// fileExtensions are path suffixes treated as direct file links rather than
// pages to crawl.
var fileExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".zip": true, ".gz": true, ".tar": true,
	".csv": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".mp3": true, ".mp4": true,
}

// IDNToASCII converts a URL with an internationalized domain name to its
// punycode form. ASCII-only hosts pass through unchanged.
func IDNToASCII(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	host, err := idna.Lookup.ToASCII(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("IDN conversion for %q: %w", u.Hostname(), err)
	}

	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	return u.String(), nil
}

// StripFragment removes the #fragment part of a URL. Invalid URLs are
// returned unchanged.
func StripFragment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}

// Resolve makes href absolute against base. Returns an error when either
// URL does not parse.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	return b.ResolveReference(h).String(), nil
}

// Host returns the hostname of a URL, or "" when it does not parse.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsFileURL reports whether the URL path ends in a known file extension.
func IsFileURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

// PathMatches reports whether the URL's path matches the pattern.
func PathMatches(rawURL string, re *regexp.Regexp) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return re.MatchString(u.Path)
}

// UniqueURLs deduplicates URLs preserving first-seen order, comparing them
// with fragments stripped.
func UniqueURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	uniq := make([]string, 0, len(urls))
	for _, u := range urls {
		key := StripFragment(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		uniq = append(uniq, key)
	}
	return uniq
}
