package urlkit

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyHost is returned when a URL has no host component.
var ErrEmptyHost = errors.New("registrable domain: empty host")

// RegistrableDomain returns the hostname (without port) lowercased, with a
// leading "www." stripped. Rate-limit and robots state are grouped by this
// key so www.example.com and example.com share one bucket.
func RegistrableDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("registrable domain: %w", err)
	}

	return HostToDomain(parsed.Hostname())
}

// HostToDomain normalizes a bare hostname the same way RegistrableDomain
// normalizes a URL's host.
func HostToDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", ErrEmptyHost
	}

	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", ErrEmptyHost
	}

	return host, nil
}

// SameDomain reports whether two URLs share a registrable domain.
func SameDomain(a, b string) bool {
	domainA, errA := RegistrableDomain(a)
	domainB, errB := RegistrableDomain(b)

	return errA == nil && errB == nil && domainA == domainB
}
