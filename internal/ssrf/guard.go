// Package ssrf validates externally supplied URLs before they are fetched.
// It blocks private, loopback, link-local, and cloud-metadata destinations,
// and re-checks addresses after DNS resolution to defeat rebinding attacks
// where a hostname's records are swapped between validation and fetch.
package ssrf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
)

// Validation failure sentinels. Callers match with errors.Is.
var (
	ErrMalformedURL     = errors.New("ssrf: malformed url")
	ErrScheme           = errors.New("ssrf: disallowed scheme")
	ErrCredentials      = errors.New("ssrf: url embeds credentials")
	ErrBlockedHost      = errors.New("ssrf: blocked host")
	ErrPrivateAddress   = errors.New("ssrf: resolves to private address")
	ErrResolutionFailed = errors.New("ssrf: dns resolution failed")
)

// metadataHosts are cloud metadata service hostnames that must never be fetched.
var metadataHosts = map[string]struct{}{
	"metadata.google.internal":  {},
	"metadata.goog":             {},
	"metadata.azure.com":        {},
	"instance-data":             {},
	"instance-data.ec2.internal": {},
}

// metadataIPs are well-known metadata service addresses. Link-local checks
// catch 169.254.169.254 too; these are kept for literal-match clarity and for
// the IPv6 metadata address.
var metadataIPs = map[string]struct{}{
	"169.254.169.254": {},
	"fd00:ec2::254":   {},
}

// Options controls a single validation.
type Options struct {
	// AllowFTP permits ftp/ftps URLs (and their embedded credentials).
	AllowFTP bool
	// SkipDNSResolution skips the post-resolution private-address check.
	// Only safe when the caller pins the resolved address itself.
	SkipDNSResolution bool
}

// Result is the outcome of a validation.
type Result struct {
	Safe bool
	// Err explains why the URL is unsafe. Nil when Safe.
	Err error
	// NormalizedURL is the parsed-and-reserialized URL. Set only when Safe.
	NormalizedURL string
}

// Resolver resolves hostnames to IP addresses. Satisfied by net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard validates URLs against the SSRF policy. A Guard memoizes which hosts
// resolved public for the lifetime of the guard (one crawl session), so the
// same host is not re-resolved for every candidate URL.
type Guard struct {
	resolver Resolver

	mu         sync.Mutex
	publicMemo map[string]bool
}

// NewGuard creates a Guard using the default DNS resolver.
func NewGuard() *Guard {
	return NewGuardWithResolver(net.DefaultResolver)
}

// NewGuardWithResolver creates a Guard with an explicit resolver. Tests use
// this to avoid real DNS.
func NewGuardWithResolver(resolver Resolver) *Guard {
	return &Guard{
		resolver:   resolver,
		publicMemo: make(map[string]bool),
	}
}

// Validate checks a URL against the SSRF policy and reports the outcome.
// It never returns an error for unsafe input; the Result carries the reason.
func (g *Guard) Validate(ctx context.Context, rawURL string, opts Options) Result {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return unsafe(fmt.Errorf("%w: %v", ErrMalformedURL, err))
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !schemeAllowed(scheme, opts.AllowFTP) {
		return unsafe(fmt.Errorf("%w: %q", ErrScheme, parsed.Scheme))
	}

	if parsed.User != nil && !(opts.AllowFTP && isFTPScheme(scheme)) {
		return unsafe(ErrCredentials)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return unsafe(fmt.Errorf("%w: empty host", ErrMalformedURL))
	}

	if hostBlocked(host) {
		return unsafe(fmt.Errorf("%w: %q", ErrBlockedHost, host))
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if _, blocked := metadataIPs[ip.String()]; blocked {
			return unsafe(fmt.Errorf("%w: metadata address %q", ErrBlockedHost, host))
		}
		if isPrivateIP(ip) {
			return unsafe(fmt.Errorf("%w: %s", ErrPrivateAddress, ip))
		}
	} else if !opts.SkipDNSResolution {
		if err := g.checkResolved(ctx, host); err != nil {
			return unsafe(err)
		}
	}

	return Result{Safe: true, NormalizedURL: parsed.String()}
}

// Assert validates the URL and returns its normalized form, or an error when
// the URL is unsafe.
func (g *Guard) Assert(ctx context.Context, rawURL string, opts Options) (string, error) {
	result := g.Validate(ctx, rawURL, opts)
	if !result.Safe {
		return "", result.Err
	}

	return result.NormalizedURL, nil
}

// checkResolved resolves host and rejects it if any resolved address is
// private. Resolution failures and empty answers fail closed.
func (g *Guard) checkResolved(ctx context.Context, host string) error {
	g.mu.Lock()
	public, seen := g.publicMemo[host]
	g.mu.Unlock()

	if seen {
		if public {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrPrivateAddress, host)
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrResolutionFailed, host, err)
	}

	if len(addrs) == 0 {
		return fmt.Errorf("%w: %q: no addresses", ErrResolutionFailed, host)
	}

	for _, addr := range addrs {
		if _, blocked := metadataIPs[addr.IP.String()]; blocked {
			return fmt.Errorf("%w: %q resolves to metadata address %s", ErrBlockedHost, host, addr.IP)
		}
		if isPrivateIP(addr.IP) {
			g.memoize(host, false)
			return fmt.Errorf("%w: %q resolves to %s", ErrPrivateAddress, host, addr.IP)
		}
	}

	g.memoize(host, true)

	return nil
}

func (g *Guard) memoize(host string, public bool) {
	g.mu.Lock()
	g.publicMemo[host] = public
	g.mu.Unlock()
}

func schemeAllowed(scheme string, allowFTP bool) bool {
	switch scheme {
	case "http", "https":
		return true
	case "ftp", "ftps":
		return allowFTP
	default:
		return false
	}
}

func isFTPScheme(scheme string) bool {
	return scheme == "ftp" || scheme == "ftps"
}

// hostBlocked rejects localhost aliases and metadata hostnames.
func hostBlocked(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	_, blocked := metadataHosts[host]
	return blocked
}

// isPrivateIP reports whether ip falls in any range the guard refuses to
// fetch: RFC1918, loopback, link-local, "current network" (0.0.0.0/8),
// unspecified, unique-local IPv6 (fc00::/7), and IPv4-mapped addresses that
// map into any of the above. net.IP.IsPrivate covers RFC1918 and fc00::/7.
func isPrivateIP(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if v4 := ip.To4(); v4 != nil {
		// 0.0.0.0/8 "current network".
		return v4[0] == 0
	}

	return false
}

func unsafe(err error) Result {
	return Result{Safe: false, Err: err}
}
