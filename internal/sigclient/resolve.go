package sigclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// fallbackResolvers are queried when the system resolver cannot find the
// signaling host, which happens on captive or filtered networks.
var fallbackResolvers = []string{
	"1.1.1.1",
	"1.0.0.1",
	"8.8.8.8",
	"8.8.4.4",
	"9.9.9.9",
	"149.112.112.112",
	"208.67.222.222",
	"208.67.220.220",
}

const (
	systemLookupTimeout   = time.Second
	fallbackLookupTimeout = 2 * time.Second
)

var errNoAddress = errors.New("no addresses found")

// dialContext resolves the host with fallback before dialing.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := resolveHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// resolveHost returns one address for host, preferring IPv4. IP literals are
// returned as is. The system resolver is tried first; on failure the
// fallback resolvers race and the first answer wins.
func resolveHost(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	sysCtx, cancel := context.WithTimeout(ctx, systemLookupTimeout)
	ip, err := lookup(sysCtx, net.DefaultResolver, host)
	cancel()
	if err == nil {
		return ip, nil
	}

	return raceFallback(ctx, host)
}

func raceFallback(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fallbackLookupTimeout)
	defer cancel()

	type result struct {
		ip  string
		err error
	}
	results := make(chan result, len(fallbackResolvers))

	for _, server := range fallbackResolvers {
		go func() {
			ip, err := lookup(ctx, pinnedResolver(server), host)
			results <- result{ip, err}
		}()
	}

	var lastErr error
	for range fallbackResolvers {
		select {
		case r := <-results:
			if r.err == nil {
				return r.ip, nil
			}
			lastErr = r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("all fallback resolvers failed: %w", lastErr)
}

func pinnedResolver(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookup(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
