package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	systemTimeout = time.Second
	publicTimeout = 2 * time.Second
)

// Public resolvers raced when the system resolver fails. Hotel and campus
// networks that hijack DNS are the usual reason.
var publicDNS = []string{
	"1.1.1.1",
	"1.0.0.1",
	"[2606:4700:4700::1111]",
	"8.8.8.8",
	"8.8.4.4",
	"[2001:4860:4860::8888]",
	"9.9.9.9",
	"149.112.112.112",
	"208.67.222.222",
	"208.67.220.220",
}

// Lookup resolves host to a single address, preferring IPv4. IP literals are
// returned unchanged.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ip, err := systemLookup(ctx, host)
	if err == nil {
		return ip, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	zap.L().Debug("system dns failed, racing public resolvers",
		zap.String("host", host), zap.Error(err))
	return raceLookup(ctx, host, publicDNS)
}

// Dialer returns a dial function for websocket.Dialer.NetDialContext that
// resolves through Lookup.
func Dialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

func systemLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, systemTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pick(ips)
}

func raceLookup(ctx context.Context, host string, servers []string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	results := make(chan result, len(servers))
	for _, server := range servers {
		go func() {
			ip, err := lookupVia(ctx, host, server)
			results <- result{ip: ip, err: err}
		}()
	}

	failed := 0
	for range servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failed++
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public dns race timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, failed)
}

func lookupVia(ctx context.Context, host, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pick(ips)
}

func pick(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
