package protect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var ErrSSRF = errors.New("ssrf protection")

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),    // localhost
	netip.MustParsePrefix("10.0.0.0/8"),     // private network
	netip.MustParsePrefix("172.16.0.0/12"),  // private network
	netip.MustParsePrefix("192.168.0.0/16"), // private network
	netip.MustParsePrefix("169.254.0.0/16"), // link-local
	netip.MustParsePrefix("100.64.0.0/10"),  // CGNAT
	netip.MustParsePrefix("::1/128"),        // IPv6 loopback
	netip.MustParsePrefix("fc00::/7"),       // IPv6 unique local
	netip.MustParsePrefix("fe80::/10"),      // IPv6 link-local
}

func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// DialContext возвращает функцию для http.Transport, которая резолвит хост
// сама и отказывается соединяться с приватными адресами.
func DialContext(dialer *net.Dialer, resolver Resolver) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		addr, err := resolve(ctx, resolver, addr)
		if err != nil {
			return nil, err
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

// resolve заменяет хост в addr на проверенный ip.
func resolve(ctx context.Context, resolver Resolver, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ips, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no IP addresses found for %s", host)
	}

	for _, ip := range ips {
		if IsPrivate(ip) {
			return "", fmt.Errorf("%w: private IP %s is not allowed", ErrSSRF, ip)
		}
	}

	return net.JoinHostPort(ips[0].Unmap().String(), port), nil
}
