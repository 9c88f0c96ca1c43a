package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"

	apperrors "agentscan/pkg/errors"
)

// Resolver turns a domain name into a routable address.
type Resolver interface {
	Resolve(ctx context.Context, domain string) (string, error)
}

// Lookuper is the subset of *net.Resolver used by NetResolver.
type Lookuper interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NetResolver resolves through the system resolver and prefers IPv4.
type NetResolver struct {
	lookup Lookuper
}

func NewNetResolver() *NetResolver {
	return &NetResolver{lookup: net.DefaultResolver}
}

func NewNetResolverWith(l Lookuper) *NetResolver {
	return &NetResolver{lookup: l}
}

func (r *NetResolver) Resolve(ctx context.Context, domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", apperrors.NewResolutionError(domain, fmt.Errorf("empty domain"))
	}

	addrs, err := r.lookup.LookupIPAddr(ctx, domain)
	if err != nil {
		return "", apperrors.NewResolutionError(domain, err)
	}
	if len(addrs) == 0 {
		return "", apperrors.NewResolutionError(domain, fmt.Errorf("no addresses"))
	}

	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}

// StaticResolver answers from a fixed table.
type StaticResolver map[string]string

func (s StaticResolver) Resolve(_ context.Context, domain string) (string, error) {
	if ip, ok := s[domain]; ok && ip != "" {
		return ip, nil
	}
	return "", apperrors.NewResolutionError(domain, fmt.Errorf("no static entry"))
}
