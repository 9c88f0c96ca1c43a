package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	apperrors "agentscan/pkg/errors"

	"github.com/miekg/dns"
)

const defaultDNSTimeout = 5 * time.Second

// DNSResolver asks one nameserver directly instead of going through the
// system resolver. A records win over AAAA.
type DNSResolver struct {
	client     *dns.Client
	nameserver string
}

// NewDNSResolver accepts "host" or "host:port"; port 53 is assumed.
func NewDNSResolver(nameserver string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	return &DNSResolver{
		client:     &dns.Client{Net: "udp", Timeout: timeout},
		nameserver: nameserver,
	}
}

func (r *DNSResolver) Resolve(ctx context.Context, domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", apperrors.NewResolutionError(domain, fmt.Errorf("empty domain"))
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ip, err := r.query(ctx, domain, qtype)
		if err != nil {
			return "", apperrors.NewResolutionError(domain, err)
		}
		if ip != "" {
			return ip, nil
		}
	}
	return "", apperrors.NewResolutionError(domain, fmt.Errorf("no addresses"))
}

func (r *DNSResolver) query(ctx context.Context, domain string, qtype uint16) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", r.nameserver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("%s lookup via %s: %s", dns.TypeToString[qtype], r.nameserver, dns.RcodeToString[resp.Rcode])
	}

	// CNAME chains come back in the same answer section
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			return rec.A.String(), nil
		case *dns.AAAA:
			return rec.AAAA.String(), nil
		}
	}
	return "", nil
}
