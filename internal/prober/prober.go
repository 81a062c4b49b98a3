// Package prober issues reverse-IP DNSBL queries and classifies the
// result. Grounded on other_examples' nawala-checker, which solves the
// same reverse-query-and-classify problem against a different
// blocklist family using github.com/miekg/dns; this package trades its
// retry/cache machinery (that belongs one layer up, in the worker pool)
// for a single stateless probe per call, which only moves on to the next
// configured resolver when a query fails at the transport level.
package prober

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Result is the terminal classification of a single probe.
type Result string

const (
	NotListed     Result = "not_listed"
	Listed        Result = "listed"
	TimedOut      Result = "timed_out"
	NoAnswer      Result = "no_answer"
	NoNameservers Result = "no_nameservers"
	DNSError      Result = "dns_error"
	InvalidIP     Result = "invalid_ip"
	Exception     Result = "exception"
)

// Outcome is what the Prober returns for one (ip, zone) pair.
type Outcome struct {
	Result    Result
	Details   string
	LatencyMS int64
}

const (
	perAttemptTimeout = 5 * time.Second
	overallDeadline   = 5 * time.Second
)

// Prober is stateless and safe for unbounded concurrent use; callers
// are responsible for bounding concurrent DNS load (the worker pool
// does this via its N-worker cap and optional rate limiter).
type Prober struct {
	client  *dns.Client
	servers []string
}

// New builds a Prober that queries the given recursive resolvers in
// order, trying the next on a transport-level failure. resolvers must
// be non-empty "host:port" addresses; when none are given the system
// resolver's configured servers are read from /etc/resolv.conf.
func New(resolvers ...string) (*Prober, error) {
	p := &Prober{
		client: &dns.Client{
			Net:     "udp",
			Timeout: perAttemptTimeout,
		},
		servers: resolvers,
	}
	if len(p.servers) == 0 {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || cfg == nil || len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("no DNS resolvers configured and /etc/resolv.conf unreadable: %w", err)
		}
		for _, s := range cfg.Servers {
			p.servers = append(p.servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return p, nil
}

// Probe queries dnsSuffix for the reverse-octet name of ip and
// classifies the response. It performs no retries; retry policy
// belongs to the caller.
func (p *Prober) Probe(ctx context.Context, ip, dnsSuffix string) Outcome {
	start := time.Now()
	outcome := func(r Result, details string) Outcome {
		return Outcome{Result: r, Details: details, LatencyMS: time.Since(start).Milliseconds()}
	}

	qname, err := reverseQueryName(ip, dnsSuffix)
	if err != nil {
		return outcome(InvalidIP, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	aResp, err := p.query(ctx, qname, dns.TypeA)
	if err != nil {
		return outcome(classifyError(err), err.Error())
	}

	switch aResp.Rcode {
	case dns.RcodeNameError:
		return outcome(NotListed, "")
	case dns.RcodeSuccess:
		if len(aResp.Answer) == 0 {
			return outcome(NoAnswer, "")
		}
		details := ""
		if txtResp, err := p.query(ctx, qname, dns.TypeTXT); err == nil {
			for _, rr := range txtResp.Answer {
				if txt, ok := rr.(*dns.TXT); ok && len(txt.Txt) > 0 {
					details = strings.Join(txt.Txt, " ")
					break
				}
			}
		}
		return outcome(Listed, details)
	case dns.RcodeServerFailure:
		return outcome(NoNameservers, aResp.Rcode.String())
	default:
		return outcome(DNSError, fmt.Sprintf("rcode %s", dns.RcodeToString[aResp.Rcode]))
	}
}

func (p *Prober) query(ctx context.Context, qname string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(qname, qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range p.servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, _, err := p.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no usable DNS servers")
	}
	return nil, lastErr
}

func classifyError(err error) Result {
	if err == nil {
		return Exception
	}
	var netErr net.Error
	if e, ok := err.(net.Error); ok {
		netErr = e
	}
	if netErr != nil && netErr.Timeout() {
		return TimedOut
	}
	if err == context.DeadlineExceeded {
		return TimedOut
	}
	return DNSError
}

// reverseQueryName validates ip as IPv4 and builds the reverse-octet
// query name under zone, e.g. 1.2.3.4 + zen.example -> 4.3.2.1.zen.example.
func reverseQueryName(ip, zone string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %q", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return "", fmt.Errorf("not an IPv4 address: %q", ip)
	}
	zone = strings.TrimSuffix(zone, ".")
	return fmt.Sprintf("%d.%d.%d.%d.%s.", v4[3], v4[2], v4[1], v4[0], zone), nil
}
