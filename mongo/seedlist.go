package mongo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/go-conveyor/conveyor/pkg/api"
)

// srvService is the DNS service label of the seedlist convention:
// SRV records live under _mongodb._tcp.<seed host>.
const srvService = "_mongodb._tcp."

// SRVRecord is one resolved seedlist member.
type SRVRecord struct {
	Target string
	Port   uint16
}

// Resolver answers the DNS queries needed to expand a seedlist URI.
// Implementations receive fully qualified query names.
type Resolver interface {
	LookupSRV(ctx context.Context, name string) ([]SRVRecord, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SystemResolver resolves through the nameservers of the host system
// using github.com/miekg/dns.
type SystemResolver struct {
	// Config overrides the resolver configuration; nil reads
	// /etc/resolv.conf.
	Config *dns.ClientConfig

	// Client overrides the DNS client; nil uses a default UDP client.
	Client *dns.Client
}

func (r *SystemResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	cfg := r.Config
	if cfg == nil {
		var err error
		cfg, err = dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("reading resolver config: %w", err)
		}
	}
	client := r.Client
	if client == nil {
		client = new(dns.Client)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range cfg.Servers {
		in, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(server, cfg.Port))
		if err != nil {
			lastErr = err
			continue
		}
		return in, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers configured")
	}
	return nil, lastErr
}

func (r *SystemResolver) LookupSRV(ctx context.Context, name string) ([]SRVRecord, error) {
	in, err := r.exchange(ctx, name, dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	var records []SRVRecord
	for _, rr := range in.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			records = append(records, SRVRecord{
				Target: strings.TrimSuffix(srv.Target, "."),
				Port:   srv.Port,
			})
		}
	}
	return records, nil
}

func (r *SystemResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	in, err := r.exchange(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// resolveSeedlist expands a seedlist Config in place: the single seed host
// is replaced by the SRV member list, and TXT connection options fill any
// field the URI query left unset. Seedlist URIs imply TLS unless the query
// or a TXT option explicitly disabled it.
func resolveSeedlist(ctx context.Context, resolver Resolver, cfg *Config, tlsSet bool) error {
	if resolver == nil {
		resolver = &SystemResolver{}
	}
	if len(cfg.Hosts) != 1 {
		return fmt.Errorf("%w: seedlist URI must name exactly one host, got %d", api.ErrNotConfigured, len(cfg.Hosts))
	}
	seed := cfg.Hosts[0]
	if strings.Contains(seed, ":") {
		return fmt.Errorf("%w: seedlist URI host %q must not carry a port", api.ErrNotConfigured, seed)
	}

	records, err := resolver.LookupSRV(ctx, srvService+seed)
	if err != nil {
		return fmt.Errorf("resolving seedlist %q: %w", seed, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: seedlist %q resolved to no hosts", api.ErrNotConfigured, seed)
	}

	hosts := make([]string, 0, len(records))
	for _, rec := range records {
		hosts = append(hosts, fmt.Sprintf("%s:%d", rec.Target, rec.Port))
	}
	cfg.Hosts = hosts

	// TXT records carry default connection options; explicit URI options
	// take precedence.
	txt, err := resolver.LookupTXT(ctx, seed)
	if err != nil {
		return fmt.Errorf("resolving seedlist options for %q: %w", seed, err)
	}
	tlsFromTXT := false
	for _, rec := range txt {
		for _, pair := range strings.FieldsFunc(rec, func(r rune) bool { return r == '&' || r == ';' }) {
			key, value, _ := strings.Cut(pair, "=")
			switch strings.ToLower(key) {
			case "replicaset":
				if cfg.ReplicaSet == "" {
					cfg.ReplicaSet = value
				}
			case "authsource":
				if cfg.AuthSource == "" {
					cfg.AuthSource = value
				}
			case "ssl", "tls":
				if tlsSet || tlsFromTXT {
					continue
				}
				on, perr := strconv.ParseBool(value)
				if perr != nil {
					return fmt.Errorf("%w: invalid %s value %q in TXT record", api.ErrNotConfigured, key, value)
				}
				cfg.TLS = on
				tlsFromTXT = true
			}
		}
	}

	// Seedlist URIs imply TLS unless a URI or TXT option said otherwise.
	if !tlsSet && !tlsFromTXT {
		cfg.TLS = true
	}
	return nil
}
