package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-conveyor/conveyor/pkg/api"
)

// EnsureURICompliance rewrites a connection string into the canonical
// mongodb form:
//
//   - a missing scheme becomes mongodb://
//   - a foreign scheme is folded into the compound form
//     ("srv://h" -> "mongodb+srv://h")
//   - an empty host defaults to localhost
func EnsureURICompliance(uri string) string {
	if uri == "" {
		uri = "mongodb://"
	}
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		uri = "mongodb://" + uri
	} else if !strings.HasPrefix(scheme, "mongodb") {
		uri = "mongodb+" + uri
	}
	if uri == "mongodb://" {
		uri += "localhost"
	}
	return uri
}

// ParseURI parses a connection string of the form
//
//	scheme://[user:pass@]host[,host...][/database][?options]
//
// into a Config. Seedlist URIs (mongodb+srv://) are resolved through the
// given resolver; a nil resolver selects the system DNS configuration.
// ctx bounds the DNS queries only.
func ParseURI(ctx context.Context, uri string, resolver Resolver) (Config, error) {
	uri = EnsureURICompliance(uri)

	scheme, rest, _ := strings.Cut(uri, "://")
	srv := scheme == "mongodb+srv"

	var cfg Config

	authority := rest
	var pathAndQuery string
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority = rest[:i]
		pathAndQuery = rest[i:]
	}

	if at := strings.LastIndex(authority, "@"); at >= 0 {
		userinfo := authority[:at]
		authority = authority[at+1:]

		user, pass, _ := strings.Cut(userinfo, ":")
		var err error
		if cfg.User, err = url.QueryUnescape(user); err != nil {
			return Config{}, fmt.Errorf("%w: invalid username in URI: %v", api.ErrNotConfigured, err)
		}
		if cfg.Password, err = url.QueryUnescape(pass); err != nil {
			return Config{}, fmt.Errorf("%w: invalid password in URI: %v", api.ErrNotConfigured, err)
		}
	}

	for _, h := range strings.Split(authority, ",") {
		if h == "" {
			continue
		}
		if !srv && !strings.Contains(h, ":") {
			h += ":" + DefaultPort
		}
		cfg.Hosts = append(cfg.Hosts, h)
	}
	if len(cfg.Hosts) == 0 {
		return Config{}, fmt.Errorf("%w: no host in URI %q", api.ErrNotConfigured, uri)
	}

	var query string
	switch {
	case strings.HasPrefix(pathAndQuery, "/"):
		db, q, _ := strings.Cut(pathAndQuery[1:], "?")
		query = q
		var err error
		if cfg.Database, err = url.QueryUnescape(db); err != nil {
			return Config{}, fmt.Errorf("%w: invalid database name in URI: %v", api.ErrNotConfigured, err)
		}
	case strings.HasPrefix(pathAndQuery, "?"):
		query = pathAndQuery[1:]
	}

	tlsSet, err := cfg.applyURIOptions(query)
	if err != nil {
		return Config{}, err
	}

	if srv {
		if err := resolveSeedlist(ctx, resolver, &cfg, tlsSet); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// applyURIOptions folds the query string into the Config. It reports
// whether the query carried an explicit ssl/tls flag, which matters for
// seedlist TLS defaulting.
func (c *Config) applyURIOptions(query string) (tlsSet bool, err error) {
	if query == "" {
		return false, nil
	}
	for _, pair := range strings.FieldsFunc(query, func(r rune) bool { return r == '&' || r == ';' }) {
		key, value, _ := strings.Cut(pair, "=")
		value, uerr := url.QueryUnescape(value)
		if uerr != nil {
			return tlsSet, fmt.Errorf("%w: invalid URI option %q: %v", api.ErrNotConfigured, pair, uerr)
		}

		// Option keys are case-insensitive.
		switch strings.ToLower(key) {
		case "replicaset":
			c.ReplicaSet = value
		case "authmechanism":
			c.AuthMechanism = value
		case "authsource":
			c.AuthSource = value
		case "ssl", "tls":
			b, perr := strconv.ParseBool(value)
			if perr != nil {
				return tlsSet, fmt.Errorf("%w: invalid %s value %q", api.ErrNotConfigured, key, value)
			}
			c.TLS = b
			tlsSet = true
		case "maxpoolsize":
			n, perr := strconv.ParseUint(value, 10, 64)
			if perr != nil {
				return tlsSet, fmt.Errorf("%w: invalid maxPoolSize value %q", api.ErrNotConfigured, value)
			}
			c.MaxPoolSize = n
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]string)
			}
			c.Extra[key] = value
		}
	}
	return tlsSet, nil
}

// maskPassword replaces the password component of a URI with "**".
func maskPassword(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}

	authority := rest
	var tail string
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority = rest[:i]
		tail = rest[i:]
	}

	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return uri
	}
	userinfo := authority[:at]

	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return uri
	}
	return scheme + "://" + user + ":**@" + authority[at+1:] + tail
}
