package webhook

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Mode selects the validation rule set. It is explicit configuration rather
// than ambient environment state so the validator stays a pure function of
// its inputs.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// blockedPorts are infrastructure service ports that webhook endpoints may
// never target, regardless of mode. Keeps the pipeline from being abused as
// an internal port scanner.
var blockedPorts = map[string]struct{}{
	"22":    {}, // ssh
	"25":    {}, // smtp
	"3306":  {}, // mysql
	"5432":  {}, // postgres
	"6379":  {}, // redis
	"27017": {}, // mongodb
}

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// Validator checks endpoint URLs before any network call is attempted.
// The zero value validates with development rules.
type Validator struct {
	Mode Mode
}

// Validate reports the first violated rule as an error, or nil when the URL
// is an acceptable webhook endpoint. Production mode additionally requires
// https and rejects loopback and private-network hosts.
func (v Validator) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%w: must be an absolute URL", ErrInvalidURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: got %q", ErrSchemeNotAllowed, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	if v.Mode == ModeProduction {
		if scheme != "https" {
			return ErrHTTPSRequired
		}
		host := strings.ToLower(u.Hostname())
		if host == "localhost" {
			return fmt.Errorf("%w: loopback host %q", ErrHostNotAllowed, host)
		}
		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() {
				return fmt.Errorf("%w: loopback address %s", ErrHostNotAllowed, addr)
			}
			for _, p := range privateRanges {
				if p.Contains(addr) {
					return fmt.Errorf("%w: private address %s", ErrHostNotAllowed, addr)
				}
			}
		}
	}

	if port := u.Port(); port != "" {
		if _, blocked := blockedPorts[port]; blocked {
			return fmt.Errorf("%w: port %s", ErrPortNotAllowed, port)
		}
	}

	return nil
}
