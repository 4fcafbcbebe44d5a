package connector

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidDestination is returned for destinations that are neither [user@]host nor ssh://[user@]host[:port].
var ErrInvalidDestination = errors.New("invalid destination")

// Destination is a parsed ssh-style target. User and Port are zero when not given.
type Destination struct {
	User string
	Host string
	Port int
}

// ParseDestination parses `[user@]host` or `ssh://[user@]host[:port]`.
// The plain form carries no port, as with the ssh command line.
func ParseDestination(s string) (Destination, error) {
	if s == "" {
		return Destination{}, errors.Wrap(ErrInvalidDestination, "empty destination")
	}
	if strings.Contains(s, "://") {
		return parseURLDestination(s)
	}

	var d Destination
	host := s
	if i := strings.LastIndex(s, "@"); i >= 0 {
		d.User, host = s[:i], s[i+1:]
		if d.User == "" {
			return Destination{}, errors.Wrapf(ErrInvalidDestination, "empty user in %q", s)
		}
	}
	if host == "" || strings.ContainsAny(host, " /") {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "bad host in %q", s)
	}
	d.Host = host
	return d, nil
}

func parseURLDestination(s string) (Destination, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "%q: %v", s, err)
	}
	if u.Scheme != "ssh" {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "unsupported scheme %q", u.Scheme)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "unexpected path or query in %q", s)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "passwords are not accepted in %q", s)
	}

	d := Destination{Host: u.Hostname()}
	if d.Host == "" {
		return Destination{}, errors.Wrapf(ErrInvalidDestination, "missing host in %q", s)
	}
	if u.User != nil {
		d.User = u.User.Username()
		if d.User == "" {
			return Destination{}, errors.Wrapf(ErrInvalidDestination, "empty user in %q", s)
		}
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Destination{}, errors.Wrapf(ErrInvalidDestination, "invalid port %q", p)
		}
		d.Port = port
	}
	return d, nil
}

// String renders the destination in the form ParseDestination accepts.
func (d Destination) String() string {
	if d.Port == 0 {
		if d.User == "" {
			return d.Host
		}
		return d.User + "@" + d.Host
	}
	u := url.URL{Scheme: "ssh", Host: net.JoinHostPort(d.Host, strconv.Itoa(d.Port))}
	if d.User != "" {
		u.User = url.User(d.User)
	}
	return u.String()
}
