// Package auth supplies credentials in response to authentication
// challenges. The client consults an [Authenticator] only after a 401,
// never preemptively.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredentials is returned by [Basic] for empty credentials.
var ErrNoCredentials = errors.New("no credentials")

// Challenge describes a WWW-Authenticate challenge from host.
type Challenge struct {
	Scheme string
	Realm  string
	Host   string
}

// Credentials are produced on demand for a single challenge.
type Credentials struct {
	Username string
	Secret   []byte
}

// Authenticator yields credentials for a challenge, reporting false when it
// has none to offer.
type Authenticator interface {
	Challenge(ctx context.Context, ch Challenge) (Credentials, bool)
}

// Func adapts a function to an Authenticator.
type Func func(ctx context.Context, ch Challenge) (Credentials, bool)

func (f Func) Challenge(ctx context.Context, ch Challenge) (Credentials, bool) {
	return f(ctx, ch)
}

// Static returns an Authenticator answering every challenge with the same
// username and password.
func Static(username, password string) Authenticator {
	return Func(func(context.Context, Challenge) (Credentials, bool) {
		return Credentials{Username: username, Secret: []byte(password)}, true
	})
}

// Basic renders creds as an Authorization header value.
func Basic(creds Credentials) (string, error) {
	if creds.Username == "" && len(creds.Secret) == 0 {
		return "", ErrNoCredentials
	}

	raw := make([]byte, 0, len(creds.Username)+1+len(creds.Secret))
	raw = append(raw, creds.Username...)
	raw = append(raw, ':')
	raw = append(raw, creds.Secret...)

	return "Basic " + base64.StdEncoding.EncodeToString(raw), nil
}

// ParseChallenges reads the challenges in the WWW-Authenticate headers of
// h. Auth parameters other than realm are ignored.
//
//	WWW-Authenticate: Basic realm="Fake Realm", Bearer realm="api"
func ParseChallenges(h http.Header, host string) []Challenge {
	var out []Challenge

	for _, v := range h.Values("WWW-Authenticate") {
		for _, part := range splitQuoted(v) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			scheme, rest, hasParams := strings.Cut(part, " ")
			if !hasParams && strings.Contains(scheme, "=") {
				// Continuation of the previous challenge's params.
				if len(out) > 0 {
					applyParam(&out[len(out)-1], scheme)
				}
				continue
			}

			ch := Challenge{Scheme: scheme, Host: host}
			if hasParams {
				applyParam(&ch, strings.TrimSpace(rest))
			}
			out = append(out, ch)
		}
	}

	return out
}

func applyParam(ch *Challenge, param string) {
	k, v, ok := strings.Cut(param, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(k), "realm") {
		return
	}

	ch.Realm = strings.Trim(strings.TrimSpace(v), `"`)
}

// splitQuoted splits s on commas outside of double quotes.
func splitQuoted(s string) []string {
	var (
		parts  []string
		quoted bool
		start  int
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	return append(parts, s[start:])
}
