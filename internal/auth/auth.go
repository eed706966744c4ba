// Package auth implements the Bearer-token challenge/response state
// machine: parsing a WWW-Authenticate header, building the token-service
// URL it names, and validating the token-service response.
package auth

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ocidist/regclient/internal/regerr"
)

// TokenAuth is the decoded response from a token service.
type TokenAuth struct {
	Token        string  `json:"token"`
	ExpiresIn    *int    `json:"expires_in,omitempty"`
	IssuedAt     *string `json:"issued_at,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// Challenge is a parsed WWW-Authenticate: Bearer header.
type Challenge struct {
	Realm   string
	Service string
}

// challengePairPattern matches key="value" pairs inside a Bearer challenge,
// tolerating arbitrary whitespace around commas.
var challengePairPattern = regexp.MustCompile(`([a-z]+)="([^"]*)"`)

// ParseBearerChallenge parses the value of a WWW-Authenticate header whose
// scheme is Bearer. The leading "Bearer " literal must already be stripped
// by the caller; ParseChallenge below does that for the full header.
// realm is required; service is optional; scope is recognized but
// intentionally ignored, since the caller's own requested scopes take
// precedence over whatever the challenge suggests. Unknown keys are
// tolerated, not rejected, so unfamiliar registries don't break parsing.
func ParseBearerChallenge(value string) (Challenge, error) {
	var c Challenge
	for _, m := range challengePairPattern.FindAllStringSubmatch(value, -1) {
		key, val := m[1], m[2]
		switch key {
		case "realm":
			c.Realm = val
		case "service":
			c.Service = val
		case "scope":
			// ignored: caller-supplied scopes win.
		}
	}
	if c.Realm == "" {
		return Challenge{}, fmt.Errorf("%w: challenge missing realm", regerr.ErrProtocol)
	}
	return c, nil
}

// ParseChallenge parses a full WWW-Authenticate header value, validating
// that its scheme is Bearer before delegating to ParseBearerChallenge.
func ParseChallenge(header string) (Challenge, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Challenge{}, fmt.Errorf("%w: unsupported challenge scheme in %q", regerr.ErrUnsupportedChallenge, header)
	}
	return ParseBearerChallenge(strings.TrimPrefix(header, prefix))
}

// TokenURL builds the token-exchange URL: realm, plus "?service=..." when
// service is non-empty, plus one "&scope=..." (or the leading "?scope=..."
// when there is no service) per caller-requested scope.
func TokenURL(realm, service string, scopes []string) (string, error) {
	if realm == "" {
		return "", fmt.Errorf("%w: empty realm", regerr.ErrConfiguration)
	}
	u, err := url.Parse(realm)
	if err != nil {
		return "", fmt.Errorf("%w: invalid realm %q: %v", regerr.ErrConfiguration, realm, err)
	}

	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(realm)

	if service != "" {
		b.WriteString(sep)
		b.WriteString("service=")
		b.WriteString(url.QueryEscape(service))
		sep = "&"
	}

	for _, s := range scopes {
		b.WriteString(sep)
		b.WriteString("scope=")
		b.WriteString(url.QueryEscape(s))
		sep = "&"
	}

	return b.String(), nil
}

// Validate rejects the sentinel empty or "unauthenticated" token values
// that indicate anonymous-only access was granted when authenticated
// access was required.
func Validate(t TokenAuth) (TokenAuth, error) {
	if t.Token == "" {
		return TokenAuth{}, fmt.Errorf("%w: received an empty token", regerr.ErrAuthentication)
	}
	if t.Token == "unauthenticated" {
		return TokenAuth{}, fmt.Errorf("%w: received token with value %q", regerr.ErrAuthentication, t.Token)
	}
	return t, nil
}

// MaskToken replaces every rune of token except the first and last with
// "*", for safe inclusion in log lines. Tokens of length 0, 1 or 2 are
// returned unchanged (there is nothing but first/last to preserve).
func MaskToken(token string) string {
	runes := []rune(token)
	n := len(runes)
	if n <= 2 {
		return token
	}
	masked := make([]rune, n)
	masked[0] = runes[0]
	masked[n-1] = runes[n-1]
	for i := 1; i < n-1; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
