package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer ID tokens against an OIDC issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock trusts an X-Dev-User header (development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, mock)", v)
	}
}

// AuthConfig contains ID-token verification configuration.
//
// IssuerURL accepts any OIDC-discoverable issuer. Firebase-style tokens
// verify against https://securetoken.google.com/<project-id> with the
// project id as audience.
type AuthConfig struct {
	Mode      AuthMode `env:"MODE"       envDefault:"oidc"`
	IssuerURL string   `env:"ISSUER_URL"`
	Audience  string   `env:"AUDIENCE"`

	// ClientID/ClientSecret/RedirectURL power the optional auth-code login
	// flow; token verification alone only needs IssuerURL and Audience.
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/api/auth/callback"`
	Scope        string `env:"SCOPE"        envDefault:"openid profile email"`
}
