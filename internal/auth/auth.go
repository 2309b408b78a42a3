// Package auth resolves which Snowflake authentication strategy a set of
// connection parameters selects, and prepares the parameters for the driver:
// stripping fields the chosen flow must not see, reinterpreting the password
// as an OAuth token where the flow expects one, and falling back to a named
// connection profile when nothing was supplied at all.
//
// Resolution is a pure function of the parameters and an injected
// Environment, so the whole decision table is testable without a warehouse.
package auth

import (
	"fmt"
	"os"
	"strings"
)

// Mode is the closed set of authentication strategies.
type Mode int

const (
	// ModeSPCSOAuth: running inside Snowpark Container Services; the
	// platform supplies an ambient OAuth token.
	ModeSPCSOAuth Mode = iota
	// ModeExternalBrowser: browser-based SSO.
	ModeExternalBrowser
	// ModeOAuth: explicit OAuth token.
	ModeOAuth
	// ModeKeyPair: RSA key-pair (JWT) authentication.
	ModeKeyPair
	// ModeUsernamePassword: plain username/password.
	ModeUsernamePassword
	// ModeUsernamePasswordMFA: username/password plus a Duo passcode.
	ModeUsernamePasswordMFA
	// ModeOkta: native Okta redirect via an identity-provider URL.
	ModeOkta
	// ModeNamedConnection: a pre-configured profile from connections.toml.
	ModeNamedConnection
	// ModeCustom: an authenticator string this table does not recognize;
	// parameters pass through unmodified.
	ModeCustom
)

func (m Mode) String() string {
	switch m {
	case ModeSPCSOAuth:
		return "spcs_oauth"
	case ModeExternalBrowser:
		return "externalbrowser"
	case ModeOAuth:
		return "oauth"
	case ModeKeyPair:
		return "key_pair"
	case ModeUsernamePassword:
		return "username_password"
	case ModeUsernamePasswordMFA:
		return "username_password_mfa"
	case ModeOkta:
		return "okta"
	case ModeNamedConnection:
		return "named_connection"
	case ModeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Params are the raw connection parameters gathered from flags and
// environment variables. Empty strings mean "not supplied"; empty fields are
// never handed to the driver.
type Params struct {
	Account            string
	Host               string
	User               string
	Password           string
	Token              string
	Role               string
	Warehouse          string
	Database           string
	Schema             string
	Passcode           string
	PasscodeInPassword bool
	PrivateKey         string // PEM-encoded key material
	PrivateKeyFile     string
	PrivateKeyPwd      string
	Authenticator      string
	ConnectionName     string
}

// Empty reports whether no connection parameter at all was supplied.
func (p Params) Empty() bool {
	return p == Params{}
}

// hasPrivateKey reports whether key material was supplied in any form.
func (p Params) hasPrivateKey() bool {
	return p.PrivateKey != "" || p.PrivateKeyFile != ""
}

// stripPrivateKey removes all key-pair fields.
func (p *Params) stripPrivateKey() {
	p.PrivateKey = ""
	p.PrivateKeyFile = ""
	p.PrivateKeyPwd = ""
}

// Environment abstracts what Resolve reads from the process environment:
// container detection, the platform token, and environment variables.
type Environment interface {
	// InContainer reports whether the process runs inside the managed
	// container platform (SPCS).
	InContainer() bool
	// ContainerToken returns the platform-supplied OAuth token.
	ContainerToken() (string, error)
	// Getenv looks up an environment variable.
	Getenv(key string) string
}

// spcsTokenPath is where SPCS mounts the session token inside a container.
const spcsTokenPath = "/snowflake/session/token"

type systemEnv struct {
	tokenPath string
}

// SystemEnvironment returns the real process environment.
func SystemEnvironment() Environment {
	return systemEnv{tokenPath: spcsTokenPath}
}

func (e systemEnv) InContainer() bool {
	info, err := os.Stat(e.tokenPath)
	return err == nil && info.Mode().IsRegular()
}

func (e systemEnv) ContainerToken() (string, error) {
	data, err := os.ReadFile(e.tokenPath)
	if err != nil {
		return "", fmt.Errorf("failed to read container token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (e systemEnv) Getenv(key string) string { return os.Getenv(key) }

// ssoRedirectSuffixes marks authenticator URLs recognized as
// identity-provider redirects.
var ssoRedirectSuffixes = []string{".okta.com", ".okta.com/"}

// Resolve selects the authentication mode for p and returns the prepared
// parameters. Evaluated once per connection attempt, in order:
//
//  1. Inside SPCS: discard all explicit credentials; host/account come from
//     the environment, the token from the platform, authenticator is OAuth.
//  2. Otherwise inspect the authenticator field (see the Mode table).
//  3. An empty prepared set falls back to a named connection profile
//     (SNOWFLAKE_DEFAULT_CONNECTION_NAME, default "default").
//
// The only error path is a failed container token read.
func Resolve(p Params, env Environment) (Mode, Params, error) {
	if env.InContainer() {
		token, err := env.ContainerToken()
		if err != nil {
			return ModeSPCSOAuth, Params{}, err
		}
		return ModeSPCSOAuth, Params{
			Host:          env.Getenv("SNOWFLAKE_HOST"),
			Account:       env.Getenv("SNOWFLAKE_ACCOUNT"),
			Token:         token,
			Authenticator: "oauth",
		}, nil
	}

	mode := ModeUsernamePassword
	switch a := strings.ToLower(p.Authenticator); {
	case a == "externalbrowser":
		// The browser flow needs neither a password nor a key.
		p.Password = ""
		p.stripPrivateKey()
		mode = ModeExternalBrowser

	case a == "oauth":
		// A password supplied without an explicit token is the token.
		if p.Password != "" && p.Token == "" {
			p.Token = p.Password
		}
		p.Password = ""
		p.stripPrivateKey()
		mode = ModeOAuth

	case (a == "" || a == "snowflake") && p.hasPrivateKey():
		p.Password = ""
		p.Authenticator = "snowflake"
		mode = ModeKeyPair

	case a == "username_password_mfa":
		// Password plus one-time passcode; keep everything.
		mode = ModeUsernamePasswordMFA

	case isSSORedirectURL(a):
		// Okta-style redirect: password goes to the IdP, keys do not.
		p.stripPrivateKey()
		mode = ModeOkta

	case a == "" || a == "snowflake":
		mode = ModeUsernamePassword

	default:
		// Unrecognized authenticator: pass through unmodified.
		mode = ModeCustom
	}

	if p.Empty() || (p == Params{ConnectionName: p.ConnectionName}) {
		name := p.ConnectionName
		if name == "" {
			name = env.Getenv("SNOWFLAKE_DEFAULT_CONNECTION_NAME")
		}
		if name == "" {
			name = "default"
		}
		return ModeNamedConnection, Params{ConnectionName: name}, nil
	}

	return mode, p, nil
}

// isSSORedirectURL reports whether the authenticator value is an
// identity-provider redirect URL rather than a named method.
func isSSORedirectURL(a string) bool {
	if !strings.HasPrefix(a, "https://") && !strings.HasPrefix(a, "http://") {
		return false
	}
	host := strings.TrimPrefix(strings.TrimPrefix(a, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")
	for _, suffix := range ssoRedirectSuffixes {
		if strings.HasSuffix(host, strings.TrimSuffix(suffix, "/")) {
			return true
		}
	}
	return false
}
