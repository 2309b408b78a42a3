// Package conn manages the single persistent Snowflake session shared by
// every tool call. The session is opened lazily on first use, verified with a
// roundtrip query, serialized behind a mutex, and reconnected transparently
// if Snowflake drops it.
package conn

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/sfmcp/snowflake-mcp/internal/auth"
)

// verifyQuery is an inexpensive roundtrip run once after connecting to prove
// the session is live before any tool call uses it.
const verifyQuery = "SELECT 'Snowflake MCP Server Connected'"

// autoConfigDSN is the driver's special DSN that makes it load the profile
// from connections.toml, selected by SNOWFLAKE_DEFAULT_CONNECTION_NAME.
const autoConfigDSN = "autoConfig"

// queryTag identifies sessions opened by this server in Snowflake's query
// history.
type queryTag struct {
	Origin  string     `json:"origin"`
	Name    string     `json:"name"`
	Version tagVersion `json:"version"`
}

type tagVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Options configure a Manager.
type Options struct {
	Params auth.Params
	Env    auth.Environment
	Logger zerolog.Logger
	// LoginTimeout bounds the initial handshake. Zero means the driver
	// default.
	LoginTimeout time.Duration
	// Opener overrides how the pool is opened. Nil means the Snowflake
	// driver; tests substitute an in-memory driver here.
	Opener func(dsn string) (*sql.DB, error)
}

// Manager owns the persistent session. All access goes through WithConn,
// which holds the lock for the duration of the callback so concurrent tool
// calls execute one at a time on the shared session.
type Manager struct {
	mu     sync.Mutex
	opts   Options
	logger zerolog.Logger
	db     *sql.DB
	sess   *sql.Conn
	// tagSession is set in named-connection mode, where the query tag cannot
	// ride the DSN and must be applied to each new session.
	tagSession bool
}

// NewManager returns a Manager that connects on first use.
func NewManager(opts Options) *Manager {
	if opts.Env == nil {
		opts.Env = auth.SystemEnvironment()
	}
	if opts.Opener == nil {
		opts.Opener = func(dsn string) (*sql.DB, error) {
			return sql.Open("snowflake", dsn)
		}
	}
	return &Manager{opts: opts, logger: opts.Logger}
}

// WithConn runs fn against the live session, connecting first if needed. The
// session lock is held until fn returns, so fn must not call back into the
// Manager.
func (m *Manager) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLocked(ctx); err != nil {
		return err
	}
	err := fn(ctx, m.sess)
	if err != nil && isSessionGone(err) {
		// The warehouse closed the session underneath us. Drop it so the
		// next call reconnects.
		m.logger.Warn().Err(err).Msg("session lost, will reconnect on next call")
		m.discardLocked()
	}
	return err
}

// Verify connects if needed and runs the verification roundtrip.
func (m *Manager) Verify(ctx context.Context) error {
	return m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var greeting string
		if err := conn.QueryRowContext(ctx, verifyQuery).Scan(&greeting); err != nil {
			return fmt.Errorf("verification query failed: %w", err)
		}
		return nil
	})
}

// Cleanup closes the session and the pool. Close failures are logged, not
// returned; there is nothing a caller can do about them at shutdown.
func (m *Manager) Cleanup(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		if err := m.sess.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("error closing session")
		}
		m.sess = nil
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("error closing connection pool")
		}
		m.db = nil
	}
}

// Connected reports whether a session is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

func (m *Manager) ensureLocked(ctx context.Context) error {
	if m.sess != nil {
		return nil
	}
	if m.db == nil {
		mode, prepared, err := auth.Resolve(m.opts.Params, m.opts.Env)
		if err != nil {
			return fmt.Errorf("failed to resolve authentication: %w", err)
		}
		dsn, err := buildDSN(mode, prepared, m.opts.LoginTimeout)
		if err != nil {
			return err
		}
		db, err := m.opts.Opener(dsn)
		if err != nil {
			return fmt.Errorf("failed to open connection pool: %w", err)
		}
		// One physical connection, held forever: the pool exists only to
		// give us driver plumbing and reconnects.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		m.db = db
		m.tagSession = mode == auth.ModeNamedConnection
		m.logger.Info().Str("auth_mode", mode.String()).Msg("connecting to Snowflake")
	}
	sess, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Snowflake: %w", err)
	}
	var greeting string
	if err := sess.QueryRowContext(ctx, verifyQuery).Scan(&greeting); err != nil {
		if cerr := sess.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Msg("error closing unverified session")
		}
		return fmt.Errorf("connection verification failed: %w", err)
	}
	if m.tagSession {
		if _, err := sess.ExecContext(ctx, "ALTER SESSION SET QUERY_TAG = '"+sessionQueryTag()+"'"); err != nil {
			if cerr := sess.Close(); cerr != nil {
				m.logger.Warn().Err(cerr).Msg("error closing untagged session")
			}
			return fmt.Errorf("failed to set session query tag: %w", err)
		}
	}
	m.sess = sess
	m.logger.Info().Msg(greeting)
	return nil
}

func (m *Manager) discardLocked() {
	if m.sess != nil {
		if err := m.sess.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("error discarding dead session")
		}
		m.sess = nil
	}
}

// isSessionGone recognizes driver errors that mean the session itself is
// unusable, as opposed to a statement-level failure.
func isSessionGone(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se *sf.SnowflakeError
	if errors.As(err, &se) {
		// 390111: session no longer exists; 390114: session token expired.
		return se.Number == 390111 || se.Number == 390114
	}
	return false
}

// buildDSN turns resolved parameters into a driver DSN. In named-connection
// mode the driver loads connections.toml itself: the special autoConfig DSN
// routes to its profile loader. Keep-alive and timeouts come from the profile
// in that mode, and the query tag is applied to the session after connecting.
func buildDSN(mode auth.Mode, p auth.Params, loginTimeout time.Duration) (string, error) {
	if mode == auth.ModeNamedConnection {
		return autoConfigDSN, nil
	}
	cfg, err := buildConfig(p)
	if err != nil {
		return "", err
	}

	cfg.KeepSessionAlive = true
	if loginTimeout > 0 {
		cfg.LoginTimeout = loginTimeout
	}
	if cfg.Params == nil {
		cfg.Params = map[string]*string{}
	}
	if _, ok := cfg.Params["QUERY_TAG"]; !ok {
		tag := sessionQueryTag()
		cfg.Params["QUERY_TAG"] = &tag
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to build DSN: %w", err)
	}
	return dsn, nil
}

func buildConfig(p auth.Params) (*sf.Config, error) {
	cfg := &sf.Config{
		Account:   p.Account,
		User:      p.User,
		Password:  p.Password,
		Host:      p.Host,
		Role:      p.Role,
		Warehouse: p.Warehouse,
		Database:  p.Database,
		Schema:    p.Schema,
		Passcode:  p.Passcode,
		Token:     p.Token,
	}
	if p.PasscodeInPassword {
		cfg.PasscodeInPassword = true
	}

	switch a := strings.ToLower(p.Authenticator); a {
	case "", "snowflake":
		cfg.Authenticator = sf.AuthTypeSnowflake
	case "oauth":
		cfg.Authenticator = sf.AuthTypeOAuth
	case "externalbrowser":
		cfg.Authenticator = sf.AuthTypeExternalBrowser
	case "username_password_mfa":
		cfg.Authenticator = sf.AuthTypeUsernamePasswordMFA
	default:
		if strings.HasPrefix(a, "https://") || strings.HasPrefix(a, "http://") {
			u, err := url.Parse(p.Authenticator)
			if err != nil {
				return nil, fmt.Errorf("invalid identity provider URL: %w", err)
			}
			cfg.Authenticator = sf.AuthTypeOkta
			cfg.OktaURL = u
		} else {
			return nil, fmt.Errorf("unsupported authenticator %q", p.Authenticator)
		}
	}

	if p.PrivateKey != "" || p.PrivateKeyFile != "" {
		key, err := loadPrivateKey(p)
		if err != nil {
			return nil, err
		}
		cfg.PrivateKey = key
		cfg.Authenticator = sf.AuthTypeJwt
	}
	return cfg, nil
}

// loadPrivateKey reads and parses the RSA key for key-pair authentication.
// Only unencrypted PKCS#8 is supported; an encrypted key must be decrypted
// out of band first.
func loadPrivateKey(p auth.Params) (*rsa.PrivateKey, error) {
	pemData := []byte(p.PrivateKey)
	if p.PrivateKeyFile != "" {
		data, err := os.ReadFile(p.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		pemData = data
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}
	if p.PrivateKeyPwd != "" {
		return nil, fmt.Errorf("encrypted private keys are not supported; decrypt the key first")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not an RSA key")
	}
	return key, nil
}

func sessionQueryTag() string {
	data, err := json.Marshal(queryTag{
		Origin:  "sf_sit",
		Name:    "snowflake-mcp",
		Version: tagVersion{Major: 1, Minor: 0},
	})
	if err != nil {
		// The tag is a fixed struct; marshaling cannot fail.
		panic(err)
	}
	return string(data)
}
