package sfmcp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sfmcp/snowflake-mcp/internal/auth"
)

// fakeResult is a scripted result set. err fails the query outright; rowErr
// surfaces after the scripted rows are drained, as a fetch failure would.
type fakeResult struct {
	columns []string
	rows    [][]driver.Value
	err     error
	rowErr  error
}

// fakeDriver answers queries from a script and records every statement it
// sees.
type fakeDriver struct {
	mu         sync.Mutex
	statements []string
	results    map[string]fakeResult
	lastRows   *fakeDriverRows
}

func (d *fakeDriver) Connect(ctx context.Context) (driver.Conn, error) {
	return &fakeDriverConn{drv: d}, nil
}

func (d *fakeDriver) Driver() driver.Driver { return nil }

func (d *fakeDriver) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.statements...)
}

type fakeDriverConn struct {
	drv *fakeDriver
}

func (c *fakeDriverConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeDriverConn) Close() error { return nil }

func (c *fakeDriverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fakeDriverConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	c.drv.statements = append(c.drv.statements, query)

	result, scripted := c.drv.results[query]
	if scripted && result.err != nil {
		return nil, result.err
	}
	rows := &fakeDriverRows{cols: []string{"status"}, rows: [][]driver.Value{{"ok"}}}
	if scripted {
		rows = &fakeDriverRows{cols: result.columns, rows: result.rows, rowErr: result.rowErr}
	}
	c.drv.lastRows = rows
	return rows, nil
}

// lastRowsCloses reports how many times the most recent cursor was closed.
func (d *fakeDriver) lastRowsCloses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastRows == nil {
		return 0
	}
	return d.lastRows.closes
}

type fakeDriverRows struct {
	cols   []string
	rows   [][]driver.Value
	pos    int
	rowErr error
	closes int
}

func (r *fakeDriverRows) Columns() []string { return r.cols }

func (r *fakeDriverRows) Close() error {
	r.closes++
	return nil
}

func (r *fakeDriverRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		if r.rowErr != nil {
			return r.rowErr
		}
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// staticEnv keeps auth resolution away from the real process environment.
type staticEnv struct{}

func (staticEnv) InContainer() bool               { return false }
func (staticEnv) ContainerToken() (string, error) { return "", errors.New("no token") }
func (staticEnv) Getenv(string) string            { return "" }

// newTestEngine builds an engine backed by the fake driver.
func newTestEngine(t *testing.T, config Config, drv *fakeDriver) *SnowflakeMcp {
	t.Helper()
	engine, err := New(context.Background(), auth.Params{Account: "acct", User: "u", Password: "p"},
		config, zerolog.Nop(),
		WithEnvironment(staticEnv{}),
		withOpener(func(dsn string) (*sql.DB, error) {
			return sql.OpenDB(drv), nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { engine.Close(context.Background()) })
	return engine
}

// allowReads is the policy most tests run under.
func allowReads() Config {
	return Config{
		Permissions: []PermissionEntry{
			{StatementType: "select", Allowed: true},
			{StatementType: "show", Allowed: true},
			{StatementType: "drop", Allowed: false},
		},
	}
}
