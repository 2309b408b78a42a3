package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/sfmcp/snowflake-mcp/internal/auth"
)

// fakeDriver is an in-memory driver that answers the verification query and
// any scripted statements.
type fakeDriver struct {
	mu         sync.Mutex
	connects   int
	statements []string
	// fail maps a statement to the error it should return.
	fail map[string]error
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	return &fakeConn{drv: d}, nil
}

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *fakeDriver) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.statements...)
}

func (d *fakeDriver) record(query string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = append(d.statements, query)
	return d.fail[query]
}

type fakeConn struct {
	drv *fakeDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.drv.record(query); err != nil {
		return nil, err
	}
	if query == verifyQuery {
		return &fakeRows{cols: []string{"greeting"}, rows: [][]driver.Value{{"connected"}}}, nil
	}
	return &fakeRows{cols: []string{"n"}, rows: [][]driver.Value{{int64(1)}}}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.drv.record(query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func newTestManager(t *testing.T, drv *fakeDriver) *Manager {
	t.Helper()
	m := NewManager(Options{
		Params: auth.Params{Account: "acct", User: "u", Password: "p"},
		Env:    staticEnv{},
		Logger: zerolog.Nop(),
		Opener: func(dsn string) (*sql.DB, error) {
			return sql.OpenDB(fakeConnector{drv: drv}), nil
		},
	})
	t.Cleanup(func() { m.Cleanup(context.Background()) })
	return m
}

type fakeConnector struct {
	drv *fakeDriver
}

func (c fakeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return c.drv.Open("")
}

func (c fakeConnector) Driver() driver.Driver { return c.drv }

// staticEnv keeps resolution away from the real process environment.
type staticEnv struct{}

func (staticEnv) InContainer() bool               { return false }
func (staticEnv) ContainerToken() (string, error) { return "", errors.New("no token") }
func (staticEnv) Getenv(string) string            { return "" }

func TestConnectsLazilyAndOnce(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := newTestManager(t, drv)

	if m.Connected() {
		t.Fatal("connected before first use")
	}
	if drv.connectCount() != 0 {
		t.Fatalf("connects = %d before first use", drv.connectCount())
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			rows, err := conn.QueryContext(ctx, "SELECT 1")
			if err != nil {
				return err
			}
			return rows.Close()
		})
		if err != nil {
			t.Fatalf("WithConn #%d: %v", i, err)
		}
	}
	if !m.Connected() {
		t.Fatal("not connected after use")
	}
	if got := drv.connectCount(); got != 1 {
		t.Errorf("connects = %d, want 1", got)
	}
}

func TestVerificationFailureRejectsSession(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{fail: map[string]error{verifyQuery: errors.New("handshake rejected")}}
	m := newTestManager(t, drv)

	err := m.Verify(context.Background())
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if m.Connected() {
		t.Error("session kept despite failed verification")
	}
}

func TestStatementErrorKeepsSession(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{fail: map[string]error{"SELECT broken": errors.New("syntax error")}}
	m := newTestManager(t, drv)

	ctx := context.Background()
	err := m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.QueryContext(ctx, "SELECT broken")
		return err
	})
	if err == nil {
		t.Fatal("expected statement error")
	}
	if !m.Connected() {
		t.Error("session dropped on a statement-level failure")
	}
	if got := drv.connectCount(); got != 1 {
		t.Errorf("connects = %d, want 1", got)
	}
}

func TestSessionExpiryTriggersReconnect(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := newTestManager(t, drv)

	ctx := context.Background()
	if err := m.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	expired := &sf.SnowflakeError{Number: 390111, Message: "session no longer exists"}
	err := m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return expired
	})
	if !errors.Is(err, error(expired)) {
		t.Fatalf("WithConn err = %v, want the session error", err)
	}
	if m.Connected() {
		t.Fatal("dead session kept")
	}

	if err := m.Verify(ctx); err != nil {
		t.Fatalf("Verify after expiry: %v", err)
	}
	if got := drv.connectCount(); got != 2 {
		t.Errorf("connects = %d, want 2", got)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := newTestManager(t, drv)

	ctx := context.Background()
	if err := m.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	m.Cleanup(ctx)
	if m.Connected() {
		t.Fatal("connected after Cleanup")
	}
	m.Cleanup(ctx)
}

func TestWithConnSerializesCallers(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	m := newTestManager(t, drv)

	ctx := context.Background()
	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
				n := inFlight.Add(1)
				if cur := maxInFlight.Load(); n > cur {
					maxInFlight.Store(n)
				}
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", got)
	}
}

func TestNamedConnectionUsesDriverAutoConfig(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	var gotDSN string
	m := NewManager(Options{
		Env:    staticEnv{},
		Logger: zerolog.Nop(),
		Opener: func(dsn string) (*sql.DB, error) {
			gotDSN = dsn
			return sql.OpenDB(fakeConnector{drv: drv}), nil
		},
	})
	t.Cleanup(func() { m.Cleanup(context.Background()) })

	ctx := context.Background()
	if err := m.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if gotDSN != "autoConfig" {
		t.Errorf("dsn = %q, want autoConfig", gotDSN)
	}

	tagStatement := "ALTER SESSION SET QUERY_TAG = '" + sessionQueryTag() + "'"
	countTags := func() int {
		n := 0
		for _, stmt := range drv.executed() {
			if stmt == tagStatement {
				n++
			}
		}
		return n
	}
	if got := countTags(); got != 1 {
		t.Fatalf("query tag applied %d times, want 1; statements: %v", got, drv.executed())
	}

	// The tag belongs to the session, so a reconnect must apply it again.
	expired := &sf.SnowflakeError{Number: 390111, Message: "session no longer exists"}
	_ = m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return expired
	})
	if err := m.Verify(ctx); err != nil {
		t.Fatalf("Verify after expiry: %v", err)
	}
	if got := countTags(); got != 2 {
		t.Errorf("query tag applied %d times after reconnect, want 2", got)
	}
}

func TestSessionQueryTagIsStableJSON(t *testing.T) {
	t.Parallel()
	want := `{"origin":"sf_sit","name":"snowflake-mcp","version":{"major":1,"minor":0}}`
	if got := sessionQueryTag(); got != want {
		t.Errorf("query tag = %s, want %s", got, want)
	}
}
