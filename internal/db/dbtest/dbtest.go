// Package dbtest provides an in-memory database/sql driver stub so SQL
// paths can be exercised without a running Postgres. Every statement is
// recorded with the connection that ran it, which lets tests assert
// connection affinity and transaction outcomes.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// Stmt is one executed statement and the connection that ran it.
type Stmt struct {
	Conn int
	SQL  string
}

// RowSet is a scripted query result.
type RowSet struct {
	Columns []string
	Values  [][]driver.Value
}

// Recorder scripts responses and records every statement. The zero
// value accepts every exec and returns empty result sets.
type Recorder struct {
	mu    sync.Mutex
	conns int
	stmts []Stmt

	// ExecErr, when set, is consulted per statement; a non-nil return
	// fails that exec or query.
	ExecErr func(sql string) error

	// Rows, when set, supplies the result set for a query. A nil
	// return means no rows.
	Rows func(sql string) *RowSet
}

// Statements returns a copy of everything executed so far, in order.
func (r *Recorder) Statements() []Stmt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stmt(nil), r.stmts...)
}

func (r *Recorder) record(conn int, sql string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, Stmt{Conn: conn, SQL: sql})
}

func (r *Recorder) nextConn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns++
	return r.conns
}

// Open returns a *sql.DB backed by the recorder.
func Open(r *Recorder) *sql.DB {
	return sql.OpenDB(connector{rec: r})
}

type connector struct {
	rec *Recorder
}

func (c connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{rec: c.rec, id: c.rec.nextConn()}, nil
}

func (c connector) Driver() driver.Driver { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("dbtest: use Open(recorder)")
}

type conn struct {
	rec *Recorder
	id  int
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.rec.record(c.id, "BEGIN")
	return tx{conn: c}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.rec.record(c.id, query)
	if c.rec.ExecErr != nil {
		if err := c.rec.ExecErr(query); err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.rec.record(c.id, query)
	if c.rec.ExecErr != nil {
		if err := c.rec.ExecErr(query); err != nil {
			return nil, err
		}
	}
	var rs *RowSet
	if c.rec.Rows != nil {
		rs = c.rec.Rows(query)
	}
	if rs == nil {
		rs = &RowSet{}
	}
	return &rows{rs: rs}, nil
}

type tx struct {
	conn *conn
}

func (t tx) Commit() error {
	t.conn.rec.record(t.conn.id, "COMMIT")
	return nil
}

func (t tx) Rollback() error {
	t.conn.rec.record(t.conn.id, "ROLLBACK")
	return nil
}

type stmt struct {
	conn  *conn
	query string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec([]driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, nil)
}

func (s *stmt) Query([]driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, nil)
}

type rows struct {
	rs  *RowSet
	pos int
}

func (r *rows) Columns() []string { return r.rs.Columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rs.Values) {
		return io.EOF
	}
	copy(dest, r.rs.Values[r.pos])
	r.pos++
	return nil
}
