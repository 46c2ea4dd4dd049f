package database

import (
	"context"
	"database/sql/driver"
	"math/rand"
	"strings"
	"time"
)

const (
	busyBaseDelay = 50 * time.Millisecond
	busyMaxDelay  = 2 * time.Second
)

// busyRetrier reruns a statement that failed because another connection (or
// another process, like the migrations command) holds the write lock.
type busyRetrier struct {
	maxRetries int
	baseDelay  time.Duration
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"database is locked", "database table is locked", "SQLITE_BUSY", "SQLITE_LOCKED", "(5)", "(6)"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoff doubles per attempt, adds up to 25% jitter and is capped.
func (r busyRetrier) backoff(attempt int) time.Duration {
	delay := r.baseDelay * time.Duration(1<<attempt)
	if delay >= 4 {
		delay += time.Duration(rand.Int63n(int64(delay / 4)))
	}
	if delay > busyMaxDelay {
		delay = busyMaxDelay
	}
	return delay
}

func (r busyRetrier) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !isBusyError(err) || attempt >= r.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
}

// busyConnector hands out connections whose direct exec, query and begin calls
// go through the retrier.
type busyConnector struct {
	driver.Connector
	retrier busyRetrier
}

func (bc *busyConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := bc.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &busyConn{Conn: conn, retrier: bc.retrier}, nil
}

type busyConn struct {
	driver.Conn
	retrier busyRetrier
}

func (c *busyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var tx driver.Tx
	err := c.retrier.do(ctx, func() (err error) {
		if b, ok := c.Conn.(driver.ConnBeginTx); ok {
			tx, err = b.BeginTx(ctx, opts)
		} else {
			tx, err = c.Conn.Begin() //nolint:staticcheck // only reached on drivers without BeginTx
		}
		return err
	})
	return tx, err
}

func (c *busyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *busyConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var res driver.Result
	err := c.retrier.do(ctx, func() (err error) {
		res, err = e.ExecContext(ctx, query, args)
		return err
	})
	return res, err
}

func (c *busyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var rows driver.Rows
	err := c.retrier.do(ctx, func() (err error) {
		rows, err = q.QueryContext(ctx, query, args)
		return err
	})
	return rows, err
}

func (c *busyConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *busyConn) ResetSession(ctx context.Context) error {
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *busyConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}
