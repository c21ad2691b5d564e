// Package pgfake is a postgres.GenericConn that records every statement and replays canned
// results, so repositories can be tested for the SQL they build.
package pgfake

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one statement sent to the connection.
type Call struct {
	SQL  string
	Args []any
}

// Result is what the next Query, QueryRow or Exec returns.
type Result struct {
	// Rows feed Query and QueryRow. QueryRow with no rows reports pgx.ErrNoRows.
	Rows [][]any
	// RowsAffected feeds Exec.
	RowsAffected int64
	Err          error
}

// Conn replays results in the order they were queued. With the queue empty every call
// succeeds with no rows and nothing affected.
type Conn struct {
	Calls   []Call
	results []Result
}

// New creates a connection that will return results in order.
func New(results ...Result) *Conn {
	return &Conn{results: results}
}

// Last returns the most recent call.
func (c *Conn) Last() Call {
	if len(c.Calls) == 0 {
		return Call{}
	}

	return c.Calls[len(c.Calls)-1]
}

func (c *Conn) next(sql string, args []any) Result {
	c.Calls = append(c.Calls, Call{SQL: sql, Args: args})
	if len(c.results) == 0 {
		return Result{}
	}
	r := c.results[0]
	c.results = c.results[1:]

	return r
}

// Query implements postgres.GenericConn.
func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := c.next(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}

	return &rows{data: r.Rows}, nil
}

// QueryRow implements postgres.GenericConn.
func (c *Conn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r := c.next(sql, args)

	return row{result: r}
}

// Exec implements postgres.GenericConn.
func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := c.next(sql, args)
	if r.Err != nil {
		return pgconn.CommandTag{}, r.Err
	}

	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", r.RowsAffected)), nil
}

type row struct {
	result Result
}

func (r row) Scan(dest ...any) error {
	if r.result.Err != nil {
		return r.result.Err
	}
	if len(r.result.Rows) == 0 {
		return pgx.ErrNoRows
	}

	return assign(dest, r.result.Rows[0])
}

type rows struct {
	data [][]any
	pos  int
}

func (r *rows) Close()                                       {}
func (r *rows) Err() error                                   { return nil }
func (r *rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rows) RawValues() [][]byte                          { return nil }
func (r *rows) Conn() *pgx.Conn                              { return nil }

func (r *rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++

	return true
}

func (r *rows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos-1])
}

func (r *rows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

// assign copies values into scan targets, converting between compatible kinds and
// wrapping plain values for pointer targets.
func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("pgfake: %d scan targets for %d values", len(dest), len(values))
	}

	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pgfake: scan target %d is not a pointer", i)
		}
		elem := target.Elem()

		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))

			continue
		}

		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(elem.Type()):
			elem.Set(v)
		case elem.Kind() == reflect.Pointer && v.Type().AssignableTo(elem.Type().Elem()):
			p := reflect.New(elem.Type().Elem())
			p.Elem().Set(v)
			elem.Set(p)
		case v.Type().ConvertibleTo(elem.Type()):
			elem.Set(v.Convert(elem.Type()))
		default:
			return fmt.Errorf("pgfake: cannot scan %T into %s", values[i], elem.Type())
		}
	}

	return nil
}
