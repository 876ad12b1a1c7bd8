package pgx

import (
	"context"
	"errors"
	"testing"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/loreweave/backend/pkg/store"
)

// fakeConn satisfies pgxIConn. Entity lookups answer from a fixed set;
// all writes go through the transaction handed out by Begin.
type fakeConn struct {
	entities []fakeEntity
	tx       *fakeTx
	begins   int
}

type fakeEntity struct {
	publicID   string
	campaignID int64
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgxv5.Rows, error) {
	return &entityRows{entities: c.entities}, nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgxv5.Row {
	return errRow{errors.New("write outside transaction")}
}

func (c *fakeConn) Begin(context.Context) (pgxv5.Tx, error) {
	c.begins++
	return c.tx, nil
}

// fakeTx overrides the methods UpsertEdge uses; the embedded interface
// covers the rest of pgx.Tx.
type fakeTx struct {
	pgxv5.Tx
	rowErrs   []error // per statement, nil means success
	calls     int
	commits   int
	rollbacks int
}

func (t *fakeTx) QueryRow(_ context.Context, _ string, args ...any) pgxv5.Row {
	i := t.calls
	t.calls++
	if i < len(t.rowErrs) && t.rowErrs[i] != nil {
		return errRow{t.rowErrs[i]}
	}
	return relationRow{args: args}
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rollbacks++
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// relationRow scans the upsert arguments back as the returned row, the way
// the real RETURNING clause echoes the written values.
type relationRow struct{ args []any }

func (r relationRow) Scan(dest ...any) error {
	*dest[0].(*int64) = 1
	*dest[1].(*string) = r.args[0].(string)
	*dest[2].(*int64) = r.args[1].(int64)
	*dest[3].(*string) = r.args[2].(string)
	*dest[4].(*string) = r.args[3].(string)
	*dest[5].(*string) = r.args[4].(string)
	*dest[6].(**float64) = r.args[5].(*float64)
	*dest[7].(*bool) = r.args[6].(bool)
	*dest[8].(*bool) = r.args[7].(bool)
	*dest[9].(**string) = r.args[8].(*string)
	*dest[10].(*[]byte) = r.args[9].([]byte)
	return nil
}

type entityRows struct {
	entities []fakeEntity
	i        int
}

func (r *entityRows) Close()                                       {}
func (r *entityRows) Err() error                                   { return nil }
func (r *entityRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *entityRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *entityRows) Values() ([]any, error)                       { return nil, nil }
func (r *entityRows) RawValues() [][]byte                          { return nil }
func (r *entityRows) Conn() *pgxv5.Conn                            { return nil }

func (r *entityRows) Next() bool {
	if r.i >= len(r.entities) {
		return false
	}
	r.i++
	return true
}

func (r *entityRows) Scan(dest ...any) error {
	e := r.entities[r.i-1]
	*dest[0].(*int64) = int64(r.i)
	*dest[1].(*string) = e.publicID
	*dest[2].(*int64) = e.campaignID
	*dest[3].(*string) = e.publicID
	*dest[4].(*string) = "character"
	*dest[7].(*string) = "approved"
	return nil
}

func TestUpsertEdgeBidirectionalPairCommitsOnce(t *testing.T) {
	tx := &fakeTx{}
	conn := &fakeConn{
		entities: []fakeEntity{{"a", 1}, {"b", 1}},
		tx:       tx,
	}
	s := NewGraphDBStorage(conn, nil)

	relations, err := s.UpsertEdge(context.Background(), store.UpsertEdgeParams{
		CampaignID:   1,
		FromEntityID: "a",
		ToEntityID:   "b",
		Type:         "allied with",
	})
	if err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if len(relations) != 2 {
		t.Fatalf("relations = %d, want forward and reverse", len(relations))
	}
	if relations[1].FromEntityID != "b" || relations[1].ToEntityID != "a" {
		t.Errorf("reverse edge = %s->%s, want b->a", relations[1].FromEntityID, relations[1].ToEntityID)
	}
	if conn.begins != 1 || tx.commits != 1 {
		t.Errorf("begins = %d, commits = %d, want one transaction around both writes", conn.begins, tx.commits)
	}
}

func TestUpsertEdgeReverseFailureRollsBackForward(t *testing.T) {
	boom := errors.New("connection reset")
	tx := &fakeTx{rowErrs: []error{nil, boom}}
	conn := &fakeConn{
		entities: []fakeEntity{{"a", 1}, {"b", 1}},
		tx:       tx,
	}
	s := NewGraphDBStorage(conn, nil)

	_, err := s.UpsertEdge(context.Background(), store.UpsertEdgeParams{
		CampaignID:   1,
		FromEntityID: "a",
		ToEntityID:   "b",
		Type:         "allied_with",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the reverse write failure", err)
	}
	if tx.commits != 0 {
		t.Errorf("commits = %d, want 0 (forward row must not survive alone)", tx.commits)
	}
	if tx.rollbacks == 0 {
		t.Error("transaction was never rolled back")
	}
}

func TestUpsertEdgeDirectedTypeWritesSingleRow(t *testing.T) {
	tx := &fakeTx{}
	conn := &fakeConn{
		entities: []fakeEntity{{"a", 1}, {"b", 1}},
		tx:       tx,
	}
	s := NewGraphDBStorage(conn, nil)

	relations, err := s.UpsertEdge(context.Background(), store.UpsertEdgeParams{
		CampaignID:   1,
		FromEntityID: "a",
		ToEntityID:   "b",
		Type:         "owns",
	})
	if err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if len(relations) != 1 || tx.calls != 1 {
		t.Errorf("relations = %d, statements = %d, want one of each", len(relations), tx.calls)
	}
	if tx.commits != 1 {
		t.Errorf("commits = %d, want 1", tx.commits)
	}
}
