// Package pgx implements the GraphStore contract on PostgreSQL with
// pgvector for semantic entity search.
package pgx

import (
	"context"
	"sync"

	"github.com/loreweave/backend/pkg/ai"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GraphStore over PostgreSQL. The AI client
// is used only to embed entity content for similarity search; it may be nil,
// in which case embeddings are skipped and search falls back to name
// matching alone.
type GraphDBStorage struct {
	conn     pgxIConn
	aiClient ai.GraphAIClient
	dbLock   sync.Mutex
}

// NewGraphDBStorage creates a GraphDBStorage bound to an existing
// connection or pool.
func NewGraphDBStorage(conn pgxIConn, aiClient ai.GraphAIClient) *GraphDBStorage {
	return &GraphDBStorage{
		conn:     conn,
		aiClient: aiClient,
	}
}
