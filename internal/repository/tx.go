package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/telavo/telavo/pkg/database"
)

// Tx adapts the MongoDB session API to the plain-context transaction
// shape the services consume. mongo.SessionContext satisfies
// context.Context, so repositories called inside fn join the
// transaction transparently.
type Tx struct {
	db *database.MongoDB
}

func NewTx(db *database.MongoDB) *Tx {
	return &Tx{db: db}
}

func (t *Tx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := t.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
