package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"storefront-service/internal/entity"
)

// MutationRepository stores the journal of calls made against remote carts.
type MutationRepository struct {
	db *sql.DB
}

func NewMutationRepository(db *sql.DB) *MutationRepository {
	return &MutationRepository{db}
}

func (r *MutationRepository) Record(ctx context.Context, m *entity.Mutation) error {
	query := `INSERT INTO cart_mutations (id, cart_id, line_id, kind, payload, succeeded, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.CartID, m.LineID, string(m.Kind), m.Payload, m.Succeeded, m.Error, m.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "record mutation %s", m.ID)
	}
	return nil
}

// ListByCart returns the most recent mutations for a cart, newest first.
func (r *MutationRepository) ListByCart(ctx context.Context, cartID string, limit int) ([]*entity.Mutation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, cart_id, line_id, kind, payload, succeeded, error, created_at FROM cart_mutations WHERE cart_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, cartID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list mutations for cart %s", cartID)
	}
	defer rows.Close()

	var mutations []*entity.Mutation
	for rows.Next() {
		var m entity.Mutation
		var kind string
		err := rows.Scan(&m.ID, &m.CartID, &m.LineID, &kind, &m.Payload, &m.Succeeded, &m.Error, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Kind = entity.MutationKind(kind)
		mutations = append(mutations, &m)
	}

	return mutations, rows.Err()
}
