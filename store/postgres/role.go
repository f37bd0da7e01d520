package postgres

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// FindRoleByName resolves a role row by its unique name.
func (s *Store) FindRoleByName(ctx context.Context, name string) (*store.Role, error) {
	const q = `SELECT id, name FROM roles WHERE name=$1`
	var r store.Role
	if err := s.db.Pool.QueryRow(ctx, q, name).Scan(&r.ID, &r.Name); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}
