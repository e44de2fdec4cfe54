package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkspaceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWorkspaceRepository(pool *pgxpool.Pool, logger *slog.Logger) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool, logger: logger.With("component", "workspace_repo")}
}

func (r *WorkspaceRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM workspaces`)
	if err != nil {
		return nil, fmt.Errorf("list workspace ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
