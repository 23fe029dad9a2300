package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
)

// ProcedureRepo reads the clinic's procedure catalog.
type ProcedureRepo struct {
	pool *pgxpool.Pool
}

// NewProcedureRepo creates the repository.
func NewProcedureRepo(pool *pgxpool.Pool) *ProcedureRepo {
	return &ProcedureRepo{pool: pool}
}

// SearchProcedures matches catalog entries by name or search term.
func (r *ProcedureRepo) SearchProcedures(ctx context.Context, query string) ([]draft.Procedure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, charge, search_term
		FROM procedures
		WHERE name ILIKE '%' || $1 || '%' OR search_term ILIKE '%' || $1 || '%'
		ORDER BY name ASC
		LIMIT 25
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search procedures: %w", err)
	}
	defer rows.Close()

	var out []draft.Procedure
	for rows.Next() {
		var p draft.Procedure
		if err := rows.Scan(&p.ID, &p.Name, &p.Charge, &p.SearchTerm); err != nil {
			return nil, fmt.Errorf("scan procedure: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
