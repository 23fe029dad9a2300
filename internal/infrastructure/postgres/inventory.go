package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrInsufficientStock is returned when a reservation exceeds what is on
// hand.
var ErrInsufficientStock = errors.New("insufficient stock")

// StockItem is one dispensable medicine in the clinic's inventory.
type StockItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	GenericName string `json:"generic_name,omitempty"`
	TradeName   string `json:"trade_name,omitempty"`
	Unit        string `json:"unit"`
	OnHand      int    `json:"on_hand"`
	Reserved    int    `json:"reserved"`
}

// InventoryRepo manages dispensable stock.
type InventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewInventoryRepo creates the repository.
func NewInventoryRepo(pool *pgxpool.Pool, logger *zap.Logger) *InventoryRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryRepo{pool: pool, logger: logger}
}

// GetStockItem loads one stock item.
func (r *InventoryRepo) GetStockItem(ctx context.Context, id string) (*StockItem, error) {
	item := &StockItem{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, generic_name, trade_name, unit, on_hand, reserved
		FROM stock_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.GenericName, &item.TradeName,
		&item.Unit, &item.OnHand, &item.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("stock item %s: not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock item: %w", err)
	}
	return item, nil
}

// SearchStock matches stock by name, generic or trade name.
func (r *InventoryRepo) SearchStock(ctx context.Context, query string) ([]*StockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, generic_name, trade_name, unit, on_hand, reserved
		FROM stock_items
		WHERE name ILIKE '%' || $1 || '%'
		   OR generic_name ILIKE '%' || $1 || '%'
		   OR trade_name ILIKE '%' || $1 || '%'
		ORDER BY name ASC
		LIMIT 25
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search stock: %w", err)
	}
	defer rows.Close()

	var out []*StockItem
	for rows.Next() {
		item := &StockItem{}
		if err := rows.Scan(&item.ID, &item.Name, &item.GenericName, &item.TradeName,
			&item.Unit, &item.OnHand, &item.Reserved); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ReserveStock atomically moves quantity from on-hand to reserved. The
// conditional update keeps concurrent reservations from overselling.
func (r *InventoryRepo) ReserveStock(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_items
		SET on_hand = on_hand - $2, reserved = reserved + $2, updated_at = NOW()
		WHERE id = $1 AND on_hand >= $2
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock item %s: %w", id, ErrInsufficientStock)
	}
	r.logger.Debug("stock reserved",
		zap.String("stock_item_id", id),
		zap.Int("quantity", quantity))
	return nil
}

// ReleaseStock returns a reservation to on-hand, e.g. when a prescription
// is voided.
func (r *InventoryRepo) ReleaseStock(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_items
		SET on_hand = on_hand + $2, reserved = reserved - $2, updated_at = NOW()
		WHERE id = $1 AND reserved >= $2
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock item %s: reservation smaller than release", id)
	}
	return nil
}
