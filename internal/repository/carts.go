package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MENECHAN/storefront-system/internal/model"
)

// GetOrCreateActiveCart возвращает активную корзину покупателя, создавая её при отсутствии.
func (r *PostgresRepository) GetOrCreateActiveCart(ctx context.Context, customerID int64) (*model.Cart, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO carts (id, customer_id, status) VALUES ($1, $2, $3)
		 ON CONFLICT (customer_id) WHERE status = 'active' DO NOTHING`,
		uuid.New(), customerID, string(model.CartStatusActive),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, status, total_units, created_at, updated_at
		 FROM carts WHERE customer_id = $1 AND status = 'active'`,
		customerID,
	)

	var c model.Cart
	var status string
	if err := row.Scan(&c.ID, &c.CustomerID, &status, &c.TotalUnits, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	c.Status = model.CartStatus(status)

	items, err := r.cartItems(ctx, r.pool, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items

	return &c, nil
}

// GetCart возвращает корзину с позициями по идентификатору.
func (r *PostgresRepository) GetCart(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, status, total_units, created_at, updated_at FROM carts WHERE id = $1`,
		cartID,
	)

	var c model.Cart
	var status string
	if err := row.Scan(&c.ID, &c.CustomerID, &status, &c.TotalUnits, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}
	c.Status = model.CartStatus(status)

	items, err := r.cartItems(ctx, r.pool, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items

	return &c, nil
}

func (r *PostgresRepository) cartItems(ctx context.Context, q pgxQuerier, cartID uuid.UUID) ([]model.CartItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, catalog_item_id, name, price_units, category
		 FROM cart_items WHERE cart_id = $1 ORDER BY id`,
		cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ID, &it.CatalogItemID, &it.Name, &it.PriceUnits, &it.Category); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AddCartItem добавляет снимок товара в активную корзину с проверкой лимитов.
// Корзина блокируется на время операции, итог пересчитывается в той же транзакции.
func (r *PostgresRepository) AddCartItem(ctx context.Context, cartID uuid.UUID, item model.CartItem, maxItems int, maxTotal int64) (*model.Cart, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, total, err := lockCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if status != model.CartStatusActive {
			return fmt.Errorf("%w: cart is %s", ErrInvalidState, status)
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM cart_items WHERE cart_id = $1`, cartID).Scan(&count); err != nil {
			return fmt.Errorf("count items: %w", err)
		}
		if count >= maxItems {
			return fmt.Errorf("%w: cart holds %d items", ErrLimitExceeded, count)
		}
		if total+item.PriceUnits > maxTotal {
			return fmt.Errorf("%w: cart total %d over cap", ErrLimitExceeded, total+item.PriceUnits)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO cart_items (cart_id, catalog_item_id, name, price_units, category)
			 VALUES ($1, $2, $3, $4, $5)`,
			cartID, item.CatalogItemID, item.Name, item.PriceUnits, item.Category,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateItem, item.CatalogItemID)
			}
			return fmt.Errorf("insert cart item: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE carts SET total_units = total_units + $2, updated_at = now() WHERE id = $1`,
			cartID, item.PriceUnits,
		)
		if err != nil {
			return fmt.Errorf("update cart total: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return r.GetCart(ctx, cartID)
}

// RemoveCartItem удаляет позицию из активной корзины и пересчитывает итог.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) (*model.Cart, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, _, err := lockCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if status != model.CartStatusActive {
			return fmt.Errorf("%w: cart is %s", ErrInvalidState, status)
		}

		var price int64
		err = tx.QueryRow(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND id = $2 RETURNING price_units`,
			cartID, itemID,
		).Scan(&price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
			}
			return fmt.Errorf("delete cart item: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE carts SET total_units = total_units - $2, updated_at = now() WHERE id = $1`,
			cartID, price,
		)
		if err != nil {
			return fmt.Errorf("update cart total: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return r.GetCart(ctx, cartID)
}

func lockCart(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) (model.CartStatus, int64, error) {
	var status string
	var total int64
	err := tx.QueryRow(ctx,
		`SELECT status, total_units FROM carts WHERE id = $1 FOR UPDATE`,
		cartID,
	).Scan(&status, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrCartNotFound
		}
		return "", 0, fmt.Errorf("lock cart: %w", err)
	}

	return model.CartStatus(status), total, nil
}
