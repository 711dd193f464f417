package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MENECHAN/storefront-system/internal/model"
)

// SubmitCart атомарно переводит активную корзину в submitted и создаёт по её
// снимку заказ в состоянии PENDING_PAYMENT_PROOF. Либо происходит и то и другое,
// либо ничего: корзина не может остаться submitted без заказа, второй заказ по
// той же корзине невозможен.
func (r *PostgresRepository) SubmitCart(ctx context.Context, cartID uuid.UUID, fiatRateCents int64) (*model.Order, error) {
	var orderID uuid.UUID

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var customerID, total int64
		var status string
		err = tx.QueryRow(ctx,
			`SELECT customer_id, status, total_units FROM carts WHERE id = $1 FOR UPDATE`,
			cartID,
		).Scan(&customerID, &status, &total)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCartNotFound
			}
			return fmt.Errorf("lock cart: %w", err)
		}
		if model.CartStatus(status) != model.CartStatusActive {
			return fmt.Errorf("%w: cart is %s", ErrInvalidState, status)
		}

		items, err := r.cartItems(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		var live int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM orders WHERE cart_id = $1 AND state NOT IN ($2, $3, $4)`,
			cartID,
			string(model.OrderStateCompleted),
			string(model.OrderStateRejected),
			string(model.OrderStateErrorInsufficientBalance),
		).Scan(&live)
		if err != nil {
			return fmt.Errorf("check live order: %w", err)
		}
		if live > 0 {
			return fmt.Errorf("%w: cart already has a live order", ErrInvalidState)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`,
			cartID, string(model.CartStatusSubmitted),
		); err != nil {
			return fmt.Errorf("submit cart: %w", err)
		}

		snapshot, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		orderID = uuid.New()
		_, err = tx.Exec(ctx,
			`INSERT INTO orders (id, cart_id, customer_id, items_snapshot, total_units, total_fiat_cents, state)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, cartID, customerID, snapshot, total, total*fiatRateCents,
			string(model.OrderStatePendingPaymentProof),
		)
		if err != nil {
			// Частичный уникальный индекс orders_live_per_cart — страховка от гонки двух submit.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: cart already has a live order", ErrInvalidState)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return r.GetOrder(ctx, orderID)
}

const orderColumns = `id, cart_id, customer_id, items_snapshot, total_units, total_fiat_cents,
	state, proof_ref, admin_id, account_id, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var state string
	var snapshot []byte
	err := row.Scan(&o.ID, &o.CartID, &o.CustomerID, &snapshot, &o.TotalUnits, &o.TotalFiatCents,
		&state, &o.ProofRef, &o.AdminID, &o.AccountID, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.State = model.OrderState(state)
	if err := json.Unmarshal(snapshot, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// GetOrdersByCustomer возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID,
	)
}

// GetOrdersByState возвращает заказы в указанном состоянии для очереди администратора.
func (r *PostgresRepository) GetOrdersByState(ctx context.Context, state model.OrderState) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE state = $1 ORDER BY created_at`,
		string(state),
	)
}

func (r *PostgresRepository) selectOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AttachProof прикрепляет подтверждение оплаты и переводит заказ в PENDING_MANUAL_APPROVAL.
// Переход условный: выполняется только из PENDING_PAYMENT_PROOF.
func (r *PostgresRepository) AttachProof(ctx context.Context, orderID uuid.UUID, proofRef string) (*model.Order, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET state = $3, proof_ref = $2, updated_at = now()
		 WHERE id = $1 AND state = $4`,
		orderID, proofRef,
		string(model.OrderStatePendingManualApproval),
		string(model.OrderStatePendingPaymentProof),
	)
	if err != nil {
		return nil, fmt.Errorf("attach proof: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, r.orderStateConflict(ctx, orderID)
	}

	return r.GetOrder(ctx, orderID)
}

// orderStateConflict различает отсутствующий заказ и заказ в неподходящем состоянии.
func (r *PostgresRepository) orderStateConflict(ctx context.Context, orderID uuid.UUID) error {
	var state string
	err := r.pool.QueryRow(ctx, `SELECT state FROM orders WHERE id = $1`, orderID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("check order state: %w", err)
	}

	return fmt.Errorf("%w: order is %s", ErrInvalidState, state)
}

// ApproveOrder обрабатывает одобрение заказа администратором. Строка заказа
// блокируется, состояние проверяется по базе, а не по копии вызывающего: из двух
// конкурентных одобрений ровно одно проходит. Если подходящих счетов нет,
// заказ уходит в ERROR_INSUFFICIENT_BALANCE.
func (r *PostgresRepository) ApproveOrder(ctx context.Context, orderID uuid.UUID, adminID int64) (model.OrderState, []model.Account, error) {
	var nextState model.OrderState
	var eligible []model.Account

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var customerID, total int64
		var state string
		err = tx.QueryRow(ctx,
			`SELECT customer_id, total_units, state FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&customerID, &total, &state)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if model.OrderState(state) != model.OrderStatePendingManualApproval {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, state)
		}

		rows, err := tx.Query(ctx,
			`SELECT id, customer_id, name, balance, friend_count, friend_capacity, created_at
			 FROM accounts WHERE customer_id = $1 AND balance >= $2 ORDER BY balance`,
			customerID, total,
		)
		if err != nil {
			return fmt.Errorf("select eligible accounts: %w", err)
		}

		eligible = eligible[:0]
		for rows.Next() {
			var a model.Account
			if err := rows.Scan(&a.ID, &a.CustomerID, &a.Name, &a.Balance, &a.FriendCount, &a.FriendCapacity, &a.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan account: %w", err)
			}
			eligible = append(eligible, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		nextState = model.OrderStateAwaitingAccountSelection
		note := fmt.Sprintf("approved by admin %d, %d eligible account(s)\n", adminID, len(eligible))
		if len(eligible) == 0 {
			nextState = model.OrderStateErrorInsufficientBalance
			note = fmt.Sprintf("approved by admin %d, no account covers %d units\n", adminID, total)
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET state = $2, admin_id = $3, notes = notes || $4, updated_at = now() WHERE id = $1`,
			orderID, string(nextState), adminID, note,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return "", nil, err
	}

	return nextState, eligible, nil
}

// RejectOrder переводит заказ в REJECTED из ожидаемого состояния, не трогая балансы.
func (r *PostgresRepository) RejectOrder(ctx context.Context, orderID uuid.UUID, adminID int64, reason string, from model.OrderState) (*model.Order, error) {
	note := fmt.Sprintf("rejected by admin %d: %s\n", adminID, reason)

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET state = $2, admin_id = $3, notes = notes || $4, updated_at = now()
		 WHERE id = $1 AND state = $5`,
		orderID, string(model.OrderStateRejected), adminID, note, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("reject order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, r.orderStateConflict(ctx, orderID)
	}

	return r.GetOrder(ctx, orderID)
}

// CompleteOrder списывает сумму заказа с выбранного счёта и переводит заказ в
// COMPLETED одной транзакцией: либо фиксируются и списание, и переход, либо
// ничего. Баланс перепроверяется в момент списания: с момента одобрения его мог
// потратить другой заказ. При нехватке средств состояние заказа не меняется,
// администратор может выбрать другой счёт.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, orderID uuid.UUID, adminID, accountID int64) (*model.Order, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var customerID, total int64
		var cartID uuid.UUID
		var state string
		err = tx.QueryRow(ctx,
			`SELECT customer_id, cart_id, total_units, state FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&customerID, &cartID, &total, &state)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if model.OrderState(state) != model.OrderStateAwaitingAccountSelection {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, state)
		}

		var owner int64
		err = tx.QueryRow(ctx, `SELECT customer_id FROM accounts WHERE id = $1`, accountID).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
			}
			return fmt.Errorf("check account: %w", err)
		}
		if owner != customerID {
			return fmt.Errorf("%w: account %d not linked to customer %d", ErrAccountNotFound, accountID, customerID)
		}

		newBalance, err := debitTx(ctx, tx, accountID, total)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("completed by admin %d: account %d debited %d units, balance %d -> %d\n",
			adminID, accountID, total, newBalance+total, newBalance)

		_, err = tx.Exec(ctx,
			`UPDATE orders SET state = $2, admin_id = $3, account_id = $4, notes = notes || $5, updated_at = now()
			 WHERE id = $1`,
			orderID, string(model.OrderStateCompleted), adminID, accountID, note,
		)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`,
			cartID, string(model.CartStatusClosed),
		); err != nil {
			return fmt.Errorf("close cart: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return r.GetOrder(ctx, orderID)
}
