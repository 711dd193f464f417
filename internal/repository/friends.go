package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MENECHAN/storefront-system/internal/model"
)

// CreateFriendRequest создаёт заявку в друзья к счёту со статусом pending.
func (r *PostgresRepository) CreateFriendRequest(ctx context.Context, customerID, accountID int64) (*model.FriendRequest, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO friend_requests (customer_id, account_id)
		 VALUES ($1, $2)
		 RETURNING id, customer_id, account_id, status, admin_id, created_at, updated_at`,
		customerID, accountID,
	)

	fr, err := scanFriendRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("create friend request: %w", err)
	}

	return fr, nil
}

func scanFriendRequest(row pgx.Row) (*model.FriendRequest, error) {
	var fr model.FriendRequest
	var status string
	err := row.Scan(&fr.ID, &fr.CustomerID, &fr.AccountID, &status, &fr.AdminID, &fr.CreatedAt, &fr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fr.Status = model.FriendRequestStatus(status)
	return &fr, nil
}

// GetFriendRequestsByCustomer возвращает заявки покупателя, новые первыми.
func (r *PostgresRepository) GetFriendRequestsByCustomer(ctx context.Context, customerID int64) ([]model.FriendRequest, error) {
	return r.selectFriendRequests(ctx,
		`SELECT id, customer_id, account_id, status, admin_id, created_at, updated_at
		 FROM friend_requests WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID,
	)
}

// GetFriendRequestsByStatus возвращает заявки в указанном статусе для очереди администратора.
func (r *PostgresRepository) GetFriendRequestsByStatus(ctx context.Context, status model.FriendRequestStatus) ([]model.FriendRequest, error) {
	return r.selectFriendRequests(ctx,
		`SELECT id, customer_id, account_id, status, admin_id, created_at, updated_at
		 FROM friend_requests WHERE status = $1 ORDER BY created_at`,
		string(status),
	)
}

func (r *PostgresRepository) selectFriendRequests(ctx context.Context, query string, args ...any) ([]model.FriendRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select friend requests: %w", err)
	}
	defer rows.Close()

	var res []model.FriendRequest
	for rows.Next() {
		fr, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		res = append(res, *fr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ApproveFriendRequest одобряет заявку и занимает слот друга на счёте одной
// транзакцией. Слот занимается условным обновлением friend_count < friend_capacity:
// при исчерпании слотов заявка остаётся pending.
func (r *PostgresRepository) ApproveFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var accountID int64
		var status string
		err = tx.QueryRow(ctx,
			`SELECT account_id, status FROM friend_requests WHERE id = $1 FOR UPDATE`,
			requestID,
		).Scan(&accountID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock friend request: %w", err)
		}
		if model.FriendRequestStatus(status) != model.FriendRequestPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, status)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET friend_count = friend_count + 1
			 WHERE id = $1 AND friend_count < friend_capacity`,
			accountID,
		)
		if err != nil {
			return fmt.Errorf("take friend slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: no free friend slots on account %d", ErrLimitExceeded, accountID)
		}

		_, err = tx.Exec(ctx,
			`UPDATE friend_requests SET status = $2, admin_id = $3, updated_at = now() WHERE id = $1`,
			requestID, string(model.FriendRequestApproved), adminID,
		)
		if err != nil {
			return fmt.Errorf("approve friend request: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return r.getFriendRequest(ctx, requestID)
}

// RejectFriendRequest отклоняет заявку условным обновлением из pending.
func (r *PostgresRepository) RejectFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE friend_requests SET status = $2, admin_id = $3, updated_at = now()
		 WHERE id = $1 AND status = $4`,
		requestID, string(model.FriendRequestRejected), adminID, string(model.FriendRequestPending),
	)
	if err != nil {
		return nil, fmt.Errorf("reject friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx, `SELECT status FROM friend_requests WHERE id = $1`, requestID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRequestNotFound
			}
			return nil, fmt.Errorf("check friend request: %w", err)
		}
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, status)
	}

	return r.getFriendRequest(ctx, requestID)
}

func (r *PostgresRepository) getFriendRequest(ctx context.Context, requestID int64) (*model.FriendRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, account_id, status, admin_id, created_at, updated_at
		 FROM friend_requests WHERE id = $1`,
		requestID,
	)

	fr, err := scanFriendRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get friend request: %w", err)
	}

	return fr, nil
}
