// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/MENECHAN/storefront-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerExists возвращается при попытке создать покупателя с уже существующим логином.
var (
	ErrCustomerExists = errors.New("customer already exists")
	// ErrCustomerNotFound возвращается, если покупатель не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrAccountNotFound возвращается, если счёт не найден или не привязан к покупателю.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrRequestNotFound возвращается, если заявка в друзья не найдена.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrItemNotFound возвращается, если позиция корзины не найдена.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidState возвращается, если операция недопустима из текущего состояния.
	// Вызывающий должен перечитать состояние и повторить корректную операцию.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrDuplicateItem возвращается при повторном добавлении товара в корзину.
	ErrDuplicateItem = errors.New("item already in cart")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLimitExceeded возвращается при превышении лимитов корзины или слотов друзей.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount возвращается при попытке списания неположительной суммы.
	ErrInvalidAmount = errors.New("invalid debit amount")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCustomer создаёт нового покупателя.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, login)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// GetCustomerByLogin возвращает покупателя по логину.
func (r *PostgresRepository) GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, is_admin, created_at FROM customers WHERE login = $1`,
		login,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.IsAdmin, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// CreateAccount добавляет счёт, привязанный к покупателю.
func (r *PostgresRepository) CreateAccount(ctx context.Context, customerID int64, name string, balance int64, friendCapacity int) (*model.Account, error) {
	if balance < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, balance)
	}

	var a model.Account
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (customer_id, name, balance, friend_capacity)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, customer_id, name, balance, friend_count, friend_capacity, created_at`,
		customerID, name, balance, friendCapacity,
	).Scan(&a.ID, &a.CustomerID, &a.Name, &a.Balance, &a.FriendCount, &a.FriendCapacity, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return &a, nil
}

// GetAccountsByCustomer возвращает все счета покупателя.
func (r *PostgresRepository) GetAccountsByCustomer(ctx context.Context, customerID int64) ([]model.Account, error) {
	return r.selectAccounts(ctx,
		`SELECT id, customer_id, name, balance, friend_count, friend_capacity, created_at
		 FROM accounts WHERE customer_id = $1 ORDER BY id`,
		customerID,
	)
}

// EligibleAccounts возвращает счета покупателя с балансом не меньше указанной суммы.
func (r *PostgresRepository) EligibleAccounts(ctx context.Context, customerID int64, minBalance int64) ([]model.Account, error) {
	return r.selectAccounts(ctx,
		`SELECT id, customer_id, name, balance, friend_count, friend_capacity, created_at
		 FROM accounts WHERE customer_id = $1 AND balance >= $2 ORDER BY balance`,
		customerID, minBalance,
	)
}

func (r *PostgresRepository) selectAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Name, &a.Balance, &a.FriendCount, &a.FriendCapacity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Debit атомарно списывает сумму со счёта и возвращает новый баланс.
// Условие balance >= amount проверяется в момент обновления, а не по снимку.
func (r *PostgresRepository) Debit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	var newBalance int64
	err := r.withRetry(ctx, func() error {
		var err error
		newBalance, err = debitTx(ctx, r.pool, accountID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// queryRower объединяет pgxpool.Pool и pgx.Tx для переиспользования запросов.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func debitTx(ctx context.Context, q queryRower, accountID int64, amount int64) (int64, error) {
	var newBalance int64
	err := q.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2 RETURNING balance`,
		accountID, amount,
	).Scan(&newBalance)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit account: %w", err)
	}

	// Условное обновление не прошло: различаем отсутствие счёта и нехватку средств.
	var current int64
	err = q.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("check balance: %w", err)
	}

	return 0, fmt.Errorf("%w: balance %d, required %d", ErrInsufficientBalance, current, amount)
}
