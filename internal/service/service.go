// Package service реализует бизнес-логику витрины магазина.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MENECHAN/storefront-system/internal/catalog"
	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/notifier"
	"github.com/MENECHAN/storefront-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error)

	CreateAccount(ctx context.Context, customerID int64, name string, balance int64, friendCapacity int) (*model.Account, error)
	GetAccountsByCustomer(ctx context.Context, customerID int64) ([]model.Account, error)
	EligibleAccounts(ctx context.Context, customerID int64, minBalance int64) ([]model.Account, error)

	GetOrCreateActiveCart(ctx context.Context, customerID int64) (*model.Cart, error)
	AddCartItem(ctx context.Context, cartID uuid.UUID, item model.CartItem, maxItems int, maxTotal int64) (*model.Cart, error)
	RemoveCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) (*model.Cart, error)
	SubmitCart(ctx context.Context, cartID uuid.UUID, fiatRateCents int64) (*model.Order, error)

	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrdersByState(ctx context.Context, state model.OrderState) ([]model.Order, error)
	AttachProof(ctx context.Context, orderID uuid.UUID, proofRef string) (*model.Order, error)
	ApproveOrder(ctx context.Context, orderID uuid.UUID, adminID int64) (model.OrderState, []model.Account, error)
	RejectOrder(ctx context.Context, orderID uuid.UUID, adminID int64, reason string, from model.OrderState) (*model.Order, error)
	CompleteOrder(ctx context.Context, orderID uuid.UUID, adminID, accountID int64) (*model.Order, error)

	CreateFriendRequest(ctx context.Context, customerID, accountID int64) (*model.FriendRequest, error)
	GetFriendRequestsByCustomer(ctx context.Context, customerID int64) ([]model.FriendRequest, error)
	GetFriendRequestsByStatus(ctx context.Context, status model.FriendRequestStatus) ([]model.FriendRequest, error)
	ApproveFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error)
}

// Catalog описывает контракт каталога товаров.
type Catalog interface {
	FindItem(ctx context.Context, itemID string) (*catalog.Item, error)
}

// Notifier описывает контракт доставки уведомлений.
type Notifier interface {
	Notify(ctx context.Context, msg notifier.Message) error
}

// Limits задаёт лимиты корзины и курс пересчёта единиц в фиат.
type Limits struct {
	CartMaxItems  int
	CartMaxTotal  int64
	FiatRateCents int64
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	logger   *zap.Logger
	limits   Limits
}

const notifyTimeout = 5 * time.Second

// NewService создаёт новый сервис с указанными зависимостями.
func NewService(repo Repository, cat Catalog, notif Notifier, logger *zap.Logger, limits Limits) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		catalog:  cat,
		notifier: notif,
		logger:   logger,
		limits:   limits,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCustomer регистрирует нового покупателя.
func (s *Service) RegisterCustomer(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateCustomer(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateCustomer проверяет логин и пароль и возвращает покупателя.
func (s *Service) AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error) {
	c, err := s.repo.GetCustomerByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(c.PasswordHash) {
		return nil, errors.New("invalid credentials")
	}

	return c, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateAccount добавляет счёт покупателю. Используется при заведении инвентаря.
func (s *Service) CreateAccount(ctx context.Context, customerID int64, name string, balance int64, friendCapacity int) (*model.Account, error) {
	return s.repo.CreateAccount(ctx, customerID, name, balance, friendCapacity)
}

// GetAccountsByCustomer возвращает счета покупателя.
func (s *Service) GetAccountsByCustomer(ctx context.Context, customerID int64) ([]model.Account, error) {
	return s.repo.GetAccountsByCustomer(ctx, customerID)
}

// notify отправляет уведомление после зафиксированного перехода. Ошибка доставки
// логируется и не влияет на результат операции; контекст запроса может быть уже
// отменён, поэтому уведомление получает собственный таймаут.
func (s *Service) notify(ctx context.Context, msg notifier.Message) {
	if s.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(nctx, msg); err != nil {
		s.logger.Error("notify failed",
			zap.Error(err),
			zap.String("event", msg.Event),
			zap.String("audience", string(msg.Audience)),
		)
	}
}

// notifyOrder уведомляет покупателя и администраторов о смене состояния заказа.
func (s *Service) notifyOrder(ctx context.Context, o *model.Order, from model.OrderState, text string) {
	for _, audience := range []notifier.Audience{notifier.AudienceCustomer, notifier.AudienceAdmin} {
		s.notify(ctx, notifier.Message{
			Audience:   audience,
			CustomerID: o.CustomerID,
			Event:      notifier.EventOrderStateChanged,
			OrderID:    o.ID.String(),
			From:       string(from),
			To:         string(o.State),
			Text:       text,
		})
	}
}

var _ Repository = (*repository.PostgresRepository)(nil)
