package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/repository"
)

// Координатор одобрения: административные переходы заказа. Каждая операция
// идемпотентна относительно своего предусловия — повтор после обрыва клиента
// администратора получает ErrInvalidState, а не второе исполнение.

// AttachProof прикрепляет подтверждение оплаты к заказу покупателя.
func (s *Service) AttachProof(ctx context.Context, customerID int64, orderID uuid.UUID, proofRef string) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		// Чужой заказ неотличим от несуществующего.
		return nil, repository.ErrOrderNotFound
	}

	updated, err := s.repo.AttachProof(ctx, orderID, proofRef)
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, updated, order.State, fmt.Sprintf("payment proof attached to order %s, awaiting review", orderID))

	return updated, nil
}

// GetOrdersByCustomer возвращает заказы покупателя.
func (s *Service) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByCustomer(ctx, customerID)
}

// GetOrdersByState возвращает очередь заказов для администратора.
func (s *Service) GetOrdersByState(ctx context.Context, state model.OrderState) ([]model.Order, error) {
	return s.repo.GetOrdersByState(ctx, state)
}

// ApproveOrder одобряет заказ и возвращает счета, подходящие для списания.
// Из двух конкурентных одобрений одного заказа ровно одно завершается успешно.
func (s *Service) ApproveOrder(ctx context.Context, orderID uuid.UUID, adminID int64) (*model.Order, []model.Account, error) {
	state, eligible, err := s.repo.ApproveOrder(ctx, orderID, adminID)
	if err != nil {
		return nil, nil, err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	text := fmt.Sprintf("order %s approved, select an account", orderID)
	if state == model.OrderStateErrorInsufficientBalance {
		text = fmt.Sprintf("order %s: no account covers %d units, manual intervention required", orderID, order.TotalUnits)
	}
	s.notifyOrder(ctx, order, model.OrderStatePendingManualApproval, text)

	return order, eligible, nil
}

// RejectOrder отклоняет заказ на этапе ручной проверки. Балансы не затрагиваются.
func (s *Service) RejectOrder(ctx context.Context, orderID uuid.UUID, adminID int64, reason string) (*model.Order, error) {
	order, err := s.repo.RejectOrder(ctx, orderID, adminID, reason, model.OrderStatePendingManualApproval)
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, order, model.OrderStatePendingManualApproval, fmt.Sprintf("order %s rejected: %s", orderID, reason))

	return order, nil
}

// EligibleAccounts пересчитывает подходящие счета для заказа, ожидающего выбора.
// Нужна администратору, переподключившемуся между одобрением и выбором счёта:
// повторный ApproveOrder уже невозможен.
func (s *Service) EligibleAccounts(ctx context.Context, orderID uuid.UUID) ([]model.Account, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateAwaitingAccountSelection {
		return nil, fmt.Errorf("%w: order is %s", repository.ErrInvalidState, order.State)
	}

	return s.repo.EligibleAccounts(ctx, order.CustomerID, order.TotalUnits)
}

// SelectAccountAndComplete списывает сумму заказа с выбранного счёта и завершает
// заказ. Баланс перепроверяется в момент списания: между одобрением и выбором
// счёта его мог потратить параллельный заказ. При нехватке средств заказ
// остаётся в AWAITING_ACCOUNT_SELECTION и администратор выбирает другой счёт.
func (s *Service) SelectAccountAndComplete(ctx context.Context, orderID uuid.UUID, adminID, accountID int64) (*model.Order, error) {
	order, err := s.repo.CompleteOrder(ctx, orderID, adminID, accountID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order completed",
		zap.String("order", orderID.String()),
		zap.Int64("admin", adminID),
		zap.Int64("account", accountID),
		zap.Int64("total", order.TotalUnits),
	)

	s.notifyOrder(ctx, order, model.OrderStateAwaitingAccountSelection,
		fmt.Sprintf("order %s completed, account %d debited %d units", orderID, accountID, order.TotalUnits))

	return order, nil
}

// OverrideReject — документированный аварийный выход для зависших заказов:
// перевод из AWAITING_ACCOUNT_SELECTION в REJECTED вне автоматического графа.
// Фиксируется как действие администратора.
func (s *Service) OverrideReject(ctx context.Context, orderID uuid.UUID, adminID int64, reason string) (*model.Order, error) {
	order, err := s.repo.RejectOrder(ctx, orderID, adminID, reason, model.OrderStateAwaitingAccountSelection)
	if err != nil {
		return nil, err
	}

	s.logger.Warn("order rejected by admin override",
		zap.String("order", orderID.String()),
		zap.Int64("admin", adminID),
		zap.String("reason", reason),
	)

	s.notifyOrder(ctx, order, model.OrderStateAwaitingAccountSelection,
		fmt.Sprintf("order %s rejected by administrator: %s", orderID, reason))

	return order, nil
}
