package service

import (
	"context"
	"fmt"

	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/notifier"
)

// GetCart возвращает активную корзину покупателя, создавая её при первом обращении.
func (s *Service) GetCart(ctx context.Context, customerID int64) (*model.Cart, error) {
	return s.repo.GetOrCreateActiveCart(ctx, customerID)
}

// AddItem находит товар в каталоге и добавляет его неизменяемый снимок в
// активную корзину покупателя. Каталог опрашивается ровно один раз: дальнейшие
// изменения цены или названия на заказ не влияют.
func (s *Service) AddItem(ctx context.Context, customerID int64, catalogItemID string) (*model.Cart, error) {
	item, err := s.catalog.FindItem(ctx, catalogItemID)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateActiveCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	snapshot := model.CartItem{
		CatalogItemID: item.ID,
		Name:          item.Name,
		PriceUnits:    item.Price,
		Category:      item.Category,
	}

	updated, err := s.repo.AddCartItem(ctx, cart.ID, snapshot, s.limits.CartMaxItems, s.limits.CartMaxTotal)
	if err != nil {
		return nil, err
	}

	s.notifyCart(ctx, updated)

	return updated, nil
}

// RemoveItem удаляет позицию из активной корзины покупателя.
func (s *Service) RemoveItem(ctx context.Context, customerID int64, itemID int64) (*model.Cart, error) {
	cart, err := s.repo.GetOrCreateActiveCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.RemoveCartItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}

	s.notifyCart(ctx, updated)

	return updated, nil
}

// SubmitCart оформляет заказ по активной корзине покупателя. Корзина и заказ
// меняются одной транзакцией: повторное оформление той же корзины невозможно.
func (s *Service) SubmitCart(ctx context.Context, customerID int64) (*model.Order, error) {
	cart, err := s.repo.GetOrCreateActiveCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.SubmitCart(ctx, cart.ID, s.limits.FiatRateCents)
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, order, "", fmt.Sprintf("order %s created, awaiting payment proof", order.ID))

	return order, nil
}

func (s *Service) notifyCart(ctx context.Context, cart *model.Cart) {
	s.notify(ctx, notifier.Message{
		Audience:   notifier.AudienceCustomer,
		CustomerID: cart.CustomerID,
		Event:      notifier.EventCartChanged,
		Text:       fmt.Sprintf("cart updated: %d item(s), total %d units", len(cart.Items), cart.TotalUnits),
	})
}
