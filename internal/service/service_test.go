package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MENECHAN/storefront-system/internal/catalog"
	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/notifier"
	"github.com/MENECHAN/storefront-system/internal/repository"
)

type stubCatalog struct {
	mu    sync.Mutex
	items map[string]catalog.Item
}

func (s *stubCatalog) FindItem(_ context.Context, itemID string) (*catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	cp := it
	return &cp, nil
}

func (s *stubCatalog) setPrice(itemID string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.items[itemID]
	it.Price = price
	s.items[itemID] = it
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notifier.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *stubCatalog, *recordingNotifier) {
	t.Helper()

	repo := newFakeRepo()
	cat := &stubCatalog{items: map[string]catalog.Item{
		"sword":  {ID: "sword", Name: "Steel Sword", Price: 500, Category: "weapons"},
		"shield": {ID: "shield", Name: "Oak Shield", Price: 300, Category: "armor"},
		"potion": {ID: "potion", Name: "Minor Potion", Price: 50, Category: "consumables"},
		"relic":  {ID: "relic", Name: "Ancient Relic", Price: 850, Category: "rare"},
	}}
	notif := &recordingNotifier{}

	svc := NewService(repo, cat, notif, nil, Limits{
		CartMaxItems:  25,
		CartMaxTotal:  1000000,
		FiatRateCents: 100,
	})

	return svc, repo, cat, notif
}

// placeOrder доводит заказ покупателя до ручной проверки: корзина, оформление,
// подтверждение оплаты.
func placeOrder(t *testing.T, svc *Service, customerID int64, itemIDs ...string) *model.Order {
	t.Helper()
	ctx := context.Background()

	for _, id := range itemIDs {
		if _, err := svc.AddItem(ctx, customerID, id); err != nil {
			t.Fatalf("AddItem(%s): %v", id, err)
		}
	}

	order, err := svc.SubmitCart(ctx, customerID)
	if err != nil {
		t.Fatalf("SubmitCart: %v", err)
	}
	if order.State != model.OrderStatePendingPaymentProof {
		t.Fatalf("after submit state = %s, want %s", order.State, model.OrderStatePendingPaymentProof)
	}

	order, err = svc.AttachProof(ctx, customerID, order.ID, "receipt-001")
	if err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	if order.State != model.OrderStatePendingManualApproval {
		t.Fatalf("after proof state = %s, want %s", order.State, model.OrderStatePendingManualApproval)
	}

	return order
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.RegisterCustomer(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("RegisterCustomer: %v", err)
	}

	c, err := svc.AuthenticateCustomer(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("AuthenticateCustomer: %v", err)
	}
	if c.ID != id {
		t.Errorf("authenticated customer id = %d, want %d", c.ID, id)
	}

	if _, err := svc.AuthenticateCustomer(ctx, "alice", "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}

	if _, err := svc.RegisterCustomer(ctx, "alice", "other"); !errors.Is(err, repository.ErrCustomerExists) {
		t.Errorf("duplicate register error = %v, want ErrCustomerExists", err)
	}
}

func TestAddItem_SnapshotsCatalog(t *testing.T) {
	svc, _, cat, _ := newTestService(t)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 1, "sword")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if cart.TotalUnits != 500 {
		t.Fatalf("cart total = %d, want 500", cart.TotalUnits)
	}

	// Цена в каталоге меняется после добавления — снимок в корзине остаётся прежним.
	cat.setPrice("sword", 9000)

	order, err := svc.SubmitCart(ctx, 1)
	if err != nil {
		t.Fatalf("SubmitCart: %v", err)
	}
	if order.TotalUnits != 500 {
		t.Errorf("order total = %d, want snapshot price 500", order.TotalUnits)
	}
	if order.Items[0].Name != "Steel Sword" {
		t.Errorf("item name = %q, want snapshot name", order.Items[0].Name)
	}
}

func TestAddItem_UnknownItem(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.AddItem(context.Background(), 1, "missing"); !errors.Is(err, catalog.ErrItemNotFound) {
		t.Errorf("error = %v, want catalog.ErrItemNotFound", err)
	}
}

func TestAddItem_DuplicateItem(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, 1, "sword"); err != nil {
		t.Fatalf("first AddItem: %v", err)
	}
	if _, err := svc.AddItem(ctx, 1, "sword"); !errors.Is(err, repository.ErrDuplicateItem) {
		t.Errorf("error = %v, want ErrDuplicateItem", err)
	}
}

func TestAddItem_Limits(t *testing.T) {
	_, repo, cat, _ := newTestService(t)
	svc := NewService(repo, cat, nil, nil, Limits{
		CartMaxItems:  2,
		CartMaxTotal:  600,
		FiatRateCents: 100,
	})
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, 1, "shield"); err != nil {
		t.Fatalf("AddItem(shield): %v", err)
	}

	// 300 + 500 превышает предел суммы.
	if _, err := svc.AddItem(ctx, 1, "sword"); !errors.Is(err, repository.ErrLimitExceeded) {
		t.Errorf("total cap error = %v, want ErrLimitExceeded", err)
	}

	if _, err := svc.AddItem(ctx, 1, "potion"); err != nil {
		t.Fatalf("AddItem(potion): %v", err)
	}

	// Третья позиция превышает предел количества.
	if _, err := svc.AddItem(ctx, 1, "relic"); !errors.Is(err, repository.ErrLimitExceeded) {
		t.Errorf("count cap error = %v, want ErrLimitExceeded", err)
	}
}

func TestRemoveItem(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, 1, "sword")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err = svc.RemoveItem(ctx, 1, cart.Items[0].ID)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 0 || cart.TotalUnits != 0 {
		t.Errorf("cart after removal: %d items, total %d, want empty", len(cart.Items), cart.TotalUnits)
	}

	if _, err := svc.RemoveItem(ctx, 1, 999); !errors.Is(err, repository.ErrItemNotFound) {
		t.Errorf("error = %v, want ErrItemNotFound", err)
	}
}

func TestSubmitCart_Empty(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.SubmitCart(context.Background(), 1); !errors.Is(err, repository.ErrEmptyCart) {
		t.Errorf("error = %v, want ErrEmptyCart", err)
	}
}

func TestSubmitCart_FiatConversion(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, 1, "shield"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	order, err := svc.SubmitCart(ctx, 1)
	if err != nil {
		t.Fatalf("SubmitCart: %v", err)
	}
	if order.TotalFiatCents != 300*100 {
		t.Errorf("fiat total = %d, want %d", order.TotalFiatCents, 300*100)
	}
}

func TestNotifierFailure_DoesNotFailOperation(t *testing.T) {
	svc, _, _, notif := newTestService(t)
	notif.err = errors.New("notifier down")

	cart, err := svc.AddItem(context.Background(), 1, "sword")
	if err != nil {
		t.Fatalf("AddItem should succeed despite notifier failure: %v", err)
	}
	if cart.TotalUnits != 500 {
		t.Errorf("cart total = %d, want 500", cart.TotalUnits)
	}
	if notif.count() == 0 {
		t.Error("notifier was not invoked")
	}
}

func TestNotify_NilNotifier(t *testing.T) {
	_, repo, cat, _ := newTestService(t)
	svc := NewService(repo, cat, nil, nil, Limits{CartMaxItems: 25, CartMaxTotal: 1000000, FiatRateCents: 100})

	if _, err := svc.AddItem(context.Background(), 1, "sword"); err != nil {
		t.Fatalf("AddItem with nil notifier: %v", err)
	}
}
