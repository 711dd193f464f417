package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/repository"
)

// fakeRepo — репозиторий в памяти с той же семантикой условных переходов, что и
// у PostgreSQL-реализации: каждая мутация проверяет предусловие и применяет
// изменение атомарно под мьютексом. На нём проверяются гонки координатора.
type fakeRepo struct {
	mu sync.Mutex

	nextID    int64
	customers map[int64]*model.Customer
	accounts  map[int64]*model.Account
	carts     map[uuid.UUID]*model.Cart
	orders    map[uuid.UUID]*model.Order
	requests  map[int64]*model.FriendRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers: make(map[int64]*model.Customer),
		accounts:  make(map[int64]*model.Account),
		carts:     make(map[uuid.UUID]*model.Cart),
		orders:    make(map[uuid.UUID]*model.Order),
		requests:  make(map[int64]*model.FriendRequest),
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) CreateCustomer(_ context.Context, login string, hash []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.customers {
		if c.Login == login {
			return 0, repository.ErrCustomerExists
		}
	}

	id := f.id()
	f.customers[id] = &model.Customer{ID: id, Login: login, PasswordHash: hash}
	return id, nil
}

func (f *fakeRepo) GetCustomerByLogin(_ context.Context, login string) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.customers {
		if c.Login == login {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (f *fakeRepo) CreateAccount(_ context.Context, customerID int64, name string, balance int64, friendCapacity int) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.id()
	a := &model.Account{
		ID:             id,
		CustomerID:     customerID,
		Name:           name,
		Balance:        balance,
		FriendCapacity: friendCapacity,
	}
	f.accounts[id] = a

	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetAccountsByCustomer(_ context.Context, customerID int64) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountsLocked(customerID, 0), nil
}

func (f *fakeRepo) EligibleAccounts(_ context.Context, customerID int64, minBalance int64) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountsLocked(customerID, minBalance), nil
}

func (f *fakeRepo) accountsLocked(customerID int64, minBalance int64) []model.Account {
	var res []model.Account
	for _, a := range f.accounts {
		if a.CustomerID == customerID && a.Balance >= minBalance {
			res = append(res, *a)
		}
	}
	return res
}

func (f *fakeRepo) GetOrCreateActiveCart(_ context.Context, customerID int64) (*model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.carts {
		if c.CustomerID == customerID && c.Status == model.CartStatusActive {
			return copyCart(c), nil
		}
	}

	c := &model.Cart{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     model.CartStatusActive,
	}
	f.carts[c.ID] = c
	return copyCart(c), nil
}

func copyCart(c *model.Cart) *model.Cart {
	cp := *c
	cp.Items = append([]model.CartItem(nil), c.Items...)
	return &cp
}

func copyOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.CartItem(nil), o.Items...)
	return &cp
}

func (f *fakeRepo) AddCartItem(_ context.Context, cartID uuid.UUID, item model.CartItem, maxItems int, maxTotal int64) (*model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if c.Status != model.CartStatusActive {
		return nil, fmt.Errorf("%w: cart is %s", repository.ErrInvalidState, c.Status)
	}
	for _, it := range c.Items {
		if it.CatalogItemID == item.CatalogItemID {
			return nil, fmt.Errorf("%w: %s", repository.ErrDuplicateItem, item.CatalogItemID)
		}
	}
	if len(c.Items) >= maxItems {
		return nil, fmt.Errorf("%w: cart holds %d items", repository.ErrLimitExceeded, len(c.Items))
	}
	if c.TotalUnits+item.PriceUnits > maxTotal {
		return nil, fmt.Errorf("%w: cart total over cap", repository.ErrLimitExceeded)
	}

	item.ID = f.id()
	c.Items = append(c.Items, item)
	c.TotalUnits += item.PriceUnits
	return copyCart(c), nil
}

func (f *fakeRepo) RemoveCartItem(_ context.Context, cartID uuid.UUID, itemID int64) (*model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if c.Status != model.CartStatusActive {
		return nil, fmt.Errorf("%w: cart is %s", repository.ErrInvalidState, c.Status)
	}

	for i, it := range c.Items {
		if it.ID == itemID {
			c.TotalUnits -= it.PriceUnits
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return copyCart(c), nil
		}
	}

	return nil, fmt.Errorf("%w: %d", repository.ErrItemNotFound, itemID)
}

func (f *fakeRepo) SubmitCart(_ context.Context, cartID uuid.UUID, fiatRateCents int64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if c.Status != model.CartStatusActive {
		return nil, fmt.Errorf("%w: cart is %s", repository.ErrInvalidState, c.Status)
	}
	if len(c.Items) == 0 {
		return nil, repository.ErrEmptyCart
	}
	for _, o := range f.orders {
		if o.CartID == cartID && !o.State.Terminal() {
			return nil, fmt.Errorf("%w: cart already has a live order", repository.ErrInvalidState)
		}
	}

	c.Status = model.CartStatusSubmitted

	o := &model.Order{
		ID:             uuid.New(),
		CartID:         cartID,
		CustomerID:     c.CustomerID,
		Items:          append([]model.CartItem(nil), c.Items...),
		TotalUnits:     c.TotalUnits,
		TotalFiatCents: c.TotalUnits * fiatRateCents,
		State:          model.OrderStatePendingPaymentProof,
	}
	f.orders[o.ID] = o
	return copyOrder(o), nil
}

func (f *fakeRepo) GetOrder(_ context.Context, orderID uuid.UUID) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeRepo) GetOrdersByCustomer(_ context.Context, customerID int64) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []model.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			res = append(res, *copyOrder(o))
		}
	}
	return res, nil
}

func (f *fakeRepo) GetOrdersByState(_ context.Context, state model.OrderState) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []model.Order
	for _, o := range f.orders {
		if o.State == state {
			res = append(res, *copyOrder(o))
		}
	}
	return res, nil
}

func (f *fakeRepo) AttachProof(_ context.Context, orderID uuid.UUID, proofRef string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.State != model.OrderStatePendingPaymentProof {
		return nil, fmt.Errorf("%w: order is %s", repository.ErrInvalidState, o.State)
	}

	o.State = model.OrderStatePendingManualApproval
	o.ProofRef = &proofRef
	return copyOrder(o), nil
}

func (f *fakeRepo) ApproveOrder(_ context.Context, orderID uuid.UUID, adminID int64) (model.OrderState, []model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return "", nil, repository.ErrOrderNotFound
	}
	if o.State != model.OrderStatePendingManualApproval {
		return "", nil, fmt.Errorf("%w: order is %s", repository.ErrInvalidState, o.State)
	}

	eligible := f.accountsLocked(o.CustomerID, o.TotalUnits)

	o.AdminID = &adminID
	if len(eligible) == 0 {
		o.State = model.OrderStateErrorInsufficientBalance
	} else {
		o.State = model.OrderStateAwaitingAccountSelection
	}

	return o.State, eligible, nil
}

func (f *fakeRepo) RejectOrder(_ context.Context, orderID uuid.UUID, adminID int64, reason string, from model.OrderState) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.State != from {
		return nil, fmt.Errorf("%w: order is %s", repository.ErrInvalidState, o.State)
	}

	o.State = model.OrderStateRejected
	o.AdminID = &adminID
	o.Notes += "rejected: " + reason + "\n"
	return copyOrder(o), nil
}

func (f *fakeRepo) CompleteOrder(_ context.Context, orderID uuid.UUID, adminID, accountID int64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.State != model.OrderStateAwaitingAccountSelection {
		return nil, fmt.Errorf("%w: order is %s", repository.ErrInvalidState, o.State)
	}

	a, ok := f.accounts[accountID]
	if !ok || a.CustomerID != o.CustomerID {
		return nil, fmt.Errorf("%w: %d", repository.ErrAccountNotFound, accountID)
	}
	if a.Balance < o.TotalUnits {
		return nil, fmt.Errorf("%w: balance %d, required %d", repository.ErrInsufficientBalance, a.Balance, o.TotalUnits)
	}

	a.Balance -= o.TotalUnits
	o.State = model.OrderStateCompleted
	o.AdminID = &adminID
	o.AccountID = &accountID
	o.Notes += fmt.Sprintf("debited %d, balance %d -> %d\n", o.TotalUnits, a.Balance+o.TotalUnits, a.Balance)

	if c, ok := f.carts[o.CartID]; ok {
		c.Status = model.CartStatusClosed
	}

	return copyOrder(o), nil
}

func (f *fakeRepo) CreateFriendRequest(_ context.Context, customerID, accountID int64) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[accountID]; !ok {
		return nil, fmt.Errorf("%w: %d", repository.ErrAccountNotFound, accountID)
	}

	id := f.id()
	fr := &model.FriendRequest{
		ID:         id,
		CustomerID: customerID,
		AccountID:  accountID,
		Status:     model.FriendRequestPending,
	}
	f.requests[id] = fr

	cp := *fr
	return &cp, nil
}

func (f *fakeRepo) GetFriendRequestsByCustomer(_ context.Context, customerID int64) ([]model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []model.FriendRequest
	for _, fr := range f.requests {
		if fr.CustomerID == customerID {
			res = append(res, *fr)
		}
	}
	return res, nil
}

func (f *fakeRepo) GetFriendRequestsByStatus(_ context.Context, status model.FriendRequestStatus) ([]model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []model.FriendRequest
	for _, fr := range f.requests {
		if fr.Status == status {
			res = append(res, *fr)
		}
	}
	return res, nil
}

func (f *fakeRepo) ApproveFriendRequest(_ context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fr, ok := f.requests[requestID]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	if fr.Status != model.FriendRequestPending {
		return nil, fmt.Errorf("%w: request is %s", repository.ErrInvalidState, fr.Status)
	}

	a, ok := f.accounts[fr.AccountID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", repository.ErrAccountNotFound, fr.AccountID)
	}
	if a.FriendCount >= a.FriendCapacity {
		return nil, fmt.Errorf("%w: no free friend slots on account %d", repository.ErrLimitExceeded, a.ID)
	}

	a.FriendCount++
	fr.Status = model.FriendRequestApproved
	fr.AdminID = &adminID

	cp := *fr
	return &cp, nil
}

func (f *fakeRepo) RejectFriendRequest(_ context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fr, ok := f.requests[requestID]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	if fr.Status != model.FriendRequestPending {
		return nil, fmt.Errorf("%w: request is %s", repository.ErrInvalidState, fr.Status)
	}

	fr.Status = model.FriendRequestRejected
	fr.AdminID = &adminID

	cp := *fr
	return &cp, nil
}

func (f *fakeRepo) accountBalance(accountID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[accountID].Balance
}
