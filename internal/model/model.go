// Package model содержит доменные сущности витрины магазина.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer представляет зарегистрированного покупателя.
type Customer struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}

// Account представляет привязанный к покупателю счёт с балансом во внутренних
// единицах и счётчиком занятых слотов друзей.
type Account struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"-"`
	Name           string    `json:"name"`
	Balance        int64     `json:"balance"`
	FriendCount    int       `json:"friend_count"`
	FriendCapacity int       `json:"friend_capacity"`
	CreatedAt      time.Time `json:"-"`
}

// CartStatus описывает статус корзины.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusSubmitted CartStatus = "submitted"
	CartStatusClosed    CartStatus = "closed"
)

// CartItem — позиция корзины, неизменяемый снимок товара каталога на момент добавления.
type CartItem struct {
	ID            int64  `json:"id"`
	CatalogItemID string `json:"catalog_item_id"`
	Name          string `json:"name"`
	PriceUnits    int64  `json:"price"`
	Category      string `json:"category"`
}

// Cart — корзина покупателя до оформления заказа.
type Cart struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID int64      `json:"-"`
	Status     CartStatus `json:"status"`
	Items      []CartItem `json:"items"`
	TotalUnits int64      `json:"total"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`
}

// OrderState описывает состояние заказа в машине состояний.
type OrderState string

const (
	OrderStatePendingPaymentProof      OrderState = "PENDING_PAYMENT_PROOF"
	OrderStatePendingManualApproval    OrderState = "PENDING_MANUAL_APPROVAL"
	OrderStateAwaitingAccountSelection OrderState = "AWAITING_ACCOUNT_SELECTION"
	OrderStateCompleted                OrderState = "COMPLETED"
	OrderStateRejected                 OrderState = "REJECTED"
	OrderStateErrorInsufficientBalance OrderState = "ERROR_INSUFFICIENT_BALANCE"
)

// Terminal сообщает, является ли состояние конечным: из него нет переходов.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateCompleted, OrderStateRejected, OrderStateErrorInsufficientBalance:
		return true
	}
	return false
}

// Order — долговременная запись об оформленном заказе и его прохождении по
// машине состояний. Снимок позиций фиксируется при оформлении и больше не меняется.
type Order struct {
	ID             uuid.UUID  `json:"id"`
	CartID         uuid.UUID  `json:"cart_id"`
	CustomerID     int64      `json:"-"`
	Items          []CartItem `json:"items"`
	TotalUnits     int64      `json:"total"`
	TotalFiatCents int64      `json:"total_fiat"`
	State          OrderState `json:"state"`
	ProofRef       *string    `json:"proof_ref,omitempty"`
	AdminID        *int64     `json:"-"`
	AccountID      *int64     `json:"account_id,omitempty"`
	Notes          string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FriendRequestStatus описывает статус заявки в друзья.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestApproved FriendRequestStatus = "approved"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest — заявка покупателя на добавление в друзья к счёту.
// Проходит тот же цикл approve/reject, что и заказ, но без списания баланса.
type FriendRequest struct {
	ID         int64               `json:"id"`
	CustomerID int64               `json:"-"`
	AccountID  int64               `json:"account_id"`
	Status     FriendRequestStatus `json:"status"`
	AdminID    *int64              `json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
