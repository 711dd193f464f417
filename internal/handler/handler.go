// Package handler содержит HTTP-обработчики API сервиса витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MENECHAN/storefront-system/internal/catalog"
	"github.com/MENECHAN/storefront-system/internal/middleware"
	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/repository"
	"github.com/MENECHAN/storefront-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, login, password string) (int64, error)
	AuthenticateCustomer(ctx context.Context, login, password string) (*model.Customer, error)

	GetCart(ctx context.Context, customerID int64) (*model.Cart, error)
	AddItem(ctx context.Context, customerID int64, catalogItemID string) (*model.Cart, error)
	RemoveItem(ctx context.Context, customerID int64, itemID int64) (*model.Cart, error)
	SubmitCart(ctx context.Context, customerID int64) (*model.Order, error)

	AttachProof(ctx context.Context, customerID int64, orderID uuid.UUID, proofRef string) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetAccountsByCustomer(ctx context.Context, customerID int64) ([]model.Account, error)

	GetOrdersByState(ctx context.Context, state model.OrderState) ([]model.Order, error)
	ApproveOrder(ctx context.Context, orderID uuid.UUID, adminID int64) (*model.Order, []model.Account, error)
	RejectOrder(ctx context.Context, orderID uuid.UUID, adminID int64, reason string) (*model.Order, error)
	EligibleAccounts(ctx context.Context, orderID uuid.UUID) ([]model.Account, error)
	SelectAccountAndComplete(ctx context.Context, orderID uuid.UUID, adminID, accountID int64) (*model.Order, error)
	OverrideReject(ctx context.Context, orderID uuid.UUID, adminID int64, reason string) (*model.Order, error)
	CreateAccount(ctx context.Context, customerID int64, name string, balance int64, friendCapacity int) (*model.Account, error)

	CreateFriendRequest(ctx context.Context, customerID, accountID int64) (*model.FriendRequest, error)
	GetFriendRequestsByCustomer(ctx context.Context, customerID int64) ([]model.FriendRequest, error)
	GetFriendRequestsByStatus(ctx context.Context, status model.FriendRequestStatus) ([]model.FriendRequest, error)
	ApproveFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error)
}

// Handler реализует HTTP-обработчики API сервиса витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID, err := h.service.RegisterCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{CustomerID: customerID})
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию покупателя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.AuthenticateCustomer(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{
		CustomerID: customer.ID,
		IsAdmin:    customer.IsAdmin,
	})
	w.WriteHeader(http.StatusOK)
}

// identity извлекает личность из контекста, отвечая 401 при её отсутствии.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// serviceError транслирует ошибки ядра в HTTP-статусы. Для ошибок ведомости
// (нехватка средств) текст сохраняется: администратор должен видеть текущий и
// требуемый баланс, чтобы выбрать другой счёт, а не повторять вслепую.
func (h *Handler) serviceError(w http.ResponseWriter, err error, logCtx string) {
	switch {
	case errors.Is(err, repository.ErrInvalidState),
		errors.Is(err, repository.ErrDuplicateItem):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, repository.ErrEmptyCart),
		errors.Is(err, repository.ErrLimitExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrRequestNotFound),
		errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, catalog.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(logCtx, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// GetCart возвращает активную корзину текущего покупателя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), id.CustomerID)
	if err != nil {
		h.serviceError(w, err, "get cart error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type addItemRequest struct {
	ItemID string `json:"item_id"`
}

// AddCartItem добавляет товар каталога в корзину текущего покупателя.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, err := h.service.AddItem(r.Context(), id.CustomerID, req.ItemID)
	if err != nil {
		h.serviceError(w, err, "add cart item error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// RemoveCartItem удаляет позицию из корзины текущего покупателя.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), id.CustomerID, itemID)
	if err != nil {
		h.serviceError(w, err, "remove cart item error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// SubmitCart оформляет заказ по корзине текущего покупателя.
func (h *Handler) SubmitCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	order, err := h.service.SubmitCart(r.Context(), id.CustomerID)
	if err != nil {
		h.serviceError(w, err, "submit cart error")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

type attachProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

// AttachProof прикрепляет подтверждение оплаты к заказу текущего покупателя.
func (h *Handler) AttachProof(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req attachProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidProofRef(req.ProofRef) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	order, err := h.service.AttachProof(r.Context(), id.CustomerID, orderID, req.ProofRef)
	if err != nil {
		h.serviceError(w, err, "attach proof error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// GetOrders возвращает заказы текущего покупателя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByCustomer(r.Context(), id.CustomerID)
	if err != nil {
		h.serviceError(w, err, "get orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// GetAccounts возвращает счета текущего покупателя.
func (h *Handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.GetAccountsByCustomer(r.Context(), id.CustomerID)
	if err != nil {
		h.serviceError(w, err, "get accounts error")
		return
	}

	if len(accounts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, accounts)
}

type friendRequestRequest struct {
	AccountID int64 `json:"account_id"`
}

// CreateFriendRequest создаёт заявку в друзья от текущего покупателя.
func (h *Handler) CreateFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req friendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	fr, err := h.service.CreateFriendRequest(r.Context(), id.CustomerID, req.AccountID)
	if err != nil {
		h.serviceError(w, err, "create friend request error")
		return
	}

	h.writeJSON(w, http.StatusCreated, fr)
}

// GetFriendRequests возвращает заявки текущего покупателя.
func (h *Handler) GetFriendRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	requests, err := h.service.GetFriendRequestsByCustomer(r.Context(), id.CustomerID)
	if err != nil {
		h.serviceError(w, err, "get friend requests error")
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, requests)
}
