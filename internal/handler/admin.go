package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MENECHAN/storefront-system/internal/model"
)

// Административные обработчики. Все мутации идут через условные переходы ядра:
// повтор запроса после обрыва получает 409, а не второе исполнение.

var reviewableStates = map[model.OrderState]bool{
	model.OrderStatePendingPaymentProof:      true,
	model.OrderStatePendingManualApproval:    true,
	model.OrderStateAwaitingAccountSelection: true,
	model.OrderStateCompleted:                true,
	model.OrderStateRejected:                 true,
	model.OrderStateErrorInsufficientBalance: true,
}

// GetAdminOrders возвращает очередь заказов в указанном состоянии.
func (h *Handler) GetAdminOrders(w http.ResponseWriter, r *http.Request) {
	state := model.OrderState(r.URL.Query().Get("state"))
	if state == "" {
		state = model.OrderStatePendingManualApproval
	}
	if !reviewableStates[state] {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orders, err := h.service.GetOrdersByState(r.Context(), state)
	if err != nil {
		h.serviceError(w, err, "get admin orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

type approveResponse struct {
	Order            *model.Order    `json:"order"`
	EligibleAccounts []model.Account `json:"eligible_accounts"`
}

// ApproveOrder одобряет заказ и возвращает счета, доступные для списания.
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, eligible, err := h.service.ApproveOrder(r.Context(), orderID, admin.CustomerID)
	if err != nil {
		h.serviceError(w, err, "approve order error")
		return
	}

	h.writeJSON(w, http.StatusOK, approveResponse{
		Order:            order,
		EligibleAccounts: eligible,
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectOrder отклоняет заказ на этапе ручной проверки.
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.RejectOrder(r.Context(), orderID, admin.CustomerID, req.Reason)
	if err != nil {
		h.serviceError(w, err, "reject order error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// GetEligibleAccounts пересчитывает подходящие счета для заказа в ожидании выбора.
func (h *Handler) GetEligibleAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.EligibleAccounts(r.Context(), orderID)
	if err != nil {
		h.serviceError(w, err, "eligible accounts error")
		return
	}

	h.writeJSON(w, http.StatusOK, accounts)
}

type completeRequest struct {
	AccountID int64 `json:"account_id"`
}

// CompleteOrder списывает сумму заказа с выбранного счёта и завершает заказ.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.SelectAccountAndComplete(r.Context(), orderID, admin.CustomerID, req.AccountID)
	if err != nil {
		h.serviceError(w, err, "complete order error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// OverrideReject переводит зависший заказ в REJECTED в обход автоматического графа.
func (h *Handler) OverrideReject(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.OverrideReject(r.Context(), orderID, admin.CustomerID, req.Reason)
	if err != nil {
		h.serviceError(w, err, "override reject error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type createAccountRequest struct {
	CustomerID     int64  `json:"customer_id"`
	Name           string `json:"name"`
	Balance        int64  `json:"balance"`
	FriendCapacity int    `json:"friend_capacity"`
}

// CreateAccount заводит счёт покупателю при онбординге инвентаря.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == 0 || req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.CustomerID, req.Name, req.Balance, req.FriendCapacity)
	if err != nil {
		h.serviceError(w, err, "create account error")
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// GetFriendRequestQueue возвращает заявки в друзья в указанном статусе.
func (h *Handler) GetFriendRequestQueue(w http.ResponseWriter, r *http.Request) {
	status := model.FriendRequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.FriendRequestPending
	}

	switch status {
	case model.FriendRequestPending, model.FriendRequestApproved, model.FriendRequestRejected:
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	requests, err := h.service.GetFriendRequestsByStatus(r.Context(), status)
	if err != nil {
		h.serviceError(w, err, "get friend request queue error")
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, requests)
}

func (h *Handler) friendRequestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// ApproveFriendRequest одобряет заявку в друзья.
func (h *Handler) ApproveFriendRequest(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	requestID, ok := h.friendRequestID(w, r)
	if !ok {
		return
	}

	fr, err := h.service.ApproveFriendRequest(r.Context(), requestID, admin.CustomerID)
	if err != nil {
		h.serviceError(w, err, "approve friend request error")
		return
	}

	h.writeJSON(w, http.StatusOK, fr)
}

// RejectFriendRequest отклоняет заявку в друзья.
func (h *Handler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	requestID, ok := h.friendRequestID(w, r)
	if !ok {
		return
	}

	fr, err := h.service.RejectFriendRequest(r.Context(), requestID, admin.CustomerID)
	if err != nil {
		h.serviceError(w, err, "reject friend request error")
		return
	}

	h.writeJSON(w, http.StatusOK, fr)
}
