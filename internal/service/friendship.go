package service

import (
	"context"
	"fmt"

	"github.com/MENECHAN/storefront-system/internal/model"
	"github.com/MENECHAN/storefront-system/internal/notifier"
)

// Заявки в друзья проходят тот же цикл approve/reject, что и заказы,
// но вместо списания баланса одобрение занимает слот друга на счёте.

// CreateFriendRequest создаёт заявку покупателя на добавление в друзья к счёту.
func (s *Service) CreateFriendRequest(ctx context.Context, customerID, accountID int64) (*model.FriendRequest, error) {
	fr, err := s.repo.CreateFriendRequest(ctx, customerID, accountID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notifier.Message{
		Audience:   notifier.AudienceAdmin,
		CustomerID: customerID,
		Event:      notifier.EventFriendRequestDecided,
		RequestID:  fr.ID,
		To:         string(fr.Status),
		Text:       fmt.Sprintf("friend request %d awaiting review", fr.ID),
	})

	return fr, nil
}

// GetFriendRequestsByCustomer возвращает заявки покупателя.
func (s *Service) GetFriendRequestsByCustomer(ctx context.Context, customerID int64) ([]model.FriendRequest, error) {
	return s.repo.GetFriendRequestsByCustomer(ctx, customerID)
}

// GetFriendRequestsByStatus возвращает очередь заявок для администратора.
func (s *Service) GetFriendRequestsByStatus(ctx context.Context, status model.FriendRequestStatus) ([]model.FriendRequest, error) {
	return s.repo.GetFriendRequestsByStatus(ctx, status)
}

// ApproveFriendRequest одобряет заявку, атомарно занимая слот друга.
func (s *Service) ApproveFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	fr, err := s.repo.ApproveFriendRequest(ctx, requestID, adminID)
	if err != nil {
		return nil, err
	}

	s.notifyFriendRequest(ctx, fr)

	return fr, nil
}

// RejectFriendRequest отклоняет заявку.
func (s *Service) RejectFriendRequest(ctx context.Context, requestID, adminID int64) (*model.FriendRequest, error) {
	fr, err := s.repo.RejectFriendRequest(ctx, requestID, adminID)
	if err != nil {
		return nil, err
	}

	s.notifyFriendRequest(ctx, fr)

	return fr, nil
}

func (s *Service) notifyFriendRequest(ctx context.Context, fr *model.FriendRequest) {
	s.notify(ctx, notifier.Message{
		Audience:   notifier.AudienceCustomer,
		CustomerID: fr.CustomerID,
		Event:      notifier.EventFriendRequestDecided,
		RequestID:  fr.ID,
		From:       string(model.FriendRequestPending),
		To:         string(fr.Status),
		Text:       fmt.Sprintf("friend request %d %s", fr.ID, fr.Status),
	})
}
