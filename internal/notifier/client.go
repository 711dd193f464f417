// Package notifier предоставляет клиент доставки уведомлений в каналы
// покупателей и администраторов. Доставка строго после фиксации перехода:
// сбой уведомления никогда не откатывает состояние.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Audience определяет получателя уведомления.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceAdmin    Audience = "admin"
)

// Типы событий уведомлений. Закрытый набор, по одному на действие.
const (
	EventCartChanged          = "cart_changed"
	EventOrderStateChanged    = "order_state_changed"
	EventFriendRequestDecided = "friend_request_decided"
)

// Message — структурированное уведомление о событии ядра.
type Message struct {
	Audience   Audience `json:"audience"`
	CustomerID int64    `json:"customer_id"`
	Event      string   `json:"event"`
	OrderID    string   `json:"order_id,omitempty"`
	RequestID  int64    `json:"request_id,omitempty"`
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
	Text       string   `json:"text"`
}

// Client инкапсулирует HTTP-взаимодействие с сервисом уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент уведомлений. Без синхронных повторов: уведомления
// best-effort, таймаут ограничивает время ожидания.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify отправляет уведомление. Ошибку обрабатывает вызывающий: логирует и не повторяет.
func (c *Client) Notify(ctx context.Context, msg Message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notifier client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/notify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
