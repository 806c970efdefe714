// Package notify содержит реализации доставки уведомлений о событиях заказов.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/confmerch-system/internal/model"
)

// Типы событий в исходящих уведомлениях.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Message — полезная нагрузка уведомления. Один формат для всех каналов
// доставки: вебхука операторов и канала Redis для живой ленты бэк-офиса.
type Message struct {
	Type          string            `json:"type"`
	OrderID       string            `json:"order_id"`
	EventID       int64             `json:"event_id"`
	Status        model.OrderStatus `json:"status"`
	PrevStatus    model.OrderStatus `json:"prev_status,omitempty"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	FinalTotal    int64             `json:"final_total"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func orderCreatedMessage(o *model.Order) Message {
	return Message{
		Type:          EventOrderCreated,
		OrderID:       o.ID,
		EventID:       o.EventID,
		Status:        o.Status,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		FinalTotal:    o.Cost.FinalTotal,
		OccurredAt:    time.Now().UTC(),
	}
}

func statusChangedMessage(o *model.Order, from, to model.OrderStatus) Message {
	return Message{
		Type:          EventOrderStatusChanged,
		OrderID:       o.ID,
		EventID:       o.EventID,
		Status:        to,
		PrevStatus:    from,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		FinalTotal:    o.Cost.FinalTotal,
		OccurredAt:    time.Now().UTC(),
	}
}

// WebhookNotifier отправляет уведомления POST-запросом на внешний обработчик.
// На стороне обработчика живут рендеринг и отправка писем: смена статуса
// заказа лишь триггерит его.
type WebhookNotifier struct {
	url    string
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewWebhookNotifier создаёт нотификатор для указанного адреса вебхука.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	return &WebhookNotifier{
		url:    url,
		client: client,
		logger: logger,
	}
}

// OrderCreated отправляет уведомление о новом заказе.
func (w *WebhookNotifier) OrderCreated(ctx context.Context, o *model.Order) {
	w.post(ctx, orderCreatedMessage(o))
}

// OrderStatusChanged отправляет уведомление о смене статуса заказа.
func (w *WebhookNotifier) OrderStatusChanged(ctx context.Context, o *model.Order, from, to model.OrderStatus) {
	w.post(ctx, statusChangedMessage(o, from, to))
}

func (w *WebhookNotifier) post(ctx context.Context, msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Warn("marshal notification", zap.Error(err))
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("create notification request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("deliver notification", zap.Error(err), zap.String("type", msg.Type))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		w.logger.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("type", msg.Type),
			zap.String("order", msg.OrderID),
		)
	}
}

// RedisNotifier публикует уведомления в канал Redis, откуда их забирает
// живая лента бэк-офиса.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier создаёт нотификатор с подключением к Redis по адресу addr.
func NewRedisNotifier(addr, channel string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		logger:  logger,
	}
}

// OrderCreated публикует событие нового заказа.
func (r *RedisNotifier) OrderCreated(ctx context.Context, o *model.Order) {
	r.publish(ctx, orderCreatedMessage(o))
}

// OrderStatusChanged публикует событие смены статуса.
func (r *RedisNotifier) OrderStatusChanged(ctx context.Context, o *model.Order, from, to model.OrderStatus) {
	r.publish(ctx, statusChangedMessage(o, from, to))
}

func (r *RedisNotifier) publish(ctx context.Context, msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("marshal notification", zap.Error(err))
		return
	}

	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		r.logger.Warn("publish notification",
			zap.Error(err),
			zap.String("channel", r.channel),
			zap.String("type", msg.Type),
		)
	}
}

// Close закрывает подключение к Redis.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
