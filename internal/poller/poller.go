package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/internal/repository"
	"github.com/fjod/cartsync/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const (
	consumerGroup = "cart-service-consumer"
	readBackoff   = time.Second
)

// CartClearer empties a user's cart after checkout.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) (*domain.AggregatedCart, error)
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	carts  CartClearer
	reader *kafka.Reader
	log    *slog.Logger
}

func NewPoller(carts CartClearer, topic string, log *slog.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  consumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{
		carts:  carts,
		reader: reader,
		log:    logger.OrDefault(log).With("component", "checkout-poller", "topic", topic),
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consume(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

func (p *Poller) consume(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		p.log.ErrorContext(ctx, "error reading message", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(readBackoff):
		}
		return
	}

	userID, err := parseCheckoutEvent(m.Value)
	if err != nil {
		p.log.WarnContext(ctx, "skipping checkout event", "offset", m.Offset, "error", err)
		return
	}

	if _, err := p.carts.ClearCart(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			p.log.InfoContext(ctx, "no cart to clear after checkout", "user_id", userID)
			return
		}
		p.log.ErrorContext(ctx, "failed to clear cart", "user_id", userID, "error", err)
		return
	}
	p.log.InfoContext(ctx, "cart cleared after checkout", "user_id", userID)
}

var errMissingUserID = errors.New("missing or invalid user_id")

func parseCheckoutEvent(value []byte) (string, error) {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return "", err
	}
	if event.UserID == "" {
		return "", errMissingUserID
	}
	return event.UserID, nil
}
