package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/cartengine/internal/domain"
	pkgkafka "github.com/utafrali/cartengine/pkg/kafka"
)

// Kafka topics for cart domain events.
var (
	TopicCartUpdated = pkgkafka.Topic("cart", "updated")
	TopicCartCleared = pkgkafka.Topic("cart", "cleared")
)

// Event type constants.
const (
	EventTypeCartUpdated = "cart.updated"
	EventTypeCartCleared = "cart.cleared"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from the cart engine.
const SourceCartEngine = "cart-engine"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartKey       string     `json:"cart_key"`
	Lines         []LineData `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	TotalPrice    int64      `json:"total_price"`
}

// LineData is the line payload within cart events.
type LineData struct {
	ProductID string `json:"product_id"`
	ColorID   string `json:"color_id,omitempty"`
	Size      string `json:"size,omitempty"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	CartKey string `json:"cart_key"`
}

// Publisher sends an envelope event to a topic. *pkgkafka.Producer satisfies
// it; tests substitute a recording stub.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart engine.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event for the given storage slot.
func (p *Producer) PublishCartUpdated(ctx context.Context, cartKey string, st domain.State) error {
	lines := make([]LineData, len(st.Lines))
	for i, l := range st.Lines {
		lines[i] = LineData{
			ProductID: l.ProductID,
			ColorID:   l.ColorID,
			Size:      l.Size,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	data := CartUpdatedData{
		CartKey:       cartKey,
		Lines:         lines,
		TotalQuantity: st.TotalQuantity,
		TotalPrice:    st.TotalPrice,
	}

	event, err := pkgkafka.NewEvent(EventTypeCartUpdated, cartKey, AggregateTypeCart, SourceCartEngine, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_key", cartKey),
		slog.Int("total_quantity", st.TotalQuantity),
	)

	return nil
}

// PublishCartCleared publishes a cart.cleared event for the given storage slot.
func (p *Producer) PublishCartCleared(ctx context.Context, cartKey string) error {
	data := CartClearedData{CartKey: cartKey}

	event, err := pkgkafka.NewEvent(EventTypeCartCleared, cartKey, AggregateTypeCart, SourceCartEngine, data)
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("cart_key", cartKey),
	)

	return nil
}
