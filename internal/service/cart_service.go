package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"storefront-service/internal/commerce"
	"storefront-service/internal/entity"
)

// ErrDuplicateRequest is returned when an idempotency key was already used.
var ErrDuplicateRequest = errors.New("idempotent key already exists")

const idempotencyTTL = 24 * time.Hour

// CartBackend is the part of the commerce client that reads and mutates carts.
type CartBackend interface {
	CreateCart(ctx context.Context, regionID string) (*entity.Cart, error)
	RetrieveCart(ctx context.Context, cartID string) (*entity.Cart, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int, metadata map[string]interface{}) (*entity.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*entity.Cart, error)
	UpdateLineItemMetadata(ctx context.Context, cartID, lineID string, metadata map[string]interface{}) (*entity.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, lineID string) (*entity.Cart, error)
}

// RegionResolver maps a country code to its backend region.
type RegionResolver interface {
	Region(ctx context.Context, countryCode string) (*entity.Region, error)
}

// Journal records mutation attempts.
type Journal interface {
	Record(ctx context.Context, m *entity.Mutation) error
}

// EventWriter publishes cart events. *kafka.Writer satisfies it.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CartService forwards cart reads and mutations to the commerce backend. Each
// mutation is journaled and, when it succeeds, published as a cart event.
// The journal, the event writer and redis are optional.
type CartService struct {
	backend CartBackend
	regions RegionResolver
	journal Journal
	events  EventWriter
	rdb     *redis.Client
	now     func() time.Time
}

// NewCartService creates a new instance of CartService.
func NewCartService(backend CartBackend, regions RegionResolver, journal Journal, events EventWriter, rdb *redis.Client) *CartService {
	return &CartService{
		backend: backend,
		regions: regions,
		journal: journal,
		events:  events,
		rdb:     rdb,
		now:     time.Now,
	}
}

// Retrieve returns the cart or nil when it does not exist.
func (s *CartService) Retrieve(ctx context.Context, cartID string) (*entity.Cart, error) {
	cart, err := s.backend.RetrieveCart(ctx, cartID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error retrieving cart %s", cartID)
		return nil, err
	}
	return cart, nil
}

// GetOrCreate returns the cart with cartID, creating a cart in the country's
// region when it is missing.
func (s *CartService) GetOrCreate(ctx context.Context, cartID, countryCode string) (*entity.Cart, error) {
	if cartID != "" {
		cart, err := s.Retrieve(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if cart != nil {
			return cart, nil
		}
	}

	region, err := s.regions.Region(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.backend.CreateCart(ctx, region.ID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating cart in region %s", region.ID)
		return nil, err
	}
	if cart == nil {
		return nil, commerce.ErrNoCart
	}
	logger.Info().Msgf("Created cart %s for %s", cart.ID, countryCode)
	return cart, nil
}

// AddLineItem adds a variant to the cart. A non-empty idempotencyKey makes the
// call fail with ErrDuplicateRequest when the key was seen in the last 24h.
func (s *CartService) AddLineItem(ctx context.Context, cartID, variantID string, quantity int, metadata map[string]interface{}, idempotencyKey string) (*entity.Cart, error) {
	if err := s.claimIdempotentKey(ctx, idempotencyKey); err != nil {
		return nil, err
	}

	cart, err := s.backend.AddLineItem(ctx, cartID, variantID, quantity, metadata)
	s.afterMutation(ctx, entity.MutationAddLineItem, cartID, "", map[string]interface{}{
		"variant_id": variantID,
		"quantity":   quantity,
		"metadata":   metadata,
	}, err)
	return cart, err
}

func (s *CartService) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*entity.Cart, error) {
	cart, err := s.backend.UpdateLineItem(ctx, cartID, lineID, quantity)
	s.afterMutation(ctx, entity.MutationUpdateQuantity, cartID, lineID, map[string]interface{}{"quantity": quantity}, err)
	return cart, err
}

func (s *CartService) UpdateLineItemMetadata(ctx context.Context, cartID, lineID string, metadata map[string]interface{}) (*entity.Cart, error) {
	cart, err := s.backend.UpdateLineItemMetadata(ctx, cartID, lineID, metadata)
	s.afterMutation(ctx, entity.MutationUpdateMetadata, cartID, lineID, map[string]interface{}{"metadata": metadata}, err)
	return cart, err
}

func (s *CartService) DeleteLineItem(ctx context.Context, cartID, lineID string) (*entity.Cart, error) {
	cart, err := s.backend.DeleteLineItem(ctx, cartID, lineID)
	s.afterMutation(ctx, entity.MutationDeleteLineItem, cartID, lineID, nil, err)
	return cart, err
}

func (s *CartService) afterMutation(ctx context.Context, kind entity.MutationKind, cartID, lineID string, payload map[string]interface{}, callErr error) {
	m := &entity.Mutation{
		ID:        uuid.NewString(),
		CartID:    cartID,
		LineID:    lineID,
		Kind:      kind,
		Succeeded: callErr == nil,
		CreatedAt: s.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logger.Error().Err(err).Msgf("Error marshalling %s payload", kind)
		}
		m.Payload = string(raw)
	}
	if callErr != nil {
		m.Error = callErr.Error()
		logger.Error().Err(callErr).Str("kind", string(kind)).Str("cart_id", cartID).Str("line_id", lineID).Msg("Cart mutation failed")
	}

	if s.journal != nil {
		if err := s.journal.Record(ctx, m); err != nil {
			logger.Error().Err(err).Msgf("Error journaling mutation %s", m.ID)
		}
	}

	if callErr == nil {
		if err := s.publishCartEvent(ctx, m); err != nil {
			logger.Error().Err(err).Msgf("Error publishing %s for cart %s", kind, cartID)
		}
	}
}

func (s *CartService) publishCartEvent(ctx context.Context, m *entity.Mutation) error {
	if s.events == nil {
		return nil
	}
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// cart-line_item.added-cart_01 or cart-line_item.deleted-li_01
	target := m.LineID
	if target == "" {
		target = m.CartID
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("cart-%s-%s", m.Kind, target)),
		Value: value,
	}
	return s.events.WriteMessages(ctx, msg)
}

func (s *CartService) claimIdempotentKey(ctx context.Context, key string) error {
	if key == "" || s.rdb == nil {
		return nil
	}
	redisKey := fmt.Sprintf("idempotent-key:%s", key)
	ok, err := s.rdb.SetNX(ctx, redisKey, "exists", idempotencyTTL).Result()
	if err != nil {
		logger.Error().Err(err).Msgf("Error claiming idempotent key %s", key)
		return err
	}
	if !ok {
		logger.Warn().Msgf("Idempotent key %s already used", key)
		return ErrDuplicateRequest
	}
	return nil
}
