package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"storefront-service/internal/commerce"
	"storefront-service/internal/entity"
)

type fakeCatalogBackend struct {
	mu            sync.Mutex
	products      []entity.Product
	regions       []entity.Region
	productCalls  int
	regionCalls   int
	lastRegionID  string
	productsError error
}

func (f *fakeCatalogBackend) ListAllProducts(_ context.Context, q commerce.ProductQuery) ([]entity.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	f.lastRegionID = q.RegionID
	return f.products, f.productsError
}

func (f *fakeCatalogBackend) ListRegions(_ context.Context) ([]entity.Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regionCalls++
	return f.regions, nil
}

// fakeCartBackend keeps carts in memory and behaves like the store API.
type fakeCartBackend struct {
	mu       sync.Mutex
	carts    map[string]*entity.Cart
	nextID   int
	calls    []string
	metadata []map[string]interface{}
	failNext error
}

func newFakeCartBackend() *fakeCartBackend {
	return &fakeCartBackend{carts: map[string]*entity.Cart{}}
}

func (f *fakeCartBackend) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeCartBackend) copyCart(id string) *entity.Cart {
	c := *f.carts[id]
	c.Items = append([]entity.LineItem(nil), c.Items...)
	return &c
}

func (f *fakeCartBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCartBackend) CreateCart(_ context.Context, regionID string) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create:" + regionID); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("cart_%d", f.nextID)
	f.carts[id] = &entity.Cart{ID: id, RegionID: regionID, CurrencyCode: "eur"}
	return f.copyCart(id), nil
}

func (f *fakeCartBackend) RetrieveCart(_ context.Context, cartID string) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("retrieve:" + cartID); err != nil {
		return nil, err
	}
	if _, ok := f.carts[cartID]; !ok {
		return nil, nil
	}
	return f.copyCart(cartID), nil
}

func (f *fakeCartBackend) AddLineItem(_ context.Context, cartID, variantID string, quantity int, metadata map[string]interface{}) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add:" + variantID); err != nil {
		return nil, err
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, &commerce.StatusError{StatusCode: 404, Message: "cart not found"}
	}
	f.nextID++
	cart.Items = append(cart.Items, entity.LineItem{
		ID:        fmt.Sprintf("li_%d", f.nextID),
		VariantID: variantID,
		Quantity:  quantity,
		CreatedAt: fmt.Sprintf("2024-01-01T00:00:%02dZ", f.nextID),
		Metadata:  roundTrip(metadata),
	})
	f.metadata = append(f.metadata, metadata)
	return f.copyCart(cartID), nil
}

func (f *fakeCartBackend) UpdateLineItem(_ context.Context, cartID, lineID string, quantity int) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("update:%s:%d", lineID, quantity)); err != nil {
		return nil, err
	}
	item := f.carts[cartID].FindItem(lineID)
	if item == nil {
		return nil, &commerce.StatusError{StatusCode: 404, Message: "line not found"}
	}
	item.Quantity = quantity
	return f.copyCart(cartID), nil
}

func (f *fakeCartBackend) UpdateLineItemMetadata(_ context.Context, cartID, lineID string, metadata map[string]interface{}) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("metadata:" + lineID); err != nil {
		return nil, err
	}
	f.metadata = append(f.metadata, metadata)
	item := f.carts[cartID].FindItem(lineID)
	if item == nil {
		return nil, &commerce.StatusError{StatusCode: 404, Message: "line not found"}
	}
	item.Metadata = roundTrip(metadata)
	return f.copyCart(cartID), nil
}

func (f *fakeCartBackend) DeleteLineItem(_ context.Context, cartID, lineID string) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete:" + lineID); err != nil {
		return nil, err
	}
	cart := f.carts[cartID]
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ID != lineID {
			items = append(items, item)
		}
	}
	cart.Items = items
	return f.copyCart(cartID), nil
}

func (f *fakeCartBackend) Metadata() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.metadata...)
}

// roundTrip stores metadata the way the backend hands it back: decoded JSON.
func roundTrip(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	raw, _ := json.Marshal(metadata)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}

type staticRegions struct{}

func (staticRegions) Region(_ context.Context, countryCode string) (*entity.Region, error) {
	return &entity.Region{ID: "reg_" + countryCode}, nil
}

type fakeJournal struct {
	mu        sync.Mutex
	mutations []*entity.Mutation
}

func (j *fakeJournal) Record(_ context.Context, m *entity.Mutation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mutations = append(j.mutations, m)
	return nil
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}
