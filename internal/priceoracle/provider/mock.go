package provider

import (
	"context"
	"math"
	"sync/atomic"
)

var _ Provider = (*MockProvider)(nil)

// MockProvider returns a fixed (but updatable) price, used by devnet
// configs and tests, mirroring a price-feeder's ProviderMock/ProviderZero.
type MockProvider struct {
	name  Name
	price atomic.Uint64 // bits of a float64
}

func NewMockProvider(name Name, initialPrice float64) *MockProvider {
	p := &MockProvider{name: name}
	p.SetPrice(initialPrice)
	return p
}

func (p *MockProvider) Name() Name { return p.name }

func (p *MockProvider) FetchPrice(ctx context.Context) (float64, error) {
	return math.Float64frombits(p.price.Load()), nil
}

func (p *MockProvider) SetPrice(price float64) {
	p.price.Store(math.Float64bits(price))
}
