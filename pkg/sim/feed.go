// Package sim drives a demo market: a random-walk price feed and a
// generator that submits synthetic orders around the current price.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/wire"
)

// PriceFeed is a random walk: each step moves the price by up to
// ±Volatility of its current value.
type PriceFeed struct {
	mu         sync.Mutex
	price      decimal.Decimal
	volatility float64
	rng        *rand.Rand
}

func NewPriceFeed(initial decimal.Decimal, volatility float64, seed int64) *PriceFeed {
	return &PriceFeed{
		price:      initial,
		volatility: volatility,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (f *PriceFeed) Current() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price
}

// Step advances the walk once and returns the new price.
func (f *PriceFeed) Step() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stepLocked()
}

func (f *PriceFeed) stepLocked() decimal.Decimal {
	move := decimal.NewFromFloat(f.volatility * (f.rng.Float64()*2 - 1))
	next := f.price.Add(f.price.Mul(move)).Round(2)
	if next.IsPositive() {
		f.price = next
	}
	return f.price
}

// Tick advances the walk and returns a PRICE_UPDATE with a random
// volume in [0, 2).
func (f *PriceFeed) Tick(now time.Time) wire.PriceUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	price := f.stepLocked()
	volume := decimal.NewFromFloat(f.rng.Float64() * 2).Round(6)
	return wire.PriceUpdate{
		Type:      wire.TypePriceUpdate,
		Price:     price,
		Volume:    volume,
		Timestamp: now,
	}
}

func (f *PriceFeed) float() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64()
}

func (f *PriceFeed) intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Intn(n)
}
