package analytics

import (
	"sync"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// Default hourly rates in USD per engine size. Self-hosted engines are
// never metered, so the "host" pseudo-size carries no rate.
var defaultRates = map[engine.Size]float64{
	engine.SizeE4:  0.46,
	engine.SizeE8:  0.91,
	engine.SizeE16: 1.82,
	engine.SizeE32: 3.65,
}

// CostEstimator converts metered engine uptime into a dollar estimate.
// The zero value is not usable; construct with NewCostEstimator.
type CostEstimator struct {
	mu    sync.RWMutex
	rates map[engine.Size]float64
}

// NewCostEstimator returns an estimator loaded with the default rates.
func NewCostEstimator() *CostEstimator {
	rates := make(map[engine.Size]float64, len(defaultRates))
	for k, v := range defaultRates {
		rates[k] = v
	}
	return &CostEstimator{rates: rates}
}

// SetRate overrides the hourly rate for a size. Useful when pricing
// changes ahead of a library release, or for private deployments with
// negotiated rates.
func (c *CostEstimator) SetRate(size engine.Size, hourlyUSD float64) {
	c.mu.Lock()
	c.rates[size] = hourlyUSD
	c.mu.Unlock()
}

// Rate returns the hourly rate for a size, or zero if unknown.
func (c *CostEstimator) Rate(size engine.Size) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rates[size]
}

// Estimate returns uptime * rate(size), prorated to the second. Unmetered
// engines and unknown sizes estimate to zero.
func (c *CostEstimator) Estimate(size engine.Size, uptime time.Duration, metered bool) float64 {
	if !metered || uptime <= 0 {
		return 0
	}
	rate := c.Rate(size)
	if rate == 0 {
		return 0
	}
	return uptime.Seconds() * rate / 3600
}
