package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"index_risk_sentinel/config"
	"index_risk_sentinel/logs"
)

//
// Simulated broker and index feed for running the sentinel without a live account
//

var (
	_ Client         = (*MockClient)(nil)
	_ BackdropSource = (*MockClient)(nil)
)

type simPosition struct {
	pos         Position
	entryPrice  float64
	mtmPerPoint float64
	mtmOverride *float64
	closed      bool
	exitCount   int
	failExits   int
}

// MockClient simulates index prices and the MTM of open positions.
// Prices move in "sine", "meltdown" or "rally" mode once Start is called; tests drive it with SetPrice and Step.
type MockClient struct {
	mu             sync.RWMutex
	currentPrice   map[string]float64
	initialPrice   map[string]float64
	cumVolume      map[string]int64
	positions      map[string]*simPosition
	backdrop       Backdrop
	simulationMode string
	simulationTime float64
	amplitudePct   float64
	periodTicks    float64
	tickInterval   time.Duration
	stopChan       chan struct{}
	stopOnce       sync.Once
	now            func() time.Time
}

// NewMockClient creates a simulator with no symbols and no positions.
func NewMockClient() *MockClient {
	return &MockClient{
		currentPrice:   make(map[string]float64),
		initialPrice:   make(map[string]float64),
		cumVolume:      make(map[string]int64),
		positions:      make(map[string]*simPosition),
		backdrop:       Backdrop{VIX: 20},
		simulationMode: "sine",
		amplitudePct:   1.0,
		periodTicks:    600,
		tickInterval:   time.Second,
		stopChan:       make(chan struct{}),
		now:            time.Now,
	}
}

// NewMockClientFromConfig builds a simulator seeded with the configured prices and positions.
func NewMockClientFromConfig(sim *config.SimulationConfig) *MockClient {
	c := NewMockClient()
	tick := time.Duration(sim.TickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Second
	}
	period := float64(time.Duration(sim.PeriodMinutes)*time.Minute) / float64(tick)
	c.SetPriceSimulationParams(sim.Mode, sim.InitialPrices, sim.AmplitudePct, period, tick)
	if sim.VIX > 0 {
		c.SetBackdrop(Backdrop{VIX: sim.VIX, VolumeSurge: sim.VolumeSurge, NewsImpact: strings.ToUpper(sim.NewsImpact)})
	}
	for _, p := range sim.Positions {
		c.AddPosition(Position{
			ID:       p.ID,
			Symbol:   strings.ToUpper(p.Symbol),
			Strategy: strings.ToUpper(p.Strategy),
			Lots:     p.Lots,
		}, p.MTMPerPoint)
	}
	return c
}

// SetPriceSimulationParams configures the price path.
func (c *MockClient) SetPriceSimulationParams(mode string, initialPrices map[string]float64, amplitudePct, periodTicks float64, tick time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulationMode = mode
	c.amplitudePct = amplitudePct
	if periodTicks > 0 {
		c.periodTicks = periodTicks
	}
	if tick > 0 {
		c.tickInterval = tick
	}
	for symbol, price := range initialPrices {
		symbol = strings.ToUpper(symbol)
		c.initialPrice[symbol] = price
		c.currentPrice[symbol] = price
	}
	logs.Infof("[Mock Client] Price simulator configured. Mode: %s, amplitude: %.2f%%, symbols: %d", mode, amplitudePct, len(initialPrices))
}

// SetBackdrop replaces the simulated market backdrop.
func (c *MockClient) SetBackdrop(b Backdrop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backdrop = b
}

// GetMarketBackdrop returns the simulated backdrop.
func (c *MockClient) GetMarketBackdrop(_ context.Context) (Backdrop, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backdrop, nil
}

// Start starts the price simulator goroutine.
func (c *MockClient) Start() {
	go c.runPriceSimulator()
}

// Stop gracefully stops the simulator. It is safe to call more than once.
func (c *MockClient) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *MockClient) runPriceSimulator() {
	c.mu.RLock()
	interval := c.tickInterval
	c.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.Step()
		}
	}
}

// Step advances the simulated market by one tick.
func (c *MockClient) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulationTime++
	for symbol, base := range c.initialPrice {
		c.currentPrice[symbol] = c.nextPrice_noLock(base)
		c.cumVolume[symbol] += 50 + int64(25*math.Abs(math.Sin(c.simulationTime)))
	}
}

func (c *MockClient) nextPrice_noLock(base float64) float64 {
	amp := c.amplitudePct / 100
	progress := c.simulationTime / c.periodTicks
	switch c.simulationMode {
	case "meltdown":
		return base * (1 - amp*math.Min(progress, 2))
	case "rally":
		return base * (1 + amp*math.Min(progress, 2))
	default:
		return base * (1 + amp*math.Sin(2*math.Pi*progress))
	}
}

// SetPrice pins the current price of a symbol, registering it when new.
func (c *MockClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	c.currentPrice[symbol] = price
	if _, ok := c.initialPrice[symbol]; !ok {
		c.initialPrice[symbol] = price
	}
}

// AddPosition opens a simulated position at the symbol's current price.
// Its MTM moves by mtmPerPoint per index point per lot.
func (c *MockClient) AddPosition(pos Position, mtmPerPoint float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos.EntryTime.IsZero() {
		pos.EntryTime = c.now()
	}
	c.positions[pos.ID] = &simPosition{
		pos:         pos,
		entryPrice:  c.currentPrice[pos.Symbol],
		mtmPerPoint: mtmPerPoint,
	}
}

// SetMTM fixes a position's MTM regardless of price.
func (c *MockClient) SetMTM(positionID string, mtm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.positions[positionID]; ok {
		v := mtm
		p.mtmOverride = &v
	}
}

// FailNextExits makes the next n exit attempts for a position fail.
func (c *MockClient) FailNextExits(positionID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.positions[positionID]; ok {
		p.failExits = n
	}
}

// ExitCount returns how many exit attempts were made for a position.
func (c *MockClient) ExitCount(positionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.positions[positionID]; ok {
		return p.exitCount
	}
	return 0
}

func (c *MockClient) GetCurrentPrice(_ context.Context, symbol string) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbol = strings.ToUpper(symbol)
	price, ok := c.currentPrice[symbol]
	if !ok || price <= 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return Quote{Symbol: symbol, Price: price, Volume: c.cumVolume[symbol], Timestamp: c.now()}, nil
}

func (c *MockClient) GetCurrentMTM(_ context.Context, positionID string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[positionID]
	if !ok || p.closed {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, positionID)
	}
	return c.mtm_noLock(p), nil
}

func (c *MockClient) mtm_noLock(p *simPosition) float64 {
	if p.mtmOverride != nil {
		return *p.mtmOverride
	}
	move := c.currentPrice[p.pos.Symbol] - p.entryPrice
	return move * p.mtmPerPoint * float64(p.pos.Lots)
}

func (c *MockClient) ListOpenPositions(_ context.Context) ([]Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Position, 0, len(c.positions))
	for _, p := range c.positions {
		if !p.closed {
			out = append(out, p.pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MockClient) ExitPosition(_ context.Context, pos Position, reason string) (ExitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.positions[pos.ID]
	if !ok || p.closed {
		return ExitResult{}, fmt.Errorf("%w: %s", ErrUnknownPosition, pos.ID)
	}
	p.exitCount++
	if p.failExits > 0 {
		p.failExits--
		return ExitResult{}, fmt.Errorf("%w: %s (simulated)", ErrExitRejected, pos.ID)
	}
	p.closed = true
	realized := c.mtm_noLock(p)
	logs.Infof("[Mock] Position %s (%s %s x%d) closed at MTM %.2f, reason: %s", pos.ID, p.pos.Strategy, p.pos.Symbol, p.pos.Lots, realized, reason)
	return ExitResult{PositionID: pos.ID, RealizedPnL: realized, ExitedAt: c.now()}, nil
}
