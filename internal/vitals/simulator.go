// Package vitals produces a simulated stream of physiological readings for
// dashboard display. The values are a bounded random walk, not measurements.
package vitals

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Snapshot is one set of simulated vitals
type Snapshot struct {
	HeartRate   float64   `json:"heartRate"`
	Temperature float64   `json:"temperature"`
	Systolic    float64   `json:"systolic"`
	Diastolic   float64   `json:"diastolic"`
	SpO2        float64   `json:"spo2"`
	Glucose     float64   `json:"glucose"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryPoint is one heart-rate sample of the rolling chart
type HistoryPoint struct {
	Time     string  `json:"time"`
	Value    float64 `json:"value"`
	Activity string  `json:"activity"`
}

// Tick is emitted by Run on every step
type Tick struct {
	Vitals  Snapshot       `json:"vitals"`
	History []HistoryPoint `json:"history"`
}

// Bounds is the inclusive clamp range of one field
type Bounds struct {
	Min, Max float64
}

func (b Bounds) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return b.Min
	}
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Contains reports whether v lies within the bounds
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Physiological ranges the walk never leaves.
var (
	HeartRateBounds   = Bounds{60, 130}
	TemperatureBounds = Bounds{97, 100}
	SystolicBounds    = Bounds{110, 140}
	DiastolicBounds   = Bounds{70, 90}
	SpO2Bounds        = Bounds{95, 100}
	GlucoseBounds     = Bounds{80, 140}
)

// DefaultInterval is the tick period when none is configured
const DefaultInterval = 2 * time.Second

const (
	historySize      = 20
	seedPoints       = 11
	activityResting  = "Rest"
	activityLive     = "Live"
	seedTimeLayout   = "15:04"
	liveTimeLayout   = "15:04:05"
	restingBaseline  = 70
	restingVariation = 20
)

// Initial returns the resting snapshot every simulator starts from
func Initial() Snapshot {
	return Snapshot{
		HeartRate:   72,
		Temperature: 98.6,
		Systolic:    120,
		Diastolic:   80,
		SpO2:        98,
		Glucose:     110,
	}
}

// Option configures a Simulator
type Option func(*Simulator)

// WithSeed makes the walk reproducible
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// WithJitter scales every perturbation. The clamps hold for any factor;
// NaN and infinite factors are ignored.
func WithJitter(factor float64) Option {
	return func(s *Simulator) {
		if math.IsNaN(factor) || math.IsInf(factor, 0) {
			return
		}
		s.jitter = factor
	}
}

// Simulator is a restartable bounded random walk over six vitals. It is safe
// for concurrent use.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	jitter  float64
	current Snapshot
	history []HistoryPoint
}

// NewSimulator creates a simulator at the resting snapshot with a seeded
// heart-rate history
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		now:    time.Now,
		jitter: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s.reset()
	return s
}

// Reset restarts the walk from the resting snapshot
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Simulator) reset() {
	now := s.now()
	s.current = Initial()
	s.current.Timestamp = now

	s.history = make([]HistoryPoint, 0, historySize)
	for i := seedPoints - 1; i >= 0; i-- {
		t := now.Add(-time.Duration(i) * time.Minute)
		s.history = append(s.history, HistoryPoint{
			Time:     t.Format(seedTimeLayout),
			Value:    float64(restingBaseline + s.rng.IntN(restingVariation)),
			Activity: activityResting,
		})
	}
}

// Current returns the latest snapshot
func (s *Simulator) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns a copy of the rolling heart-rate history, oldest first
func (s *Simulator) History() []HistoryPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryPoint(nil), s.history...)
}

// Step advances the walk by one tick and returns the new snapshot
func (s *Simulator) Step() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	next := Snapshot{
		HeartRate:   math.Round(HeartRateBounds.clamp(prev.HeartRate + s.delta(5))),
		Temperature: roundTenth(TemperatureBounds.clamp(prev.Temperature + s.delta(0.1))),
		Systolic:    math.Round(SystolicBounds.clamp(prev.Systolic + s.delta(2))),
		Diastolic:   math.Round(DiastolicBounds.clamp(prev.Diastolic + s.delta(2))),
		SpO2:        math.Round(SpO2Bounds.clamp(prev.SpO2 + s.delta(1))),
		Glucose:     math.Round(GlucoseBounds.clamp(prev.Glucose + s.delta(2))),
		Timestamp:   s.now(),
	}
	s.current = next

	s.history = append(s.history, HistoryPoint{
		Time:     next.Timestamp.Format(liveTimeLayout),
		Value:    next.HeartRate,
		Activity: activityLive,
	})
	if len(s.history) > historySize {
		s.history = append(s.history[:0], s.history[len(s.history)-historySize:]...)
	}

	return next
}

// delta is a signed perturbation in [-scale/2, scale/2) times the jitter
func (s *Simulator) delta(scale float64) float64 {
	return (s.rng.Float64() - 0.5) * scale * s.jitter
}

// Run steps the walk every interval and hands each tick to fn until ctx is
// done or fn returns an error. A cancelled context is not an error.
func (s *Simulator) Run(ctx context.Context, interval time.Duration, fn func(Tick) error) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot := s.Step()
			if err := fn(Tick{Vitals: snapshot, History: s.History()}); err != nil {
				return err
			}
		}
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
