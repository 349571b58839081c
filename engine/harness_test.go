package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spinwheel/events"
	"spinwheel/models"
	"spinwheel/repository/memstore"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	testStartingBalance = 1000
	testAutoStartDelay  = 3 * time.Minute
)

// scriptedSource returns queued picks, then falls back to 0
type scriptedSource struct {
	mu    sync.Mutex
	picks []int
	seen  []int
}

func (s *scriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
	if len(s.picks) == 0 {
		return 0
	}
	p := s.picks[0]
	s.picks = s.picks[1:]
	return p % n
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(ctx context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	clock    *clockwork.FakeClock
	rng      *scriptedSource
	engine   *Engine
	wheels   service.WheelService
	users    service.UserService
	ledger   service.LedgerService
	recorder *eventRecorder
}

type harnessOption func(h *harness, cfg *Config, factory *service.UnitOfWorkFactory)

func withTickPeriod(d time.Duration) harnessOption {
	return func(h *harness, cfg *Config, factory *service.UnitOfWorkFactory) { cfg.TickPeriod = d }
}

func withPayout(p service.PayoutPolicy) harnessOption {
	return func(h *harness, cfg *Config, factory *service.UnitOfWorkFactory) { cfg.Payout = p }
}

// withEngineFactory makes the engine use a different unit of work factory than the services
func withEngineFactory(wrap func(service.UnitOfWorkFactory) service.UnitOfWorkFactory) harnessOption {
	return func(h *harness, cfg *Config, factory *service.UnitOfWorkFactory) { *factory = wrap(*factory) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	bus := events.NewSyncBus()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))
	store := memstore.NewStore(bus, clock)

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		clock:    clock,
		rng:      &scriptedSource{},
		recorder: &eventRecorder{},
	}
	bus.SubscribeAll(events.WheelEventTypes, h.recorder.handle)

	cfg := Config{
		MinQuorum:  3,
		TickPeriod: 5 * time.Second,
		Payout:     service.FixedPayout(100),
	}
	var engineFactory service.UnitOfWorkFactory = store
	for _, opt := range opts {
		opt(h, &cfg, &engineFactory)
	}

	h.engine = New(engineFactory, clock, h.rng, cfg)
	t.Cleanup(h.engine.Shutdown)

	h.wheels = service.NewWheelService(store, h.engine, clock, service.WheelRules{
		MinQuorum:         cfg.MinQuorum,
		AutoStartDelay:    testAutoStartDelay,
		SingleActiveWheel: false,
	})
	h.users = service.NewUserService(store, testStartingBalance)
	h.ledger = service.NewLedgerService(store)
	return h
}

func (h *harness) user(name string) *models.User {
	h.t.Helper()
	u, err := h.users.CreateUser(h.ctx, name)
	require.NoError(h.t, err)
	return u
}

func (h *harness) players(n int) []*models.User {
	h.t.Helper()
	names := []string{"ann", "ben", "cat", "dan", "eve", "fay", "gus", "hal", "ivy", "jon"}
	out := make([]*models.User, n)
	for i := range n {
		out[i] = h.user(names[i])
	}
	return out
}

func (h *harness) openWheel(entryFee int64, maxPlayers *int, joiners ...*models.User) *models.Wheel {
	h.t.Helper()
	host := h.user("host")
	wheel, err := h.wheels.CreateWheel(h.ctx, host.ID, entryFee, maxPlayers)
	require.NoError(h.t, err)
	for _, u := range joiners {
		// distinct join times keep the active order stable
		h.clock.Advance(time.Second)
		_, err := h.wheels.JoinWheel(h.ctx, wheel.ID, u.ID)
		require.NoError(h.t, err)
	}
	return wheel
}

func (h *harness) wheel(id int64) *models.WheelDetail {
	h.t.Helper()
	detail, err := h.wheels.GetWheel(h.ctx, id)
	require.NoError(h.t, err)
	return detail
}

func (h *harness) status(id int64) models.WheelStatus {
	return h.wheel(id).Wheel.Status
}

func (h *harness) balance(userID int64) int64 {
	h.t.Helper()
	u, err := h.users.GetUser(h.ctx, userID)
	require.NoError(h.t, err)
	return u.Coins
}

func (h *harness) totalCoins() int64 {
	h.t.Helper()
	total, err := h.ledger.TotalCoins(h.ctx)
	require.NoError(h.t, err)
	return total
}

var errStorageDown = errors.New("storage unavailable")

// flakyFactory fails Begin for the first n units of work
type flakyFactory struct {
	inner    service.UnitOfWorkFactory
	failures atomic.Int32
}

func (f *flakyFactory) Create() service.UnitOfWork {
	return &flakyUnitOfWork{UnitOfWork: f.inner.Create(), factory: f}
}

type flakyUnitOfWork struct {
	service.UnitOfWork
	factory *flakyFactory
}

func (u *flakyUnitOfWork) Begin(ctx context.Context) error {
	if u.factory.failures.Add(-1) >= 0 {
		return errStorageDown
	}
	return u.UnitOfWork.Begin(ctx)
}

// gatedFactory blocks the next Begin after arm until release is closed
type gatedFactory struct {
	inner   service.UnitOfWorkFactory
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedFactory(inner service.UnitOfWorkFactory) *gatedFactory {
	return &gatedFactory{
		inner:   inner,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (f *gatedFactory) Create() service.UnitOfWork {
	return &gatedUnitOfWork{UnitOfWork: f.inner.Create(), factory: f}
}

type gatedUnitOfWork struct {
	service.UnitOfWork
	factory *gatedFactory
}

func (u *gatedUnitOfWork) Begin(ctx context.Context) error {
	if u.factory.armed.CompareAndSwap(true, false) {
		u.factory.entered <- struct{}{}
		<-u.factory.release
	}
	return u.UnitOfWork.Begin(ctx)
}
