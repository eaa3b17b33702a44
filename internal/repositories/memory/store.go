// Package memory implements the repository ports in process. A single lock
// is held for the whole of each unit of work and the state is restored from
// a snapshot when the unit of work fails, which gives serializable,
// all-or-nothing transactions for local runs and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

type state struct {
	seq         map[string]int64
	users       map[int64]models.User
	tickets     map[int64]models.CatalogItem
	products    map[int64]models.CatalogItem
	carts       map[int64]models.Cart
	cartByUser  map[int64]int64
	items       map[int64]models.CartItem
	orders      map[int64]models.Order
	payments    map[int64]models.Payment
	rewards     map[int64]models.Reward
	redemptions map[int64]models.Redemption
	entries     []models.LoyaltyEntry
	entryKeys   map[string]struct{}
	outbox      map[int64]models.OutboxEvent
}

func newState() *state {
	return &state{
		seq:         map[string]int64{},
		users:       map[int64]models.User{},
		tickets:     map[int64]models.CatalogItem{},
		products:    map[int64]models.CatalogItem{},
		carts:       map[int64]models.Cart{},
		cartByUser:  map[int64]int64{},
		items:       map[int64]models.CartItem{},
		orders:      map[int64]models.Order{},
		payments:    map[int64]models.Payment{},
		rewards:     map[int64]models.Reward{},
		redemptions: map[int64]models.Redemption{},
		entryKeys:   map[string]struct{}{},
		outbox:      map[int64]models.OutboxEvent{},
	}
}

// clone copies every table. Records are stored by value and nested
// pointers are replaced rather than written through, so a shallow copy of
// each map is a full snapshot.
func (s *state) clone() *state {
	return &state{
		seq:         maps.Clone(s.seq),
		users:       maps.Clone(s.users),
		tickets:     maps.Clone(s.tickets),
		products:    maps.Clone(s.products),
		carts:       maps.Clone(s.carts),
		cartByUser:  maps.Clone(s.cartByUser),
		items:       maps.Clone(s.items),
		orders:      maps.Clone(s.orders),
		payments:    maps.Clone(s.payments),
		rewards:     maps.Clone(s.rewards),
		redemptions: maps.Clone(s.redemptions),
		entries:     slices.Clone(s.entries),
		entryKeys:   maps.Clone(s.entryKeys),
		outbox:      maps.Clone(s.outbox),
	}
}

func (s *state) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) catalog(t models.ItemType) map[int64]models.CatalogItem {
	if t == models.ItemProduct {
		return s.products
	}
	return s.tickets
}

// Store is an in-memory unit of work
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{state: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn while holding the store lock. Any error or panic restores
// the state captured before fn started.
func (s *Store) WithTx(ctx context.Context, fn func(tx repositories.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()

	if err := fn(&txRepos{st: s.state, now: s.now}); err != nil {
		return err
	}

	committed = true
	return nil
}

type txRepos struct {
	st  *state
	now func() time.Time
}

func (t *txRepos) Inventory() repositories.InventoryRepository { return &inventoryRepo{t} }
func (t *txRepos) Carts() repositories.CartRepository          { return &cartRepo{t} }
func (t *txRepos) Orders() repositories.OrderRepository        { return &orderRepo{t} }
func (t *txRepos) Payments() repositories.PaymentRepository    { return &paymentRepo{t} }
func (t *txRepos) Loyalty() repositories.LoyaltyRepository     { return &loyaltyRepo{t} }
func (t *txRepos) Rewards() repositories.RewardRepository      { return &rewardRepo{t} }
func (t *txRepos) Outbox() repositories.OutboxRepository       { return &outboxRepo{t} }

// SeedUser inserts a user and returns it with its assigned ID
func (s *Store) SeedUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		u.ID = s.state.nextID("users")
	} else if u.ID > s.state.seq["users"] {
		s.state.seq["users"] = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.state.users[u.ID] = u
	return u
}

// SeedCatalogItem inserts a ticket or product and returns it with its assigned ID
func (s *Store) SeedCatalogItem(item models.CatalogItem) models.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := string(item.Ref.Type)
	if item.Ref.ID == 0 {
		item.Ref.ID = s.state.nextID(table)
	} else if item.Ref.ID > s.state.seq[table] {
		s.state.seq[table] = item.Ref.ID
	}
	s.state.catalog(item.Ref.Type)[item.Ref.ID] = item
	return item
}

// SeedReward inserts a reward and returns it with its assigned ID
func (s *Store) SeedReward(r models.Reward) models.Reward {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		r.ID = s.state.nextID("rewards")
	}
	if r.Status == "" {
		r.Status = models.RewardActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.state.rewards[r.ID] = r
	return r
}

// CatalogItem returns the current counters of an item, tombstoned or not
func (s *Store) CatalogItem(ref models.ItemRef) (models.CatalogItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.catalog(ref.Type)[ref.ID]
	return item, ok
}

// User returns the current balance record of a user
func (s *Store) User(id int64) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[id]
	return u, ok
}

// Counts reports the number of rows per table, for assertions
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]int{
		"orders":          len(s.state.orders),
		"payments":        len(s.state.payments),
		"redemptions":     len(s.state.redemptions),
		"loyalty_entries": len(s.state.entries),
		"outbox_events":   len(s.state.outbox),
		"cart_items":      len(s.state.items),
	}
}

// OutboxEvents returns every stored event ordered by ID
func (s *Store) OutboxEvents() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := slices.Collect(maps.Values(s.state.outbox))
	slices.SortFunc(events, func(a, b models.OutboxEvent) int { return int(a.ID - b.ID) })
	return events
}
