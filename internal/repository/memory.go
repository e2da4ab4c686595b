package repository

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

type memState struct {
	events  map[string]model.EventListing
	tiers   map[string]model.TicketTier
	orders  map[string]model.Order
	tickets map[string]model.Ticket
	codes   map[string]string // code -> ticket id
}

func newMemState() *memState {
	return &memState{
		events:  make(map[string]model.EventListing),
		tiers:   make(map[string]model.TicketTier),
		orders:  make(map[string]model.Order),
		tickets: make(map[string]model.Ticket),
		codes:   make(map[string]string),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		events:  maps.Clone(s.events),
		tiers:   maps.Clone(s.tiers),
		orders:  maps.Clone(s.orders),
		tickets: maps.Clone(s.tickets),
		codes:   maps.Clone(s.codes),
	}
}

// MemoryStore is an in-process Store. A single mutex serialises every
// operation; InTx works on a copy of the state and swaps it in on success.
//
// fn passed to InTx must only use the Tx it is given: calling back into the
// store from inside a transaction deadlocks.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) CreateEvent(_ context.Context, event *model.EventListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *event
	e.Tiers = nil
	m.state.events[e.ID] = e
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*model.EventListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.Tiers = m.state.tiersOf(id)
	return &e, nil
}

func (m *MemoryStore) ListEvents(_ context.Context) ([]model.EventListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]model.EventListing, 0, len(m.state.events))
	for _, e := range m.state.events {
		e.Tiers = m.state.tiersOf(e.ID)
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (m *MemoryStore) CreateTier(_ context.Context, tier *model.TicketTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.events[tier.EventID]; !ok {
		return ErrNotFound
	}
	m.state.tiers[tier.ID] = *tier
	return nil
}

func (m *MemoryStore) GetTier(_ context.Context, id string) (*model.TicketTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) ListTiers(_ context.Context, eventID string) ([]model.TicketTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	return m.state.tiersOf(eventID), nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := *order
	o.Tickets = nil
	m.state.orders[o.ID] = o
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) FindOrderByRef(_ context.Context, method model.PaymentMethod, ref string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref == "" {
		return nil, ErrNotFound
	}
	for _, o := range m.state.orders {
		if o.PaymentMethod == method && o.ProviderRef == ref {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListTickets(_ context.Context, orderID string) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ticketsOf(orderID), nil
}

func (m *MemoryStore) GetTicketInfo(_ context.Context, code string) (*model.TicketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return m.state.info(m.state.tickets[id]), nil
}

func (m *MemoryStore) SetTicketVisual(_ context.Context, ticketID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	t.VisualRef = ref
	m.state.tickets[ticketID] = t
	return nil
}

func (m *MemoryStore) RedeemTicket(_ context.Context, code string) (*model.TicketInfo, RedeemOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.codes[code]
	if !ok {
		return nil, RedeemNotFound, nil
	}
	t := m.state.tickets[id]
	if t.Status != model.TicketValid {
		return m.state.info(t), RedeemAlreadyUsed, nil
	}
	t.Status = model.TicketUsed
	m.state.tickets[id] = t
	return m.state.info(t), RedeemAccepted, nil
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s *memState) tiersOf(eventID string) []model.TicketTier {
	var tiers []model.TicketTier
	for _, t := range s.tiers {
		if t.EventID == eventID {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Price < tiers[j].Price })
	return tiers
}

func (s *memState) ticketsOf(orderID string) []model.Ticket {
	var tickets []model.Ticket
	for _, t := range s.tickets {
		if t.OrderID == orderID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Code < tickets[j].Code })
	return tickets
}

func (s *memState) info(t model.Ticket) *model.TicketInfo {
	tier := s.tiers[t.TierID]
	return &model.TicketInfo{
		Ticket:    t,
		EventName: s.events[tier.EventID].Name,
		TierName:  tier.Name,
	}
}

type memTx struct {
	state *memState
}

func (t *memTx) LockOrder(_ context.Context, id string) (*model.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, order *model.Order) error {
	if _, ok := t.state.orders[order.ID]; !ok {
		return ErrNotFound
	}
	o := *order
	o.Tickets = nil
	t.state.orders[o.ID] = o
	return nil
}

func (t *memTx) LockTier(_ context.Context, id string) (*model.TicketTier, error) {
	tier, ok := t.state.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tier, nil
}

func (t *memTx) SetTierSold(_ context.Context, id string, sold int) error {
	tier, ok := t.state.tiers[id]
	if !ok {
		return ErrNotFound
	}
	tier.SoldQuantity = sold
	t.state.tiers[id] = tier
	return nil
}

func (t *memTx) TicketsByOrder(_ context.Context, orderID string) ([]model.Ticket, error) {
	return t.state.ticketsOf(orderID), nil
}

func (t *memTx) InsertTicket(_ context.Context, ticket *model.Ticket) error {
	if _, taken := t.state.codes[ticket.Code]; taken {
		return ErrDuplicateCode
	}
	t.state.tickets[ticket.ID] = *ticket
	t.state.codes[ticket.Code] = ticket.ID
	return nil
}

func (t *memTx) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := t.state.codes[code]
	return ok, nil
}
