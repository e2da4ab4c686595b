package issuance

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/render"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/ticketcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRenderer struct{ err error }

func (s stubRenderer) Render(_ context.Context, code string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "/static/qrs/" + code + ".png", nil
}

type countingNotifier struct {
	calls atomic.Int32
	last  atomic.Pointer[notify.Notice]
	err   error
}

func (c *countingNotifier) Notify(_ context.Context, n notify.Notice) error {
	c.calls.Add(1)
	c.last.Store(&n)
	return c.err
}

// seed stores an event, a tier with total seats and one order for quantity
// tickets in the given status.
func seed(t *testing.T, store *repository.MemoryStore, total, quantity int, status model.PaymentStatus) *model.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateEvent(ctx, &model.EventListing{
		ID: "evt-1", Name: "Pool Party",
		StartsAt: time.Now(), EndsAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.CreateTier(ctx, &model.TicketTier{
		ID: "tier-1", EventID: "evt-1", Name: "Regular", Price: 100, TotalQuantity: total,
	}))
	order := &model.Order{
		ID:            "order-1",
		Buyer:         model.Buyer{Name: "Amina", Email: "amina@example.com"},
		TierID:        "tier-1",
		Quantity:      quantity,
		Amount:        100 * int64(quantity),
		PaymentMethod: model.MethodMpesaPush,
		PaymentStatus: status,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateOrder(ctx, order))
	return order
}

func newTestIssuer(store repository.Store, codes *ticketcode.Generator, r render.Renderer, n notify.Notifier) *Issuer {
	if codes == nil {
		codes = ticketcode.NewGenerator()
	}
	return NewIssuer(IssuerProperty{
		Store:    store,
		Ledger:   inventory.NewLedger(store),
		Codes:    codes,
		Renderer: r,
		Notifier: n,
		Logger:   zap.NewNop(),
	})
}

func soldOf(t *testing.T, store repository.Store) int {
	t.Helper()
	tier, err := store.GetTier(context.Background(), "tier-1")
	require.NoError(t, err)
	return tier.SoldQuantity
}

func TestIssueRequiresPaidOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 10, 2, model.StatusPending)
	issuer := newTestIssuer(store, nil, nil, nil)

	_, err := issuer.Issue(context.Background(), "order-1")
	assert.ErrorIs(t, err, ErrNotPaid)
	assert.Equal(t, 0, soldOf(t, store))
}

func TestIssueIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 10, 3, model.StatusPaid)
	notifier := &countingNotifier{}
	issuer := newTestIssuer(store, nil, stubRenderer{}, notifier)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, first, 3)
	for _, tk := range first {
		assert.Equal(t, "/static/qrs/"+tk.Code+".png", tk.VisualRef)
	}

	second, err := issuer.Issue(ctx, "order-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, codes(first), codes(second))

	assert.Equal(t, 3, soldOf(t, store))
	assert.Equal(t, int32(1), notifier.calls.Load())

	order, err := store.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, order.Issued())

	notice := notifier.last.Load()
	require.NotNil(t, notice)
	assert.Equal(t, "amina@example.com", notice.Buyer.Email)
	require.Len(t, notice.Tickets, 3)
	assert.Equal(t, "Pool Party", notice.Tickets[0].EventName)
	assert.Equal(t, "Regular", notice.Tickets[0].TierName)
}

func TestIssueSkipsCodesAlreadyTaken(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 10, 1, model.StatusPaid)
	ctx := context.Background()
	require.NoError(t, store.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertTicket(ctx, &model.Ticket{ID: "old", OrderID: "other", TierID: "tier-1", Code: "AAAAAAAA", Status: model.TicketValid})
	}))

	src := bytes.NewReader([]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xbb, 0xbb, 0xbb, 0xbb})
	issuer := newTestIssuer(store, ticketcode.NewGeneratorFrom(src, 4), nil, nil)

	tickets, err := issuer.Issue(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "BBBBBBBB", tickets[0].Code)
}

func TestIssueRollsBackWhenCodesRunOut(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 10, 2, model.StatusPaid)
	ctx := context.Background()
	require.NoError(t, store.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertTicket(ctx, &model.Ticket{ID: "old", OrderID: "other", TierID: "tier-1", Code: "AAAAAAAA", Status: model.TicketValid})
	}))

	src := bytes.NewReader(bytes.Repeat([]byte{0xaa}, 64))
	issuer := newTestIssuer(store, ticketcode.NewGeneratorFrom(src, 3), nil, nil)

	_, err := issuer.Issue(ctx, "order-1")
	require.ErrorIs(t, err, ticketcode.ErrExhausted)

	order, err := store.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, order.Issued())
	assert.Equal(t, 0, soldOf(t, store))
}

func TestIssueRespectsTierCapacity(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 2, 3, model.StatusPaid)
	issuer := newTestIssuer(store, nil, nil, nil)

	_, err := issuer.Issue(context.Background(), "order-1")
	require.ErrorIs(t, err, model.ErrInventoryExhausted)

	tickets, err := store.ListTickets(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 0, soldOf(t, store))
}

// racingStore makes the first ticket insert fail as if another transaction
// had committed the same code in between.
type racingStore struct {
	*repository.MemoryStore
	txs     atomic.Int32
	collide atomic.Bool
}

func (r *racingStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	r.txs.Add(1)
	return r.MemoryStore.InTx(ctx, func(tx repository.Tx) error {
		return fn(&racingTx{Tx: tx, store: r})
	})
}

type racingTx struct {
	repository.Tx
	store *racingStore
}

func (r *racingTx) InsertTicket(ctx context.Context, t *model.Ticket) error {
	if r.store.collide.CompareAndSwap(true, false) {
		return repository.ErrDuplicateCode
	}
	return r.Tx.InsertTicket(ctx, t)
}

func TestIssueRetriesDuplicateCodeAtInsert(t *testing.T) {
	mem := repository.NewMemoryStore()
	seed(t, mem, 10, 2, model.StatusPaid)
	store := &racingStore{MemoryStore: mem}
	store.collide.Store(true)
	issuer := newTestIssuer(store, nil, nil, nil)

	tickets, err := issuer.Issue(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, int32(2), store.txs.Load())
	assert.Equal(t, 2, soldOf(t, store))
}

func TestDeliveryFailuresDoNotUndoIssuance(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, 10, 2, model.StatusPaid)
	notifier := &countingNotifier{err: errors.New("smtp down")}
	issuer := newTestIssuer(store, nil, stubRenderer{err: errors.New("disk full")}, notifier)

	tickets, err := issuer.Issue(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Empty(t, tk.VisualRef)
		assert.Equal(t, model.TicketValid, tk.Status)
	}
	assert.Equal(t, int32(1), notifier.calls.Load())

	stored, err := store.ListTickets(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func codes(tickets []model.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.Code
	}
	return out
}
