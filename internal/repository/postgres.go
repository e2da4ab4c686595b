package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, buyer_name, buyer_email, buyer_phone, tier_id, quantity, amount,
	payment_method, payment_status, provider_ref, issued_at, created_at`

const ticketColumns = `t.id, t.order_id, t.tier_id, t.code, t.status, t.visual_ref, t.created_at`

func (r *PostgresStore) CreateEvent(ctx context.Context, e *model.EventListing) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, name, description, venue, starts_at, ends_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Name, e.Description, e.Venue, e.StartsAt, e.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetEvent(ctx context.Context, id string) (*model.EventListing, error) {
	var e model.EventListing
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, venue, starts_at, ends_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.StartsAt, &e.EndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if e.Tiers, err = r.ListTiers(ctx, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvents returns all events ordered by start time, tiers included.
func (r *PostgresStore) ListEvents(ctx context.Context) ([]model.EventListing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, description, venue, starts_at, ends_at
		 FROM events
		 ORDER BY starts_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.EventListing
	for rows.Next() {
		var e model.EventListing
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.StartsAt, &e.EndsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i := range events {
		if events[i].Tiers, err = r.ListTiers(ctx, events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (r *PostgresStore) CreateTier(ctx context.Context, t *model.TicketTier) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ticket_tiers (id, event_id, name, price, total_quantity, sold_quantity)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.EventID, t.Name, t.Price, t.TotalQuantity, t.SoldQuantity,
	)
	if err != nil {
		return fmt.Errorf("insert tier: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetTier(ctx context.Context, id string) (*model.TicketTier, error) {
	return getTier(ctx, r.db, id, false)
}

func (r *PostgresStore) ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, price, total_quantity, sold_quantity
		 FROM ticket_tiers
		 WHERE event_id = $1
		 ORDER BY price ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []model.TicketTier
	for rows.Next() {
		var t model.TicketTier
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.TotalQuantity, &t.SoldQuantity); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.Buyer.Name, o.Buyer.Email, o.Buyer.Phone, o.TierID, o.Quantity, o.Amount,
		o.PaymentMethod.String(), string(o.PaymentStatus), o.ProviderRef, o.IssuedAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return getOrder(ctx, r.db, `WHERE id = $1`, id)
}

func (r *PostgresStore) FindOrderByRef(ctx context.Context, method model.PaymentMethod, ref string) (*model.Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return getOrder(ctx, r.db, `WHERE payment_method = $1 AND provider_ref = $2`, method.String(), ref)
}

func (r *PostgresStore) ListTickets(ctx context.Context, orderID string) ([]model.Ticket, error) {
	return ticketsByOrder(ctx, r.db, orderID)
}

func (r *PostgresStore) GetTicketInfo(ctx context.Context, code string) (*model.TicketInfo, error) {
	var info model.TicketInfo
	err := r.db.QueryRow(ctx,
		`SELECT `+ticketColumns+`, e.name, tt.name
		 FROM tickets t
		 JOIN ticket_tiers tt ON tt.id = t.tier_id
		 JOIN events e ON e.id = tt.event_id
		 WHERE t.code = $1`,
		code,
	).Scan(&info.ID, &info.OrderID, &info.TierID, &info.Code, &info.Status, &info.VisualRef, &info.CreatedAt,
		&info.EventName, &info.TierName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &info, nil
}

func (r *PostgresStore) SetTicketVisual(ctx context.Context, ticketID, ref string) error {
	tag, err := r.db.Exec(ctx, `UPDATE tickets SET visual_ref = $1 WHERE id = $2`, ref, ticketID)
	if err != nil {
		return fmt.Errorf("set ticket visual: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RedeemTicket relies on the row lock taken by UPDATE: of N concurrent
// statements for the same code exactly one sees status = 'valid'.
func (r *PostgresStore) RedeemTicket(ctx context.Context, code string) (*model.TicketInfo, RedeemOutcome, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tickets SET status = $1 WHERE code = $2 AND status = $3`,
		string(model.TicketUsed), code, string(model.TicketValid),
	)
	if err != nil {
		return nil, RedeemNotFound, fmt.Errorf("redeem ticket: %w", err)
	}
	info, err := r.GetTicketInfo(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, RedeemNotFound, nil
		}
		return nil, RedeemNotFound, err
	}
	if tag.RowsAffected() == 1 {
		return info, RedeemAccepted, nil
	}
	return info, RedeemAlreadyUsed, nil
}

// InTx wraps fn in a single Postgres transaction.
func (r *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// LockOrder takes a row-level lock with SELECT … FOR UPDATE; a second
// confirmation for the same order blocks here until the first commits.
func (t *pgTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return getOrder(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET payment_status = $1, provider_ref = $2, issued_at = $3 WHERE id = $4`,
		string(o.PaymentStatus), o.ProviderRef, o.IssuedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LockTier(ctx context.Context, id string) (*model.TicketTier, error) {
	return getTier(ctx, t.tx, id, true)
}

func (t *pgTx) SetTierSold(ctx context.Context, id string, sold int) error {
	_, err := t.tx.Exec(ctx, `UPDATE ticket_tiers SET sold_quantity = $1 WHERE id = $2`, sold, id)
	if err != nil {
		return fmt.Errorf("update sold_quantity: %w", err)
	}
	return nil
}

func (t *pgTx) TicketsByOrder(ctx context.Context, orderID string) ([]model.Ticket, error) {
	return ticketsByOrder(ctx, t.tx, orderID)
}

func (t *pgTx) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO tickets (id, order_id, tier_id, code, status, visual_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tk.ID, tk.OrderID, tk.TierID, tk.Code, string(tk.Status), tk.VisualRef, tk.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (t *pgTx) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func getTier(ctx context.Context, q queryer, id string, lock bool) (*model.TicketTier, error) {
	query := `SELECT id, event_id, name, price, total_quantity, sold_quantity
		 FROM ticket_tiers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t model.TicketTier
	err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.TotalQuantity, &t.SoldQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tier: %w", err)
	}
	return &t, nil
}

func getOrder(ctx context.Context, q queryer, where string, args ...any) (*model.Order, error) {
	var (
		o      model.Order
		method string
		status string
	)
	err := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...).Scan(
		&o.ID, &o.Buyer.Name, &o.Buyer.Email, &o.Buyer.Phone, &o.TierID, &o.Quantity, &o.Amount,
		&method, &status, &o.ProviderRef, &o.IssuedAt, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.PaymentMethod, err = model.ParsePaymentMethod(method); err != nil {
		return nil, fmt.Errorf("get order %s: %w", o.ID, err)
	}
	o.PaymentStatus = model.PaymentStatus(status)
	return &o, nil
}

func ticketsByOrder(ctx context.Context, q queryer, orderID string) ([]model.Ticket, error) {
	rows, err := q.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets t
		 WHERE t.order_id = $1
		 ORDER BY t.code ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var tk model.Ticket
		if err := rows.Scan(&tk.ID, &tk.OrderID, &tk.TierID, &tk.Code, &tk.Status, &tk.VisualRef, &tk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, tk)
	}
	return tickets, rows.Err()
}
