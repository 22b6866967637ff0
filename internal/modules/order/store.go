// README: Order store backed by PostgreSQL; transactional unit of work over the module stores.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livraison/internal/infra"
	"livraison/internal/modules/catalog"
	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/customer"
	"livraison/internal/modules/notification"
	"livraison/internal/types"
)

type Store struct {
	queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Atomically runs fn inside one transaction, committed only if fn returns nil.
func (s *Store) Atomically(ctx context.Context, fn func(tx UnitOfWork) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{
			queries:       queries{db: tx},
			customers:     customer.NewStore(tx),
			catalog:       catalog.NewStore(tx),
			chauffeurs:    chauffeur.NewStore(tx),
			notifications: notification.NewStore(tx),
		})
	})
}

func (s *Store) Customer(ctx context.Context, id types.ID) (*customer.Customer, error) {
	return customer.NewStore(s.pool).Get(ctx, id)
}

type txStore struct {
	queries
	customers     *customer.Store
	catalog       *catalog.Store
	chauffeurs    *chauffeur.Store
	notifications *notification.Store
}

func (t *txStore) UpsertCustomer(ctx context.Context, c customer.Customer) (types.ID, error) {
	return t.customers.Upsert(ctx, c)
}

func (t *txStore) ResolveItem(ctx context.Context, id types.ID) (catalog.Ref, bool, error) {
	return t.catalog.Resolve(ctx, id)
}

func (t *txStore) DriverForUpdate(ctx context.Context, id types.ID) (*chauffeur.Chauffeur, error) {
	return t.chauffeurs.GetForUpdate(ctx, id)
}

func (t *txStore) AdjustDriverLoad(ctx context.Context, id types.ID, delta int) error {
	return t.chauffeurs.AdjustLoad(ctx, id, delta)
}

func (t *txStore) NotificationForUpdate(ctx context.Context, id types.ID) (*notification.Notification, error) {
	return t.notifications.GetForUpdate(ctx, id)
}

func (t *txStore) MarkNotificationRead(ctx context.Context, id types.ID) error {
	return t.notifications.SetRead(ctx, id, true)
}

func (t *txStore) RetireOffers(ctx context.Context, orderID types.ID) (int64, error) {
	return t.notifications.RetireOffers(ctx, orderID)
}

// queries holds the order SQL, usable over the pool or a transaction.
type queries struct {
	db infra.DBTX
}

const orderColumns = `
	id::text, order_number, customer_id::text,
	total_amount::float8, subtotal::float8, delivery_cost::float8, discount::float8,
	status, status_version, payment_status, payment_method, payment_details,
	delivery_address, delivery_district, delivery_notes, delivery_option, delivery_date, delivery_time,
	gps_latitude, gps_longitude, delivery_person_id::text, delivery_person_name, delivery_code,
	created_at, updated_at`

func scanOrder(row pgx.Row, withCustomer bool) (*Order, error) {
	var o Order
	var status, payment string
	var details []byte
	var driverID *string
	dest := []any{
		&o.ID, &o.Number, &o.CustomerID,
		&o.TotalAmount, &o.Subtotal, &o.DeliveryCost, &o.Discount,
		&status, &o.StatusVersion, &payment, &o.PaymentMethod, &details,
		&o.DeliveryAddress, &o.DeliveryDistrict, &o.DeliveryNotes, &o.DeliveryOption, &o.DeliveryDate, &o.DeliveryTime,
		&o.GPS.Lat, &o.GPS.Lng, &driverID, &o.DeliveryPersonName, &o.DeliveryCode,
		&o.CreatedAt, &o.UpdatedAt,
	}
	if withCustomer {
		dest = append(dest, &o.CustomerEmail, &o.CustomerPhone, &o.CustomerName)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payment)
	if driverID != nil {
		d := types.ID(*driverID)
		o.DeliveryPersonID = &d
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.PaymentDetails); err != nil {
			return nil, fmt.Errorf("decode payment_details: %w", err)
		}
	}
	return &o, nil
}

func (q queries) Get(ctx context.Context, id types.ID) (*Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`, customer_email, customer_phone, customer_name
		FROM v_orders WHERE id = $1`, string(id)), true)
}

func (q queries) GetForUpdate(ctx context.Context, id types.ID) (*Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = $1 FOR UPDATE`, string(id)), false)
}

func (q queries) InsertOrder(ctx context.Context, o *Order) error {
	var details []byte
	if o.PaymentDetails != nil {
		b, err := json.Marshal(o.PaymentDetails)
		if err != nil {
			return err
		}
		details = b
	}
	return q.db.QueryRow(ctx, `
		INSERT INTO orders (
			id, customer_id, total_amount, subtotal, delivery_cost, discount,
			status, status_version, payment_status, payment_method, payment_details,
			delivery_address, delivery_district, delivery_notes, delivery_option, delivery_date, delivery_time,
			gps_latitude, gps_longitude
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, $19
		)
		RETURNING order_number, created_at, updated_at`,
		string(o.ID), string(o.CustomerID), o.TotalAmount, o.Subtotal, o.DeliveryCost, o.Discount,
		string(o.Status), o.StatusVersion, string(o.PaymentStatus), o.PaymentMethod, details,
		o.DeliveryAddress, o.DeliveryDistrict, o.DeliveryNotes, o.DeliveryOption, o.DeliveryDate, o.DeliveryTime,
		o.GPS.Lat, o.GPS.Lng,
	).Scan(&o.Number, &o.CreatedAt, &o.UpdatedAt)
}

// InsertItems writes all lines in a single statement.
func (q queries) InsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	const cols = 10
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (
		id, order_id, product_id, ready_cocktail_id, cocktail_maison_id,
		product_type, product_name, quantity, unit_price, subtotal
	) VALUES `)
	args := make([]any, 0, len(items)*cols)
	for i, it := range items {
		if !it.Ref.Valid() {
			return fmt.Errorf("item %s has no catalog reference", it.ID)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		productID, readyID, maisonID := it.Ref.Columns()
		args = append(args,
			string(it.ID), string(it.OrderID), productID, readyID, maisonID,
			string(it.Ref.Kind), it.ProductName, it.Quantity, it.UnitPrice, it.Subtotal,
		)
	}
	_, err := q.db.Exec(ctx, sb.String(), args...)
	return err
}

func (q queries) Items(ctx context.Context, orderID types.ID) ([]Item, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id::text, order_id::text, product_id::text, ready_cocktail_id::text, cocktail_maison_id::text,
		       product_type, product_name, quantity, unit_price::float8, subtotal::float8
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name, id`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var kind string
		var productID, readyID, maisonID *string
		if err := rows.Scan(&it.ID, &it.OrderID, &productID, &readyID, &maisonID,
			&kind, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		ref, ok := catalog.FromColumns(kind, productID, readyID, maisonID)
		if !ok {
			return nil, fmt.Errorf("order item %s: inconsistent catalog columns", it.ID)
		}
		it.Ref = ref
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateState applies c only if the row still matches (status, version) and,
// when asked, has no driver yet. false means another writer got there first.
func (q queries) UpdateState(ctx context.Context, c StateChange) (bool, error) {
	var payment *string
	if c.PaymentStatus != nil {
		v := string(*c.PaymentStatus)
		payment = &v
	}
	var driver *string
	if c.DriverID != nil {
		v := string(*c.DriverID)
		driver = &v
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE orders
		SET status = $2,
			status_version = status_version + 1,
			payment_status = COALESCE($5, payment_status),
			delivery_notes = COALESCE($6, delivery_notes),
			delivery_person_id = COALESCE($7::uuid, delivery_person_id),
			delivery_person_name = COALESCE($8, delivery_person_name),
			delivery_code = COALESCE($9, delivery_code),
			updated_at = NOW()
		WHERE id = $1 AND status = $3 AND status_version = $4
		  AND (NOT $10 OR delivery_person_id IS NULL)`,
		string(c.OrderID), string(c.To), string(c.From), c.StatusVersion,
		payment, c.DeliveryNotes, driver, c.DriverName, c.DeliveryCode,
		c.RequireUnassigned,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) AppendEvent(ctx context.Context, e *Event) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO order_status_events (order_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus), e.ActorType, e.ActorID, e.CreatedAt,
	).Scan(&e.ID)
}

func (q queries) Events(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id::text, from_status, to_status, actor_type, actor_id, created_at
		FROM order_status_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var from, to string
		if err := rows.Scan(&e.ID, &e.OrderID, &from, &to, &e.ActorType, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus, e.ToStatus = Status(from), Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns one page, newest first, and the total count matching f.
func (q queries) List(ctx context.Context, f Filter) ([]Order, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CustomerID != "" {
		add("customer_id::text = $%d", string(f.CustomerID))
	}
	if f.DriverID != "" {
		add("delivery_person_id::text = $%d", string(f.DriverID))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM v_orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := q.db.Query(ctx, fmt.Sprintf(`
		SELECT %s, customer_email, customer_phone, customer_name
		FROM v_orders%s
		ORDER BY created_at DESC, order_number DESC
		LIMIT $%d OFFSET $%d`, orderColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows, true)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}
