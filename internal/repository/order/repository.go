package order

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderhub/internal/database"
	"github.com/Additional-Code/orderhub/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderhub/repository/order")

var (
	// ErrNotFound is returned when an order is missing for the tenant.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateNumber is returned when an order number is already taken.
	ErrDuplicateNumber = errors.New("order number already exists")
	// ErrMissingTenant is returned when a call carries no tenant id.
	ErrMissingTenant = errors.New("tenant id is required")
)

// Filter narrows order listings. TenantID is mandatory.
type Filter struct {
	TenantID string
	UserID   string
	Status   entity.OrderStatus
	From     *time.Time
	To       *time.Time
}

// Repository encapsulates read/write access for orders. Every query is scoped by tenant.
type Repository struct {
	conns  *database.Connections
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		conns:  conns,
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// RunInTx executes fn in a single writer transaction; repository calls made with the
// provided context join it.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.conns.RunInTx(ctx, fn)
}

// Insert persists a new order together with its items.
func (r *Repository) Insert(ctx context.Context, order *entity.Order) (err error) {
	if order == nil {
		return errors.New("nil order")
	}
	if order.TenantID == "" {
		return ErrMissingTenant
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Insert", trace.WithAttributes(
		attribute.String("tenant.id", order.TenantID),
		attribute.String("order.number", order.OrderNumber),
	))
	defer func() { finishSpan(span, err) }()

	return r.RunInTx(ctx, func(ctx context.Context) error {
		db := database.Conn(ctx, r.writer)
		if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateNumber
			}
			return err
		}
		return r.insertItems(ctx, db, order)
	})
}

// Save updates an existing order by id and tenant, inserting it when absent, and
// replaces its item collection.
func (r *Repository) Save(ctx context.Context, order *entity.Order) (err error) {
	if order == nil {
		return errors.New("nil order")
	}
	if order.TenantID == "" {
		return ErrMissingTenant
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Save", trace.WithAttributes(
		attribute.String("tenant.id", order.TenantID),
		attribute.String("order.id", order.ID),
	))
	defer func() { finishSpan(span, err) }()

	return r.RunInTx(ctx, func(ctx context.Context) error {
		db := database.Conn(ctx, r.writer)
		res, err := db.NewUpdate().
			Model(order).
			ExcludeColumn("id", "tenant_id", "order_number", "created_at").
			Where("id = ?", order.ID).
			Where("tenant_id = ?", order.TenantID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateNumber
				}
				return err
			}
		}

		if _, err := db.NewDelete().
			Model((*entity.OrderItem)(nil)).
			Where("order_id = ?", order.ID).
			Where("tenant_id = ?", order.TenantID).
			Exec(ctx); err != nil {
			return err
		}
		return r.insertItems(ctx, db, order)
	})
}

func (r *Repository) insertItems(ctx context.Context, db bun.IDB, order *entity.Order) error {
	if len(order.Items) == 0 {
		return nil
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].TenantID = order.TenantID
		order.Items[i].Position = i
	}
	_, err := db.NewInsert().Model(&order.Items).Exec(ctx)
	return err
}

// GetByID loads an order by id within the tenant, optionally with its items.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string, withItems bool) (order *entity.Order, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer func() { finishSpan(span, err) }()

	return r.getOne(ctx, database.Conn(ctx, r.reader), tenantID, withItems, false, "id = ?", id)
}

// GetByIDForUpdate loads an order with its items and locks the row where the
// dialect supports it. Intended to be called inside RunInTx.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tenantID, id string) (order *entity.Order, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByIDForUpdate", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer func() { finishSpan(span, err) }()

	return r.getOne(ctx, database.Conn(ctx, r.writer), tenantID, true, r.conns.SupportsRowLocks(), "id = ?", id)
}

// UpdatedAt returns the current version stamp of an order without loading it.
func (r *Repository) UpdatedAt(ctx context.Context, tenantID, id string) (ts time.Time, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdatedAt", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer func() { finishSpan(span, err) }()

	if tenantID == "" {
		return time.Time{}, ErrMissingTenant
	}
	order := new(entity.Order)
	err = database.Conn(ctx, r.reader).NewSelect().
		Model(order).
		Column("updated_at").
		Where("id = ?", id).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return order.UpdatedAt, nil
}

// GetByNumber loads an order with its items by order number within the tenant.
func (r *Repository) GetByNumber(ctx context.Context, tenantID, number string) (order *entity.Order, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByNumber", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.number", number),
	))
	defer func() { finishSpan(span, err) }()

	return r.getOne(ctx, database.Conn(ctx, r.reader), tenantID, true, false, "order_number = ?", number)
}

func (r *Repository) getOne(ctx context.Context, db bun.IDB, tenantID string, withItems, lock bool, cond string, arg any) (*entity.Order, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	order := new(entity.Order)
	q := db.NewSelect().
		Model(order).
		Where(cond, arg).
		Where("tenant_id = ?", tenantID)
	if withItems {
		q = withItemsRelation(q, tenantID)
	}
	if lock {
		q = q.For("UPDATE")
	}

	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// List returns orders matching f, newest first, with their items.
func (r *Repository) List(ctx context.Context, f Filter) (orders []entity.Order, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", trace.WithAttributes(
		attribute.String("tenant.id", f.TenantID),
		attribute.String("filter.user_id", f.UserID),
		attribute.String("filter.status", string(f.Status)),
	))
	defer func() { finishSpan(span, err) }()

	if f.TenantID == "" {
		return nil, ErrMissingTenant
	}

	orders = make([]entity.Order, 0)
	q := database.Conn(ctx, r.reader).NewSelect().Model(&orders)
	q = applyFilter(q, f)
	q = withItemsRelation(q, f.TenantID).
		Order("created_at DESC", "id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByTenant returns every order of the tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]entity.Order, error) {
	return r.List(ctx, Filter{TenantID: tenantID})
}

// ListByUser returns the user's orders within the tenant.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string) ([]entity.Order, error) {
	return r.List(ctx, Filter{TenantID: tenantID, UserID: userID})
}

// ListByStatus returns the tenant's orders in the given status.
func (r *Repository) ListByStatus(ctx context.Context, tenantID string, status entity.OrderStatus) ([]entity.Order, error) {
	return r.List(ctx, Filter{TenantID: tenantID, Status: status})
}

// ListByDateRange returns orders created within [from, to], both ends inclusive.
func (r *Repository) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]entity.Order, error) {
	from, to = from.UTC(), to.UTC()
	return r.List(ctx, Filter{TenantID: tenantID, From: &from, To: &to})
}

// CountByStatus counts the tenant's orders in the given status.
func (r *Repository) CountByStatus(ctx context.Context, tenantID string, status entity.OrderStatus) (count int64, err error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CountByStatus", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("filter.status", string(status)),
	))
	defer func() { finishSpan(span, err) }()

	if tenantID == "" {
		return 0, ErrMissingTenant
	}
	n, err := database.Conn(ctx, r.reader).NewSelect().
		Model((*entity.Order)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", status).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func applyFilter(q *bun.SelectQuery, f Filter) *bun.SelectQuery {
	q = q.Where("tenant_id = ?", f.TenantID)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

func withItemsRelation(q *bun.SelectQuery, tenantID string) *bun.SelectQuery {
	return q.Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("tenant_id = ?", tenantID).Order("position ASC")
	})
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func finishSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		span.SetStatus(codes.Error, "not found")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
