// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/confmerch-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductCodeExists возвращается при попытке создать товар с занятым кодом.
	ErrProductCodeExists = errors.New("product code already exists")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrEventSlugExists возвращается при попытке создать мероприятие с занятым слагом.
	ErrEventSlugExists = errors.New("event slug already exists")
	// ErrEventNotFound возвращается, если мероприятие не найдено.
	ErrEventNotFound = errors.New("event not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет запись при временных ошибках: конфликте
// сериализации, дедлоке и обрыве соединения. Политика общая для
// транзакций и одиночных мутаций.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя бэк-офиса.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, isMaster bool, permissions []string) (int64, error) {
	if permissions == nil {
		permissions = []string{}
	}

	var id int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (login, password_hash, is_master, permissions) VALUES ($1, $2, $3, $4) RETURNING id`,
			login, passwordHash, isMaster, permissions,
		).Scan(&id)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, is_master, permissions, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsMaster, &u.Permissions, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, is_master, permissions, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsMaster, &u.Permissions, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// ListUsers возвращает всех пользователей бэк-офиса.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, login, password_hash, is_master, permissions, created_at FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsMaster, &u.Permissions, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateUserPermissions обновляет набор прав и признак мастера.
func (r *PostgresRepository) UpdateUserPermissions(ctx context.Context, id int64, isMaster bool, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}

	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE users SET is_master = $2, permissions = $3 WHERE id = $1`,
			id, isMaster, permissions,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update user permissions: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

const productColumns = `id, code, name, list_price, is_discountable, category, tags, is_active, created_at`

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.ListPrice, &p.IsDiscountable, &p.Category, &p.Tags, &p.IsActive, &p.CreatedAt)
	return p, err
}

// ListProducts возвращает товары каталога. При onlyActive скрытые товары опускаются.
func (r *PostgresRepository) ListProducts(ctx context.Context, onlyActive bool) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id`
	if onlyActive {
		query = `SELECT ` + productColumns + ` FROM products WHERE is_active ORDER BY id`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProductsByRefs возвращает товары по ссылкам из позиций заказа.
// Канонический ключ — числовой идентификатор, код товара принимается как
// псевдоним. В результирующей карте каждый товар доступен по обоим ключам.
func (r *PostgresRepository) GetProductsByRefs(ctx context.Context, refs []string) (map[string]model.Product, error) {
	res := make(map[string]model.Product, len(refs))
	if len(refs) == 0 {
		return res, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id::text = ANY($1) OR code = ANY($1)`,
		refs,
	)
	if err != nil {
		return nil, fmt.Errorf("select products by refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[fmt.Sprintf("%d", p.ID)] = p
		res[p.Code] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateProduct создаёт товар и возвращает его идентификатор.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	var id int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO products (code, name, list_price, is_discountable, category, tags, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			p.Code, p.Name, p.ListPrice, p.IsDiscountable, p.Category, tags, p.IsActive,
		).Scan(&id)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrProductCodeExists, p.Code)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// UpdateProduct обновляет товар по идентификатору.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE products
			 SET code = $2, name = $3, list_price = $4, is_discountable = $5, category = $6, tags = $7, is_active = $8
			 WHERE id = $1`,
			p.ID, p.Code, p.Name, p.ListPrice, p.IsDiscountable, p.Category, tags, p.IsActive,
		)
		return execErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrProductCodeExists, p.Code)
		}
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

const eventColumns = `id, name, slug, discount_rate, start_date, end_date`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Slug, &e.DiscountRate, &e.StartDate, &e.EndDate)
	return e, err
}

// GetEventByID возвращает мероприятие по идентификатору.
func (r *PostgresRepository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// GetEventBySlug возвращает мероприятие по слагу публичной страницы.
func (r *PostgresRepository) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event by slug: %w", err)
	}
	return &e, nil
}

// ListEvents возвращает все мероприятия.
func (r *PostgresRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY start_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateEvent создаёт мероприятие и возвращает его идентификатор.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e model.Event) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO events (name, slug, discount_rate, start_date, end_date)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			e.Name, e.Slug, e.DiscountRate, e.StartDate, e.EndDate,
		).Scan(&id)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrEventSlugExists, e.Slug)
		}
		return 0, fmt.Errorf("create event: %w", err)
	}
	return id, nil
}

// UpdateEvent обновляет мероприятие по идентификатору.
func (r *PostgresRepository) UpdateEvent(ctx context.Context, e model.Event) error {
	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE events SET name = $2, slug = $3, discount_rate = $4, start_date = $5, end_date = $6 WHERE id = $1`,
			e.ID, e.Name, e.Slug, e.DiscountRate, e.StartDate, e.EndDate,
		)
		return execErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrEventSlugExists, e.Slug)
		}
		return fmt.Errorf("update event: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SubmitOrder атомарно сохраняет заказ вместе с позициями.
// Частичная запись невозможна: либо заказ с позициями, либо ничего.
func (r *PostgresRepository) SubmitOrder(ctx context.Context, o *model.Order) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO orders (id, customer_name, customer_email, customer_phone, postcode, address, address_detail,
			                     event_id, status, subtotal_list, subtotal_discounted, discount_amount, shipping_fee, final_total, admin_memo)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			o.ID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
			o.Customer.Address.Postcode, o.Customer.Address.Address, o.Customer.Address.Detail,
			o.EventID, string(o.Status),
			o.Cost.SubtotalList, o.Cost.SubtotalDiscounted, o.Cost.DiscountAmount, o.Cost.ShippingFee, o.Cost.FinalTotal,
			o.AdminMemo,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := insertOrderItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

func insertOrderItems(ctx context.Context, tx pgx.Tx, orderID string, items []model.OrderItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase) VALUES ($1, $2, $3, $4)`,
			orderID, it.ProductID, it.Quantity, it.PriceAtPurchase,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// ReplaceOrder атомарно обновляет поля заказа и полностью заменяет его позиции:
// сохранение редактирования эквивалентно «удалить все позиции, вставить новые».
func (r *PostgresRepository) ReplaceOrder(ctx context.Context, o *model.Order) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders
			 SET customer_name = $2, customer_email = $3, customer_phone = $4,
			     postcode = $5, address = $6, address_detail = $7,
			     event_id = $8, status = $9,
			     subtotal_list = $10, subtotal_discounted = $11, discount_amount = $12, shipping_fee = $13, final_total = $14,
			     admin_memo = $15, updated_at = NOW()
			 WHERE id = $1`,
			o.ID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
			o.Customer.Address.Postcode, o.Customer.Address.Address, o.Customer.Address.Detail,
			o.EventID, string(o.Status),
			o.Cost.SubtotalList, o.Cost.SubtotalDiscounted, o.Cost.DiscountAmount, o.Cost.ShippingFee, o.Cost.FinalTotal,
			o.AdminMemo,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}

		if err := insertOrderItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// UpdateOrderStatus обновляет только статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
			orderID, string(status),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const orderColumns = `id, customer_name, customer_email, customer_phone, postcode, address, address_detail,
	 event_id, status, subtotal_list, subtotal_discounted, discount_amount, shipping_fee, final_total,
	 admin_memo, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Customer.Address.Postcode, &o.Customer.Address.Address, &o.Customer.Address.Detail,
		&o.EventID, &status,
		&o.Cost.SubtotalList, &o.Cost.SubtotalDiscounted, &o.Cost.DiscountAmount, &o.Cost.ShippingFee, &o.Cost.FinalTotal,
		&o.AdminMemo, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = model.OrderStatus(status)
	return o, err
}

// GetOrderByID возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT oi.order_id, oi.product_id, p.code, p.name, oi.quantity, oi.price_at_purchase
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.product_id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &o, nil
}

// OrderFilter задаёт фильтры списка заказов. Нулевые значения не применяются.
type OrderFilter struct {
	EventID int64
	Status  model.OrderStatus
}

// ListOrders возвращает заказы без позиций, от новых к старым.
func (r *PostgresRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ($1 = 0 OR event_id = $1) AND ($2 = '' OR status = $2) ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, filter.EventID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
