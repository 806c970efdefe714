// Package service реализует бизнес-логику сервиса заказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/confmerch-system/internal/access"
	"github.com/mmeshcher/confmerch-system/internal/model"
	"github.com/mmeshcher/confmerch-system/internal/pricing"
	"github.com/mmeshcher/confmerch-system/internal/repository"
)

// ErrValidation возвращается при некорректных входных данных оформления или редактирования.
var (
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied возвращается до любого обращения к хранилищу,
	// если у вызывающего нет требуемого права.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrEventNotActive возвращается при попытке оформить заказ вне окна мероприятия.
var ErrEventNotActive = fmt.Errorf("%w: event is not active", ErrValidation)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, isMaster bool, permissions []string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserPermissions(ctx context.Context, id int64, isMaster bool, permissions []string) error

	ListProducts(ctx context.Context, onlyActive bool) ([]model.Product, error)
	GetProductsByRefs(ctx context.Context, refs []string) (map[string]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p model.Product) error

	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, e model.Event) (int64, error)
	UpdateEvent(ctx context.Context, e model.Event) error

	SubmitOrder(ctx context.Context, o *model.Order) error
	ReplaceOrder(ctx context.Context, o *model.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error)
}

// Notifier получает уведомления о событиях заказов. Доставка не влияет на
// результат операции: сервис лишь позволяет подключить наблюдателей.
type Notifier interface {
	OrderCreated(ctx context.Context, o *model.Order)
	OrderStatusChanged(ctx context.Context, o *model.Order, from, to model.OrderStatus)
}

// Service содержит бизнес-логику сервиса заказов.
type Service struct {
	repo      Repository
	notifiers []Notifier
	now       func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и наблюдателями.
func NewService(repo Repository, notifiers ...Notifier) *Service {
	return &Service{
		repo:      repo,
		notifiers: notifiers,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateUser регистрирует нового пользователя бэк-офиса.
func (s *Service) CreateUser(ctx context.Context, policy *access.Policy, login, password string, isMaster bool, permissions []string) (int64, error) {
	if !policy.HasPermission(access.CapUsersManage) {
		return 0, ErrPermissionDenied
	}
	if login == "" || password == "" {
		return 0, fmt.Errorf("%w: login and password are required", ErrValidation)
	}
	return s.repo.CreateUser(ctx, login, hashPassword(login, password), isMaster, permissions)
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// PolicyForUser загружает пользователя и строит его политику доступа.
// Отсутствие пользователя означает отсутствие сессии: политика nil запрещает всё.
func (s *Service) PolicyForUser(ctx context.Context, userID int64) (*access.Policy, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return access.NewPolicy(u.IsMaster, u.Permissions), nil
}

// ListUsers возвращает пользователей бэк-офиса.
func (s *Service) ListUsers(ctx context.Context, policy *access.Policy) ([]model.User, error) {
	if !policy.HasPermission(access.CapUsersManage) {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListUsers(ctx)
}

// UpdateUserPermissions обновляет права пользователя.
func (s *Service) UpdateUserPermissions(ctx context.Context, policy *access.Policy, userID int64, isMaster bool, permissions []string) error {
	if !policy.HasPermission(access.CapUsersManage) {
		return ErrPermissionDenied
	}
	return s.repo.UpdateUserPermissions(ctx, userID, isMaster, permissions)
}

// ListCatalog возвращает активные товары для публичной формы заказа.
func (s *Service) ListCatalog(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, true)
}

// ListProducts возвращает полный список товаров для бэк-офиса.
func (s *Service) ListProducts(ctx context.Context, policy *access.Policy) ([]model.Product, error) {
	if !policy.HasPermission(access.CapProductsView) {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListProducts(ctx, false)
}

// CreateProduct создаёт товар.
func (s *Service) CreateProduct(ctx context.Context, policy *access.Policy, p model.Product) (int64, error) {
	if !policy.HasPermission(access.CapProductsEdit) {
		return 0, ErrPermissionDenied
	}
	if p.Code == "" || p.Name == "" {
		return 0, fmt.Errorf("%w: product code and name are required", ErrValidation)
	}
	if p.ListPrice < 0 {
		return 0, fmt.Errorf("%w: list price must be non-negative", ErrValidation)
	}
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct обновляет товар.
func (s *Service) UpdateProduct(ctx context.Context, policy *access.Policy, p model.Product) error {
	if !policy.HasPermission(access.CapProductsEdit) {
		return ErrPermissionDenied
	}
	if p.Code == "" || p.Name == "" {
		return fmt.Errorf("%w: product code and name are required", ErrValidation)
	}
	if p.ListPrice < 0 {
		return fmt.Errorf("%w: list price must be non-negative", ErrValidation)
	}
	return s.repo.UpdateProduct(ctx, p)
}

// GetEventBySlug возвращает мероприятие публичной страницы заказа.
func (s *Service) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return s.repo.GetEventBySlug(ctx, slug)
}

// ListEvents возвращает мероприятия для бэк-офиса.
func (s *Service) ListEvents(ctx context.Context, policy *access.Policy) ([]model.Event, error) {
	if !policy.HasPermission(access.CapEventsView) {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListEvents(ctx)
}

// CreateEvent создаёт мероприятие.
func (s *Service) CreateEvent(ctx context.Context, policy *access.Policy, e model.Event) (int64, error) {
	if !policy.HasPermission(access.CapEventsEdit) {
		return 0, ErrPermissionDenied
	}
	if err := validateEvent(e); err != nil {
		return 0, err
	}
	return s.repo.CreateEvent(ctx, e)
}

// UpdateEvent обновляет мероприятие.
func (s *Service) UpdateEvent(ctx context.Context, policy *access.Policy, e model.Event) error {
	if !policy.HasPermission(access.CapEventsEdit) {
		return ErrPermissionDenied
	}
	if err := validateEvent(e); err != nil {
		return err
	}
	return s.repo.UpdateEvent(ctx, e)
}

func validateEvent(e model.Event) error {
	if e.Name == "" || e.Slug == "" {
		return fmt.Errorf("%w: event name and slug are required", ErrValidation)
	}
	if e.DiscountRate < 0 || e.DiscountRate > 1 {
		return fmt.Errorf("%w: discount rate must be within [0,1]", ErrValidation)
	}
	if e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: event end date precedes start date", ErrValidation)
	}
	return nil
}

// OrderItemInput — позиция заказа, как её прислал клиент: только ссылка на
// товар и количество. Цены клиента никогда не принимаются.
type OrderItemInput struct {
	ProductRef string
	Quantity   int
}

// SubmitOrderInput — входные данные оформления заказа.
type SubmitOrderInput struct {
	Customer model.CustomerInfo
	Items    []OrderItemInput
	EventID  int64
}

// resolveItems загружает авторитетные записи товаров и строит позиции расчёта.
// Неразрешённая ссылка остаётся в расчёте с нулевой ценой.
func (s *Service) resolveItems(ctx context.Context, items []OrderItemInput) ([]model.LineItem, map[string]model.Product, error) {
	refs := make([]string, 0, len(items))
	for _, it := range items {
		refs = append(refs, it.ProductRef)
	}

	products, err := s.repo.GetProductsByRefs(ctx, refs)
	if err != nil {
		return nil, nil, err
	}

	line := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		li := model.LineItem{
			ProductRef: it.ProductRef,
			Quantity:   it.Quantity,
		}
		if p, ok := products[it.ProductRef]; ok {
			li.UnitListPrice = p.ListPrice
			li.IsDiscountable = p.IsDiscountable
			li.Resolved = true
		}
		line = append(line, li)
	}

	return line, products, nil
}

// buildOrderItems превращает разрешённые позиции в строки заказа с замороженной
// скидочной ценой за единицу. Неразрешённые ссылки в заказ не попадают:
// в расчёте они стоят ноль, а внешнего ключа для них нет.
func buildOrderItems(orderID string, items []model.LineItem, products map[string]model.Product, rate float64) []model.OrderItem {
	res := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductRef]
		if !ok {
			continue
		}
		res = append(res, model.OrderItem{
			OrderID:         orderID,
			ProductID:       p.ID,
			ProductCode:     p.Code,
			ProductName:     p.Name,
			Quantity:        it.Quantity,
			PriceAtPurchase: pricing.DiscountedUnitPrice(p.ListPrice, p.IsDiscountable, rate),
		})
	}
	return res
}

func validateCustomer(c model.CustomerInfo) error {
	if c.Name == "" || c.Email == "" {
		return fmt.Errorf("%w: customer name and email are required", ErrValidation)
	}
	if c.Address.Postcode == "" || c.Address.Address == "" {
		return fmt.Errorf("%w: shipping postcode and address are required", ErrValidation)
	}
	return nil
}

func validateItems(items []OrderItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
	}
	return nil
}

// SubmitOrder оформляет заказ: повторно загружает авторитетные цены товаров и
// ставку мероприятия из хранилища, пересчитывает стоимость и атомарно
// сохраняет заказ с позициями. После успешного сохранения наблюдатели
// уведомляются асинхронно, без ожидания результата.
func (s *Service) SubmitOrder(ctx context.Context, in SubmitOrderInput) (*model.Order, error) {
	if err := validateCustomer(in.Customer); err != nil {
		return nil, err
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	event, err := s.repo.GetEventByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, fmt.Errorf("%w: unknown event", ErrValidation)
		}
		return nil, err
	}
	if !event.IsActiveAt(s.now()) {
		return nil, ErrEventNotActive
	}

	line, products, err := s.resolveItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:       uuid.NewString(),
		Customer: in.Customer,
		EventID:  event.ID,
		Status:   model.OrderStatusPending,
		Cost:     pricing.ComputeCost(line, event.DiscountRate),
	}
	order.Items = buildOrderItems(order.ID, line, products, event.DiscountRate)

	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: no item resolves to a known product", ErrValidation)
	}

	if err := s.repo.SubmitOrder(ctx, order); err != nil {
		return nil, err
	}

	s.notifyAsync(func(ctx context.Context, n Notifier) {
		n.OrderCreated(ctx, order)
	})

	return order, nil
}

// PreviewCost пересчитывает разбивку стоимости по текущему каталогу без
// сохранения. Без мероприятия применяется ставка скидки по умолчанию.
func (s *Service) PreviewCost(ctx context.Context, items []OrderItemInput, eventID int64) (model.CostBreakdown, error) {
	rate := pricing.DefaultDiscountRate
	if eventID != 0 {
		event, err := s.repo.GetEventByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return model.CostBreakdown{}, fmt.Errorf("%w: unknown event", ErrValidation)
			}
			return model.CostBreakdown{}, err
		}
		rate = event.DiscountRate
	}

	line, _, err := s.resolveItems(ctx, items)
	if err != nil {
		return model.CostBreakdown{}, err
	}

	return pricing.ComputeCost(line, rate), nil
}

// GetOrder возвращает заказ с позициями.
func (s *Service) GetOrder(ctx context.Context, policy *access.Policy, orderID string) (*model.Order, error) {
	if !policy.HasPermission(access.CapOrdersView) {
		return nil, ErrPermissionDenied
	}
	return s.repo.GetOrderByID(ctx, orderID)
}

// ListOrders возвращает заказы по фильтру.
func (s *Service) ListOrders(ctx context.Context, policy *access.Policy, filter repository.OrderFilter) ([]model.Order, error) {
	if !policy.HasPermission(access.CapOrdersView) {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListOrders(ctx, filter)
}

// EditOrderInput — входные данные административного редактирования заказа.
type EditOrderInput struct {
	OrderID   string
	Customer  model.CustomerInfo
	Items     []OrderItemInput
	EventID   int64
	Status    model.OrderStatus
	AdminMemo string
}

// SaveOrderEdit сохраняет редактирование заказа: пересчитывает стоимость по
// актуальному каталогу и ставке мероприятия и атомарно заменяет весь набор
// позиций. Повторное сохранение того же набора даёт тот же результат.
func (s *Service) SaveOrderEdit(ctx context.Context, policy *access.Policy, in EditOrderInput) (*model.Order, error) {
	if !policy.HasPermission(access.CapOrdersEdit) {
		return nil, ErrPermissionDenied
	}

	if err := validateCustomer(in.Customer); err != nil {
		return nil, err
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if !model.ValidStatus(in.Status) {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, in.Status)
	}

	existing, err := s.repo.GetOrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	event, err := s.repo.GetEventByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, fmt.Errorf("%w: unknown event", ErrValidation)
		}
		return nil, err
	}

	line, products, err := s.resolveItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:        existing.ID,
		Customer:  in.Customer,
		EventID:   event.ID,
		Status:    in.Status,
		Cost:      pricing.ComputeCost(line, event.DiscountRate),
		AdminMemo: in.AdminMemo,
		CreatedAt: existing.CreatedAt,
	}
	order.Items = buildOrderItems(order.ID, line, products, event.DiscountRate)

	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: no item resolves to a known product", ErrValidation)
	}

	if err := s.repo.ReplaceOrder(ctx, order); err != nil {
		return nil, err
	}

	if existing.Status != order.Status {
		from, to := existing.Status, order.Status
		s.notifyAsync(func(ctx context.Context, n Notifier) {
			n.OrderStatusChanged(ctx, order, from, to)
		})
	}

	return order, nil
}

// UpdateOrderStatus меняет только статус заказа, без полного редактирования.
func (s *Service) UpdateOrderStatus(ctx context.Context, policy *access.Policy, orderID string, status model.OrderStatus) error {
	if !policy.HasPermission(access.CapOrdersEdit) {
		return ErrPermissionDenied
	}
	if !model.ValidStatus(status) {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}

	existing, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}

	if existing.Status != status {
		updated := *existing
		updated.Status = status
		s.notifyAsync(func(ctx context.Context, n Notifier) {
			n.OrderStatusChanged(ctx, &updated, existing.Status, status)
		})
	}

	return nil
}

// notifyAsync рассылает событие всем наблюдателям в отдельной горутине.
// Результат доставки не проверяется и не влияет на вызвавшую операцию.
func (s *Service) notifyAsync(fn func(ctx context.Context, n Notifier)) {
	if len(s.notifiers) == 0 {
		return
	}

	notifiers := s.notifiers
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, n := range notifiers {
			fn(ctx, n)
		}
	}()
}
