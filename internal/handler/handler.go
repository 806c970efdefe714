// Package handler содержит HTTP-обработчики API сервиса заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/confmerch-system/internal/access"
	"github.com/mmeshcher/confmerch-system/internal/middleware"
	"github.com/mmeshcher/confmerch-system/internal/model"
	"github.com/mmeshcher/confmerch-system/internal/repository"
	"github.com/mmeshcher/confmerch-system/internal/service"
	"github.com/mmeshcher/confmerch-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	PolicyForUser(ctx context.Context, userID int64) (*access.Policy, error)
	CreateUser(ctx context.Context, policy *access.Policy, login, password string, isMaster bool, permissions []string) (int64, error)
	ListUsers(ctx context.Context, policy *access.Policy) ([]model.User, error)
	UpdateUserPermissions(ctx context.Context, policy *access.Policy, userID int64, isMaster bool, permissions []string) error

	ListCatalog(ctx context.Context) ([]model.Product, error)
	ListProducts(ctx context.Context, policy *access.Policy) ([]model.Product, error)
	CreateProduct(ctx context.Context, policy *access.Policy, p model.Product) (int64, error)
	UpdateProduct(ctx context.Context, policy *access.Policy, p model.Product) error

	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListEvents(ctx context.Context, policy *access.Policy) ([]model.Event, error)
	CreateEvent(ctx context.Context, policy *access.Policy, e model.Event) (int64, error)
	UpdateEvent(ctx context.Context, policy *access.Policy, e model.Event) error

	SubmitOrder(ctx context.Context, in service.SubmitOrderInput) (*model.Order, error)
	PreviewCost(ctx context.Context, items []service.OrderItemInput, eventID int64) (model.CostBreakdown, error)
	GetOrder(ctx context.Context, policy *access.Policy, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, policy *access.Policy, filter repository.OrderFilter) ([]model.Order, error)
	SaveOrderEdit(ctx context.Context, policy *access.Policy, in service.EditOrderInput) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, policy *access.Policy, orderID string, status model.OrderStatus) error
}

// Handler реализует HTTP-обработчики API сервиса заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validatorv10.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validation.New(),
	}
}

// policyFromRequest строит политику доступа текущей сессии. Без сессии
// возвращается nil-политика, запрещающая всё.
func (h *Handler) policyFromRequest(r *http.Request) (*access.Policy, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return nil, nil
	}
	return h.service.PolicyForUser(r.Context(), userID)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError преобразует ошибки сервиса в HTTP-статусы. Детали ошибок
// хранилища наружу не отдаются: клиент видит только общий текст, подробности
// уходят в лог.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: "permission denied"})
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrEventNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrProductCodeExists),
		errors.Is(err, repository.ErrEventSlugExists):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "already exists"})
	default:
		h.logger.Error("internal error", zap.Error(err), zap.String("uri", r.RequestURI))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию сотрудника бэк-офиса и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	w.WriteHeader(http.StatusOK)
}

// Logout завершает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type productResponse struct {
	ID             int64    `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	ListPrice      int64    `json:"list_price"`
	IsDiscountable bool     `json:"is_discountable"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	IsActive       bool     `json:"is_active"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Code:           p.Code,
		Name:           p.Name,
		ListPrice:      p.ListPrice,
		IsDiscountable: p.IsDiscountable,
		Category:       p.Category,
		Tags:           p.Tags,
		IsActive:       p.IsActive,
	}
}

// ListCatalog возвращает активные товары для публичной формы заказа.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListCatalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type eventResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	DiscountRate float64 `json:"discount_rate"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
}

func toEventResponse(e model.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		Name:         e.Name,
		Slug:         e.Slug,
		DiscountRate: e.DiscountRate,
		StartDate:    e.StartDate.Format(time.RFC3339),
		EndDate:      e.EndDate.Format(time.RFC3339),
	}
}

// GetEventBySlug возвращает мероприятие публичной страницы заказа.
func (h *Handler) GetEventBySlug(w http.ResponseWriter, r *http.Request, slug string) {
	event, err := h.service.GetEventBySlug(r.Context(), slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEventResponse(*event))
}

type orderItemPayload struct {
	ProductRef string `json:"product_ref" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

type customerPayload struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Postcode string `json:"postcode" validate:"required,postcode"`
	Address  string `json:"address" validate:"required"`
	Detail   string `json:"detail"`
}

func (c customerPayload) toModel() model.CustomerInfo {
	return model.CustomerInfo{
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
		Address: model.Address{
			Postcode: c.Postcode,
			Address:  c.Address,
			Detail:   c.Detail,
		},
	}
}

type submitOrderRequest struct {
	Customer customerPayload    `json:"customer"`
	Items    []orderItemPayload `json:"items" validate:"required,min=1,dive"`
	EventID  int64              `json:"event_id" validate:"required"`
}

func toItemInputs(items []orderItemPayload) []service.OrderItemInput {
	res := make([]service.OrderItemInput, 0, len(items))
	for _, it := range items {
		res = append(res, service.OrderItemInput{ProductRef: it.ProductRef, Quantity: it.Quantity})
	}
	return res
}

type orderItemResponse struct {
	ProductID       int64  `json:"product_id"`
	ProductCode     string `json:"product_code"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	Customer  model.CustomerInfo  `json:"customer"`
	EventID   int64               `json:"event_id"`
	Status    string              `json:"status"`
	Cost      model.CostBreakdown `json:"cost"`
	AdminMemo string              `json:"admin_memo,omitempty"`
	Items     []orderItemResponse `json:"items,omitempty"`
	CreatedAt string              `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:       it.ProductID,
			ProductCode:     it.ProductCode,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
		})
	}
	return orderResponse{
		ID:        o.ID,
		Customer:  o.Customer,
		EventID:   o.EventID,
		Status:    string(o.Status),
		Cost:      o.Cost,
		AdminMemo: o.AdminMemo,
		Items:     items,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

// SubmitOrder принимает заказ с публичной формы. Клиент присылает только
// ссылки на товары и количества: цены пересчитываются на сервере.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order, err := h.service.SubmitOrder(r.Context(), service.SubmitOrderInput{
		Customer: req.Customer.toModel(),
		Items:    toItemInputs(req.Items),
		EventID:  req.EventID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

type previewRequest struct {
	Items   []orderItemPayload `json:"items" validate:"required,min=1,dive"`
	EventID int64              `json:"event_id"`
}

// PreviewCost возвращает расчёт стоимости без сохранения заказа.
func (h *Handler) PreviewCost(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	breakdown, err := h.service.PreviewCost(r.Context(), toItemInputs(req.Items), req.EventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, breakdown)
}

// ListOrders возвращает заказы для бэк-офиса.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := repository.OrderFilter{
		Status: model.OrderStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("event_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.EventID = id
	}

	orders, err := h.service.ListOrders(r.Context(), policy, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), policy, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type editOrderRequest struct {
	Customer  customerPayload    `json:"customer"`
	Items     []orderItemPayload `json:"items" validate:"required,min=1,dive"`
	EventID   int64              `json:"event_id" validate:"required"`
	Status    string             `json:"status" validate:"required"`
	AdminMemo string             `json:"admin_memo"`
}

// EditOrder сохраняет административное редактирование заказа.
func (h *Handler) EditOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req editOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order, err := h.service.SaveOrderEdit(r.Context(), policy, service.EditOrderInput{
		OrderID:   orderID,
		Customer:  req.Customer.toModel(),
		Items:     toItemInputs(req.Items),
		EventID:   req.EventID,
		Status:    model.OrderStatus(req.Status),
		AdminMemo: req.AdminMemo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus меняет только статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, orderID string) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), policy, orderID, model.OrderStatus(req.Status)); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListProducts возвращает полный каталог для бэк-офиса.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.service.ListProducts(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type productRequest struct {
	Code           string   `json:"code" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	ListPrice      int64    `json:"list_price" validate:"min=0"`
	IsDiscountable bool     `json:"is_discountable"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	IsActive       bool     `json:"is_active"`
}

func (p productRequest) toModel(id int64) model.Product {
	return model.Product{
		ID:             id,
		Code:           p.Code,
		Name:           p.Name,
		ListPrice:      p.ListPrice,
		IsDiscountable: p.IsDiscountable,
		Category:       p.Category,
		Tags:           p.Tags,
		IsActive:       p.IsActive,
	}
}

// CreateProduct создаёт товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), policy, req.toModel(0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// UpdateProduct обновляет товар.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, productID int64) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateProduct(r.Context(), policy, req.toModel(productID)); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListEvents возвращает мероприятия для бэк-офиса.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.service.ListEvents(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type eventRequest struct {
	Name         string  `json:"name" validate:"required"`
	Slug         string  `json:"slug" validate:"required"`
	DiscountRate float64 `json:"discount_rate" validate:"min=0,max=1"`
	StartDate    string  `json:"start_date" validate:"required"`
	EndDate      string  `json:"end_date" validate:"required"`
}

func (e eventRequest) toModel(id int64) (model.Event, error) {
	start, err := time.Parse(time.RFC3339, e.StartDate)
	if err != nil {
		return model.Event{}, err
	}
	end, err := time.Parse(time.RFC3339, e.EndDate)
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		ID:           id,
		Name:         e.Name,
		Slug:         e.Slug,
		DiscountRate: e.DiscountRate,
		StartDate:    start,
		EndDate:      end,
	}, nil
}

// CreateEvent создаёт мероприятие.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	event, err := req.toModel(0)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateEvent(r.Context(), policy, event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// UpdateEvent обновляет мероприятие.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request, eventID int64) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	event, err := req.toModel(eventID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateEvent(r.Context(), policy, event); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type userResponse struct {
	ID          int64    `json:"id"`
	Login       string   `json:"login"`
	IsMaster    bool     `json:"is_master"`
	Permissions []string `json:"permissions"`
}

// ListUsers возвращает пользователей бэк-офиса.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	users, err := h.service.ListUsers(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:          u.ID,
			Login:       u.Login,
			IsMaster:    u.IsMaster,
			Permissions: u.Permissions,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Login       string   `json:"login"`
	Password    string   `json:"password"`
	IsMaster    bool     `json:"is_master"`
	Permissions []string `json:"permissions"`
}

// CreateUser регистрирует нового пользователя бэк-офиса.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateUser(r.Context(), policy, req.Login, req.Password, req.IsMaster, req.Permissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type permissionsRequest struct {
	IsMaster    bool     `json:"is_master"`
	Permissions []string `json:"permissions"`
}

// UpdateUserPermissions обновляет права пользователя.
func (h *Handler) UpdateUserPermissions(w http.ResponseWriter, r *http.Request, userID int64) {
	policy, err := h.policyFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req permissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateUserPermissions(r.Context(), policy, userID, req.IsMaster, req.Permissions); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
