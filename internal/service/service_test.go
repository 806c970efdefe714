package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/confmerch-system/internal/access"
	"github.com/mmeshcher/confmerch-system/internal/model"
	"github.com/mmeshcher/confmerch-system/internal/repository"
)

type repoCalls struct {
	submitOrder   int
	replaceOrder  int
	updateStatus  int
	getOrder      int
	getProducts   int
	getEvent      int
	createProduct int
	createEvent   int
	createUser    int
}

type stubRepo struct {
	products map[string]model.Product
	events   map[int64]model.Event
	orders   map[string]*model.Order
	users    map[string]*model.User

	calls repoCalls
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		products: map[string]model.Product{},
		events:   map[int64]model.Event{},
		orders:   map[string]*model.Order{},
		users:    map[string]*model.User{},
	}
}

func (s *stubRepo) addProduct(p model.Product) {
	s.products[p.Code] = p
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, hash []byte, isMaster bool, perms []string) (int64, error) {
	s.calls.createUser++
	s.users[login] = &model.User{ID: int64(len(s.users) + 1), Login: login, PasswordHash: hash, IsMaster: isMaster, Permissions: perms}
	return s.users[login].ID, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, ok := s.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubRepo) UpdateUserPermissions(ctx context.Context, id int64, isMaster bool, perms []string) error {
	return nil
}

func (s *stubRepo) ListProducts(ctx context.Context, onlyActive bool) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) GetProductsByRefs(ctx context.Context, refs []string) (map[string]model.Product, error) {
	s.calls.getProducts++
	res := map[string]model.Product{}
	for _, ref := range refs {
		if p, ok := s.products[ref]; ok {
			res[ref] = p
		}
	}
	return res, nil
}

func (s *stubRepo) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	s.calls.createProduct++
	return 1, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p model.Product) error { return nil }

func (s *stubRepo) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	s.calls.getEvent++
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &e, nil
}

func (s *stubRepo) GetEventBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return nil, repository.ErrEventNotFound
}

func (s *stubRepo) ListEvents(ctx context.Context) ([]model.Event, error) { return nil, nil }

func (s *stubRepo) CreateEvent(ctx context.Context, e model.Event) (int64, error) {
	s.calls.createEvent++
	return 1, nil
}

func (s *stubRepo) UpdateEvent(ctx context.Context, e model.Event) error { return nil }

func (s *stubRepo) SubmitOrder(ctx context.Context, o *model.Order) error {
	s.calls.submitOrder++
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *stubRepo) ReplaceOrder(ctx context.Context, o *model.Order) error {
	s.calls.replaceOrder++
	if _, ok := s.orders[o.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	s.calls.updateStatus++
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	s.calls.getOrder++
	o, ok := s.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	return nil, nil
}

func activeEvent(id int64, rate float64) model.Event {
	now := time.Now()
	return model.Event{
		ID:           id,
		Name:         "conf",
		Slug:         "conf",
		DiscountRate: rate,
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(time.Hour),
	}
}

func submitInput() SubmitOrderInput {
	return SubmitOrderInput{
		Customer: model.CustomerInfo{
			Name:  "Ivanov",
			Email: "ivanov@example.com",
			Address: model.Address{
				Postcode: "1000001",
				Address:  "Tokyo",
			},
		},
		Items:   []OrderItemInput{{ProductRef: "TSHIRT", Quantity: 2}},
		EventID: 1,
	}
}

func TestSubmitOrder_RecomputesFromCatalog(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", Name: "t-shirt", ListPrice: 10000, IsDiscountable: true})
	repo.events[1] = activeEvent(1, 0.15)

	svc := NewService(repo)

	order, err := svc.SubmitOrder(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	if order.Cost.SubtotalList != 20000 {
		t.Fatalf("SubtotalList = %d, want 20000", order.Cost.SubtotalList)
	}
	if order.Cost.SubtotalDiscounted != 17000 {
		t.Fatalf("SubtotalDiscounted = %d, want 17000", order.Cost.SubtotalDiscounted)
	}
	if order.Cost.ShippingFee != 3000 {
		t.Fatalf("ShippingFee = %d, want 3000", order.Cost.ShippingFee)
	}
	if order.Cost.FinalTotal != 20000 {
		t.Fatalf("FinalTotal = %d, want 20000", order.Cost.FinalTotal)
	}

	if len(order.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(order.Items))
	}
	if order.Items[0].PriceAtPurchase != 8500 {
		t.Fatalf("PriceAtPurchase = %d, want engine per-unit price 8500", order.Items[0].PriceAtPurchase)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("status = %q, want pending", order.Status)
	}
	if repo.calls.submitOrder != 1 {
		t.Fatalf("SubmitOrder store calls = %d, want 1", repo.calls.submitOrder)
	}
}

func TestSubmitOrder_ValidationFailures(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", ListPrice: 10000, IsDiscountable: true})
	repo.events[1] = activeEvent(1, 0.15)

	svc := NewService(repo)

	tests := []struct {
		name   string
		mutate func(*SubmitOrderInput)
	}{
		{"empty cart", func(in *SubmitOrderInput) { in.Items = nil }},
		{"missing name", func(in *SubmitOrderInput) { in.Customer.Name = "" }},
		{"missing email", func(in *SubmitOrderInput) { in.Customer.Email = "" }},
		{"missing postcode", func(in *SubmitOrderInput) { in.Customer.Address.Postcode = "" }},
		{"zero quantity", func(in *SubmitOrderInput) { in.Items[0].Quantity = 0 }},
		{"unknown event", func(in *SubmitOrderInput) { in.EventID = 99 }},
		{"nothing resolves", func(in *SubmitOrderInput) { in.Items[0].ProductRef = "GHOST" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := submitInput()
			tt.mutate(&in)

			_, err := svc.SubmitOrder(context.Background(), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	if repo.calls.submitOrder != 0 {
		t.Fatalf("store SubmitOrder called %d times for invalid input", repo.calls.submitOrder)
	}
}

func TestSubmitOrder_EventWindowEnforced(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", ListPrice: 10000, IsDiscountable: true})

	past := activeEvent(1, 0.15)
	past.StartDate = time.Now().Add(-48 * time.Hour)
	past.EndDate = time.Now().Add(-24 * time.Hour)
	repo.events[1] = past

	svc := NewService(repo)

	_, err := svc.SubmitOrder(context.Background(), submitInput())
	if !errors.Is(err, ErrEventNotActive) {
		t.Fatalf("err = %v, want ErrEventNotActive", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ErrEventNotActive must be a validation error")
	}
}

func TestSaveOrderEdit_IdempotentReplace(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", Name: "t-shirt", ListPrice: 10000, IsDiscountable: true})
	repo.addProduct(model.Product{ID: 11, Code: "MUG", Name: "mug", ListPrice: 2000, IsDiscountable: false})
	repo.events[1] = activeEvent(1, 0.15)

	svc := NewService(repo)

	order, err := svc.SubmitOrder(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	policy := access.NewPolicy(false, []string{"orders:edit", "orders:view"})
	edit := EditOrderInput{
		OrderID:  order.ID,
		Customer: order.Customer,
		Items: []OrderItemInput{
			{ProductRef: "TSHIRT", Quantity: 1},
			{ProductRef: "MUG", Quantity: 3},
		},
		EventID:   1,
		Status:    model.OrderStatusConfirmed,
		AdminMemo: "resend invoice",
	}

	first, err := svc.SaveOrderEdit(context.Background(), policy, edit)
	if err != nil {
		t.Fatalf("first SaveOrderEdit error: %v", err)
	}

	second, err := svc.SaveOrderEdit(context.Background(), policy, edit)
	if err != nil {
		t.Fatalf("second SaveOrderEdit error: %v", err)
	}

	if first.Cost != second.Cost {
		t.Fatalf("cost differs between identical saves: %+v vs %+v", first.Cost, second.Cost)
	}
	if len(first.Items) != len(second.Items) {
		t.Fatalf("item count differs between identical saves: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i] != second.Items[i] {
			t.Fatalf("item %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}

	persisted := repo.orders[order.ID]
	if len(persisted.Items) != 2 {
		t.Fatalf("persisted items = %d, want 2 (no accumulation)", len(persisted.Items))
	}

	// 8500*1 + 2000*3 = 14500; прайс 10000+6000=16000 < 30000 — доставка платная.
	if persisted.Cost.SubtotalDiscounted != 14500 {
		t.Fatalf("persisted SubtotalDiscounted = %d, want 14500", persisted.Cost.SubtotalDiscounted)
	}
	if persisted.Cost.FinalTotal != 17500 {
		t.Fatalf("persisted FinalTotal = %d, want 17500", persisted.Cost.FinalTotal)
	}
}

func TestSaveOrderEdit_PermissionDeniedBeforeStore(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	policy := access.NewPolicy(false, []string{"orders:view"})

	_, err := svc.SaveOrderEdit(context.Background(), policy, EditOrderInput{OrderID: "any"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	if repo.calls.getOrder != 0 || repo.calls.replaceOrder != 0 || repo.calls.getProducts != 0 || repo.calls.getEvent != 0 {
		t.Fatalf("store must not be touched without orders:edit: %+v", repo.calls)
	}
}

func TestUpdateOrderStatus_PermissionDeniedBeforeStore(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	var nobody *access.Policy

	err := svc.UpdateOrderStatus(context.Background(), nobody, "any", model.OrderStatusConfirmed)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if repo.calls.getOrder != 0 || repo.calls.updateStatus != 0 {
		t.Fatalf("store must not be touched without a session: %+v", repo.calls)
	}
}

func TestUpdateOrderStatus_RejectsUnknownStatus(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	policy := access.NewPolicy(true, nil)

	err := svc.UpdateOrderStatus(context.Background(), policy, "any", "shipped")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for status outside the closed set", err)
	}
}

type recordingNotifier struct {
	created chan string
	status  chan model.OrderStatus
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		created: make(chan string, 1),
		status:  make(chan model.OrderStatus, 1),
	}
}

func (n *recordingNotifier) OrderCreated(ctx context.Context, o *model.Order) {
	n.created <- o.ID
}

func (n *recordingNotifier) OrderStatusChanged(ctx context.Context, o *model.Order, from, to model.OrderStatus) {
	n.status <- to
}

func TestSubmitOrder_FiresOrderCreated(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", ListPrice: 10000, IsDiscountable: true})
	repo.events[1] = activeEvent(1, 0.15)

	notifier := newRecordingNotifier()
	svc := NewService(repo, notifier)

	order, err := svc.SubmitOrder(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	select {
	case id := <-notifier.created:
		if id != order.ID {
			t.Fatalf("notified order id = %s, want %s", id, order.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("OrderCreated notification not delivered")
	}
}

func TestUpdateOrderStatus_FiresObserver(t *testing.T) {
	repo := newStubRepo()
	repo.orders["o1"] = &model.Order{ID: "o1", Status: model.OrderStatusPending}

	notifier := newRecordingNotifier()
	svc := NewService(repo, notifier)

	policy := access.NewPolicy(false, []string{"orders:edit"})

	if err := svc.UpdateOrderStatus(context.Background(), policy, "o1", model.OrderStatusConfirmed); err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}

	select {
	case to := <-notifier.status:
		if to != model.OrderStatusConfirmed {
			t.Fatalf("notified status = %q, want confirmed", to)
		}
	case <-time.After(time.Second):
		t.Fatalf("OrderStatusChanged notification not delivered")
	}

	if repo.orders["o1"].Status != model.OrderStatusConfirmed {
		t.Fatalf("persisted status = %q, want confirmed", repo.orders["o1"].Status)
	}
}

func TestAuthenticateUser(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	master := access.NewPolicy(true, nil)
	if _, err := svc.CreateUser(context.Background(), master, "admin", "secret", true, nil); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "admin", "secret"); err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "ghost", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials for unknown login", err)
	}
}

func TestCreateUser_RequiresUsersManage(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	policy := access.NewPolicy(false, []string{"orders:edit"})

	_, err := svc.CreateUser(context.Background(), policy, "new", "pass", false, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if repo.calls.createUser != 0 {
		t.Fatalf("store CreateUser called without users:manage")
	}
}

func TestPolicyForUser_MissingUserMeansNoSession(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	policy, err := svc.PolicyForUser(context.Background(), 77)
	if err != nil {
		t.Fatalf("PolicyForUser error: %v", err)
	}
	if policy.HasPermission(access.CapOrdersView) {
		t.Fatalf("missing user must yield a deny-all policy")
	}
}

func TestPreviewCost_DefaultRateWithoutEvent(t *testing.T) {
	repo := newStubRepo()
	repo.addProduct(model.Product{ID: 10, Code: "TSHIRT", ListPrice: 10000, IsDiscountable: true})

	svc := NewService(repo)

	b, err := svc.PreviewCost(context.Background(), []OrderItemInput{{ProductRef: "TSHIRT", Quantity: 1}}, 0)
	if err != nil {
		t.Fatalf("PreviewCost error: %v", err)
	}
	if b.SubtotalDiscounted != 8500 {
		t.Fatalf("SubtotalDiscounted = %d, want default 15%% rate applied (8500)", b.SubtotalDiscounted)
	}
}

func TestCreateEvent_ValidatesRate(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	policy := access.NewPolicy(true, nil)
	now := time.Now()

	_, err := svc.CreateEvent(context.Background(), policy, model.Event{
		Name: "conf", Slug: "conf", DiscountRate: 1.5,
		StartDate: now, EndDate: now.Add(time.Hour),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for rate outside [0,1]", err)
	}
	if repo.calls.createEvent != 0 {
		t.Fatalf("store CreateEvent called for invalid event")
	}
}
