// Package model содержит доменные сущности сервиса заказов конференционного мерча.
package model

import "time"

// Product представляет товар каталога. Цена хранится в минимальных единицах валюты.
type Product struct {
	ID             int64
	Code           string
	Name           string
	ListPrice      int64
	IsDiscountable bool
	Category       string
	Tags           []string
	IsActive       bool
	CreatedAt      time.Time
}

// Event представляет мероприятие, к которому привязываются заказы.
type Event struct {
	ID           int64
	Name         string
	Slug         string
	DiscountRate float64
	StartDate    time.Time
	EndDate      time.Time
}

// IsActiveAt сообщает, попадает ли момент времени в окно проведения мероприятия.
func (e *Event) IsActiveAt(now time.Time) bool {
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusCompleted OrderStatus = "completed"
)

// ValidStatus проверяет принадлежность значения закрытому набору статусов.
func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}

// Address описывает структурированный адрес доставки.
type Address struct {
	Postcode string `json:"postcode"`
	Address  string `json:"address"`
	Detail   string `json:"detail,omitempty"`
}

// CustomerInfo содержит контактные данные покупателя.
type CustomerInfo struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// LineItem — позиция корзины или черновика заказа. Цена и признак скидки
// заполняются из каталога на момент расчёта; для неразрешённой ссылки
// Resolved остаётся false, а цена считается нулевой.
type LineItem struct {
	ProductRef     string
	Quantity       int
	UnitListPrice  int64
	IsDiscountable bool
	Resolved       bool
}

// CostBreakdown — результат расчёта стоимости заказа. Не хранится отдельной
// сущностью: поля дублируются в строке заказа на момент оформления.
type CostBreakdown struct {
	SubtotalList       int64 `json:"subtotal_list"`
	SubtotalDiscounted int64 `json:"subtotal_discounted"`
	DiscountAmount     int64 `json:"discount_amount"`
	ShippingFee        int64 `json:"shipping_fee"`
	FinalTotal         int64 `json:"final_total"`
}

// Order описывает оформленный заказ.
type Order struct {
	ID        string
	Customer  CustomerInfo
	EventID   int64
	Status    OrderStatus
	Cost      CostBreakdown
	AdminMemo string
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem — позиция сохранённого заказа. PriceAtPurchase — замороженная
// скидочная цена за единицу на момент расчёта; после создания она не
// пересчитывается, кроме явного административного редактирования.
type OrderItem struct {
	OrderID         string
	ProductID       int64
	ProductCode     string
	ProductName     string
	Quantity        int
	PriceAtPurchase int64
}

// User представляет сотрудника бэк-офиса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsMaster     bool
	Permissions  []string
	CreatedAt    time.Time
}
