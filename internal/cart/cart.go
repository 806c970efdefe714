// Package cart реализует черновик заказа покупателя.
package cart

import (
	"strconv"

	"github.com/mmeshcher/confmerch-system/internal/model"
	"github.com/mmeshcher/confmerch-system/internal/pricing"
)

// Cart — состояние формы заказа: контактные данные, ставка скидки выбранного
// мероприятия и список позиций. Разбивка стоимости пересчитывается при каждом
// обращении: стоимость расчёта линейна по числу позиций, кэш не нужен.
type Cart struct {
	Customer     model.CustomerInfo
	DiscountRate float64
	items        []model.LineItem
}

// New создаёт пустую корзину с указанной ставкой скидки мероприятия.
func New(discountRate float64) *Cart {
	return &Cart{DiscountRate: discountRate}
}

// AddProduct добавляет товар из каталога. Повторное добавление того же товара
// увеличивает количество существующей позиции.
func (c *Cart) AddProduct(p model.Product, qty int) {
	if qty < 1 {
		qty = 1
	}

	ref := strconv.FormatInt(p.ID, 10)
	for i := range c.items {
		if c.items[i].ProductRef == ref {
			c.items[i].Quantity += qty
			return
		}
	}

	c.items = append(c.items, model.LineItem{
		ProductRef:     ref,
		Quantity:       qty,
		UnitListPrice:  p.ListPrice,
		IsDiscountable: p.IsDiscountable,
		Resolved:       true,
	})
}

// ChangeQuantity устанавливает количество позиции. Значения меньше единицы
// приводятся к единице: нулевое количество выражается удалением позиции.
func (c *Cart) ChangeQuantity(ref string, qty int) {
	if qty < 1 {
		qty = 1
	}
	for i := range c.items {
		if c.items[i].ProductRef == ref {
			c.items[i].Quantity = qty
			return
		}
	}
}

// RemoveProduct удаляет позицию по ссылке на товар.
func (c *Cart) RemoveProduct(ref string) {
	for i := range c.items {
		if c.items[i].ProductRef == ref {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Items возвращает копию текущих позиций.
func (c *Cart) Items() []model.LineItem {
	out := make([]model.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Breakdown возвращает актуальную разбивку стоимости.
func (c *Cart) Breakdown() model.CostBreakdown {
	return pricing.ComputeCost(c.items, c.DiscountRate)
}

// IsSubmittable сообщает, готов ли черновик к оформлению: обязательные
// контактные поля заполнены и хотя бы одна позиция разрешилась в реальный товар.
func (c *Cart) IsSubmittable() bool {
	if c.Customer.Name == "" || c.Customer.Email == "" {
		return false
	}
	if c.Customer.Address.Postcode == "" || c.Customer.Address.Address == "" {
		return false
	}
	for _, it := range c.items {
		if it.Resolved && it.Quantity > 0 {
			return true
		}
	}
	return false
}
