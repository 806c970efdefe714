// Package pricing реализует единый механизм расчёта стоимости заказа.
// Все места, где нужна сумма заказа (корзина, оформление, административное
// редактирование), обязаны использовать этот пакет, чтобы расчёт совпадал
// бит в бит с сохранённой ценой позиции.
package pricing

import (
	"math"

	"github.com/mmeshcher/confmerch-system/internal/model"
)

const (
	// FreeShippingThreshold — порог бесплатной доставки по подытогу по прайсу.
	FreeShippingThreshold int64 = 30000
	// ShippingFee — фиксированная стоимость доставки ниже порога.
	ShippingFee int64 = 3000
	// DefaultDiscountRate — ставка скидки по умолчанию, когда у мероприятия
	// нет собственной ставки.
	DefaultDiscountRate float64 = 0.15
)

// DiscountedUnitPrice возвращает цену за единицу с учётом скидки.
// Округление — половина вверх до целой минимальной единицы валюты,
// применяется к цене за единицу до умножения на количество.
// Ставка вне [0,1] приводится к границе: скидка не может быть отрицательной,
// а цена — ниже нуля.
func DiscountedUnitPrice(listPrice int64, discountable bool, rate float64) int64 {
	if !discountable {
		return listPrice
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return int64(math.Floor(float64(listPrice)*(1-rate) + 0.5))
}

// ComputeCost рассчитывает полную разбивку стоимости для набора позиций.
// Порог доставки сравнивается с подытогом по прайсу, а не по скидочным ценам.
// Неразрешённые позиции участвуют с нулевой ценой. Функция чистая: без
// побочных эффектов и ошибок, пустой набор даёт нулевую разбивку.
func ComputeCost(items []model.LineItem, discountRate float64) model.CostBreakdown {
	var b model.CostBreakdown

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}

		listPrice := it.UnitListPrice
		discountable := it.IsDiscountable
		if !it.Resolved {
			listPrice = 0
			discountable = false
		}

		qty := int64(it.Quantity)
		b.SubtotalList += listPrice * qty
		b.SubtotalDiscounted += DiscountedUnitPrice(listPrice, discountable, discountRate) * qty
	}

	b.DiscountAmount = b.SubtotalList - b.SubtotalDiscounted

	if b.SubtotalList > 0 && b.SubtotalList < FreeShippingThreshold {
		b.ShippingFee = ShippingFee
	}

	b.FinalTotal = b.SubtotalDiscounted + b.ShippingFee

	return b
}
