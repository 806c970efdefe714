// Package access реализует проверку прав доступа сотрудников бэк-офиса.
package access

// Capability — ключ права доступа.
type Capability string

const (
	CapOrdersView   Capability = "orders:view"
	CapOrdersEdit   Capability = "orders:edit"
	CapProductsView Capability = "products:view"
	CapProductsEdit Capability = "products:edit"
	CapEventsView   Capability = "events:view"
	CapEventsEdit   Capability = "events:edit"
	CapUsersManage  Capability = "users:manage"
)

// Policy — набор прав текущего пользователя. Мастер удовлетворяет любую
// проверку без перечисления прав. Нулевой указатель означает отсутствие
// сессии и запрещает всё.
type Policy struct {
	master bool
	caps   map[Capability]struct{}
}

// NewPolicy создаёт политику из списка ключей прав.
func NewPolicy(master bool, keys []string) *Policy {
	caps := make(map[Capability]struct{}, len(keys))
	for _, k := range keys {
		caps[Capability(k)] = struct{}{}
	}
	return &Policy{master: master, caps: caps}
}

// HasPermission проверяет наличие права. Для мастера всегда true.
func (p *Policy) HasPermission(c Capability) bool {
	if p == nil {
		return false
	}
	if p.master {
		return true
	}
	_, ok := p.caps[c]
	return ok
}

// IsMaster сообщает, является ли пользователь мастером.
func (p *Policy) IsMaster() bool {
	return p != nil && p.master
}
