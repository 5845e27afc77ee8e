// Package picking строит лист комплектации из заказов маркетплейса и
// собирает из него проекции заказов.
package picking

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

const (
	aisles = "ABCDEFGH"
	racks  = 24
	shelfs = 5
)

// Build разворачивает заказы в плоский список позиций комплектации.
// Новые позиции никогда не отмечены как скомплектованные.
func Build(orders []model.MarketplaceOrder, now time.Time) []model.PickingItem {
	items := make([]model.PickingItem, 0, len(orders))
	for _, o := range orders {
		for _, oi := range o.OrderItems {
			location := strings.TrimSpace(oi.Location)
			if location == "" {
				location = DeriveLocation(oi.EAN)
			}

			quantity := oi.Quantity
			if quantity <= 0 {
				quantity = 1
			}

			items = append(items, model.PickingItem{
				OrderID:   o.OrderID,
				ItemID:    oi.OrderItemID,
				Title:     oi.Title,
				EAN:       oi.EAN,
				Quantity:  quantity,
				UnitPrice: oi.UnitPrice,
				Customer:  o.Customer,
				Location:  location,
				FetchedAt: now,
			})
		}
	}
	return items
}

// DeriveLocation вычисляет условное место хранения по EAN. Результат стабилен
// для одного и того же EAN, но не связан с реальной раскладкой склада.
func DeriveLocation(ean string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.TrimSpace(ean)))
	sum := h.Sum32()

	aisle := aisles[sum%uint32(len(aisles))]
	rack := (sum/uint32(len(aisles)))%racks + 1
	shelf := (sum/uint32(len(aisles)*racks))%shelfs + 1

	return fmt.Sprintf("%c-%02d-%d", aisle, rack, shelf)
}

// Merge объединяет текущий лист с только что полученным. Для совпадающего
// ключа (заказ, позиция) побеждает уже существующая позиция. Существующие
// позиции, отсутствующие в новом списке, остаются только если они
// скомплектованы или отправлены.
func Merge(existing, fresh []model.PickingItem) (merged []model.PickingItem, added int) {
	freshKeys := lo.SliceToMap(fresh, func(i model.PickingItem) (model.ItemKey, struct{}) {
		return i.Key(), struct{}{}
	})

	seen := make(map[model.ItemKey]struct{}, len(existing)+len(fresh))
	merged = make([]model.PickingItem, 0, len(existing)+len(fresh))

	for _, it := range existing {
		if _, ok := freshKeys[it.Key()]; !ok && !it.Picked && !it.Shipped {
			continue
		}
		seen[it.Key()] = struct{}{}
		merged = append(merged, it)
	}

	for _, it := range fresh {
		if _, ok := seen[it.Key()]; ok {
			continue
		}
		seen[it.Key()] = struct{}{}
		merged = append(merged, it)
		added++
	}

	return merged, added
}

// Find ищет позицию по ключу (заказ, позиция), а затем по паре (заказ, EAN).
// Возвращает индекс позиции в срезе или -1.
func Find(items []model.PickingItem, orderID, itemID, ean string) int {
	if itemID != "" {
		for i, it := range items {
			if it.OrderID == orderID && it.ItemID == itemID {
				return i
			}
		}
	}
	if ean != "" {
		for i, it := range items {
			if it.OrderID == orderID && it.EAN == ean {
				return i
			}
		}
	}
	return -1
}

// Orders группирует позиции в проекции заказов. Заказы упорядочены по времени
// первого получения, затем по идентификатору.
func Orders(items []model.PickingItem) []model.Order {
	grouped := lo.GroupBy(items, func(i model.PickingItem) string { return i.OrderID })

	orders := make([]model.Order, 0, len(grouped))
	for id, group := range grouped {
		orders = append(orders, project(id, group))
	}

	sort.Slice(orders, func(i, j int) bool {
		fi, fj := orders[i].Items[0].FetchedAt, orders[j].Items[0].FetchedAt
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		return orders[i].OrderID < orders[j].OrderID
	})

	return orders
}

// OrderByID возвращает проекцию одного заказа; ok=false, если позиций нет.
func OrderByID(items []model.PickingItem, orderID string) (model.Order, bool) {
	group := lo.Filter(items, func(i model.PickingItem, _ int) bool { return i.OrderID == orderID })
	if len(group) == 0 {
		return model.Order{OrderID: orderID}, false
	}
	return project(orderID, group), true
}

func project(orderID string, group []model.PickingItem) model.Order {
	sort.SliceStable(group, func(i, j int) bool { return group[i].ItemID < group[j].ItemID })

	o := model.Order{
		OrderID:      orderID,
		Customer:     group[0].Customer,
		CustomerName: group[0].Customer.FullName(),
		Email:        group[0].Customer.Email,
		Items:        group,
		PickedCount:  lo.CountBy(group, func(i model.PickingItem) bool { return i.Picked }),
		ShippedCount: lo.CountBy(group, func(i model.PickingItem) bool { return i.Shipped }),
	}

	switch {
	case o.AllShipped():
		o.Status = model.OrderStatusShipped
	case o.AllPicked():
		o.Status = model.OrderStatusReady
	case o.PickedCount > 0:
		o.Status = model.OrderStatusPicking
	default:
		o.Status = model.OrderStatusOpen
	}

	return o
}
