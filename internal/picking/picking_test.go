package picking

import (
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

var fetchedAt = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func fakeOrder(id string, items ...model.MarketplaceOrderItem) model.MarketplaceOrder {
	return model.MarketplaceOrder{
		OrderID: id,
		Customer: model.Customer{
			FirstName:   faker.FirstName(),
			Surname:     faker.LastName(),
			StreetName:  "Damrak",
			HouseNumber: "1",
			ZipCode:     "1012LG",
			City:        "Amsterdam",
			CountryCode: "NL",
			Email:       faker.Email(),
		},
		OrderItems: items,
	}
}

func TestBuild(t *testing.T) {
	orders := []model.MarketplaceOrder{
		fakeOrder("A1",
			model.MarketplaceOrderItem{OrderItemID: "1", EAN: "4006381333931", Title: "Book", Quantity: 1, UnitPrice: decimal.RequireFromString("12.50")},
			model.MarketplaceOrderItem{OrderItemID: "2", EAN: "9780201379624", Title: "Game", Quantity: 0, Location: "Z-99-9"},
		),
		fakeOrder("B2", model.MarketplaceOrderItem{OrderItemID: "3", EAN: "96385074"}),
	}

	items := Build(orders, fetchedAt)

	require.Len(t, items, 3)

	assert.Equal(t, "A1", items[0].OrderID)
	assert.Equal(t, orders[0].Customer, items[0].Customer)
	assert.Equal(t, DeriveLocation("4006381333931"), items[0].Location)
	assert.Equal(t, "Z-99-9", items[1].Location)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, fetchedAt, items[2].FetchedAt)

	for _, it := range items {
		assert.False(t, it.Picked)
		assert.False(t, it.Shipped)
		assert.Empty(t, it.TrackingNumber)
	}
}

func TestDeriveLocation(t *testing.T) {
	first := DeriveLocation("4006381333931")
	second := DeriveLocation("4006381333931")

	assert.Equal(t, first, second)
	assert.Regexp(t, `^[A-H]-(0[1-9]|1[0-9]|2[0-4])-[1-5]$`, first)
	assert.Regexp(t, `^[A-H]-\d{2}-\d$`, DeriveLocation(""))
}

func TestMerge_PrefersExisting(t *testing.T) {
	pickedAt := fetchedAt.Add(time.Hour)
	existing := []model.PickingItem{
		{
			OrderID:        "A1",
			ItemID:         "1",
			Location:       "A-01-1",
			Picked:         true,
			PickedAt:       &pickedAt,
			TrackingNumber: "3SABCD123456789",
			LabelFile:      "3SABCD123456789.pdf",
		},
		{OrderID: "A1", ItemID: "2", Location: "A-01-2"},
		{OrderID: "OLD", ItemID: "9", Location: "B-01-1"},
		{OrderID: "SHIPPED", ItemID: "7", Picked: true, Shipped: true, TrackingNumber: "3SABCD000000001", LabelFile: "x.pdf"},
	}
	fresh := []model.PickingItem{
		{OrderID: "A1", ItemID: "1", Location: "C-05-5"},
		{OrderID: "A1", ItemID: "2", Location: "C-05-4"},
		{OrderID: "C3", ItemID: "4", Location: "D-02-2"},
	}

	merged, added := Merge(existing, fresh)

	assert.Equal(t, 1, added)
	require.Len(t, merged, 4)

	byKey := lo.KeyBy(merged, func(i model.PickingItem) model.ItemKey { return i.Key() })

	kept := byKey[model.ItemKey{OrderID: "A1", ItemID: "1"}]
	assert.True(t, kept.Picked)
	assert.Equal(t, "3SABCD123456789", kept.TrackingNumber)
	assert.Equal(t, "A-01-1", kept.Location)

	assert.Equal(t, "A-01-2", byKey[model.ItemKey{OrderID: "A1", ItemID: "2"}].Location)
	assert.Contains(t, byKey, model.ItemKey{OrderID: "SHIPPED", ItemID: "7"})
	assert.Contains(t, byKey, model.ItemKey{OrderID: "C3", ItemID: "4"})
	assert.NotContains(t, byKey, model.ItemKey{OrderID: "OLD", ItemID: "9"})
}

func TestMerge_Idempotent(t *testing.T) {
	fresh := Build([]model.MarketplaceOrder{
		fakeOrder("A1", model.MarketplaceOrderItem{OrderItemID: "1", EAN: "4006381333931"}),
	}, fetchedAt)

	first, added := Merge(nil, fresh)
	require.Equal(t, 1, added)

	first[0].Picked = true
	first[0].TrackingNumber = "3SABCD123456789"
	first[0].LabelFile = "3SABCD123456789.pdf"

	second, added := Merge(first, fresh)

	assert.Equal(t, 0, added)
	require.Len(t, second, 1)
	assert.True(t, second[0].Picked)
	assert.Equal(t, "3SABCD123456789", second[0].TrackingNumber)
}

func TestFind(t *testing.T) {
	items := []model.PickingItem{
		{OrderID: "A1", ItemID: "1", EAN: "111"},
		{OrderID: "A1", ItemID: "2", EAN: "222"},
		{OrderID: "B2", ItemID: "1", EAN: "111"},
	}

	assert.Equal(t, 1, Find(items, "A1", "2", ""))
	assert.Equal(t, 2, Find(items, "B2", "", "111"))
	assert.Equal(t, 1, Find(items, "A1", "missing", "222"))
	assert.Equal(t, -1, Find(items, "C3", "1", "111"))
}

func TestOrders_Status(t *testing.T) {
	later := fetchedAt.Add(time.Minute)
	items := []model.PickingItem{
		{OrderID: "B", ItemID: "1", FetchedAt: later},
		{OrderID: "A", ItemID: "2", FetchedAt: fetchedAt, Picked: true},
		{OrderID: "A", ItemID: "1", FetchedAt: fetchedAt},
		{OrderID: "C", ItemID: "1", FetchedAt: later, Picked: true, Shipped: true},
		{OrderID: "D", ItemID: "1", FetchedAt: later, Picked: true},
	}

	orders := Orders(items)

	require.Len(t, orders, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, lo.Map(orders, func(o model.Order, _ int) string { return o.OrderID }))

	assert.Equal(t, model.OrderStatusPicking, orders[0].Status)
	assert.Equal(t, "1", orders[0].Items[0].ItemID)
	assert.Equal(t, model.OrderStatusOpen, orders[1].Status)
	assert.Equal(t, model.OrderStatusShipped, orders[2].Status)
	assert.True(t, orders[2].AllShipped())
	assert.Equal(t, model.OrderStatusReady, orders[3].Status)
	assert.False(t, orders[3].AllShipped())
}

func TestOrderByID(t *testing.T) {
	_, ok := OrderByID(nil, "X")
	assert.False(t, ok)

	o, ok := OrderByID([]model.PickingItem{{OrderID: "X", ItemID: "1"}, {OrderID: "Y", ItemID: "1"}}, "X")
	require.True(t, ok)
	assert.Len(t, o.Items, 1)
}
