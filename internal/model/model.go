// Package model содержит доменные сущности сервиса комплектации заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PackageType описывает тип отправления, выбранный сборщиком при комплектации.
type PackageType string

const (
	PackageTypeNormal  PackageType = "NORMAL"
	PackageTypeMailbox PackageType = "MAILBOX"
)

// ParsePackageType нормализует тип отправления. Пустое значение означает NORMAL,
// неизвестные значения передаются перевозчику как есть.
func ParsePackageType(s string) PackageType {
	if s == "" {
		return PackageTypeNormal
	}
	return PackageType(s)
}

// Customer содержит денормализованные данные покупателя и адрес доставки.
type Customer struct {
	FirstName            string `json:"firstName"`
	Surname              string `json:"surname"`
	StreetName           string `json:"streetName"`
	HouseNumber          string `json:"houseNumber"`
	HouseNumberExtension string `json:"houseNumberExtension,omitempty"`
	ZipCode              string `json:"zipCode"`
	City                 string `json:"city"`
	CountryCode          string `json:"countryCode"`
	Email                string `json:"email"`
}

// FullName возвращает имя покупателя для отображения.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.Surname
	case c.Surname == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.Surname
	}
}

// PickingItem описывает одну позицию листа комплектации.
type PickingItem struct {
	OrderID   string          `json:"orderId"`
	ItemID    string          `json:"itemId"`
	Title     string          `json:"title"`
	EAN       string          `json:"ean"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Customer  Customer        `json:"customer"`
	Location  string          `json:"location"`
	FetchedAt time.Time       `json:"fetchedAt"`

	Picked         bool        `json:"picked"`
	PickedAt       *time.Time  `json:"pickedAt,omitempty"`
	PackageType    PackageType `json:"packageType,omitempty"`
	TrackingNumber string      `json:"trackingNumber,omitempty"`
	LabelFile      string      `json:"labelFile,omitempty"`
	LabelCreatedAt *time.Time  `json:"labelCreatedAt,omitempty"`

	Shipped   bool       `json:"shipped"`
	ShippedAt *time.Time `json:"shippedAt,omitempty"`
}

// Key возвращает составной ключ позиции (заказ, позиция заказа).
func (i PickingItem) Key() ItemKey {
	return ItemKey{OrderID: i.OrderID, ItemID: i.ItemID}
}

// HasLabel сообщает, создана ли для позиции этикетка.
func (i PickingItem) HasLabel() bool {
	return i.TrackingNumber != "" && i.LabelFile != ""
}

// ItemKey однозначно идентифицирует позицию листа комплектации.
type ItemKey struct {
	OrderID string
	ItemID  string
}

// OrderStatus описывает агрегированное состояние заказа.
type OrderStatus string

const (
	OrderStatusOpen    OrderStatus = "open"
	OrderStatusPicking OrderStatus = "picking"
	OrderStatusReady   OrderStatus = "ready"
	OrderStatusShipped OrderStatus = "shipped"
)

// Order описывает проекцию заказа, вычисляемая из позиций листа комплектации.
type Order struct {
	OrderID      string        `json:"orderId"`
	CustomerName string        `json:"customerName"`
	Customer     Customer      `json:"customer"`
	Email        string        `json:"email"`
	Items        []PickingItem `json:"items"`
	PickedCount  int           `json:"pickedCount"`
	ShippedCount int           `json:"shippedCount"`
	Status       OrderStatus   `json:"status"`
}

// AllPicked сообщает, что все позиции заказа скомплектованы.
func (o Order) AllPicked() bool {
	return len(o.Items) > 0 && o.PickedCount == len(o.Items)
}

// AllShipped сообщает, что все позиции заказа отправлены.
func (o Order) AllShipped() bool {
	return len(o.Items) > 0 && o.ShippedCount == len(o.Items)
}

// MarketplaceOrder описывает заказ маркетплейса вместе с позициями и адресом доставки.
type MarketplaceOrder struct {
	OrderID    string
	PlacedAt   time.Time
	Customer   Customer
	OrderItems []MarketplaceOrderItem
}

// MarketplaceOrderItem описывает позицию заказа маркетплейса.
type MarketplaceOrderItem struct {
	OrderItemID string
	EAN         string
	Title       string
	Quantity    int
	UnitPrice   decimal.Decimal
	// Место хранения из ссылки оффера, если продавец его указал.
	Location string
}

// ShipmentItem связывает позицию заказа с трек-номером при регистрации отправки.
type ShipmentItem struct {
	OrderItemID  string
	Quantity     int
	TrackingCode string
}

// Parcel описывает одно отправление для создания этикетки перевозчика.
type Parcel struct {
	Reference   string
	Customer    Customer
	WeightGrams int
	PackageType PackageType
}

// Label содержит результат создания этикетки перевозчиком.
type Label struct {
	TrackingCode string
	PDF          []byte
}

// Document описывает сохранённый файл (отчёт или этикетку).
type Document struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
