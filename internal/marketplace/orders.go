package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/validation"
)

const (
	ordersPageSize = 50
	maxOrderPages  = 20
)

type orderSummary struct {
	OrderID             string    `json:"orderId"`
	OrderPlacedDateTime time.Time `json:"orderPlacedDateTime"`
	OrderItems          []struct {
		OrderItemID       string `json:"orderItemId"`
		EAN               string `json:"ean"`
		Quantity          int    `json:"quantity"`
		QuantityShipped   int    `json:"quantityShipped"`
		QuantityCancelled int    `json:"quantityCancelled"`
	} `json:"orderItems"`
}

type orderDetails struct {
	OrderID             string    `json:"orderId"`
	OrderPlacedDateTime time.Time `json:"orderPlacedDateTime"`
	ShipmentDetails     struct {
		FirstName            string `json:"firstName"`
		Surname              string `json:"surname"`
		StreetName           string `json:"streetName"`
		HouseNumber          string `json:"houseNumber"`
		HouseNumberExtension string `json:"houseNumberExtension"`
		ZipCode              string `json:"zipCode"`
		City                 string `json:"city"`
		CountryCode          string `json:"countryCode"`
		Email                string `json:"email"`
	} `json:"shipmentDetails"`
	OrderItems []struct {
		OrderItemID       string `json:"orderItemId"`
		Quantity          int    `json:"quantity"`
		QuantityShipped   int    `json:"quantityShipped"`
		QuantityCancelled int    `json:"quantityCancelled"`
		Offer             struct {
			OfferID   string `json:"offerId"`
			Reference string `json:"reference"`
		} `json:"offer"`
		Product struct {
			EAN   string `json:"ean"`
			Title string `json:"title"`
		} `json:"product"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
	} `json:"orderItems"`
}

// FetchOpenOrders возвращает открытые заказы с доставкой силами продавца (FBR).
// Позиции содержат только EAN и количество; адрес и названия приходят из FetchOrderDetails.
func (c *Client) FetchOpenOrders(ctx context.Context) ([]model.MarketplaceOrder, error) {
	var orders []model.MarketplaceOrder

	for page := 1; page <= maxOrderPages; page++ {
		q := url.Values{}
		q.Set("fulfilment-method", "FBR")
		q.Set("status", "OPEN")
		q.Set("page", strconv.Itoa(page))

		var resp struct {
			Orders []orderSummary `json:"orders"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/retailer/orders?"+q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("fetch orders page %d: %w", page, err)
		}

		for _, o := range resp.Orders {
			mo := model.MarketplaceOrder{OrderID: o.OrderID, PlacedAt: o.OrderPlacedDateTime}
			for _, oi := range o.OrderItems {
				open := oi.Quantity - oi.QuantityShipped - oi.QuantityCancelled
				if open <= 0 {
					continue
				}
				mo.OrderItems = append(mo.OrderItems, model.MarketplaceOrderItem{
					OrderItemID: oi.OrderItemID,
					EAN:         oi.EAN,
					Quantity:    open,
				})
			}
			if len(mo.OrderItems) > 0 {
				orders = append(orders, mo)
			}
		}

		if len(resp.Orders) < ordersPageSize {
			break
		}
	}

	return orders, nil
}

// FetchOrderDetails возвращает заказ с адресом доставки и открытыми позициями.
func (c *Client) FetchOrderDetails(ctx context.Context, orderID string) (*model.MarketplaceOrder, error) {
	var d orderDetails
	if err := c.doJSON(ctx, http.MethodGet, "/retailer/orders/"+url.PathEscape(orderID), nil, &d); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}

	sd := d.ShipmentDetails
	o := &model.MarketplaceOrder{
		OrderID:  d.OrderID,
		PlacedAt: d.OrderPlacedDateTime,
		Customer: model.Customer{
			FirstName:            sd.FirstName,
			Surname:              sd.Surname,
			StreetName:           sd.StreetName,
			HouseNumber:          sd.HouseNumber,
			HouseNumberExtension: sd.HouseNumberExtension,
			ZipCode:              sd.ZipCode,
			City:                 sd.City,
			CountryCode:          sd.CountryCode,
			Email:                sd.Email,
		},
	}

	for _, oi := range d.OrderItems {
		open := oi.Quantity - oi.QuantityShipped - oi.QuantityCancelled
		if open <= 0 {
			continue
		}
		o.OrderItems = append(o.OrderItems, model.MarketplaceOrderItem{
			OrderItemID: oi.OrderItemID,
			EAN:         oi.Product.EAN,
			Title:       oi.Product.Title,
			Quantity:    open,
			UnitPrice:   oi.UnitPrice,
			Location:    oi.Offer.Reference,
		})
	}

	return o, nil
}

type shipmentRequest struct {
	OrderItems []shipmentOrderItem `json:"orderItems"`
	// В ShipmentReference передаётся номер заказа.
	ShipmentReference string    `json:"shipmentReference,omitempty"`
	Transport         transport `json:"transport"`
}

type shipmentOrderItem struct {
	OrderItemID string `json:"orderItemId"`
	Quantity    int    `json:"quantity,omitempty"`
}

type transport struct {
	TransporterCode string `json:"transporterCode"`
	TrackAndTrace   string `json:"trackAndTrace"`
}

// RegisterShipment регистрирует отправку позиций заказа. Маркетплейс принимает
// один трек-номер на запрос, поэтому позиции группируются по трек-номеру и
// каждая группа ожидается до завершения. Возвращает номера позиций, отправка
// которых зарегистрирована; если часть групп не прошла, вместе с ними
// возвращается PartialFailureError.
func (c *Client) RegisterShipment(ctx context.Context, orderID string, items []model.ShipmentItem) ([]string, error) {
	groups := lo.GroupBy(items, func(i model.ShipmentItem) string { return i.TrackingCode })
	codes := lo.Uniq(lo.Map(items, func(i model.ShipmentItem, _ int) string { return i.TrackingCode }))

	failed := make(map[string]error)
	var registered []string

	for _, code := range codes {
		group := groups[code]

		req := shipmentRequest{
			ShipmentReference: orderID,
			Transport: transport{
				TransporterCode: c.transporter,
				TrackAndTrace:   validation.NormalizeTrackingCode(code),
			},
		}
		for _, it := range group {
			req.OrderItems = append(req.OrderItems, shipmentOrderItem{
				OrderItemID: it.OrderItemID,
				Quantity:    it.Quantity,
			})
		}

		if err := c.submitAndWait(ctx, http.MethodPut, "/retailer/orders/shipment", req); err != nil {
			for _, it := range group {
				failed[it.OrderItemID] = err
			}
			if len(registered) == 0 && len(failed) == len(items) {
				return nil, fmt.Errorf("register shipment for order %s: %w", orderID, err)
			}
			continue
		}
		for _, it := range group {
			registered = append(registered, it.OrderItemID)
		}
	}

	if len(failed) > 0 {
		return registered, &model.PartialFailureError{Succeeded: len(registered), Failed: failed}
	}
	return registered, nil
}

// submitAndWait отправляет запрос, возвращающий процесс, и дожидается его завершения.
func (c *Client) submitAndWait(ctx context.Context, method, path string, body any) error {
	var st ProcessStatus
	if err := c.doJSON(ctx, method, path, body, &st); err != nil {
		return err
	}
	if st.Done() {
		if st.Status != ProcessSuccess {
			return &model.RemoteAPIError{Service: serviceName, Kind: model.RemoteBadRequest, Message: st.ErrorMessage}
		}
		return nil
	}
	_, err := c.WaitForProcess(ctx, st.ProcessStatusID)
	return err
}
