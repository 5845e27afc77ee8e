// Package carrier предоставляет клиент API перевозчика PostNL для создания этикеток.
package carrier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/config"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/remote"
	"github.com/mmeshcher/bol-fulfillment/internal/validation"
)

const serviceName = "carrier"

// Значения по умолчанию для неполного адреса: этикетка важнее блокировки сборщика.
const (
	DefaultCity        = "Amsterdam"
	DefaultZipCode     = "1000AA"
	DefaultHouseNumber = "1"
	DefaultStreet      = "Onbekend"
	DefaultCountryCode = "NL"
	DefaultName        = "Klant"
	DefaultWeightGrams = 1000
)

// Client инкапсулирует HTTP-взаимодействие с API перевозчика.
type Client struct {
	cfg        config.Carrier
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient создаёт клиент перевозчика с указанными настройками.
func NewClient(cfg config.Carrier, logger *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: remote.NewHTTPClient(remote.Options{
			Timeout: cfg.Timeout,
			Logger:  logger,
		}),
		now: time.Now,
	}
}

// Missing возвращает имена незаполненных параметров перевозчика.
func (c *Client) Missing() []string {
	return c.cfg.Missing()
}

// CreateLabel резервирует штрихкод и создаёт одну этикетку для отправления.
func (c *Client) CreateLabel(ctx context.Context, parcel model.Parcel) (*model.Label, error) {
	barcode, err := c.generateBarcode(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.labelRequest(parcel, barcode))
	if err != nil {
		return nil, fmt.Errorf("encode label request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/shipment/v2_2/label?confirm=true", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, remote.TransportError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remote.StatusError(serviceName, resp)
	}

	var result labelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, malformed(fmt.Sprintf("decode label response: %v", err))
	}

	return result.label()
}

func (c *Client) generateBarcode(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("CustomerCode", c.cfg.CustomerCode)
	q.Set("CustomerNumber", c.cfg.CustomerNumber)
	q.Set("Type", "3S")
	q.Set("Serie", "000000000-999999999")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/shipment/v1_1/barcode?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", remote.TransportError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", remote.StatusError(serviceName, resp)
	}

	var result struct {
		Barcode string `json:"Barcode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", malformed(fmt.Sprintf("decode barcode response: %v", err))
	}
	if result.Barcode == "" {
		return "", malformed("empty barcode")
	}

	return result.Barcode, nil
}

type address struct {
	AddressType string `json:"AddressType"`
	City        string `json:"City"`
	CompanyName string `json:"CompanyName,omitempty"`
	Countrycode string `json:"Countrycode"`
	FirstName   string `json:"FirstName,omitempty"`
	HouseNr     string `json:"HouseNr"`
	HouseNrExt  string `json:"HouseNrExt,omitempty"`
	Name        string `json:"Name,omitempty"`
	Street      string `json:"Street"`
	Zipcode     string `json:"Zipcode"`
}

type contact struct {
	ContactType string `json:"ContactType"`
	Email       string `json:"Email,omitempty"`
}

type shipment struct {
	Addresses           []address         `json:"Addresses"`
	Barcode             string            `json:"Barcode"`
	Contacts            []contact         `json:"Contacts,omitempty"`
	Dimension           map[string]string `json:"Dimension"`
	ProductCodeDelivery string            `json:"ProductCodeDelivery"`
	Reference           string            `json:"Reference,omitempty"`
}

type labelRequest struct {
	Customer struct {
		Address            address `json:"Address"`
		CollectionLocation string  `json:"CollectionLocation,omitempty"`
		CustomerCode       string  `json:"CustomerCode"`
		CustomerNumber     string  `json:"CustomerNumber"`
	} `json:"Customer"`
	Message struct {
		MessageID        string `json:"MessageID"`
		MessageTimeStamp string `json:"MessageTimeStamp"`
		Printertype      string `json:"Printertype"`
	} `json:"Message"`
	Shipments []shipment `json:"Shipments"`
}

func (c *Client) labelRequest(p model.Parcel, barcode string) labelRequest {
	var req labelRequest

	req.Customer.Address = address{
		AddressType: "02",
		City:        c.cfg.SenderCity,
		CompanyName: c.cfg.SenderName,
		Countrycode: DefaultCountryCode,
		HouseNr:     c.cfg.SenderHouseNumber,
		Street:      c.cfg.SenderStreet,
		Zipcode:     c.cfg.SenderZipCode,
	}
	req.Customer.CollectionLocation = c.cfg.CollectionLocation
	req.Customer.CustomerCode = c.cfg.CustomerCode
	req.Customer.CustomerNumber = c.cfg.CustomerNumber

	req.Message.MessageID = "1"
	req.Message.MessageTimeStamp = c.now().Format("02-01-2006 15:04:05")
	req.Message.Printertype = "GraphicFile|PDF"

	cust := p.Customer
	weight := p.WeightGrams
	if weight <= 0 {
		weight = DefaultWeightGrams
	}

	sh := shipment{
		Addresses: []address{{
			AddressType: "01",
			City:        orDefault(cust.City, DefaultCity),
			Countrycode: strings.ToUpper(orDefault(cust.CountryCode, DefaultCountryCode)),
			FirstName:   cust.FirstName,
			HouseNr:     orDefault(cust.HouseNumber, DefaultHouseNumber),
			HouseNrExt:  cust.HouseNumberExtension,
			Name:        orDefault(cust.Surname, DefaultName),
			Street:      orDefault(cust.StreetName, DefaultStreet),
			Zipcode:     strings.ReplaceAll(strings.ToUpper(orDefault(cust.ZipCode, DefaultZipCode)), " ", ""),
		}},
		Barcode:             barcode,
		Dimension:           map[string]string{"Weight": strconv.Itoa(weight)},
		ProductCodeDelivery: c.productCode(p.PackageType),
		Reference:           p.Reference,
	}
	if cust.Email != "" {
		sh.Contacts = []contact{{ContactType: "01", Email: cust.Email}}
	}

	req.Shipments = []shipment{sh}
	return req
}

// productCode сопоставляет тип отправления коду продукта перевозчика.
// Неизвестный тип передаётся как есть: его допустимость проверяет перевозчик.
func (c *Client) productCode(t model.PackageType) string {
	switch t {
	case model.PackageTypeNormal, "":
		return c.cfg.ProductCode
	case model.PackageTypeMailbox:
		return c.cfg.MailboxProductCode
	default:
		return string(t)
	}
}

type labelResponse struct {
	ResponseShipments []struct {
		Barcode string `json:"Barcode"`
		Labels  []struct {
			Content    string `json:"Content"`
			Labeltype  string `json:"Labeltype"`
			OutputType string `json:"OutputType"`
		} `json:"Labels"`
	} `json:"ResponseShipments"`
}

func (r labelResponse) label() (*model.Label, error) {
	if len(r.ResponseShipments) == 0 {
		return nil, malformed("no shipments in label response")
	}

	sh := r.ResponseShipments[0]
	code := validation.NormalizeTrackingCode(sh.Barcode)
	if !validation.IsValidTrackingCode(code) {
		return nil, malformed(fmt.Sprintf("invalid tracking code %q", sh.Barcode))
	}

	if len(sh.Labels) == 0 || sh.Labels[0].Content == "" {
		return nil, malformed("empty label content")
	}

	pdf, err := base64.StdEncoding.DecodeString(sh.Labels[0].Content)
	if err != nil {
		return nil, malformed(fmt.Sprintf("decode label content: %v", err))
	}
	if len(pdf) == 0 {
		return nil, malformed("empty label content")
	}

	return &model.Label{TrackingCode: code, PDF: pdf}, nil
}

func malformed(msg string) *model.RemoteAPIError {
	return &model.RemoteAPIError{
		Service: serviceName,
		Kind:    model.RemoteMalformed,
		Message: msg,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
