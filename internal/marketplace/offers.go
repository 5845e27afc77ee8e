package marketplace

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

// RequestOfferExport запускает выгрузку каталога офферов и возвращает идентификатор процесса.
func (c *Client) RequestOfferExport(ctx context.Context) (string, error) {
	var st ProcessStatus
	if err := c.doJSON(ctx, http.MethodPost, "/retailer/offers/export", map[string]string{"format": "CSV"}, &st); err != nil {
		return "", fmt.Errorf("request offer export: %w", err)
	}
	if st.ProcessStatusID == "" {
		return "", &model.RemoteAPIError{Service: serviceName, Kind: model.RemoteMalformed, Message: "export response without process id"}
	}
	return st.ProcessStatusID, nil
}

// DownloadOfferExport скачивает готовую выгрузку офферов в формате CSV.
func (c *Client) DownloadOfferExport(ctx context.Context, reportID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/retailer/offers/export/"+url.PathEscape(reportID), nil, contentTypeCSV)
	if err != nil {
		return nil, fmt.Errorf("download offer export: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read offer export: %w", err)
	}
	return data, nil
}

// ParseOfferExport разбирает CSV-выгрузку офферов. Строки без идентификатора,
// EAN, известного класса состояния или положительной цены пропускаются.
func ParseOfferExport(r io.Reader) (offers []model.Offer, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	for _, required := range []string{"offerId", "ean", "conditionName", "bundlePricesPrice"} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("offer export: missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read offer row: %w", err)
		}

		offerID := field(rec, "offerId")
		ean := field(rec, "ean")
		condition, ok := model.ParseCondition(field(rec, "conditionName"))
		price, perr := decimal.NewFromString(strings.ReplaceAll(field(rec, "bundlePricesPrice"), ",", "."))

		if offerID == "" || ean == "" || !ok || perr != nil || !price.IsPositive() {
			skipped++
			continue
		}

		stock, _ := strconv.Atoi(field(rec, "stockAmount"))

		offers = append(offers, model.Offer{
			OfferID:   offerID,
			EAN:       ean,
			Condition: condition,
			Price:     price,
			Reference: field(rec, "referenceCode"),
			Stock:     stock,
		})
	}

	return offers, skipped, nil
}

// CompetingOffers возвращает все офферы по товару, включая собственный.
func (c *Client) CompetingOffers(ctx context.Context, ean string) ([]model.CompetingOffer, error) {
	q := url.Values{}
	q.Set("country-code", "NL")
	q.Set("best-offer-only", "false")
	q.Set("condition", "ALL")

	var resp struct {
		Offers []struct {
			OfferID   string          `json:"offerId"`
			Price     decimal.Decimal `json:"price"`
			Condition string          `json:"condition"`
		} `json:"offers"`
	}

	path := "/retailer/products/" + url.PathEscape(ean) + "/offers?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		var remoteErr *model.RemoteAPIError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("competing offers for %s: %w", ean, err)
	}

	res := make([]model.CompetingOffer, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		condition, ok := model.ParseCondition(o.Condition)
		if !ok {
			continue
		}
		res = append(res, model.CompetingOffer{
			OfferID:   o.OfferID,
			Condition: condition,
			Price:     o.Price,
		})
	}
	return res, nil
}

type bundlePrice struct {
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type priceUpdateRequest struct {
	Pricing struct {
		BundlePrices []bundlePrice `json:"bundlePrices"`
	} `json:"pricing"`
}

// UpdateOfferPrice отправляет новую цену оффера и возвращает идентификатор процесса.
// Результат процесса проверяется отдельно через WaitForProcess.
func (c *Client) UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal) (string, error) {
	var req priceUpdateRequest
	req.Pricing.BundlePrices = []bundlePrice{{Quantity: 1, UnitPrice: price.Round(2).InexactFloat64()}}

	var st ProcessStatus
	if err := c.doJSON(ctx, http.MethodPut, "/retailer/offers/"+url.PathEscape(offerID)+"/price", req, &st); err != nil {
		return "", fmt.Errorf("update price of offer %s: %w", offerID, err)
	}
	return st.ProcessStatusID, nil
}
