package carrier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/bol-fulfillment/internal/config"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

func testConfig(baseURL string) config.Carrier {
	return config.Carrier{
		BaseURL:            baseURL,
		APIKey:             "test-key",
		CustomerCode:       "DEVC",
		CustomerNumber:     "11223344",
		ProductCode:        "3085",
		MailboxProductCode: "2928",
		SenderName:         "Warehouse BV",
		SenderStreet:       "Siriusdreef",
		SenderHouseNumber:  "42",
		SenderZipCode:      "2132WT",
		SenderCity:         "Hoofddorp",
		Timeout:            time.Second,
	}
}

func newTestServer(t *testing.T, label func(w http.ResponseWriter, req labelRequest)) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/shipment/v1_1/barcode", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "test-key" {
			t.Fatalf("apikey = %q, want test-key", r.Header.Get("apikey"))
		}
		if r.URL.Query().Get("CustomerCode") != "DEVC" {
			t.Fatalf("CustomerCode = %q", r.URL.Query().Get("CustomerCode"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Barcode":"3SDEVC123456789"}`))
	})
	mux.HandleFunc("/shipment/v2_2/label", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		var req labelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		label(w, req)
	})

	return httptest.NewServer(mux)
}

func okLabel(w http.ResponseWriter, barcode string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ResponseShipments": []map[string]any{{
			"Barcode": barcode,
			"Labels": []map[string]any{{
				"Content":    base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 label")),
				"Labeltype":  "Label",
				"OutputType": "PDF",
			}},
		}},
	})
}

func TestCreateLabel_OK(t *testing.T) {
	var got labelRequest
	ts := newTestServer(t, func(w http.ResponseWriter, req labelRequest) {
		got = req
		okLabel(w, req.Shipments[0].Barcode)
	})
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	label, err := client.CreateLabel(ctx, model.Parcel{
		Reference:   "A1-1",
		PackageType: model.PackageTypeMailbox,
		Customer: model.Customer{
			FirstName: "Jan",
			Surname:   "Jansen",
			ZipCode:   "1012 lg",
			Email:     "jan@example.com",
		},
	})
	if err != nil {
		t.Fatalf("CreateLabel error: %v", err)
	}
	if label.TrackingCode != "3SDEVC123456789" {
		t.Fatalf("tracking = %q", label.TrackingCode)
	}
	if string(label.PDF) != "%PDF-1.4 label" {
		t.Fatalf("pdf = %q", label.PDF)
	}

	if len(got.Shipments) != 1 {
		t.Fatalf("shipments = %d, want 1", len(got.Shipments))
	}
	sh := got.Shipments[0]
	if sh.ProductCodeDelivery != "2928" {
		t.Fatalf("product code = %q, want 2928", sh.ProductCodeDelivery)
	}
	addr := sh.Addresses[0]
	if addr.City != DefaultCity || addr.HouseNr != DefaultHouseNumber || addr.Zipcode != "1012LG" {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if sh.Dimension["Weight"] != "1000" {
		t.Fatalf("weight = %q, want 1000", sh.Dimension["Weight"])
	}
	if len(sh.Contacts) != 1 || sh.Contacts[0].Email != "jan@example.com" {
		t.Fatalf("unexpected contacts: %+v", sh.Contacts)
	}
}

func TestCreateLabel_UnknownPackageTypeForwarded(t *testing.T) {
	var code string
	ts := newTestServer(t, func(w http.ResponseWriter, req labelRequest) {
		code = req.Shipments[0].ProductCodeDelivery
		okLabel(w, req.Shipments[0].Barcode)
	})
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	if _, err := client.CreateLabel(context.Background(), model.Parcel{PackageType: "4944"}); err != nil {
		t.Fatalf("CreateLabel error: %v", err)
	}
	if code != "4944" {
		t.Fatalf("product code = %q, want 4944", code)
	}
}

func TestCreateLabel_CarrierError(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, req labelRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Errors":[{"Code":"13","Description":"Invalid zipcode"}]}`))
	})
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	_, err := client.CreateLabel(context.Background(), model.Parcel{})

	var remoteErr *model.RemoteAPIError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteAPIError, got %v", err)
	}
	if remoteErr.Kind != model.RemoteBadRequest || remoteErr.Message != "Invalid zipcode" {
		t.Fatalf("unexpected error: %+v", remoteErr)
	}
}

func TestCreateLabel_EmptyLabel(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, req labelRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ResponseShipments":[{"Barcode":"3SDEVC123456789","Labels":[]}]}`))
	})
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	_, err := client.CreateLabel(context.Background(), model.Parcel{})

	var remoteErr *model.RemoteAPIError
	if !errors.As(err, &remoteErr) || remoteErr.Kind != model.RemoteMalformed {
		t.Fatalf("expected malformed RemoteAPIError, got %v", err)
	}
}

func TestMissing(t *testing.T) {
	client := NewClient(config.Carrier{APIKey: "your_api_key"}, nil)

	missing := client.Missing()
	if len(missing) != 8 {
		t.Fatalf("missing = %v, want 8 fields", missing)
	}
}
