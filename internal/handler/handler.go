// Package handler содержит HTTP-обработчики API сервиса комплектации.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/middleware"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/service"
	"github.com/mmeshcher/bol-fulfillment/internal/validation"
)

const (
	contentTypeJSON = "application/json"
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Authenticate(ctx context.Context, login, password string) error
	FetchOrders(ctx context.Context) (*service.FetchResult, error)
	ListOrders(ctx context.Context) []model.Order
	PickingList(ctx context.Context) []model.PickingItem
	ExportPickingList(ctx context.Context) ([]byte, error)
	PickItem(ctx context.Context, req service.PickRequest) (*model.PickingItem, error)
	ShipOrder(ctx context.Context, orderID string) ([]string, error)
	Label(ctx context.Context, tracking string) ([]byte, error)
	StartPriceUpdate(ctx context.Context) (model.PriceRun, error)
	PriceProgress() model.PriceRun
	Reports(ctx context.Context) ([]model.Document, error)
	Report(ctx context.Context, name string) ([]byte, error)
}

// Handler реализует HTTP-обработчики API сервиса комплектации.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// Если auth равен nil, API доступно без входа.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login проверяет учётные данные оператора и открывает сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Authenticate(r.Context(), req.Login, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if h.authMiddleware != nil {
		h.authMiddleware.SetSessionCookie(w, req.Login)
	}
	w.WriteHeader(http.StatusOK)
}

// Logout закрывает сессию оператора.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.authMiddleware != nil {
		h.authMiddleware.ClearSessionCookie(w)
	}
	w.WriteHeader(http.StatusOK)
}

// FetchOrders загружает открытые заказы маркетплейса. Ошибки по отдельным
// заказам не делают ответ неуспешным и перечисляются в поле failed.
func (h *Handler) FetchOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.FetchOrders(r.Context())
	if err != nil {
		var partial *model.PartialFailureError
		if !errors.As(err, &partial) || res == nil {
			h.writeError(w, "fetch orders", err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, res)
}

// ListOrders возвращает заказы листа комплектации.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.service.ListOrders(r.Context())
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// PickingList возвращает позиции листа комплектации.
func (h *Handler) PickingList(w http.ResponseWriter, r *http.Request) {
	items := h.service.PickingList(r.Context())
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// ExportPickingList отдаёт лист комплектации в формате xlsx.
func (h *Handler) ExportPickingList(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.ExportPickingList(r.Context())
	if err != nil {
		h.writeError(w, "export picking list", err)
		return
	}
	h.writeFile(w, contentTypeXLSX, "attachment", "picking-list.xlsx", data)
}

type pickRequest struct {
	ItemID      string `json:"itemId"`
	EAN         string `json:"ean"`
	PackageType string `json:"packageType"`
}

// PickItem отмечает позицию скомплектованной и создаёт этикетку.
func (h *Handler) PickItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req pickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ItemID == "" && req.EAN == "" {
		http.Error(w, "itemId or ean is required", http.StatusBadRequest)
		return
	}
	if req.ItemID == "" && !validation.IsValidEAN(req.EAN) {
		http.Error(w, "invalid ean", http.StatusBadRequest)
		return
	}

	item, err := h.service.PickItem(r.Context(), service.PickRequest{
		OrderID:     orderID,
		ItemID:      req.ItemID,
		EAN:         req.EAN,
		PackageType: strings.ToUpper(strings.TrimSpace(req.PackageType)),
	})
	if err != nil {
		h.writeError(w, "pick item", err, zap.String("order", orderID), zap.String("item", req.ItemID))
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

type shipResponse struct {
	OrderID         string   `json:"orderId"`
	TrackingNumbers []string `json:"trackingNumbers"`
}

// ShipOrder регистрирует отправку заказа в маркетплейсе.
func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	tracking, err := h.service.ShipOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "ship order", err, zap.String("order", orderID))
		return
	}

	h.writeJSON(w, http.StatusOK, shipResponse{OrderID: orderID, TrackingNumbers: tracking})
}

// Label отдаёт PDF-этикетку по трек-номеру.
func (h *Handler) Label(w http.ResponseWriter, r *http.Request) {
	tracking := validation.NormalizeTrackingCode(chi.URLParam(r, "tracking"))
	if !validation.IsValidTrackingCode(tracking) {
		http.Error(w, "invalid tracking code", http.StatusBadRequest)
		return
	}

	data, err := h.service.Label(r.Context(), tracking)
	if err != nil {
		h.writeError(w, "get label", err, zap.String("tracking", tracking))
		return
	}

	h.writeFile(w, contentTypePDF, "inline", tracking+".pdf", data)
}

// StartPriceUpdate запускает прогон обновления цен.
func (h *Handler) StartPriceUpdate(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.StartPriceUpdate(r.Context())
	if err != nil {
		h.writeError(w, "start price update", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, run)
}

// PriceProgress возвращает состояние текущего или последнего прогона цен.
func (h *Handler) PriceProgress(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.PriceProgress())
}

// Reports возвращает список отчётов о прогонах цен.
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.Reports(r.Context())
	if err != nil {
		h.writeError(w, "list reports", err)
		return
	}
	if len(docs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, docs)
}

// Report отдаёт файл отчёта о прогоне цен.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	data, err := h.service.Report(r.Context(), name)
	if err != nil {
		h.writeError(w, "get report", err, zap.String("report", name))
		return
	}

	h.writeFile(w, contentTypeXLSX, "attachment", name, data)
}

// statusFor сопоставляет ошибку бизнес-логики HTTP-статусу.
func statusFor(err error) int {
	var (
		cfgErr     *model.ConfigurationError
		notFound   *model.NotFoundError
		pre        *model.PreconditionError
		remoteErr  *model.RemoteAPIError
		partialErr *model.PartialFailureError
	)

	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &pre), errors.Is(err, model.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &remoteErr), errors.As(err, &partialErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError отдаёт оператору текст ошибки со статусом, соответствующим её виду.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)

	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", fields...)
	} else {
		h.logger.Info(op+" rejected", fields...)
	}

	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeFile(w http.ResponseWriter, contentType, disposition, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition+`; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("write file error", zap.Error(err), zap.String("file", name))
	}
}
