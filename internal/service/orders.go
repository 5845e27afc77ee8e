package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/picking"
	"github.com/mmeshcher/bol-fulfillment/internal/report"
)

// FetchResult содержит итог загрузки открытых заказов.
type FetchResult struct {
	Orders int               `json:"orders"`
	Items  int               `json:"items"`
	Added  int               `json:"added"`
	Failed map[string]string `json:"failed,omitempty"`
}

// FetchOrders загружает открытые заказы маркетплейса, дополняет их деталями и
// объединяет с текущим листом комплектации. Ошибки по отдельным заказам не
// прерывают загрузку и возвращаются как PartialFailureError вместе с результатом.
func (s *Service) FetchOrders(ctx context.Context) (*FetchResult, error) {
	if err := configurationError("marketplace", s.market.Missing()); err != nil {
		return nil, err
	}

	summaries, err := s.market.FetchOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}

	failed := make(map[string]error)
	detailed := make([]model.MarketplaceOrder, 0, len(summaries))

	for _, sum := range summaries {
		details, err := s.market.FetchOrderDetails(ctx, sum.OrderID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.logger.Warn("order details failed", zap.String("order", sum.OrderID), zap.Error(err))
			failed[sum.OrderID] = err
			continue
		}
		if details.PlacedAt.IsZero() {
			details.PlacedAt = sum.PlacedAt
		}
		detailed = append(detailed, *details)
	}

	fresh := picking.Build(detailed, s.now())

	s.mu.Lock()
	// Позиции заказов, детали которых не загрузились, переносятся как есть, чтобы Merge их не отбросил.
	fresh = append(fresh, lo.Filter(s.items, func(it model.PickingItem, _ int) bool {
		_, ok := failed[it.OrderID]
		return ok
	})...)
	merged, added := picking.Merge(s.items, fresh)
	s.items = merged
	s.commitLocked(ctx)
	total := len(merged)
	s.mu.Unlock()

	res := &FetchResult{
		Orders: len(detailed),
		Items:  total,
		Added:  added,
	}

	s.logger.Info("orders fetched",
		zap.Int("orders", res.Orders),
		zap.Int("added", added),
		zap.Int("failed", len(failed)),
	)

	if len(failed) > 0 {
		res.Failed = lo.MapValues(failed, func(err error, _ string) string { return err.Error() })
		return res, &model.PartialFailureError{Succeeded: len(detailed), Failed: failed}
	}
	return res, nil
}

// ListOrders возвращает заказы, собранные из листа комплектации.
func (s *Service) ListOrders(_ context.Context) []model.Order {
	return picking.Orders(s.snapshot())
}

// Order возвращает один заказ по номеру.
func (s *Service) Order(_ context.Context, orderID string) (model.Order, error) {
	order, ok := picking.OrderByID(s.snapshot(), orderID)
	if !ok {
		return model.Order{}, &model.NotFoundError{Kind: "order", ID: orderID}
	}
	return order, nil
}

// PickingList возвращает копию листа комплектации.
func (s *Service) PickingList(_ context.Context) []model.PickingItem {
	return s.snapshot()
}

// ExportPickingList возвращает лист комплектации в формате xlsx.
func (s *Service) ExportPickingList(_ context.Context) ([]byte, error) {
	data, err := report.PickingList(s.snapshot())
	if err != nil {
		return nil, fmt.Errorf("export picking list: %w", err)
	}
	return data, nil
}
