package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/carrier"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/picking"
)

// PickRequest описывает отметку позиции как скомплектованной.
type PickRequest struct {
	OrderID     string `json:"orderId"`
	ItemID      string `json:"itemId"`
	EAN         string `json:"ean"`
	PackageType string `json:"packageType"`
}

// PickItem отмечает позицию скомплектованной и создаёт для неё этикетку перевозчика.
// Позиция меняется только после того, как этикетка получена и сохранена.
func (s *Service) PickItem(ctx context.Context, req PickRequest) (*model.PickingItem, error) {
	if err := configurationError("carrier", s.carrier.Missing()); err != nil {
		return nil, err
	}

	item, err := s.pickable(req)
	if err != nil {
		return nil, err
	}

	packageType := model.ParsePackageType(req.PackageType)

	label, err := s.carrier.CreateLabel(ctx, model.Parcel{
		Reference:   item.OrderID + "-" + item.ItemID,
		Customer:    item.Customer,
		WeightGrams: carrier.DefaultWeightGrams,
		PackageType: packageType,
	})
	if err != nil {
		s.logger.Warn("label creation failed",
			zap.String("order", item.OrderID),
			zap.String("item", item.ItemID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create label: %w", err)
	}

	ref, err := s.blobs.SaveLabel(ctx, label.TrackingCode, label.PDF)
	if err != nil {
		return nil, fmt.Errorf("store label %s: %w", label.TrackingCode, err)
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := picking.Find(s.items, item.OrderID, item.ItemID, "")
	if i < 0 {
		return nil, &model.NotFoundError{Kind: "item", ID: item.OrderID + "/" + item.ItemID}
	}
	if s.items[i].Picked {
		return nil, &model.PreconditionError{Reason: "item already picked"}
	}

	it := &s.items[i]
	it.Picked = true
	it.PickedAt = lo.ToPtr(now)
	it.PackageType = packageType
	it.TrackingNumber = label.TrackingCode
	it.LabelFile = ref
	it.LabelCreatedAt = lo.ToPtr(now)
	s.commitLocked(ctx)

	s.logger.Info("item picked",
		zap.String("order", it.OrderID),
		zap.String("item", it.ItemID),
		zap.String("tracking", it.TrackingNumber),
		zap.String("package", string(packageType)),
	)

	picked := *it
	return &picked, nil
}

// pickable находит позицию и проверяет, что её ещё можно скомплектовать.
func (s *Service) pickable(req PickRequest) (model.PickingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := picking.Find(s.items, req.OrderID, req.ItemID, req.EAN)
	if i < 0 {
		id := req.OrderID + "/" + req.ItemID
		if req.ItemID == "" {
			id = req.OrderID + "/" + req.EAN
		}
		return model.PickingItem{}, &model.NotFoundError{Kind: "item", ID: id}
	}
	if s.items[i].Picked {
		return model.PickingItem{}, &model.PreconditionError{Reason: "item already picked"}
	}
	return s.items[i], nil
}

// Label возвращает PDF-этикетку по трек-номеру.
func (s *Service) Label(ctx context.Context, tracking string) ([]byte, error) {
	return s.blobs.Label(ctx, tracking)
}
