// Package service реализует бизнес-логику сервиса комплектации: загрузку заказов,
// комплектацию с печатью этикеток, отправку и обновление цен.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/marketplace"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

// Repository описывает хранилище листа комплектации.
type Repository interface {
	Close() error
	LoadItems(ctx context.Context) ([]model.PickingItem, error)
	SaveItems(ctx context.Context, items []model.PickingItem) error
}

// Blobs описывает хранилище этикеток и отчётов.
type Blobs interface {
	SaveLabel(ctx context.Context, tracking string, pdf []byte) (string, error)
	Label(ctx context.Context, tracking string) ([]byte, error)
	SaveReport(ctx context.Context, name string, data []byte) error
	Report(ctx context.Context, name string) ([]byte, error)
	Reports(ctx context.Context) ([]model.Document, error)
}

// Marketplace описывает операции Retailer API, используемые сервисом.
type Marketplace interface {
	Missing() []string
	FetchOpenOrders(ctx context.Context) ([]model.MarketplaceOrder, error)
	FetchOrderDetails(ctx context.Context, orderID string) (*model.MarketplaceOrder, error)
	RegisterShipment(ctx context.Context, orderID string, items []model.ShipmentItem) ([]string, error)
	RequestOfferExport(ctx context.Context) (string, error)
	WaitForProcess(ctx context.Context, id string) (*marketplace.ProcessStatus, error)
	DownloadOfferExport(ctx context.Context, reportID string) ([]byte, error)
	CompetingOffers(ctx context.Context, ean string) ([]model.CompetingOffer, error)
	UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal) (string, error)
}

// Carrier описывает создание этикеток у перевозчика.
type Carrier interface {
	Missing() []string
	CreateLabel(ctx context.Context, parcel model.Parcel) (*model.Label, error)
}

// Service содержит состояние листа комплектации и прогона цен.
// Мьютексы защищают память от гонок; одновременная работа нескольких
// операторов не поддерживается.
type Service struct {
	repo    Repository
	blobs   Blobs
	market  Marketplace
	carrier Carrier
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	operatorLogin string
	operatorHash  []byte

	mu    sync.Mutex
	items []model.PickingItem
	dirty bool

	priceMu sync.Mutex
	run     model.PriceRun
}

// Option настраивает Service.
type Option func(s *Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOperator задаёт учётные данные оператора. Без пароля вход невозможен.
func WithOperator(login, password string) Option {
	return func(s *Service) {
		s.operatorLogin = login
		if password != "" {
			s.operatorHash = hashPassword(login, password)
		}
	}
}

// NewService создаёт сервис с указанными хранилищами и клиентами внешних API.
func NewService(repo Repository, blobs Blobs, market Marketplace, carrier Carrier, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		blobs:   blobs,
		market:  market,
		carrier: carrier,
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
		run:     model.PriceRun{Stage: model.PriceStageIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load загружает сохранённый лист комплектации в память.
func (s *Service) Load(ctx context.Context) error {
	items, err := s.repo.LoadItems(ctx)
	if err != nil {
		return fmt.Errorf("load picking list: %w", err)
	}

	s.mu.Lock()
	s.items = items
	s.dirty = false
	s.mu.Unlock()

	s.logger.Info("picking list loaded", zap.Int("items", len(items)))
	return nil
}

// Close сохраняет несохранённые изменения и закрывает хранилище.
func (s *Service) Close() error {
	flushErr := s.Flush(context.Background())
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}
	return flushErr
}

// Flush сохраняет лист комплектации, если он менялся после последнего сохранения.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// StartAutoFlush запускает фоновое сохранение несохранённых изменений с интервалом interval.
func (s *Service) StartAutoFlush(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					s.logger.Warn("background flush failed", zap.Error(err))
				}
			}
		}
	}()
}

// persistLocked сохраняет лист комплектации. Вызывается под s.mu.
// При ошибке состояние остаётся помеченным как несохранённое.
func (s *Service) persistLocked(ctx context.Context) error {
	s.dirty = true
	if err := s.repo.SaveItems(ctx, slices.Clone(s.items)); err != nil {
		return fmt.Errorf("save picking list: %w", err)
	}
	s.dirty = false
	return nil
}

// commitLocked помечает лист изменённым и пытается сразу его сохранить.
// Ошибка записи не отменяет изменение: фоновое сохранение повторит попытку.
func (s *Service) commitLocked(ctx context.Context) {
	if err := s.persistLocked(ctx); err != nil {
		s.logger.Warn("picking list not persisted, will retry", zap.Error(err))
	}
}

func (s *Service) snapshot() []model.PickingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func configurationError(service string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &model.ConfigurationError{Service: service, Missing: missing}
}
