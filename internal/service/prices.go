package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bol-fulfillment/internal/marketplace"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/pricing"
	"github.com/mmeshcher/bol-fulfillment/internal/report"
)

// Число процессов обновления цены, ожидаемых одновременно.
const finalizeBatch = 10

var minPriceChange = decimal.RequireFromString("0.01")

// Процент выполнения на границах этапов.
var stagePercent = map[model.PriceStage]int{
	model.PriceStageExporting:   5,
	model.PriceStageDownloading: 15,
	model.PriceStageProcessing:  18,
	model.PriceStageCalculating: 20,
	model.PriceStageFinalizing:  80,
	model.PriceStageReporting:   95,
	model.PriceStageCompleted:   100,
}

// StartPriceUpdate запускает прогон обновления цен в фоне и возвращает его
// начальное состояние. Прогон не привязан к контексту запроса. Пока идёт
// прогон, повторный запуск возвращает ErrRunInProgress.
func (s *Service) StartPriceUpdate(ctx context.Context) (model.PriceRun, error) {
	if err := configurationError("marketplace", s.market.Missing()); err != nil {
		return model.PriceRun{}, err
	}

	s.priceMu.Lock()
	if s.run.Running {
		s.priceMu.Unlock()
		return model.PriceRun{}, model.ErrRunInProgress
	}
	s.run = model.PriceRun{
		ID:        s.newID(),
		Stage:     model.PriceStageExporting,
		Percent:   stagePercent[model.PriceStageExporting],
		Running:   true,
		StartedAt: lo.ToPtr(s.now()),
	}
	started := s.copyRunLocked()
	s.priceMu.Unlock()

	s.logger.Info("price update started", zap.String("run", started.ID))

	go s.runPriceUpdate(context.WithoutCancel(ctx))

	return started, nil
}

// PriceProgress возвращает снимок текущего (или последнего) прогона.
func (s *Service) PriceProgress() model.PriceRun {
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	return s.copyRunLocked()
}

// Report возвращает сохранённый отчёт о прогоне цен.
func (s *Service) Report(ctx context.Context, name string) ([]byte, error) {
	return s.blobs.Report(ctx, name)
}

// Reports возвращает список сохранённых отчётов.
func (s *Service) Reports(ctx context.Context) ([]model.Document, error) {
	return s.blobs.Reports(ctx)
}

func (s *Service) copyRunLocked() model.PriceRun {
	run := s.run
	run.Results = slices.Clone(s.run.Results)
	return run
}

func (s *Service) updateRun(fn func(run *model.PriceRun)) {
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	fn(&s.run)
}

func (s *Service) setStage(stage model.PriceStage) {
	s.updateRun(func(run *model.PriceRun) {
		run.Stage = stage
		run.Percent = stagePercent[stage]
	})
}

func (s *Service) failRun(stage model.PriceStage, err error) {
	s.logger.Error("price update aborted", zap.String("stage", string(stage)), zap.Error(err))
	s.updateRun(func(run *model.PriceRun) {
		run.Stage = model.PriceStageError
		run.Running = false
		run.FinishedAt = lo.ToPtr(s.now())
		run.Message = fmt.Sprintf("%s: %v", stage, err)
	})
}

func (s *Service) runPriceUpdate(ctx context.Context) {
	processID, err := s.market.RequestOfferExport(ctx)
	if err != nil {
		s.failRun(model.PriceStageExporting, err)
		return
	}
	status, err := s.market.WaitForProcess(ctx, processID)
	if err != nil {
		s.failRun(model.PriceStageExporting, err)
		return
	}

	s.setStage(model.PriceStageDownloading)
	data, err := s.market.DownloadOfferExport(ctx, status.EntityID)
	if err != nil {
		s.failRun(model.PriceStageDownloading, err)
		return
	}

	s.setStage(model.PriceStageProcessing)
	offers, skipped, err := marketplace.ParseOfferExport(bytes.NewReader(data))
	if err != nil {
		s.failRun(model.PriceStageProcessing, err)
		return
	}
	s.logger.Info("offer export parsed", zap.Int("offers", len(offers)), zap.Int("skipped", skipped))

	s.updateRun(func(run *model.PriceRun) {
		run.Stage = model.PriceStageCalculating
		run.Percent = stagePercent[model.PriceStageCalculating]
		run.Total = len(offers)
		if skipped > 0 {
			run.Message = fmt.Sprintf("skipped %d incomplete rows", skipped)
		}
	})

	span := stagePercent[model.PriceStageFinalizing] - stagePercent[model.PriceStageCalculating]
	for i, offer := range offers {
		res := s.priceOffer(ctx, offer)
		s.updateRun(func(run *model.PriceRun) {
			run.Results = append(run.Results, res)
			run.Processed = i + 1
			run.Percent = stagePercent[model.PriceStageCalculating] + span*(i+1)/len(offers)
			countOutcome(run, res.Outcome, 1)
		})
	}

	s.setStage(model.PriceStageFinalizing)
	s.finalize(ctx)

	s.setStage(model.PriceStageReporting)
	s.writeReport(ctx)

	s.updateRun(func(run *model.PriceRun) {
		run.Stage = model.PriceStageCompleted
		run.Percent = stagePercent[model.PriceStageCompleted]
		run.Running = false
		run.FinishedAt = lo.ToPtr(s.now())
	})

	final := s.PriceProgress()
	s.logger.Info("price update completed",
		zap.String("run", final.ID),
		zap.Int("updated", final.Succeeded),
		zap.Int("unchanged", final.Unchanged),
		zap.Int("failed", final.Failed),
	)
}

// priceOffer рассчитывает цену оффера и при заметном изменении отправляет её в маркетплейс.
func (s *Service) priceOffer(ctx context.Context, offer model.Offer) model.PriceResult {
	res := model.PriceResult{
		OfferID:   offer.OfferID,
		EAN:       offer.EAN,
		Condition: offer.Condition,
		OldPrice:  offer.Price,
		NewPrice:  offer.Price,
	}

	competing, err := s.market.CompetingOffers(ctx, offer.EAN)
	if err != nil {
		res.Outcome = model.PriceOutcomeFailed
		res.Error = err.Error()
		return res
	}

	advice := pricing.Advise(pricing.Input{
		Condition:    offer.Condition,
		CurrentPrice: offer.Price,
		Competitors:  pricing.LowestByCondition(competing, offer.OfferID),
	})
	res.NewPrice = advice.Price
	res.Explanation = advice.Explanation()

	if advice.Price.Sub(offer.Price).Abs().LessThan(minPriceChange) {
		res.Outcome = model.PriceOutcomeUnchanged
		return res
	}

	processID, err := s.market.UpdateOfferPrice(ctx, offer.OfferID, advice.Price)
	if err != nil {
		res.Outcome = model.PriceOutcomeFailed
		res.Error = err.Error()
		return res
	}

	res.ProcessID = processID
	res.Outcome = model.PriceOutcomePending
	return res
}

// finalize дожидается процессов обновления цен пачками по finalizeBatch.
func (s *Service) finalize(ctx context.Context) {
	run := s.PriceProgress()

	pending := lo.Filter(lo.Range(len(run.Results)), func(i int, _ int) bool {
		return run.Results[i].Outcome == model.PriceOutcomePending
	})

	var mu sync.Mutex
	outcomes := make(map[int]model.PriceResult, len(pending))

	for _, batch := range lo.Chunk(pending, finalizeBatch) {
		var g errgroup.Group
		for _, i := range batch {
			res := run.Results[i]
			g.Go(func() error {
				if res.ProcessID == "" {
					res.Outcome = model.PriceOutcomeUpdated
				} else if _, err := s.market.WaitForProcess(ctx, res.ProcessID); err != nil {
					res.Outcome = model.PriceOutcomeFailed
					res.Error = err.Error()
				} else {
					res.Outcome = model.PriceOutcomeUpdated
				}
				mu.Lock()
				outcomes[i] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	s.updateRun(func(run *model.PriceRun) {
		for i, res := range outcomes {
			countOutcome(run, model.PriceOutcomePending, -1)
			run.Results[i] = res
			countOutcome(run, res.Outcome, 1)
		}
	})
}

func (s *Service) writeReport(ctx context.Context) {
	run := s.PriceProgress()
	name := report.PriceReportName(s.now())

	data, err := report.PriceReport(&run)
	if err == nil {
		err = s.blobs.SaveReport(ctx, name, data)
	}
	if err != nil {
		s.logger.Error("price report not written", zap.Error(err))
		s.updateRun(func(run *model.PriceRun) {
			run.Message = fmt.Sprintf("report not written: %v", err)
		})
		return
	}

	s.updateRun(func(run *model.PriceRun) {
		run.ReportFile = name
	})
}

// countOutcome учитывает итог оффера в счётчиках прогона. Ожидающие
// обновления считаются успешными до проверки процесса.
func countOutcome(run *model.PriceRun, outcome model.PriceOutcome, delta int) {
	switch outcome {
	case model.PriceOutcomeUpdated, model.PriceOutcomePending:
		run.Succeeded += delta
	case model.PriceOutcomeUnchanged:
		run.Unchanged += delta
	case model.PriceOutcomeFailed:
		run.Failed += delta
	}
}
