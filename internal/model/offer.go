package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Condition описывает класс состояния товара. Константы упорядочены от лучшего к худшему.
type Condition int

const (
	ConditionNew Condition = iota
	ConditionAsNew
	ConditionGood
	ConditionReasonable
	ConditionModerate
)

// Conditions перечисляет все классы состояния от лучшего к худшему.
var Conditions = []Condition{
	ConditionNew,
	ConditionAsNew,
	ConditionGood,
	ConditionReasonable,
	ConditionModerate,
}

// String возвращает имя класса в формате маркетплейса.
func (c Condition) String() string {
	switch c {
	case ConditionNew:
		return "NEW"
	case ConditionAsNew:
		return "AS_NEW"
	case ConditionGood:
		return "GOOD"
	case ConditionReasonable:
		return "REASONABLE"
	case ConditionModerate:
		return "MODERATE"
	default:
		return fmt.Sprintf("Condition(%d)", int(c))
	}
}

// ParseCondition разбирает имя класса состояния маркетплейса.
func ParseCondition(s string) (Condition, bool) {
	switch s {
	case "NEW":
		return ConditionNew, true
	case "AS_NEW":
		return ConditionAsNew, true
	case "GOOD":
		return ConditionGood, true
	case "REASONABLE":
		return ConditionReasonable, true
	case "MODERATE":
		return ConditionModerate, true
	default:
		return 0, false
	}
}

// MarshalText реализует encoding.TextMarshaler.
func (c Condition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (c *Condition) UnmarshalText(b []byte) error {
	v, ok := ParseCondition(string(b))
	if !ok {
		return fmt.Errorf("unknown condition %q", string(b))
	}
	*c = v
	return nil
}

// Offer описывает оффер продавца из выгрузки каталога.
type Offer struct {
	OfferID   string
	EAN       string
	Condition Condition
	Price     decimal.Decimal
	Reference string
	Stock     int
}

// CompetingOffer описывает оффер любого продавца по товару.
type CompetingOffer struct {
	OfferID   string
	Condition Condition
	Price     decimal.Decimal
}

// PriceStage описывает этап прогона обновления цен.
type PriceStage string

const (
	PriceStageIdle        PriceStage = "idle"
	PriceStageExporting   PriceStage = "exporting"
	PriceStageDownloading PriceStage = "downloading"
	PriceStageProcessing  PriceStage = "processing"
	PriceStageCalculating PriceStage = "calculating"
	PriceStageFinalizing  PriceStage = "finalizing"
	PriceStageReporting   PriceStage = "reporting"
	PriceStageCompleted   PriceStage = "completed"
	PriceStageError       PriceStage = "error"
)

// PriceOutcome описывает итог обработки одного оффера.
type PriceOutcome string

const (
	PriceOutcomeUpdated   PriceOutcome = "updated"
	PriceOutcomeUnchanged PriceOutcome = "unchanged"
	PriceOutcomeFailed    PriceOutcome = "failed"
	PriceOutcomePending   PriceOutcome = "pending"
)

// PriceResult содержит результат расчёта и обновления цены одного оффера.
type PriceResult struct {
	OfferID     string          `json:"offerId"`
	EAN         string          `json:"ean"`
	Condition   Condition       `json:"condition"`
	OldPrice    decimal.Decimal `json:"oldPrice"`
	NewPrice    decimal.Decimal `json:"newPrice"`
	Explanation string          `json:"explanation"`
	Outcome     PriceOutcome    `json:"outcome"`
	Error       string          `json:"error,omitempty"`
	ProcessID   string          `json:"-"`
}

// PriceRun хранит состояние прогона обновления цен.
type PriceRun struct {
	ID         string        `json:"id"`
	Stage      PriceStage    `json:"stage"`
	Percent    int           `json:"percent"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	Running    bool          `json:"running"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Message    string        `json:"message,omitempty"`
	ReportFile string        `json:"reportFile,omitempty"`
	Results    []PriceResult `json:"results,omitempty"`
}
