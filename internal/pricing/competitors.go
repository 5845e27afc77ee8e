package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

// ParseCompetitorPrice разбирает цену конкурента. Значения "N/A", пустые,
// нулевые и отрицательные означают отсутствие данных.
func ParseCompetitorPrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return decimal.Zero, false
	}

	p, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// LowestByCondition возвращает минимальную цену конкурентов по каждому классу
// состояния, исключая собственный оффер.
func LowestByCondition(offers []model.CompetingOffer, ownOfferID string) map[model.Condition]decimal.Decimal {
	res := make(map[model.Condition]decimal.Decimal)
	for _, o := range offers {
		if ownOfferID != "" && o.OfferID == ownOfferID {
			continue
		}
		if !o.Price.IsPositive() {
			continue
		}
		if cur, ok := res[o.Condition]; !ok || o.Price.LessThan(cur) {
			res[o.Condition] = o.Price
		}
	}
	return res
}
