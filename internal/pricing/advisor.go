// Package pricing рассчитывает рекомендованную цену б/у оффера по ценам конкурентов.
//
// Расчёт детерминирован и сопровождается пошаговым объяснением, которое попадает в отчёт.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

var (
	// FallbackPrice используется, если ни у одного конкурента нет цены.
	FallbackPrice = decimal.RequireFromString("45.00")
	// Абсолютный минимум рекомендованной цены.
	FloorPrice = decimal.RequireFromString("7.50")
	// Множитель за каждый класс состояния хуже конкурента.
	TierDiscount = decimal.RequireFromString("0.775")
	// Множитель за каждый класс состояния лучше конкурента.
	TierPremium = decimal.RequireFromString("1.10")
	// Насколько опускаемся ниже конкурента того же класса.
	Undercut = decimal.RequireFromString("0.05")
)

// Input содержит данные для расчёта цены.
type Input struct {
	Condition    model.Condition
	CurrentPrice decimal.Decimal
	// Минимальная цена конкурентов по классу. Нет ключа, нет данных.
	Competitors map[model.Condition]decimal.Decimal
}

// Advice содержит рекомендованную цену и след сработавших правил.
type Advice struct {
	Price decimal.Decimal
	Steps []string
}

// Explanation возвращает объяснение расчёта одной строкой.
func (a Advice) Explanation() string {
	return strings.Join(a.Steps, "; ")
}

type candidate struct {
	price decimal.Decimal
	rule  string
}

// Advise рассчитывает рекомендованную цену для оффера.
func Advise(in Input) Advice {
	prices := make(map[model.Condition]decimal.Decimal, len(in.Competitors))
	for c, p := range in.Competitors {
		if p.IsPositive() {
			prices[c] = p
		}
	}

	if len(prices) == 0 {
		return Advice{
			Price: FallbackPrice,
			Steps: []string{fmt.Sprintf("no competitor prices, fallback %s", FallbackPrice.StringFixed(2))},
		}
	}

	var steps []string

	candidates := adjacentCandidates(in.Condition, prices)
	if len(candidates) == 0 {
		if c, ok := nearestCandidate(in.Condition, prices); ok {
			candidates = append(candidates, c)
		}
	}

	best := candidates[0]
	for _, c := range candidates {
		steps = append(steps, fmt.Sprintf("candidate %s = %s", c.rule, c.price.StringFixed(2)))
		if c.price.LessThan(best.price) {
			best = c
		}
	}

	price := best.price.Round(2)
	steps = append(steps, fmt.Sprintf("selected %s = %s", best.rule, price.StringFixed(2)))

	for _, better := range model.Conditions {
		if better >= in.Condition {
			break
		}
		p, ok := prices[better]
		if !ok {
			continue
		}
		distance := int(in.Condition - better)
		limit := p.Mul(pow(TierDiscount, distance)).RoundFloor(2)
		if price.GreaterThan(limit) {
			price = limit
			steps = append(steps, fmt.Sprintf("capped by %s %s x %s^%d = %s",
				better, p.StringFixed(2), TierDiscount.String(), distance, limit.StringFixed(2)))
		}
	}

	if price.LessThan(FloorPrice) {
		price = FloorPrice
		steps = append(steps, fmt.Sprintf("raised to floor %s", FloorPrice.StringFixed(2)))
	}

	if !in.CurrentPrice.IsZero() {
		steps = append(steps, fmt.Sprintf("current %s -> advised %s",
			in.CurrentPrice.StringFixed(2), price.StringFixed(2)))
	}

	return Advice{Price: price, Steps: steps}
}

// adjacentCandidates строит кандидатов по своему и соседним классам состояния.
func adjacentCandidates(mine model.Condition, prices map[model.Condition]decimal.Decimal) []candidate {
	var res []candidate

	if p, ok := prices[mine]; ok {
		res = append(res, candidate{
			price: p.Sub(Undercut),
			rule:  fmt.Sprintf("%s %s - %s", mine, p.StringFixed(2), Undercut.StringFixed(2)),
		})
	}

	if mine > model.ConditionNew {
		better := mine - 1
		if p, ok := prices[better]; ok {
			res = append(res, candidate{
				price: p.Mul(TierDiscount),
				rule:  fmt.Sprintf("%s %s x %s", better, p.StringFixed(2), TierDiscount.String()),
			})
		}
	}

	if mine < model.ConditionModerate {
		worse := mine + 1
		if p, ok := prices[worse]; ok {
			res = append(res, candidate{
				price: p.Mul(TierPremium),
				rule:  fmt.Sprintf("%s %s x %s", worse, p.StringFixed(2), TierPremium.String()),
			})
		}
	}

	return res
}

// nearestCandidate строит кандидата по ближайшему классу с данными; при равном
// расстоянии предпочитается лучший класс.
func nearestCandidate(mine model.Condition, prices map[model.Condition]decimal.Decimal) (candidate, bool) {
	for d := 2; d < len(model.Conditions); d++ {
		better := mine - model.Condition(d)
		if better >= model.ConditionNew {
			if p, ok := prices[better]; ok {
				return candidate{
					price: p.Mul(pow(TierDiscount, d)),
					rule:  fmt.Sprintf("%s %s x %s^%d", better, p.StringFixed(2), TierDiscount.String(), d),
				}, true
			}
		}

		worse := mine + model.Condition(d)
		if worse <= model.ConditionModerate {
			if p, ok := prices[worse]; ok {
				return candidate{
					price: p.Mul(pow(TierPremium, d)),
					rule:  fmt.Sprintf("%s %s x %s^%d", worse, p.StringFixed(2), TierPremium.String(), d),
				}, true
			}
		}
	}
	return candidate{}, false
}

func pow(base decimal.Decimal, n int) decimal.Decimal {
	res := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		res = res.Mul(base)
	}
	return res
}
