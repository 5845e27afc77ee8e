package pricing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func competitors(raw map[model.Condition]string) map[model.Condition]decimal.Decimal {
	res := make(map[model.Condition]decimal.Decimal)
	for c, s := range raw {
		if p, ok := ParseCompetitorPrice(s); ok {
			res[c] = p
		}
	}
	return res
}

func TestAdvise(t *testing.T) {
	tests := []struct {
		name      string
		condition model.Condition
		current   string
		raw       map[model.Condition]string
		want      string
	}{
		{
			name:      "no competitor data falls back",
			condition: model.ConditionGood,
			current:   "10.00",
			raw: map[model.Condition]string{
				model.ConditionNew:        "N/A",
				model.ConditionAsNew:      "N/A",
				model.ConditionGood:       "N/A",
				model.ConditionReasonable: "N/A",
				model.ConditionModerate:   "N/A",
			},
			want: "45.00",
		},
		{
			name:      "undercut same tier",
			condition: model.ConditionGood,
			current:   "10.00",
			raw:       map[model.Condition]string{model.ConditionGood: "9.00"},
			want:      "8.95",
		},
		{
			name:      "one tier worse than competitor",
			condition: model.ConditionGood,
			current:   "18.00",
			raw: map[model.Condition]string{
				model.ConditionAsNew: "20.00",
				model.ConditionGood:  "17.00",
			},
			want: "15.50",
		},
		{
			name:      "one tier better than competitor",
			condition: model.ConditionGood,
			current:   "9.00",
			raw:       map[model.Condition]string{model.ConditionReasonable: "10.00"},
			want:      "11.00",
		},
		{
			name:      "capped by better tier two steps away",
			condition: model.ConditionReasonable,
			current:   "30.00",
			raw: map[model.Condition]string{
				model.ConditionAsNew:      "20.00",
				model.ConditionReasonable: "30.00",
			},
			want: "12.01",
		},
		{
			name:      "nearest tier used when no adjacent data",
			condition: model.ConditionModerate,
			current:   "20.00",
			raw:       map[model.Condition]string{model.ConditionNew: "40.00"},
			want:      "14.43",
		},
		{
			name:      "absolute floor",
			condition: model.ConditionGood,
			current:   "6.00",
			raw:       map[model.Condition]string{model.ConditionGood: "5.00"},
			want:      "7.50",
		},
		{
			name:      "floor wins over cap",
			condition: model.ConditionModerate,
			current:   "30.00",
			raw: map[model.Condition]string{
				model.ConditionNew:      "20.00",
				model.ConditionModerate: "30.00",
			},
			want: "7.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advice := Advise(Input{
				Condition:    tt.condition,
				CurrentPrice: d(tt.current),
				Competitors:  competitors(tt.raw),
			})

			assert.True(t, advice.Price.Equal(d(tt.want)), "price = %s, want %s", advice.Price, tt.want)
			assert.NotEmpty(t, advice.Explanation())
		})
	}
}

func TestAdvise_UndercutBounds(t *testing.T) {
	advice := Advise(Input{
		Condition:    model.ConditionGood,
		CurrentPrice: d("10.00"),
		Competitors:  map[model.Condition]decimal.Decimal{model.ConditionGood: d("9.00")},
	})

	assert.True(t, advice.Price.LessThanOrEqual(d("8.95")))
	assert.True(t, advice.Price.GreaterThanOrEqual(FloorPrice))
}

func TestAdvise_Deterministic(t *testing.T) {
	in := Input{
		Condition:    model.ConditionAsNew,
		CurrentPrice: d("25.00"),
		Competitors: map[model.Condition]decimal.Decimal{
			model.ConditionNew:   d("31.99"),
			model.ConditionAsNew: d("24.50"),
			model.ConditionGood:  d("19.00"),
		},
	}

	first := Advise(in)
	second := Advise(in)

	require.True(t, first.Price.Equal(second.Price))
	require.Equal(t, first.Explanation(), second.Explanation())
}

func TestParseCompetitorPrice(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"N/A", false, "0"},
		{"", false, "0"},
		{"0", false, "0"},
		{"-3", false, "0"},
		{"12,50", true, "12.50"},
		{" 9.99 ", true, "9.99"},
	}

	for _, tt := range tests {
		p, ok := ParseCompetitorPrice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.True(t, p.Equal(d(tt.want)), "%q parsed as %s", tt.in, p)
		}
	}
}

func TestLowestByCondition(t *testing.T) {
	offers := []model.CompetingOffer{
		{OfferID: "mine", Condition: model.ConditionGood, Price: d("5.00")},
		{OfferID: "a", Condition: model.ConditionGood, Price: d("9.00")},
		{OfferID: "b", Condition: model.ConditionGood, Price: d("8.00")},
		{OfferID: "c", Condition: model.ConditionNew, Price: d("20.00")},
		{OfferID: "d", Condition: model.ConditionModerate, Price: decimal.Zero},
	}

	got := LowestByCondition(offers, "mine")

	require.Len(t, got, 2)
	assert.True(t, got[model.ConditionGood].Equal(d("8.00")))
	assert.True(t, got[model.ConditionNew].Equal(d("20.00")))
}

func TestAdvise_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	build := func(mine int, raw []float64) Input {
		prices := make(map[model.Condition]decimal.Decimal)
		for i, v := range raw {
			// значения ниже 5 считаем отсутствием данных, чтобы получить пропуски в классах
			if v < 5 {
				continue
			}
			prices[model.Condition(i)] = decimal.NewFromFloat(v).Round(2)
		}
		return Input{Condition: model.Condition(mine), Competitors: prices}
	}

	properties.Property("price never exceeds discounted better tier unless floored", prop.ForAll(
		func(mine int, raw []float64) bool {
			in := build(mine, raw)
			advice := Advise(in)
			if advice.Price.Equal(FloorPrice) {
				return true
			}
			for better, p := range in.Competitors {
				if better >= in.Condition {
					continue
				}
				limit := p.Mul(pow(TierDiscount, int(in.Condition-better)))
				if advice.Price.GreaterThan(limit) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 4),
		gen.SliceOfN(5, gen.Float64Range(0, 200)),
	))

	properties.Property("price respects floor and has two decimals", prop.ForAll(
		func(mine int, raw []float64) bool {
			advice := Advise(build(mine, raw))
			return advice.Price.GreaterThanOrEqual(FloorPrice) && advice.Price.Equal(advice.Price.Round(2))
		},
		gen.IntRange(0, 4),
		gen.SliceOfN(5, gen.Float64Range(0, 200)),
	))

	properties.TestingRun(t)
}
