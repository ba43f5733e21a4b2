package availability

import (
	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// SessionPrice цена места: ставка в час * минуты / 60, округление half-up до копейки
func SessionPrice(hourlyRate model.Money, minutes int) (model.Money, error) {
	price := decimal.NewFromInt(int64(hourlyRate)).
		Mul(decimal.NewFromInt(int64(minutes))).
		DivRound(minutesPerHour, 0)
	if !price.IsPositive() {
		return 0, apperror.Validation("session price must be positive (rate %s, %d min)", hourlyRate, minutes)
	}
	return model.Money(price.IntPart()), nil
}

// BudgetMidpoint сумма проекта по бюджету клиента: (from + to) / 2, округление half-up
func BudgetMidpoint(from, to *model.Money) (model.Money, error) {
	if from == nil || to == nil {
		return 0, apperror.Validation("request budget is not set")
	}
	if *from > *to {
		return 0, apperror.Validation("budget from %s exceeds to %s", *from, *to)
	}
	mid := decimal.NewFromInt(int64(*from)).
		Add(decimal.NewFromInt(int64(*to))).
		DivRound(decimal.NewFromInt(2), 0)
	if !mid.IsPositive() {
		return 0, apperror.Validation("project amount must be positive")
	}
	return model.Money(mid.IntPart()), nil
}
