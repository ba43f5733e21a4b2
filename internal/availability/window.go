package availability

import (
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ParseClock переводит "HH:MM" в минуты от начала суток
func ParseClock(value string) (int, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, apperror.Validation("invalid time %q, expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate проверяет формат окна: корректная дата, время и start < end
func Validate(w model.TimeWindow) error {
	if _, err := time.Parse(dateLayout, w.Date); err != nil {
		return apperror.Validation("invalid date %q, expected YYYY-MM-DD", w.Date)
	}
	_, _, err := bounds(w)
	return err
}

func bounds(w model.TimeWindow) (int, int, error) {
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, apperror.Validation("window end %s must be after start %s", w.EndTime, w.StartTime)
	}
	return start, end, nil
}

// Overlaps проверяет пересечение двух окон одного владельца в один день.
// Окна полуоткрытые: 10:00-11:00 и 11:00-12:00 не пересекаются.
func Overlaps(a, b model.TimeWindow) (bool, error) {
	aStart, aEnd, err := bounds(a)
	if err != nil {
		return false, err
	}
	bStart, bEnd, err := bounds(b)
	if err != nil {
		return false, err
	}
	if a.OwnerID != b.OwnerID || a.Date != b.Date {
		return false, nil
	}
	return aStart < bEnd && bStart < aEnd, nil
}

// IsAdmissible проверяет что кандидат не пересекается ни с одним существующим окном.
// Вызывается внутри транзакции, держащей блокировку владельца.
func IsAdmissible(candidate model.TimeWindow, existing []model.TimeWindow) (bool, error) {
	if err := Validate(candidate); err != nil {
		return false, err
	}
	for _, w := range existing {
		overlap, err := Overlaps(candidate, w)
		if err != nil {
			return false, err
		}
		if overlap {
			return false, nil
		}
	}
	return true, nil
}

// StartsAt возвращает момент начала окна в часовом поясе владельца
func StartsAt(w model.TimeWindow) (time.Time, error) {
	loc := time.UTC
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err != nil {
			return time.Time{}, apperror.Validation("unknown timezone %q", w.Timezone)
		}
		loc = l
	}
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, w.Date+" "+w.StartTime, loc)
	if err != nil {
		return time.Time{}, apperror.Validation("invalid window start %s %s", w.Date, w.StartTime)
	}
	return t, nil
}

// CheckHorizon проверяет что окно начинается в будущем и не дальше maxLead от now
func CheckHorizon(w model.TimeWindow, now time.Time, maxLead time.Duration) error {
	if err := Validate(w); err != nil {
		return err
	}
	start, err := StartsAt(w)
	if err != nil {
		return err
	}
	if !start.After(now) {
		return apperror.Validation("window %s %s is in the past", w.Date, w.StartTime)
	}
	if maxLead > 0 && start.After(now.Add(maxLead)) {
		return apperror.Validation("window %s is beyond the booking horizon", w.Date)
	}
	return nil
}

// IsFuture проверяет что окно ещё не началось
func IsFuture(w model.TimeWindow, now time.Time) bool {
	start, err := StartsAt(w)
	return err == nil && start.After(now)
}
