package availability

import (
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = uuid.MustParse("6f1c1d7e-6a8b-4c52-9a5e-1b7d9c2f0a11")

func window(start, end string) model.TimeWindow {
	return model.TimeWindow{OwnerID: owner, Date: "2026-11-02", StartTime: start, EndTime: end}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b model.TimeWindow
		want bool
	}{
		{"partial overlap", window("10:00", "11:00"), window("10:30", "11:30"), true},
		{"contained", window("09:00", "12:00"), window("10:00", "11:00"), true},
		{"identical", window("10:00", "11:00"), window("10:00", "11:00"), true},
		{"touching end", window("10:00", "11:00"), window("11:00", "12:00"), false},
		{"touching start", window("11:00", "12:00"), window("10:00", "11:00"), false},
		{"disjoint", window("08:00", "09:00"), window("10:00", "11:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Overlaps(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverlapsIgnoresOtherOwnerAndDate(t *testing.T) {
	other := window("10:00", "11:00")
	other.OwnerID = uuid.New()
	got, err := Overlaps(window("10:00", "11:00"), other)
	require.NoError(t, err)
	assert.False(t, got)

	nextDay := window("10:00", "11:00")
	nextDay.Date = "2026-11-03"
	got, err = Overlaps(window("10:00", "11:00"), nextDay)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsAdmissible(t *testing.T) {
	existing := []model.TimeWindow{window("10:00", "11:00")}

	ok, err := IsAdmissible(window("10:30", "11:30"), existing)
	require.NoError(t, err)
	assert.False(t, ok, "overlapping window must be rejected")

	ok, err = IsAdmissible(window("11:00", "12:00"), existing)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAdmissibleMalformed(t *testing.T) {
	cases := []model.TimeWindow{
		window("25:00", "26:00"),
		window("11:00", "10:00"),
		window("10:00", "10:00"),
		{OwnerID: owner, Date: "02.11.2026", StartTime: "10:00", EndTime: "11:00"},
	}
	for _, w := range cases {
		_, err := IsAdmissible(w, nil)
		assert.True(t, apperror.IsKind(err, apperror.KindValidation), "window %+v", w)
	}
}

func TestCheckHorizon(t *testing.T) {
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, CheckHorizon(window("10:00", "11:00"), now, 28*24*time.Hour))

	past := window("10:00", "11:00")
	past.Date = "2026-11-01"
	assert.True(t, apperror.IsKind(CheckHorizon(past, now, 0), apperror.KindValidation))

	far := window("10:00", "11:00")
	far.Date = "2027-01-10"
	assert.True(t, apperror.IsKind(CheckHorizon(far, now, 28*24*time.Hour), apperror.KindValidation))
}

func TestStartsAtTimezone(t *testing.T) {
	w := window("10:00", "11:00")
	w.Timezone = "Europe/Moscow"

	start, err := StartsAt(w)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 2, 7, 0, 0, 0, time.UTC), start.UTC())

	w.Timezone = "Mars/Olympus"
	_, err = StartsAt(w)
	assert.Error(t, err)
}

func TestHasRoom(t *testing.T) {
	one := &model.ReservableUnit{CapacityMode: model.CapacityOneToOne, MaxOccupants: 1}
	group := &model.ReservableUnit{CapacityMode: model.CapacityGroup, MaxOccupants: 3}

	assert.True(t, HasRoom(one, 0))
	assert.False(t, HasRoom(one, 1))
	assert.True(t, HasRoom(group, 2))
	assert.False(t, HasRoom(group, 3))
}

func TestNormalizeCapacity(t *testing.T) {
	n, err := NormalizeCapacity(model.CapacityOneToOne, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = NormalizeCapacity(model.CapacityGroup, MaxGroupOccupants)
	require.NoError(t, err)
	assert.Equal(t, MaxGroupOccupants, n)

	for _, bad := range []int{0, 1, MaxGroupOccupants + 1} {
		_, err = NormalizeCapacity(model.CapacityGroup, bad)
		assert.Error(t, err, "size %d", bad)
	}
}

func TestSessionPrice(t *testing.T) {
	tests := []struct {
		rate    model.Money
		minutes int
		want    model.Money
	}{
		{rate: 150000, minutes: 60, want: 150000},
		{rate: 150000, minutes: 90, want: 225000},
		{rate: 1000, minutes: 45, want: 750},
		{rate: 1, minutes: 30, want: 1}, // 0.5 -> 1
		{rate: 1001, minutes: 30, want: 501},
	}
	for _, tt := range tests {
		got, err := SessionPrice(tt.rate, tt.minutes)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "rate %d, %d min", tt.rate, tt.minutes)
	}

	_, err := SessionPrice(0, 60)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestBudgetMidpoint(t *testing.T) {
	from, to := model.Money(10000), model.Money(20000)
	got, err := BudgetMidpoint(&from, &to)
	require.NoError(t, err)
	assert.Equal(t, model.Money(15000), got)

	odd := model.Money(10001)
	got, err = BudgetMidpoint(&from, &odd)
	require.NoError(t, err)
	assert.Equal(t, model.Money(10001), got) // 10000.5 -> 10001

	zero := model.Money(0)
	_, err = BudgetMidpoint(&zero, &zero)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = BudgetMidpoint(&to, &from)
	assert.Error(t, err)

	_, err = BudgetMidpoint(nil, &to)
	assert.Error(t, err)
}
