package service

import (
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUnitRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)

	f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)

	_, err := f.units.CreateUnit(f.ctx, olga, UnitInput{
		Date: "2026-11-03", StartTime: "10:30", EndTime: "11:30", CapacityMode: model.CapacityOneToOne,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// Соседнее окно не пересекается
	adjacent := f.unit(olga, "2026-11-03", "11:00", "12:00", model.CapacityOneToOne, 0)
	assert.Equal(t, 1, adjacent.MaxOccupants)
}

func TestCreateUnitValidation(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	student := f.client("Ivan")

	tests := []struct {
		name string
		in   UnitInput
	}{
		{"past date", UnitInput{Date: "2026-11-01", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne}},
		{"already started today", UnitInput{Date: "2026-11-02", StartTime: "08:00", EndTime: "10:00", CapacityMode: model.CapacityOneToOne}},
		{"beyond horizon", UnitInput{Date: "2027-01-15", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne}},
		{"end before start", UnitInput{Date: "2026-11-03", StartTime: "11:00", EndTime: "10:00", CapacityMode: model.CapacityOneToOne}},
		{"malformed time", UnitInput{Date: "2026-11-03", StartTime: "25:00", EndTime: "26:00", CapacityMode: model.CapacityOneToOne}},
		{"group without capacity", UnitInput{Date: "2026-11-03", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityGroup}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.units.CreateUnit(f.ctx, olga, tt.in)
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation), "got %v", err)
		})
	}

	_, err := f.units.CreateUnit(f.ctx, student, UnitInput{Date: "2026-11-03", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestCreateUnitsReportsPerItem(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)

	results, err := f.units.CreateUnits(f.ctx, olga, []UnitInput{
		{Date: "2026-11-04", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne},
		{Date: "2026-11-04", StartTime: "10:30", EndTime: "11:30", CapacityMode: model.CapacityOneToOne},
		{Date: "2026-10-30", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne},
		{Date: "2026-11-04", StartTime: "12:00", EndTime: "13:00", CapacityMode: model.CapacityGroup, MaxOccupants: 5},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.True(t, apperror.IsKind(results[1].Err, apperror.KindConflict))
	assert.True(t, apperror.IsKind(results[2].Err, apperror.KindValidation))
	assert.NoError(t, results[3].Err)
	assert.Equal(t, 5, results[3].Unit.MaxOccupants)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestCreateWeeklyUnits(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)

	results, err := f.units.CreateWeeklyUnits(f.ctx, olga, WeeklyPattern{
		Weekdays:        []time.Weekday{time.Monday, time.Wednesday},
		StartTimes:      []string{"08:00", "18:00"},
		DurationMinutes: 90,
		Weeks:           1,
		CapacityMode:    model.CapacityOneToOne,
	})
	require.NoError(t, err)

	// Понедельник 08:00 уже прошёл
	require.Len(t, results, 3)
	dates := make([]string, 0, len(results))
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 90, r.Unit.DurationMinutes())
		dates = append(dates, r.Unit.Window.Date+" "+r.Unit.Window.StartTime)
	}
	assert.ElementsMatch(t, []string{"2026-11-02 18:00", "2026-11-04 08:00", "2026-11-04 18:00"}, dates)
}

func TestCreateWeeklyUnitsRejectsMidnight(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)

	_, err := f.units.CreateWeeklyUnits(f.ctx, olga, WeeklyPattern{
		Weekdays:        []time.Weekday{time.Tuesday},
		StartTimes:      []string{"23:30"},
		DurationMinutes: 60,
		CapacityMode:    model.CapacityOneToOne,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestUpdateAndDeleteUnit(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	anna, _ := f.provider("Anna", 100000)
	student := f.client("Ivan")

	free := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)
	f.unit(olga, "2026-11-03", "12:00", "13:00", model.CapacityOneToOne, 0)
	booked := f.unit(olga, "2026-11-05", "10:00", "11:00", model.CapacityOneToOne, 0)

	_, err := f.sessions.Book(f.ctx, student, booked.ID, "tok_visa")
	require.NoError(t, err)

	t.Run("overlap with sibling", func(t *testing.T) {
		_, err := f.units.UpdateUnitWindow(f.ctx, olga, free.ID, UnitInput{
			Date: "2026-11-03", StartTime: "11:30", EndTime: "12:30", CapacityMode: model.CapacityOneToOne,
		})
		assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	})

	t.Run("shift within own window", func(t *testing.T) {
		updated, err := f.units.UpdateUnitWindow(f.ctx, olga, free.ID, UnitInput{
			Date: "2026-11-03", StartTime: "10:30", EndTime: "11:30", CapacityMode: model.CapacityOneToOne,
		})
		require.NoError(t, err)
		assert.Equal(t, "10:30", updated.Window.StartTime)
	})

	t.Run("not the owner", func(t *testing.T) {
		err := f.units.DeleteUnit(f.ctx, anna, free.ID)
		assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	})

	t.Run("has reservations", func(t *testing.T) {
		err := f.units.DeleteUnit(f.ctx, olga, booked.ID)
		assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	})

	t.Run("delete free unit", func(t *testing.T) {
		require.NoError(t, f.units.DeleteUnit(f.ctx, olga, free.ID))
		got, err := f.store.Units().GetByID(f.ctx, free.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListDiscoverableUnits(t *testing.T) {
	f := newFixture(t)
	olga, profile := f.provider("Olga", 150000)
	student := f.client("Ivan")

	taken := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)
	open := f.unit(olga, "2026-11-03", "12:00", "13:00", model.CapacityGroup, 3)
	_, err := f.sessions.Book(f.ctx, student, taken.ID, "tok_visa")
	require.NoError(t, err)

	units, err := f.units.ListDiscoverableUnits(f.ctx, &profile.ID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, open.ID, units[0].ID)

	own, err := f.units.ListOwnerUnits(f.ctx, olga)
	require.NoError(t, err)
	assert.Len(t, own, 2)
}
