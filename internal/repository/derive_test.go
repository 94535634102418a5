package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/cartrace/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestDeriveTripMetrics(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	open := &models.TripSession{
		StartTime:        start,
		StartOdometer:    100,
		StartChargeLevel: f64(80),
	}
	closing := &models.TripSession{
		EndTime:        &end,
		EndOdometer:    f64(150),
		EndChargeLevel: f64(70),
	}

	distance, durationMin, avgConsumption := deriveTripMetrics(open, closing)
	require.NotNil(t, distance)
	assert.Equal(t, 50.0, *distance)
	require.NotNil(t, durationMin)
	assert.Equal(t, 30.0, *durationMin)
	require.NotNil(t, avgConsumption)
	assert.InDelta(t, 20.0, *avgConsumption, 0.001)
}

func TestDeriveTripMetricsOdometerRollback(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	open := &models.TripSession{StartTime: start, StartOdometer: 100}
	closing := &models.TripSession{EndTime: &end, EndOdometer: f64(90)}

	distance, durationMin, avgConsumption := deriveTripMetrics(open, closing)
	assert.Nil(t, distance)
	require.NotNil(t, durationMin)
	assert.Equal(t, 10.0, *durationMin)
	assert.Nil(t, avgConsumption)
}

func TestDeriveTripMetricsNoChargeReadings(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	open := &models.TripSession{StartTime: start, StartOdometer: 100}
	closing := &models.TripSession{EndTime: &end, EndOdometer: f64(120)}

	distance, _, avgConsumption := deriveTripMetrics(open, closing)
	require.NotNil(t, distance)
	assert.Nil(t, avgConsumption)
}

func TestDeriveChargingMetrics(t *testing.T) {
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	vehicle := &models.Vehicle{BatteryCapacityKwh: f64(75)}
	open := &models.ChargingSession{StartTime: start, StartLevel: f64(40)}
	closing := &models.ChargingSession{EndTime: &end, EndLevel: f64(80)}

	energy, durationMin := deriveChargingMetrics(vehicle, open, closing)
	require.NotNil(t, energy)
	assert.InDelta(t, 30.0, *energy, 0.001)
	require.NotNil(t, durationMin)
	assert.Equal(t, 120.0, *durationMin)
}

func TestDeriveChargingMetricsUnknownCapacity(t *testing.T) {
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	vehicle := &models.Vehicle{}
	open := &models.ChargingSession{StartTime: start, StartLevel: f64(40)}
	closing := &models.ChargingSession{EndTime: &end, EndLevel: f64(80)}

	energy, durationMin := deriveChargingMetrics(vehicle, open, closing)
	assert.Nil(t, energy)
	require.NotNil(t, durationMin)
}

func TestDeriveChargingMetricsUnknownStartLevel(t *testing.T) {
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	vehicle := &models.Vehicle{BatteryCapacityKwh: f64(75)}
	open := &models.ChargingSession{StartTime: start}
	closing := &models.ChargingSession{EndTime: &end, EndLevel: f64(80)}

	energy, durationMin := deriveChargingMetrics(vehicle, open, closing)
	assert.Nil(t, energy)
	require.NotNil(t, durationMin)
	assert.Equal(t, 60.0, *durationMin)
}

func TestEstimateRefuelVolume(t *testing.T) {
	vehicle := &models.Vehicle{TankCapacityL: f64(60)}
	ev := &models.RefuelingEvent{LevelDelta: 50}

	volume := estimateRefuelVolume(vehicle, ev)
	require.NotNil(t, volume)
	assert.InDelta(t, 30.0, *volume, 0.001)

	assert.Nil(t, estimateRefuelVolume(&models.Vehicle{}, ev))
}
