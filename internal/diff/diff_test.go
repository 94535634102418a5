package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/langchou/cartrace/internal/models"
)

func f64(v float64) *float64 { return &v }

func snapshot(odometer float64, charging bool) models.StatusSnapshot {
	return models.StatusSnapshot{
		VehicleID:  1,
		ObservedAt: time.Now(),
		Odometer:   odometer,
		Charging:   charging,
	}
}

func TestDiffFirstObservation(t *testing.T) {
	cs := Diff(nil, snapshot(100, false))
	assert.True(t, cs.FirstObservation)
	assert.False(t, cs.OdometerIncreased)
}

func TestDiffOdometerIncreased(t *testing.T) {
	prev := snapshot(100, false)
	curr := snapshot(120, false)
	cs := Diff(&prev, curr)
	assert.True(t, cs.OdometerIncreased)

	// 里程不变不算运动
	curr2 := snapshot(100, false)
	cs = Diff(&prev, curr2)
	assert.False(t, cs.OdometerIncreased)
}

func TestDiffChargeLevel(t *testing.T) {
	prev := snapshot(100, false)
	prev.ChargeLevel = f64(40)
	curr := snapshot(100, true)
	curr.ChargeLevel = f64(55)

	cs := Diff(&prev, curr)
	assert.True(t, cs.ChargeLevelIncreased)
	assert.True(t, cs.ChargingStarted)
	assert.False(t, cs.ChargeLevelDecreased)

	down := snapshot(100, false)
	down.ChargeLevel = f64(35)
	cs = Diff(&prev, down)
	assert.True(t, cs.ChargeLevelDecreased)
}

func TestDiffChargingStopped(t *testing.T) {
	prev := snapshot(100, true)
	curr := snapshot(100, false)
	cs := Diff(&prev, curr)
	assert.True(t, cs.ChargingStopped)
	assert.False(t, cs.ChargingStarted)
}

func TestDiffPlugTransitions(t *testing.T) {
	prev := snapshot(100, false)
	curr := snapshot(100, false)
	curr.PlugConnected = true
	cs := Diff(&prev, curr)
	assert.True(t, cs.PlugConnected)

	cs = Diff(&curr, prev)
	assert.True(t, cs.PlugDisconnected)
}

func TestDiffFuelLevelIncreased(t *testing.T) {
	prev := snapshot(100, false)
	prev.FuelLevel = f64(30)
	curr := snapshot(100, false)
	curr.FuelLevel = f64(70)

	cs := Diff(&prev, curr)
	assert.True(t, cs.FuelLevelIncreased)
	assert.Equal(t, 40.0, cs.FuelLevelDelta)
}

// 阈值以内的油量波动不算加油
func TestDiffFuelLevelJitterIgnored(t *testing.T) {
	prev := snapshot(100, false)
	prev.FuelLevel = f64(30)
	curr := snapshot(100, false)
	curr.FuelLevel = f64(34)

	cs := Diff(&prev, curr)
	assert.False(t, cs.FuelLevelIncreased)
}

// 充电过程中的油量上升（混动车）不算加油
func TestDiffFuelLevelWhileChargingIgnored(t *testing.T) {
	prev := snapshot(100, true)
	prev.FuelLevel = f64(30)
	curr := snapshot(100, true)
	curr.FuelLevel = f64(70)

	cs := Diff(&prev, curr)
	assert.False(t, cs.FuelLevelIncreased)
}
