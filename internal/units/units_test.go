package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/cartrace/internal/models"
)

func TestNormalizeDistance(t *testing.T) {
	got, err := NormalizeDistance(100, UnitMiles, models.UnitProfileMetric)
	require.NoError(t, err)
	assert.InDelta(t, 160.9344, got, 0.001)

	got, err = NormalizeDistance(160.9344, UnitKilometers, models.UnitProfileImperial)
	require.NoError(t, err)
	assert.InDelta(t, 100, got, 0.01)
}

// 已经是目标体系的值必须原样返回
func TestNormalizeCanonicalNoop(t *testing.T) {
	got, err := NormalizeDistance(123.4, UnitKilometers, models.UnitProfileMetric)
	require.NoError(t, err)
	assert.Equal(t, 123.4, got)

	got, err = NormalizeTemperature(21.5, UnitCelsius, models.UnitProfileMetric)
	require.NoError(t, err)
	assert.Equal(t, 21.5, got)

	got, err = NormalizeVolume(45.0, UnitGallons, models.UnitProfileImperial)
	require.NoError(t, err)
	assert.Equal(t, 45.0, got)
}

func TestNormalizeTemperature(t *testing.T) {
	got, err := NormalizeTemperature(32, UnitFahrenheit, models.UnitProfileMetric)
	require.NoError(t, err)
	assert.InDelta(t, 0, got, 0.0001)

	got, err = NormalizeTemperature(100, UnitCelsius, models.UnitProfileImperial)
	require.NoError(t, err)
	assert.InDelta(t, 212, got, 0.0001)
}

func TestNormalizeVolume(t *testing.T) {
	got, err := NormalizeVolume(10, UnitGallons, models.UnitProfileMetric)
	require.NoError(t, err)
	assert.InDelta(t, 37.85412, got, 0.0001)
}

func TestNormalizeUnsupportedUnit(t *testing.T) {
	_, err := NormalizeDistance(1, Unit("furlong"), models.UnitProfileMetric)
	assert.True(t, errors.Is(err, ErrUnsupportedUnit))

	_, err = NormalizeTemperature(1, UnitKilometers, models.UnitProfileMetric)
	assert.True(t, errors.Is(err, ErrUnsupportedUnit))

	_, err = NormalizeLevel(50, UnitLiters)
	assert.True(t, errors.Is(err, ErrUnsupportedUnit))

	// 未知目标体系同样拒绝，不做猜测
	_, err = NormalizeDistance(1, UnitKilometers, models.UnitProfile("nautical"))
	assert.True(t, errors.Is(err, ErrUnsupportedUnit))
}
