package units

import (
	"errors"
	"fmt"

	"github.com/langchou/cartrace/internal/models"
)

// ErrUnsupportedUnit 未知的来源计量单位
var ErrUnsupportedUnit = errors.New("unsupported unit")

// Unit 上游上报的计量单位
type Unit string

const (
	UnitKilometers Unit = "km"
	UnitMiles      Unit = "mi"
	UnitCelsius    Unit = "C"
	UnitFahrenheit Unit = "F"
	UnitLiters     Unit = "L"
	UnitGallons    Unit = "gal"
	UnitPercent    Unit = "percent"
)

const (
	milesPerKm   = 0.621371
	kmPerMile    = 1.609344
	litersPerGal = 3.785412
)

// NormalizeDistance 把距离值转换为目标计量体系
func NormalizeDistance(value float64, from Unit, profile models.UnitProfile) (float64, error) {
	switch profile {
	case models.UnitProfileMetric:
		switch from {
		case UnitKilometers:
			return value, nil
		case UnitMiles:
			return value * kmPerMile, nil
		}
	case models.UnitProfileImperial:
		switch from {
		case UnitMiles:
			return value, nil
		case UnitKilometers:
			return value * milesPerKm, nil
		}
	}
	return 0, fmt.Errorf("normalize distance from %q to %q: %w", from, profile, ErrUnsupportedUnit)
}

// NormalizeTemperature 把温度值转换为目标计量体系
func NormalizeTemperature(value float64, from Unit, profile models.UnitProfile) (float64, error) {
	switch profile {
	case models.UnitProfileMetric:
		switch from {
		case UnitCelsius:
			return value, nil
		case UnitFahrenheit:
			return (value - 32) * 5 / 9, nil
		}
	case models.UnitProfileImperial:
		switch from {
		case UnitFahrenheit:
			return value, nil
		case UnitCelsius:
			return value*9/5 + 32, nil
		}
	}
	return 0, fmt.Errorf("normalize temperature from %q to %q: %w", from, profile, ErrUnsupportedUnit)
}

// NormalizeVolume 把容积值转换为目标计量体系
func NormalizeVolume(value float64, from Unit, profile models.UnitProfile) (float64, error) {
	switch profile {
	case models.UnitProfileMetric:
		switch from {
		case UnitLiters:
			return value, nil
		case UnitGallons:
			return value * litersPerGal, nil
		}
	case models.UnitProfileImperial:
		switch from {
		case UnitGallons:
			return value, nil
		case UnitLiters:
			return value / litersPerGal, nil
		}
	}
	return 0, fmt.Errorf("normalize volume from %q to %q: %w", from, profile, ErrUnsupportedUnit)
}

// NormalizeLevel 电量/油量百分比不随计量体系变化，仅校验单位
func NormalizeLevel(value float64, from Unit) (float64, error) {
	if from != UnitPercent {
		return 0, fmt.Errorf("normalize level from %q: %w", from, ErrUnsupportedUnit)
	}
	return value, nil
}
