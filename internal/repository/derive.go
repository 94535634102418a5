package repository

import (
	"github.com/langchou/cartrace/internal/models"
)

// deriveTripMetrics 行程关闭时结算派生值。
// 里程回退（换表等异常）时距离为空，缺电量读数时不推算能耗。
func deriveTripMetrics(open, end *models.TripSession) (distance, durationMin, avgConsumption *float64) {
	if end.EndOdometer != nil && *end.EndOdometer >= open.StartOdometer {
		d := *end.EndOdometer - open.StartOdometer
		distance = &d
	}
	if end.EndTime != nil {
		m := end.EndTime.Sub(open.StartTime).Minutes()
		durationMin = &m
	}
	if distance != nil && *distance > 0 && open.StartChargeLevel != nil && end.EndChargeLevel != nil {
		if drop := *open.StartChargeLevel - *end.EndChargeLevel; drop > 0 {
			c := drop / *distance * 100
			avgConsumption = &c
		}
	}
	return distance, durationMin, avgConsumption
}

// deriveChargingMetrics 充电关闭时结算能量和时长，
// 电池容量或任一侧电量读数未知时能量为空
func deriveChargingMetrics(vehicle *models.Vehicle, open, end *models.ChargingSession) (energyAdded, durationMin *float64) {
	if open.StartLevel != nil && end.EndLevel != nil && vehicle.BatteryCapacityKwh != nil {
		if delta := *end.EndLevel - *open.StartLevel; delta > 0 {
			e := delta / 100 * *vehicle.BatteryCapacityKwh
			energyAdded = &e
		}
	}
	if end.EndTime != nil {
		m := end.EndTime.Sub(open.StartTime).Minutes()
		durationMin = &m
	}
	return energyAdded, durationMin
}

// estimateRefuelVolume 按油箱容量和油量差推算加油量（升），容量未知时为空
func estimateRefuelVolume(vehicle *models.Vehicle, ev *models.RefuelingEvent) *float64 {
	if vehicle.TankCapacityL == nil || ev.LevelDelta <= 0 {
		return nil
	}
	v := ev.LevelDelta / 100 * *vehicle.TankCapacityL
	return &v
}
