package diff

import (
	"github.com/langchou/cartrace/internal/models"
)

// FuelIncreaseMargin 油量上升判定阈值（百分点）。
// 车辆偶尔会"凭空找到"几个百分点的油量，低于阈值的波动不算加油。
const FuelIncreaseMargin = 5.0

// ChangeSet 新旧快照之间的事实变化分类，纯数据，不做任何写入
type ChangeSet struct {
	FirstObservation bool

	OdometerIncreased    bool
	ChargeLevelIncreased bool
	ChargeLevelDecreased bool
	ChargingStarted      bool
	ChargingStopped      bool
	PlugConnected        bool
	PlugDisconnected     bool
	// 非充电状态下油量上升超过阈值
	FuelLevelIncreased bool
	FuelLevelDelta     float64
}

// Diff 对比车辆的上一条已知快照和当前快照。
// prev 仅在车辆首次被观测到时为 nil。
func Diff(prev *models.StatusSnapshot, curr models.StatusSnapshot) ChangeSet {
	if prev == nil {
		return ChangeSet{FirstObservation: true}
	}

	cs := ChangeSet{}

	if curr.Odometer > prev.Odometer {
		cs.OdometerIncreased = true
	}

	if prev.ChargeLevel != nil && curr.ChargeLevel != nil {
		if *curr.ChargeLevel > *prev.ChargeLevel {
			cs.ChargeLevelIncreased = true
		} else if *curr.ChargeLevel < *prev.ChargeLevel {
			cs.ChargeLevelDecreased = true
		}
	}

	if curr.Charging && !prev.Charging {
		cs.ChargingStarted = true
	}
	if !curr.Charging && prev.Charging {
		cs.ChargingStopped = true
	}

	if curr.PlugConnected && !prev.PlugConnected {
		cs.PlugConnected = true
	}
	if !curr.PlugConnected && prev.PlugConnected {
		cs.PlugDisconnected = true
	}

	if prev.FuelLevel != nil && curr.FuelLevel != nil && !curr.Charging && !prev.Charging {
		delta := *curr.FuelLevel - *prev.FuelLevel
		if delta > FuelIncreaseMargin {
			cs.FuelLevelIncreased = true
			cs.FuelLevelDelta = delta
		}
	}

	return cs
}
