package models

import (
	"time"
)

// UnitProfile 车辆存储数据使用的计量体系
type UnitProfile string

const (
	UnitProfileMetric   UnitProfile = "metric"   // km / °C / 升
	UnitProfileImperial UnitProfile = "imperial" // mi / °F / 加仑
)

// Valid 检查计量体系是否合法
func (p UnitProfile) Valid() bool {
	return p == UnitProfileMetric || p == UnitProfileImperial
}

// Vehicle 车辆信息
type Vehicle struct {
	ID          int64       `json:"id" db:"id"`
	ExternalID  string      `json:"external_id" db:"external_id"`
	Name        string      `json:"name" db:"name"`
	UnitProfile UnitProfile `json:"unit_profile" db:"unit_profile"`
	// 电池/油箱容量，用于推算充电能量和加油量，未知时保持为空
	BatteryCapacityKwh *float64  `json:"battery_capacity_kwh,omitempty" db:"battery_capacity_kwh"`
	TankCapacityL      *float64  `json:"tank_capacity_l,omitempty" db:"tank_capacity_l"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// StatusSnapshot 车辆状态快照，入库后不再修改
type StatusSnapshot struct {
	ID         int64     `json:"id" db:"id"`
	VehicleID  int64     `json:"vehicle_id" db:"vehicle_id"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	Odometer   float64   `json:"odometer" db:"odometer"` // 里程表读数（车辆计量体系）
	Latitude   *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64  `json:"longitude,omitempty" db:"longitude"`
	// 电量/油量百分比，非对应动力类型时为空
	ChargeLevel   *float64 `json:"charge_level,omitempty" db:"charge_level"`
	FuelLevel     *float64 `json:"fuel_level,omitempty" db:"fuel_level"`
	BatteryTemp   *float64 `json:"battery_temp,omitempty" db:"battery_temp"`
	Charging      bool     `json:"charging" db:"charging"`
	PlugConnected bool     `json:"plug_connected" db:"plug_connected"`
}

// TripSession 行程记录
type TripSession struct {
	ID            int64     `json:"id" db:"id"`
	VehicleID     int64     `json:"vehicle_id" db:"vehicle_id"`
	StartTime     time.Time `json:"start_time" db:"start_time"`
	StartOdometer float64   `json:"start_odometer" db:"start_odometer"`
	// 起始位置尽力填充，停车无 GPS 信号时为空
	StartLatitude    *float64   `json:"start_latitude,omitempty" db:"start_latitude"`
	StartLongitude   *float64   `json:"start_longitude,omitempty" db:"start_longitude"`
	StartChargeLevel *float64   `json:"start_charge_level,omitempty" db:"start_charge_level"`
	EndTime          *time.Time `json:"end_time,omitempty" db:"end_time"`
	EndOdometer      *float64   `json:"end_odometer,omitempty" db:"end_odometer"`
	EndLatitude      *float64   `json:"end_latitude,omitempty" db:"end_latitude"`
	EndLongitude     *float64   `json:"end_longitude,omitempty" db:"end_longitude"`
	EndChargeLevel   *float64   `json:"end_charge_level,omitempty" db:"end_charge_level"`
	Distance         *float64   `json:"distance,omitempty" db:"distance"`
	DurationMin      *float64   `json:"duration_min,omitempty" db:"duration_min"`
	// 每百公里电量消耗（百分点），关闭时推算
	AvgConsumption *float64 `json:"avg_consumption,omitempty" db:"avg_consumption"`
}

// IsClosed 行程是否已结束
func (t *TripSession) IsClosed() bool {
	return t.EndTime != nil
}

// ChargingSession 充电记录。电量读数可能缺失，缺失时保持为空，绝不写零。
type ChargingSession struct {
	ID             int64      `json:"id" db:"id"`
	VehicleID      int64      `json:"vehicle_id" db:"vehicle_id"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	StartLevel     *float64   `json:"start_level,omitempty" db:"start_level"`
	Latitude       *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64   `json:"longitude,omitempty" db:"longitude"`
	EndTime        *time.Time `json:"end_time,omitempty" db:"end_time"`
	EndLevel       *float64   `json:"end_level,omitempty" db:"end_level"`
	EnergyAddedKwh *float64   `json:"energy_added_kwh,omitempty" db:"energy_added_kwh"`
	DurationMin    *float64   `json:"duration_min,omitempty" db:"duration_min"`
}

// IsClosed 充电是否已结束
func (c *ChargingSession) IsClosed() bool {
	return c.EndTime != nil
}

// RefuelingEvent 加油记录，单快照即时事件，没有开启/关闭生命周期
type RefuelingEvent struct {
	ID         int64     `json:"id" db:"id"`
	VehicleID  int64     `json:"vehicle_id" db:"vehicle_id"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	StartLevel float64   `json:"start_level" db:"start_level"`
	EndLevel   float64   `json:"end_level" db:"end_level"`
	LevelDelta float64   `json:"level_delta" db:"level_delta"`
	// 按油箱容量推算的加油量（升），容量未知时为空
	EstimatedVolumeL *float64 `json:"estimated_volume_l,omitempty" db:"estimated_volume_l"`
	Odometer         *float64 `json:"odometer,omitempty" db:"odometer"`
	Latitude         *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64 `json:"longitude,omitempty" db:"longitude"`
}
