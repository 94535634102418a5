package telemetry

import (
	"context"
	"time"

	"github.com/langchou/cartrace/internal/models"
)

// Snapshot 上游每个轮询周期上报的单车状态对象。
// 可选字段缺失时为 nil，表示未知，绝不当作零值处理。
type Snapshot struct {
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`

	Odometer     float64 `json:"odometer"`
	OdometerUnit string  `json:"odometer_unit"` // km / mi

	ChargeLevel *float64 `json:"charge_level,omitempty"`
	FuelLevel   *float64 `json:"fuel_level,omitempty"`
	LevelUnit   string   `json:"level_unit,omitempty"` // percent，为空视为 percent

	BatteryTemp     *float64 `json:"battery_temp,omitempty"`
	BatteryTempUnit string   `json:"battery_temp_unit,omitempty"` // C / F

	Charging      bool `json:"charging"`
	PlugConnected bool `json:"plug_connected"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// 该记录已解析好的计量体系，为空时使用车辆默认配置
	UnitProfile models.UnitProfile `json:"unit_profile,omitempty"`

	// 容量信息随快照上报，用于推算充电能量/加油量
	BatteryCapacityKwh *float64 `json:"battery_capacity_kwh,omitempty"`
	TankCapacity       *float64 `json:"tank_capacity,omitempty"`
	TankCapacityUnit   string   `json:"tank_capacity_unit,omitempty"` // L / gal，为空视为升
}

// Source 遥测数据源抽象
type Source interface {
	// Start 建立连接并开始接收快照
	Start(ctx context.Context) error
	// Snapshots 返回快照通道，Stop 之后关闭
	Snapshots() <-chan Snapshot
	// Stop 断开连接并关闭通道
	Stop()
}
