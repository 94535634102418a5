package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/cartrace/internal/models"
)

// VehicleRepository 车辆注册表
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Resolve 按外部标识解析车辆身份，首次见到时创建。
// 使用约束兜底的 insert-or-fetch，重试轮询并发首见同一辆车也不会产生重复记录。
// 名称和计量体系可以刷新，身份永不改变。
func (r *VehicleRepository) Resolve(ctx context.Context, vehicle *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (external_id, name, unit_profile, battery_capacity_kwh, tank_capacity_l, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), vehicles.name),
			unit_profile = EXCLUDED.unit_profile,
			battery_capacity_kwh = COALESCE(EXCLUDED.battery_capacity_kwh, vehicles.battery_capacity_kwh),
			tank_capacity_l = COALESCE(EXCLUDED.tank_capacity_l, vehicles.tank_capacity_l),
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, unit_profile, battery_capacity_kwh, tank_capacity_l, created_at
	`
	now := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		vehicle.ExternalID,
		vehicle.Name,
		vehicle.UnitProfile,
		vehicle.BatteryCapacityKwh,
		vehicle.TankCapacityL,
		now,
	).Scan(
		&vehicle.ID,
		&vehicle.Name,
		&vehicle.UnitProfile,
		&vehicle.BatteryCapacityKwh,
		&vehicle.TankCapacityL,
		&vehicle.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("resolve vehicle: %w", err)
	}

	vehicle.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	query := `
		SELECT id, external_id, name, unit_profile, battery_capacity_kwh, tank_capacity_l, created_at, updated_at
		FROM vehicles WHERE id = $1
	`
	vehicle := &models.Vehicle{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&vehicle.ID,
		&vehicle.ExternalID,
		&vehicle.Name,
		&vehicle.UnitProfile,
		&vehicle.BatteryCapacityKwh,
		&vehicle.TankCapacityL,
		&vehicle.CreatedAt,
		&vehicle.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return vehicle, nil
}

// List 获取所有车辆
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `
		SELECT id, external_id, name, unit_profile, battery_capacity_kwh, tank_capacity_l, created_at, updated_at
		FROM vehicles ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		vehicle := &models.Vehicle{}
		err := rows.Scan(
			&vehicle.ID,
			&vehicle.ExternalID,
			&vehicle.Name,
			&vehicle.UnitProfile,
			&vehicle.BatteryCapacityKwh,
			&vehicle.TankCapacityL,
			&vehicle.CreatedAt,
			&vehicle.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, vehicle)
	}

	return vehicles, nil
}
