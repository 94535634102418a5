package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/cartrace/internal/models"
)

// SnapshotRepository 状态快照仓库（只追加，入库后不修改不删除）
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository 创建快照仓库
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Latest 获取车辆最近一条快照，没有历史时返回 nil
func (r *SnapshotRepository) Latest(ctx context.Context, vehicleID int64) (*models.StatusSnapshot, error) {
	query := `
		SELECT id, vehicle_id, observed_at, odometer, latitude, longitude,
			charge_level, fuel_level, battery_temp, charging, plug_connected
		FROM status_snapshots WHERE vehicle_id = $1 ORDER BY observed_at DESC LIMIT 1
	`
	snap := &models.StatusSnapshot{}
	err := r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(
		&snap.ID,
		&snap.VehicleID,
		&snap.ObservedAt,
		&snap.Odometer,
		&snap.Latitude,
		&snap.Longitude,
		&snap.ChargeLevel,
		&snap.FuelLevel,
		&snap.BatteryTemp,
		&snap.Charging,
		&snap.PlugConnected,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// CountByVehicleID 统计车辆快照数
func (r *SnapshotRepository) CountByVehicleID(ctx context.Context, vehicleID int64) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM status_snapshots WHERE vehicle_id = $1`, vehicleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}
