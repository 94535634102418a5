package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/cartrace/internal/models"
)

// SessionRepository 行程/充电会话只读查询，写入统一走 Writer 的事务
type SessionRepository struct {
	db *DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// OpenTrip 获取车辆打开的行程，没有时返回 nil
func (r *SessionRepository) OpenTrip(ctx context.Context, vehicleID int64) (*models.TripSession, error) {
	query := `
		SELECT id, vehicle_id, start_time, start_odometer, start_latitude, start_longitude, start_charge_level,
			end_time, end_odometer, end_latitude, end_longitude, end_charge_level,
			distance, duration_min, avg_consumption
		FROM trip_sessions WHERE vehicle_id = $1 AND end_time IS NULL
	`
	trip := &models.TripSession{}
	err := r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(
		&trip.ID,
		&trip.VehicleID,
		&trip.StartTime,
		&trip.StartOdometer,
		&trip.StartLatitude,
		&trip.StartLongitude,
		&trip.StartChargeLevel,
		&trip.EndTime,
		&trip.EndOdometer,
		&trip.EndLatitude,
		&trip.EndLongitude,
		&trip.EndChargeLevel,
		&trip.Distance,
		&trip.DurationMin,
		&trip.AvgConsumption,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open trip: %w", err)
	}
	return trip, nil
}

// OpenCharging 获取车辆打开的充电过程，没有时返回 nil
func (r *SessionRepository) OpenCharging(ctx context.Context, vehicleID int64) (*models.ChargingSession, error) {
	query := `
		SELECT id, vehicle_id, start_time, start_level, latitude, longitude,
			end_time, end_level, energy_added_kwh, duration_min
		FROM charging_sessions WHERE vehicle_id = $1 AND end_time IS NULL
	`
	cs := &models.ChargingSession{}
	err := r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(
		&cs.ID,
		&cs.VehicleID,
		&cs.StartTime,
		&cs.StartLevel,
		&cs.Latitude,
		&cs.Longitude,
		&cs.EndTime,
		&cs.EndLevel,
		&cs.EnergyAddedKwh,
		&cs.DurationMin,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open charging session: %w", err)
	}
	return cs, nil
}

// TripByID 获取行程
func (r *SessionRepository) TripByID(ctx context.Context, id int64) (*models.TripSession, error) {
	query := `
		SELECT id, vehicle_id, start_time, start_odometer, start_latitude, start_longitude, start_charge_level,
			end_time, end_odometer, end_latitude, end_longitude, end_charge_level,
			distance, duration_min, avg_consumption
		FROM trip_sessions WHERE id = $1
	`
	trip := &models.TripSession{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&trip.ID,
		&trip.VehicleID,
		&trip.StartTime,
		&trip.StartOdometer,
		&trip.StartLatitude,
		&trip.StartLongitude,
		&trip.StartChargeLevel,
		&trip.EndTime,
		&trip.EndOdometer,
		&trip.EndLatitude,
		&trip.EndLongitude,
		&trip.EndChargeLevel,
		&trip.Distance,
		&trip.DurationMin,
		&trip.AvgConsumption,
	)
	if err != nil {
		return nil, fmt.Errorf("get trip by id: %w", err)
	}
	return trip, nil
}

// CountsByVehicleID 统计车辆的会话数量，用于状态接口
func (r *SessionRepository) CountsByVehicleID(ctx context.Context, vehicleID int64) (trips, chargings, refuelings int64, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM trip_sessions WHERE vehicle_id = $1),
			(SELECT COUNT(*) FROM charging_sessions WHERE vehicle_id = $1),
			(SELECT COUNT(*) FROM refueling_events WHERE vehicle_id = $1)
	`
	err = r.db.Pool.QueryRow(ctx, query, vehicleID).Scan(&trips, &chargings, &refuelings)
	if err != nil {
		err = fmt.Errorf("count sessions: %w", err)
	}
	return
}
