package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 在引擎启动前执行版本化迁移，写入路径本身不发出任何 DDL
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateStatusSnapshots,
		migrationCreateTripSessions,
		migrationCreateChargingSessions,
		migrationCreateRefuelingEvents,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    external_id VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(255),
    unit_profile VARCHAR(16) NOT NULL DEFAULT 'metric',
    battery_capacity_kwh DOUBLE PRECISION,
    tank_capacity_l DOUBLE PRECISION,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_external_id ON vehicles(external_id);
`

const migrationCreateStatusSnapshots = `
CREATE TABLE IF NOT EXISTS status_snapshots (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    observed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    odometer DOUBLE PRECISION NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    charge_level DOUBLE PRECISION,
    fuel_level DOUBLE PRECISION,
    battery_temp DOUBLE PRECISION,
    charging BOOLEAN NOT NULL DEFAULT FALSE,
    plug_connected BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT uq_status_snapshots_vehicle_observed UNIQUE (vehicle_id, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_status_snapshots_vehicle_observed ON status_snapshots(vehicle_id, observed_at DESC);
`

const migrationCreateTripSessions = `
CREATE TABLE IF NOT EXISTS trip_sessions (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    start_odometer DOUBLE PRECISION NOT NULL,
    start_latitude DOUBLE PRECISION,
    start_longitude DOUBLE PRECISION,
    start_charge_level DOUBLE PRECISION,
    end_time TIMESTAMP WITH TIME ZONE,
    end_odometer DOUBLE PRECISION,
    end_latitude DOUBLE PRECISION,
    end_longitude DOUBLE PRECISION,
    end_charge_level DOUBLE PRECISION,
    distance DOUBLE PRECISION,
    duration_min DOUBLE PRECISION,
    avg_consumption DOUBLE PRECISION,
    CONSTRAINT uq_trip_sessions_vehicle_start UNIQUE (vehicle_id, start_time)
);
CREATE INDEX IF NOT EXISTS idx_trip_sessions_vehicle_id ON trip_sessions(vehicle_id);
-- 每辆车同一时刻至多一个打开的行程
CREATE UNIQUE INDEX IF NOT EXISTS uq_trip_sessions_open ON trip_sessions(vehicle_id) WHERE end_time IS NULL;
`

const migrationCreateChargingSessions = `
CREATE TABLE IF NOT EXISTS charging_sessions (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    start_level DOUBLE PRECISION,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    end_time TIMESTAMP WITH TIME ZONE,
    end_level DOUBLE PRECISION,
    energy_added_kwh DOUBLE PRECISION,
    duration_min DOUBLE PRECISION,
    CONSTRAINT uq_charging_sessions_vehicle_start UNIQUE (vehicle_id, start_time)
);
CREATE INDEX IF NOT EXISTS idx_charging_sessions_vehicle_id ON charging_sessions(vehicle_id);
-- 每辆车同一时刻至多一个打开的充电过程
CREATE UNIQUE INDEX IF NOT EXISTS uq_charging_sessions_open ON charging_sessions(vehicle_id) WHERE end_time IS NULL;
`

const migrationCreateRefuelingEvents = `
CREATE TABLE IF NOT EXISTS refueling_events (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    start_level DOUBLE PRECISION NOT NULL,
    end_level DOUBLE PRECISION NOT NULL,
    level_delta DOUBLE PRECISION NOT NULL,
    estimated_volume_l DOUBLE PRECISION,
    odometer DOUBLE PRECISION,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    CONSTRAINT uq_refueling_events_vehicle_occurred UNIQUE (vehicle_id, occurred_at)
);
CREATE INDEX IF NOT EXISTS idx_refueling_events_vehicle_id ON refueling_events(vehicle_id);
`
