package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/langchou/cartrace/internal/models"
	"github.com/langchou/cartrace/internal/tracker"
)

// Writer 记录写入器。一个轮询周期的全部落库动作（快照追加 + 会话开启/关闭 +
// 加油记录）在单个事务内执行，要么全部生效要么全部回滚。
// 会话 start 字段只在开启事务中写入一次，关闭只写 end 字段和派生值。
type Writer struct {
	db     *DB
	logger *zap.Logger
}

// NewWriter 创建写入器
func NewWriter(db *DB, logger *zap.Logger) *Writer {
	return &Writer{db: db, logger: logger}
}

// Apply 原子应用快照及其全部会话变更
func (w *Writer) Apply(ctx context.Context, vehicle *models.Vehicle, snap *models.StatusSnapshot, muts []tracker.Mutation) error {
	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cycle transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // 提交后回滚是空操作

	if err := w.appendSnapshot(ctx, tx, snap); err != nil {
		return err
	}

	for _, m := range muts {
		switch m.Kind {
		case tracker.MutOpenTrip:
			err = w.openTrip(ctx, tx, m.Trip)
		case tracker.MutCloseTrip:
			err = w.closeTrip(ctx, tx, m.Trip)
		case tracker.MutOpenCharging:
			err = w.openCharging(ctx, tx, m.Charging)
		case tracker.MutCloseCharging:
			err = w.closeCharging(ctx, tx, vehicle, m.Charging)
		case tracker.MutRefuel:
			err = w.insertRefueling(ctx, tx, vehicle, m.Refuel)
		default:
			err = fmt.Errorf("unknown mutation kind %q", m.Kind)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cycle transaction: %w", err)
	}
	return nil
}

// appendSnapshot 追加快照，(vehicle_id, observed_at) 重复时报 ErrDuplicateSnapshot
func (w *Writer) appendSnapshot(ctx context.Context, tx pgx.Tx, snap *models.StatusSnapshot) error {
	query := `
		INSERT INTO status_snapshots (vehicle_id, observed_at, odometer, latitude, longitude,
			charge_level, fuel_level, battery_temp, charging, plug_connected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		snap.VehicleID,
		snap.ObservedAt,
		snap.Odometer,
		snap.Latitude,
		snap.Longitude,
		snap.ChargeLevel,
		snap.FuelLevel,
		snap.BatteryTemp,
		snap.Charging,
		snap.PlugConnected,
	).Scan(&snap.ID)

	if isUniqueViolation(err) {
		return fmt.Errorf("append snapshot vehicle=%d observed_at=%s: %w", snap.VehicleID, snap.ObservedAt, ErrDuplicateSnapshot)
	}
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// openTrip 开启行程。写入器独立于状态机再次校验单开不变量。
func (w *Writer) openTrip(ctx context.Context, tx pgx.Tx, trip *models.TripSession) error {
	var existing int64
	err := tx.QueryRow(ctx, `SELECT id FROM trip_sessions WHERE vehicle_id = $1 AND end_time IS NULL FOR UPDATE`, trip.VehicleID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("open trip vehicle=%d: %w", trip.VehicleID, ErrSessionAlreadyOpen)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check open trip: %w", err)
	}

	query := `
		INSERT INTO trip_sessions (vehicle_id, start_time, start_odometer, start_latitude, start_longitude, start_charge_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		trip.VehicleID,
		trip.StartTime,
		trip.StartOdometer,
		trip.StartLatitude,
		trip.StartLongitude,
		trip.StartChargeLevel,
	).Scan(&trip.ID)

	if isUniqueViolation(err) {
		return fmt.Errorf("open trip vehicle=%d: %w", trip.VehicleID, ErrSessionAlreadyOpen)
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// closeTrip 关闭行程并结算派生值，只写 end 字段，start 字段不再触碰
func (w *Writer) closeTrip(ctx context.Context, tx pgx.Tx, end *models.TripSession) error {
	open := &models.TripSession{}
	query := `
		SELECT id, start_time, start_odometer, start_charge_level
		FROM trip_sessions WHERE vehicle_id = $1 AND end_time IS NULL FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, end.VehicleID).Scan(
		&open.ID,
		&open.StartTime,
		&open.StartOdometer,
		&open.StartChargeLevel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("close trip vehicle=%d: %w", end.VehicleID, ErrNoOpenSession)
	}
	if err != nil {
		return fmt.Errorf("get open trip for close: %w", err)
	}

	distance, durationMin, avgConsumption := deriveTripMetrics(open, end)

	update := `
		UPDATE trip_sessions SET
			end_time = $1,
			end_odometer = $2,
			end_latitude = $3,
			end_longitude = $4,
			end_charge_level = $5,
			distance = $6,
			duration_min = $7,
			avg_consumption = $8
		WHERE id = $9 AND end_time IS NULL
	`
	tag, err := tx.Exec(ctx, update,
		end.EndTime,
		end.EndOdometer,
		end.EndLatitude,
		end.EndLongitude,
		end.EndChargeLevel,
		distance,
		durationMin,
		avgConsumption,
		open.ID,
	)
	if err != nil {
		return fmt.Errorf("close trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close trip vehicle=%d: %w", end.VehicleID, ErrNoOpenSession)
	}

	end.ID = open.ID
	end.Distance = distance
	end.DurationMin = durationMin
	return nil
}

// openCharging 开启充电过程，同样独立校验单开不变量
func (w *Writer) openCharging(ctx context.Context, tx pgx.Tx, cs *models.ChargingSession) error {
	var existing int64
	err := tx.QueryRow(ctx, `SELECT id FROM charging_sessions WHERE vehicle_id = $1 AND end_time IS NULL FOR UPDATE`, cs.VehicleID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("open charging session vehicle=%d: %w", cs.VehicleID, ErrSessionAlreadyOpen)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check open charging session: %w", err)
	}

	query := `
		INSERT INTO charging_sessions (vehicle_id, start_time, start_level, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		cs.VehicleID,
		cs.StartTime,
		cs.StartLevel,
		cs.Latitude,
		cs.Longitude,
	).Scan(&cs.ID)

	if isUniqueViolation(err) {
		return fmt.Errorf("open charging session vehicle=%d: %w", cs.VehicleID, ErrSessionAlreadyOpen)
	}
	if err != nil {
		return fmt.Errorf("insert charging session: %w", err)
	}
	return nil
}

// closeCharging 关闭充电过程，能量按电池容量和电量差推算，容量未知时保持为空
func (w *Writer) closeCharging(ctx context.Context, tx pgx.Tx, vehicle *models.Vehicle, end *models.ChargingSession) error {
	open := &models.ChargingSession{}
	query := `
		SELECT id, start_time, start_level
		FROM charging_sessions WHERE vehicle_id = $1 AND end_time IS NULL FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, end.VehicleID).Scan(
		&open.ID,
		&open.StartTime,
		&open.StartLevel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("close charging session vehicle=%d: %w", end.VehicleID, ErrNoOpenSession)
	}
	if err != nil {
		return fmt.Errorf("get open charging session for close: %w", err)
	}

	energyAdded, durationMin := deriveChargingMetrics(vehicle, open, end)

	update := `
		UPDATE charging_sessions SET
			end_time = $1,
			end_level = $2,
			energy_added_kwh = $3,
			duration_min = $4
		WHERE id = $5 AND end_time IS NULL
	`
	tag, err := tx.Exec(ctx, update,
		end.EndTime,
		end.EndLevel,
		energyAdded,
		durationMin,
		open.ID,
	)
	if err != nil {
		return fmt.Errorf("close charging session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close charging session vehicle=%d: %w", end.VehicleID, ErrNoOpenSession)
	}

	end.ID = open.ID
	end.EnergyAddedKwh = energyAdded
	end.DurationMin = durationMin
	return nil
}

// insertRefueling 写入加油记录，油量按油箱容量推算
func (w *Writer) insertRefueling(ctx context.Context, tx pgx.Tx, vehicle *models.Vehicle, ev *models.RefuelingEvent) error {
	ev.EstimatedVolumeL = estimateRefuelVolume(vehicle, ev)

	query := `
		INSERT INTO refueling_events (vehicle_id, occurred_at, start_level, end_level, level_delta,
			estimated_volume_l, odometer, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		ev.VehicleID,
		ev.OccurredAt,
		ev.StartLevel,
		ev.EndLevel,
		ev.LevelDelta,
		ev.EstimatedVolumeL,
		ev.Odometer,
		ev.Latitude,
		ev.Longitude,
	).Scan(&ev.ID)

	if isUniqueViolation(err) {
		return fmt.Errorf("insert refueling event vehicle=%d: %w", ev.VehicleID, ErrDuplicateSnapshot)
	}
	if err != nil {
		return fmt.Errorf("insert refueling event: %w", err)
	}
	return nil
}
