package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/langchou/cartrace/internal/models"
	"github.com/langchou/cartrace/internal/tracker"
)

// Store 聚合同步引擎需要的全部存储操作
type Store struct {
	Vehicles  *VehicleRepository
	Snapshots *SnapshotRepository
	Sessions  *SessionRepository
	writer    *Writer
}

// NewStore 创建存储聚合
func NewStore(db *DB, logger *zap.Logger) *Store {
	return &Store{
		Vehicles:  NewVehicleRepository(db),
		Snapshots: NewSnapshotRepository(db),
		Sessions:  NewSessionRepository(db),
		writer:    NewWriter(db, logger),
	}
}

// ResolveVehicle 注册或更新车辆并回填数据库字段
func (s *Store) ResolveVehicle(ctx context.Context, v *models.Vehicle) error {
	return s.Vehicles.Resolve(ctx, v)
}

// LatestSnapshot 查询车辆最新快照
func (s *Store) LatestSnapshot(ctx context.Context, vehicleID int64) (*models.StatusSnapshot, error) {
	return s.Snapshots.Latest(ctx, vehicleID)
}

// OpenTrip 查询未结束的行程
func (s *Store) OpenTrip(ctx context.Context, vehicleID int64) (*models.TripSession, error) {
	return s.Sessions.OpenTrip(ctx, vehicleID)
}

// OpenCharging 查询未结束的充电会话
func (s *Store) OpenCharging(ctx context.Context, vehicleID int64) (*models.ChargingSession, error) {
	return s.Sessions.OpenCharging(ctx, vehicleID)
}

// ApplyCycle 在单个事务里落库一个同步周期
func (s *Store) ApplyCycle(ctx context.Context, vehicle *models.Vehicle, snap *models.StatusSnapshot, muts []tracker.Mutation) error {
	return s.writer.Apply(ctx, vehicle, snap, muts)
}
