package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/cartrace/internal/config"
	"github.com/langchou/cartrace/internal/diff"
	"github.com/langchou/cartrace/internal/models"
	"github.com/langchou/cartrace/internal/repository"
	"github.com/langchou/cartrace/internal/telemetry"
	"github.com/langchou/cartrace/internal/tracker"
	"github.com/langchou/cartrace/internal/units"
)

// Store 引擎依赖的持久层操作
type Store interface {
	ResolveVehicle(ctx context.Context, v *models.Vehicle) error
	LatestSnapshot(ctx context.Context, vehicleID int64) (*models.StatusSnapshot, error)
	OpenTrip(ctx context.Context, vehicleID int64) (*models.TripSession, error)
	OpenCharging(ctx context.Context, vehicleID int64) (*models.ChargingSession, error)
	ApplyCycle(ctx context.Context, vehicle *models.Vehicle, snap *models.StatusSnapshot, muts []tracker.Mutation) error
}

// Broadcaster 实时状态推送
type Broadcaster interface {
	BroadcastStateUpdate(state interface{})
}

// VehicleState 车辆实时状态视图，每次周期提交后刷新
type VehicleState struct {
	VehicleID     int64     `json:"vehicle_id"`
	ExternalID    string    `json:"external_id"`
	Name          string    `json:"name"`
	ObservedAt    time.Time `json:"observed_at"`
	Odometer      float64   `json:"odometer"`
	ChargeLevel   *float64  `json:"charge_level,omitempty"`
	FuelLevel     *float64  `json:"fuel_level,omitempty"`
	BatteryTemp   *float64  `json:"battery_temp,omitempty"`
	Charging      bool      `json:"charging"`
	PlugConnected bool      `json:"plug_connected"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	TripOpen      bool      `json:"trip_open"`
	ChargingOpen  bool      `json:"charging_open"`
}

// Engine 同步引擎：消费遥测快照，推进会话状态机并落库。
// 同一车辆的周期严格串行，不同车辆并发互不干扰。
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    Store
	source   telemetry.Source
	trackers *tracker.Manager
	hub      Broadcaster

	// workers 仅由 dispatch 协程访问
	workers map[string]*vehicleWorker

	mu     sync.RWMutex
	states map[int64]*VehicleState

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// vehicleWorker 单车处理上下文，只在该车的工作协程里读写
type vehicleWorker struct {
	ch        chan telemetry.Snapshot
	vehicle   *models.Vehicle
	lastKnown *models.StatusSnapshot
	trk       *tracker.Tracker
	ready     bool
}

// NewEngine 创建同步引擎，hub 为空时不推送实时状态
func NewEngine(cfg *config.Config, logger *zap.Logger, store Store, source telemetry.Source, hub Broadcaster) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		source:   source,
		trackers: tracker.NewManager(cfg.TripIdleThreshold),
		hub:      hub,
		workers:  make(map[string]*vehicleWorker),
		states:   make(map[int64]*VehicleState),
	}
}

// Start 启动数据源和分发协程
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.source.Start(ctx); err != nil {
		cancel()
		return err
	}

	e.wg.Add(1)
	go e.dispatch(ctx)

	e.logger.Info("Sync engine started",
		zap.Duration("trip_idle_threshold", e.cfg.TripIdleThreshold))
	return nil
}

// Stop 停止数据源并等待所有车辆处理完剩余快照
func (e *Engine) Stop() {
	e.source.Stop()
	e.wg.Wait()
	if e.cancel != nil {
		e.cancel()
	}
	e.logger.Info("Sync engine stopped")
}

// dispatch 把快照路由到对应车辆的工作协程，保证单车串行
func (e *Engine) dispatch(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		for _, w := range e.workers {
			close(w.ch)
		}
	}()

	for raw := range e.source.Snapshots() {
		if raw.ExternalID == "" {
			continue
		}
		w, ok := e.workers[raw.ExternalID]
		if !ok {
			w = &vehicleWorker{ch: make(chan telemetry.Snapshot, 16)}
			e.workers[raw.ExternalID] = w
			e.wg.Add(1)
			go e.runWorker(ctx, w)
			e.logger.Info("Started vehicle worker", zap.String("external_id", raw.ExternalID))
		}
		select {
		case w.ch <- raw:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) runWorker(ctx context.Context, w *vehicleWorker) {
	defer e.wg.Done()
	for raw := range w.ch {
		e.processCycle(ctx, w, raw)
	}
}

// processCycle 处理一个同步周期：归一化、陈旧检查、状态机推进、事务落库
func (e *Engine) processCycle(ctx context.Context, w *vehicleWorker, raw telemetry.Snapshot) {
	if !w.ready {
		if err := e.bootstrap(ctx, w, raw); err != nil {
			e.logger.Error("Failed to bootstrap vehicle",
				zap.String("external_id", raw.ExternalID), zap.Error(err))
			return
		}
	}

	snap, err := e.normalize(w.vehicle, raw)
	if err != nil {
		e.logger.Warn("Dropping snapshot with unsupported unit",
			zap.Int64("vehicle_id", w.vehicle.ID), zap.Error(err))
		return
	}

	// 陈旧快照在落库前拦截，相同时间戳的重复快照交给唯一约束
	if w.lastKnown != nil && snap.ObservedAt.Before(w.lastKnown.ObservedAt) {
		e.logger.Debug("Ignoring stale snapshot",
			zap.Int64("vehicle_id", w.vehicle.ID),
			zap.Time("observed_at", snap.ObservedAt),
			zap.Time("last_known", w.lastKnown.ObservedAt),
			zap.Error(repository.ErrStaleSnapshot))
		return
	}

	changes := diff.Diff(w.lastKnown, *snap)
	cp := w.trk.Checkpoint()
	muts, err := w.trk.Apply(changes, w.lastKnown, *snap)
	if err != nil {
		e.logger.Error("Session state machine rejected transition",
			zap.Int64("vehicle_id", w.vehicle.ID), zap.Error(err))
		return
	}

	if err := e.applyWithRetry(ctx, w.vehicle, snap, muts); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateSnapshot):
			// 状态机回滚到落库前，只有已提交的周期才能推进它
			w.trk.Restore(cp)
			e.logger.Debug("Ignoring duplicate snapshot",
				zap.Int64("vehicle_id", w.vehicle.ID),
				zap.Time("observed_at", snap.ObservedAt))
		case errors.Is(err, repository.ErrSessionAlreadyOpen), errors.Is(err, repository.ErrNoOpenSession):
			e.logger.Error("Session invariant violated, rebuilding vehicle state from database",
				zap.Int64("vehicle_id", w.vehicle.ID), zap.Error(err))
			e.resetWorker(w)
		default:
			e.logger.Error("Failed to persist sync cycle, dropping",
				zap.Int64("vehicle_id", w.vehicle.ID), zap.Error(err))
			e.resetWorker(w)
		}
		return
	}

	w.lastKnown = snap
	e.publishState(w)
}

// bootstrap 注册车辆并从数据库恢复最新快照和打开的会话
func (e *Engine) bootstrap(ctx context.Context, w *vehicleWorker, raw telemetry.Snapshot) error {
	profile := raw.UnitProfile
	if !profile.Valid() {
		profile = models.UnitProfile(e.cfg.DefaultUnitProfile)
	}

	vehicle := &models.Vehicle{
		ExternalID:         raw.ExternalID,
		Name:               raw.DisplayName,
		UnitProfile:        profile,
		BatteryCapacityKwh: raw.BatteryCapacityKwh,
		TankCapacityL:      e.tankCapacityLiters(raw),
	}
	if err := e.store.ResolveVehicle(ctx, vehicle); err != nil {
		return err
	}

	lastKnown, err := e.store.LatestSnapshot(ctx, vehicle.ID)
	if err != nil {
		return err
	}
	openTrip, err := e.store.OpenTrip(ctx, vehicle.ID)
	if err != nil {
		return err
	}
	openCharging, err := e.store.OpenCharging(ctx, vehicle.ID)
	if err != nil {
		return err
	}

	trk := e.trackers.GetOrCreate(vehicle.ID, openTrip != nil, openCharging != nil)
	trk.SeedAnchors(lastKnown)

	w.vehicle = vehicle
	w.lastKnown = lastKnown
	w.trk = trk
	w.ready = true

	e.logger.Info("Vehicle bootstrapped",
		zap.Int64("vehicle_id", vehicle.ID),
		zap.String("external_id", vehicle.ExternalID),
		zap.Bool("trip_open", openTrip != nil),
		zap.Bool("charging_open", openCharging != nil))
	return nil
}

// resetWorker 丢弃内存状态，下一个快照重新从数据库引导
func (e *Engine) resetWorker(w *vehicleWorker) {
	if w.vehicle != nil {
		e.trackers.Remove(w.vehicle.ID)
	}
	w.vehicle = nil
	w.lastKnown = nil
	w.trk = nil
	w.ready = false
}

// normalize 把原始快照换算到车辆的计量体系，未知单位直接拒绝
func (e *Engine) normalize(vehicle *models.Vehicle, raw telemetry.Snapshot) (*models.StatusSnapshot, error) {
	odoUnit := units.Unit(raw.OdometerUnit)
	if raw.OdometerUnit == "" {
		odoUnit = canonicalDistanceUnit(vehicle.UnitProfile)
	}
	odometer, err := units.NormalizeDistance(raw.Odometer, odoUnit, vehicle.UnitProfile)
	if err != nil {
		return nil, err
	}

	var batteryTemp *float64
	if raw.BatteryTemp != nil {
		tempUnit := units.Unit(raw.BatteryTempUnit)
		if raw.BatteryTempUnit == "" {
			tempUnit = canonicalTemperatureUnit(vehicle.UnitProfile)
		}
		v, err := units.NormalizeTemperature(*raw.BatteryTemp, tempUnit, vehicle.UnitProfile)
		if err != nil {
			return nil, err
		}
		batteryTemp = &v
	}

	levelUnit := units.Unit(raw.LevelUnit)
	if raw.LevelUnit == "" {
		levelUnit = units.UnitPercent
	}
	chargeLevel, err := normalizeLevel(raw.ChargeLevel, levelUnit)
	if err != nil {
		return nil, err
	}
	fuelLevel, err := normalizeLevel(raw.FuelLevel, levelUnit)
	if err != nil {
		return nil, err
	}

	return &models.StatusSnapshot{
		VehicleID:     vehicle.ID,
		ObservedAt:    raw.ObservedAt.UTC(),
		Odometer:      odometer,
		Latitude:      raw.Latitude,
		Longitude:     raw.Longitude,
		ChargeLevel:   chargeLevel,
		FuelLevel:     fuelLevel,
		BatteryTemp:   batteryTemp,
		Charging:      raw.Charging,
		PlugConnected: raw.PlugConnected,
	}, nil
}

// normalizeLevel 校验电量/油量读数单位，读数缺失时保持未知
func normalizeLevel(value *float64, from units.Unit) (*float64, error) {
	if value == nil {
		return nil, nil
	}
	v, err := units.NormalizeLevel(*value, from)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// tankCapacityLiters 把上报的油箱容量换算为升，未知单位视为容量未知
func (e *Engine) tankCapacityLiters(raw telemetry.Snapshot) *float64 {
	if raw.TankCapacity == nil {
		return nil
	}
	capUnit := units.Unit(raw.TankCapacityUnit)
	if raw.TankCapacityUnit == "" {
		capUnit = units.UnitLiters
	}
	v, err := units.NormalizeVolume(*raw.TankCapacity, capUnit, models.UnitProfileMetric)
	if err != nil {
		e.logger.Warn("Unsupported tank capacity unit, capacity stays unknown",
			zap.String("external_id", raw.ExternalID),
			zap.Error(err))
		return nil
	}
	return &v
}

func canonicalDistanceUnit(p models.UnitProfile) units.Unit {
	if p == models.UnitProfileImperial {
		return units.UnitMiles
	}
	return units.UnitKilometers
}

func canonicalTemperatureUnit(p models.UnitProfile) units.Unit {
	if p == models.UnitProfileImperial {
		return units.UnitFahrenheit
	}
	return units.UnitCelsius
}

// applyWithRetry 落库并对瞬时错误做有界退避重试，约束类错误立即返回
func (e *Engine) applyWithRetry(ctx context.Context, vehicle *models.Vehicle, snap *models.StatusSnapshot, muts []tracker.Mutation) error {
	backoff := e.cfg.WriteRetryBackoff
	var err error
	for attempt := 1; attempt <= e.cfg.WriteRetryMax; attempt++ {
		err = e.store.ApplyCycle(ctx, vehicle, snap, muts)
		if err == nil ||
			errors.Is(err, repository.ErrDuplicateSnapshot) ||
			errors.Is(err, repository.ErrSessionAlreadyOpen) ||
			errors.Is(err, repository.ErrNoOpenSession) {
			return err
		}
		if attempt == e.cfg.WriteRetryMax {
			break
		}
		e.logger.Warn("Retrying sync cycle write",
			zap.Int64("vehicle_id", vehicle.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

// publishState 周期提交后刷新实时状态并广播
func (e *Engine) publishState(w *vehicleWorker) {
	state := &VehicleState{
		VehicleID:     w.vehicle.ID,
		ExternalID:    w.vehicle.ExternalID,
		Name:          w.vehicle.Name,
		ObservedAt:    w.lastKnown.ObservedAt,
		Odometer:      w.lastKnown.Odometer,
		ChargeLevel:   w.lastKnown.ChargeLevel,
		FuelLevel:     w.lastKnown.FuelLevel,
		BatteryTemp:   w.lastKnown.BatteryTemp,
		Charging:      w.lastKnown.Charging,
		PlugConnected: w.lastKnown.PlugConnected,
		Latitude:      w.lastKnown.Latitude,
		Longitude:     w.lastKnown.Longitude,
		TripOpen:      w.trk.TripOpen(),
		ChargingOpen:  w.trk.ChargingOpen(),
	}

	e.mu.Lock()
	e.states[state.VehicleID] = state
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastStateUpdate(state)
	}
}

// State 获取单车实时状态
func (e *Engine) State(vehicleID int64) (*VehicleState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[vehicleID]
	return s, ok
}

// States 获取所有车辆的实时状态
func (e *Engine) States() []*VehicleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*VehicleState, 0, len(e.states))
	for _, s := range e.states {
		out = append(out, s)
	}
	return out
}
