package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/langchou/cartrace/internal/diff"
	"github.com/langchou/cartrace/internal/models"
)

// 会话状态常量
const (
	StateNoSession = "no_session"
	StateOpen      = "open"
)

// 事件常量
const (
	EventOpen  = "open"
	EventClose = "close"
)

// MutationKind 记录变更类型
type MutationKind string

const (
	MutOpenTrip      MutationKind = "open_trip"
	MutCloseTrip     MutationKind = "close_trip"
	MutOpenCharging  MutationKind = "open_charging"
	MutCloseCharging MutationKind = "close_charging"
	MutRefuel        MutationKind = "refuel"
)

// Mutation 状态机产出的一条记录变更，由 Writer 在事务内落库。
// 开启类变更只携带 start 字段，关闭类只携带 end 字段，派生值由 Writer 结算。
type Mutation struct {
	Kind     MutationKind
	Trip     *models.TripSession
	Charging *models.ChargingSession
	Refuel   *models.RefuelingEvent
}

// Tracker 单车会话状态机（行程 + 充电），由引擎保证同一车辆串行调用
type Tracker struct {
	vehicleID     int64
	idleThreshold time.Duration

	trip     *fsm.FSM
	charging *fsm.FSM

	// 最近一次观测到里程变化/充电中的快照，关闭会话时作为 end 锚点
	lastMotion *models.StatusSnapshot
	lastCharge *models.StatusSnapshot
}

// New 创建状态机。tripOpen/chargingOpen 用于进程重启后从数据库恢复打开的会话。
func New(vehicleID int64, idleThreshold time.Duration, tripOpen, chargingOpen bool) *Tracker {
	return &Tracker{
		vehicleID:     vehicleID,
		idleThreshold: idleThreshold,
		trip:          newSessionFSM(tripOpen),
		charging:      newSessionFSM(chargingOpen),
	}
}

func newSessionFSM(open bool) *fsm.FSM {
	initial := StateNoSession
	if open {
		initial = StateOpen
	}
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: EventOpen, Src: []string{StateNoSession}, Dst: StateOpen},
			{Name: EventClose, Src: []string{StateOpen}, Dst: StateNoSession},
		},
		fsm.Callbacks{},
	)
}

// TripOpen 行程会话是否打开
func (t *Tracker) TripOpen() bool {
	return t.trip.Current() == StateOpen
}

// ChargingOpen 充电会话是否打开
func (t *Tracker) ChargingOpen() bool {
	return t.charging.Current() == StateOpen
}

// SeedAnchors 恢复打开的会话后设置 end 锚点基线
func (t *Tracker) SeedAnchors(last *models.StatusSnapshot) {
	if last == nil {
		return
	}
	if t.TripOpen() && t.lastMotion == nil {
		t.lastMotion = last
	}
	if t.ChargingOpen() && t.lastCharge == nil {
		t.lastCharge = last
	}
}

// Apply 根据变化集推进状态机，返回需要落库的记录变更。
// 首次观测不做任何会话判定，会话需要至少一次增量作为起点。
// 行程和充电状态机相互独立，同一快照可以同时触发两者的转换。
func (t *Tracker) Apply(changes diff.ChangeSet, prev *models.StatusSnapshot, curr models.StatusSnapshot) ([]Mutation, error) {
	if changes.FirstObservation || prev == nil {
		return nil, nil
	}

	var muts []Mutation

	tripMuts, err := t.applyTrip(changes, prev, curr)
	if err != nil {
		return nil, err
	}
	muts = append(muts, tripMuts...)

	chargeMuts, err := t.applyCharging(changes, prev, curr)
	if err != nil {
		return nil, err
	}
	muts = append(muts, chargeMuts...)

	if changes.FuelLevelIncreased {
		muts = append(muts, Mutation{
			Kind: MutRefuel,
			Refuel: &models.RefuelingEvent{
				VehicleID:  t.vehicleID,
				OccurredAt: curr.ObservedAt,
				StartLevel: *prev.FuelLevel,
				EndLevel:   *curr.FuelLevel,
				LevelDelta: changes.FuelLevelDelta,
				Odometer:   &curr.Odometer,
				Latitude:   curr.Latitude,
				Longitude:  curr.Longitude,
			},
		})
	}

	return muts, nil
}

// applyTrip 行程转换：
// - 静止 -> 运动：开启行程，起点锚定在上一条（静止）快照上
// - 持续运动：刷新运动锚点
// - 超过空闲阈值无里程变化：关闭行程，终点使用最后一次运动快照
func (t *Tracker) applyTrip(changes diff.ChangeSet, prev *models.StatusSnapshot, curr models.StatusSnapshot) ([]Mutation, error) {
	if changes.OdometerIncreased {
		if t.trip.Current() == StateNoSession {
			if err := t.trip.Event(context.Background(), EventOpen); err != nil {
				return nil, fmt.Errorf("open trip session: %w", err)
			}
			t.lastMotion = &curr
			return []Mutation{{
				Kind: MutOpenTrip,
				Trip: &models.TripSession{
					VehicleID:        t.vehicleID,
					StartTime:        prev.ObservedAt,
					StartOdometer:    prev.Odometer,
					StartLatitude:    prev.Latitude,
					StartLongitude:   prev.Longitude,
					StartChargeLevel: prev.ChargeLevel,
				},
			}}, nil
		}
		t.lastMotion = &curr
		return nil, nil
	}

	if t.trip.Current() == StateOpen {
		anchor := t.lastMotion
		if anchor == nil {
			anchor = prev
		}
		if curr.ObservedAt.Sub(anchor.ObservedAt) >= t.idleThreshold {
			if err := t.trip.Event(context.Background(), EventClose); err != nil {
				return nil, fmt.Errorf("close trip session: %w", err)
			}
			endTime := anchor.ObservedAt
			endOdometer := anchor.Odometer
			t.lastMotion = nil
			return []Mutation{{
				Kind: MutCloseTrip,
				Trip: &models.TripSession{
					VehicleID:      t.vehicleID,
					EndTime:        &endTime,
					EndOdometer:    &endOdometer,
					EndLatitude:    anchor.Latitude,
					EndLongitude:   anchor.Longitude,
					EndChargeLevel: anchor.ChargeLevel,
				},
			}}, nil
		}
	}

	return nil, nil
}

// applyCharging 充电转换，镜像行程逻辑，充电标志是显式信号，结束不等空闲窗口
func (t *Tracker) applyCharging(changes diff.ChangeSet, prev *models.StatusSnapshot, curr models.StatusSnapshot) ([]Mutation, error) {
	if changes.ChargingStarted && t.charging.Current() == StateNoSession {
		if err := t.charging.Event(context.Background(), EventOpen); err != nil {
			return nil, fmt.Errorf("open charging session: %w", err)
		}
		t.lastCharge = &curr
		return []Mutation{{
			Kind: MutOpenCharging,
			Charging: &models.ChargingSession{
				VehicleID:  t.vehicleID,
				StartTime:  prev.ObservedAt,
				StartLevel: chargeLevel(prev, &curr),
				Latitude:   prev.Latitude,
				Longitude:  prev.Longitude,
			},
		}}, nil
	}

	if t.charging.Current() == StateOpen {
		if curr.Charging {
			t.lastCharge = &curr
			return nil, nil
		}
		if changes.ChargingStopped {
			if err := t.charging.Event(context.Background(), EventClose); err != nil {
				return nil, fmt.Errorf("close charging session: %w", err)
			}
			anchor := t.lastCharge
			if anchor == nil {
				anchor = prev
			}
			endTime := anchor.ObservedAt
			endLevel := chargeLevel(anchor, &curr)
			t.lastCharge = nil
			return []Mutation{{
				Kind: MutCloseCharging,
				Charging: &models.ChargingSession{
					VehicleID: t.vehicleID,
					EndTime:   &endTime,
					EndLevel:  endLevel,
				},
			}}, nil
		}
	}

	return nil, nil
}

// chargeLevel 取首个可用的电量值，两个快照都没有读数时返回 nil
func chargeLevel(candidates ...*models.StatusSnapshot) *float64 {
	for _, s := range candidates {
		if s != nil && s.ChargeLevel != nil {
			v := *s.ChargeLevel
			return &v
		}
	}
	return nil
}

// Checkpoint 状态机内存状态的快照，落库失败时用于回滚
type Checkpoint struct {
	tripState     string
	chargingState string
	lastMotion    *models.StatusSnapshot
	lastCharge    *models.StatusSnapshot
}

// Checkpoint 捕获当前状态
func (t *Tracker) Checkpoint() Checkpoint {
	return Checkpoint{
		tripState:     t.trip.Current(),
		chargingState: t.charging.Current(),
		lastMotion:    t.lastMotion,
		lastCharge:    t.lastCharge,
	}
}

// Restore 回滚到检查点，状态机只能和已提交的数据库记录一起推进
func (t *Tracker) Restore(c Checkpoint) {
	t.trip.SetState(c.tripState)
	t.charging.SetState(c.chargingState)
	t.lastMotion = c.lastMotion
	t.lastCharge = c.lastCharge
}

// Manager 按车辆管理状态机
type Manager struct {
	mu            sync.Mutex
	idleThreshold time.Duration
	trackers      map[int64]*Tracker
}

// NewManager 创建管理器
func NewManager(idleThreshold time.Duration) *Manager {
	return &Manager{
		idleThreshold: idleThreshold,
		trackers:      make(map[int64]*Tracker),
	}
}

// GetOrCreate 获取或创建车辆状态机
func (m *Manager) GetOrCreate(vehicleID int64, tripOpen, chargingOpen bool) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[vehicleID]; ok {
		return t
	}
	t := New(vehicleID, m.idleThreshold, tripOpen, chargingOpen)
	m.trackers[vehicleID] = t
	return t
}

// Get 获取车辆状态机
func (m *Manager) Get(vehicleID int64) (*Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[vehicleID]
	return t, ok
}

// Remove 删除车辆状态机，下次访问时从数据库重建
func (m *Manager) Remove(vehicleID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trackers, vehicleID)
}
