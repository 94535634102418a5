package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/cartrace/internal/diff"
	"github.com/langchou/cartrace/internal/models"
)

const idleThreshold = 5 * time.Minute

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func snap(at time.Time, odometer float64, charging bool) models.StatusSnapshot {
	return models.StatusSnapshot{
		VehicleID:  1,
		ObservedAt: at,
		Odometer:   odometer,
		Charging:   charging,
	}
}

// apply 先走差分再走状态机，和引擎里的处理链一致
func apply(t *testing.T, tr *Tracker, prev *models.StatusSnapshot, curr models.StatusSnapshot) []Mutation {
	t.Helper()
	muts, err := tr.Apply(diff.Diff(prev, curr), prev, curr)
	require.NoError(t, err)
	return muts
}

func TestFirstObservationNoTransition(t *testing.T) {
	tr := New(1, idleThreshold, false, false)
	muts := apply(t, tr, nil, snap(t0, 100, false))
	assert.Empty(t, muts)
	assert.False(t, tr.TripOpen())
	assert.False(t, tr.ChargingOpen())
}

// 快照序列：t0 静止里程 100，t1 里程 120，t2 = t1+阈值 里程不变。
// 行程起点锚定在 t0，终点锚定在最后一次运动的 t1，距离 20。
func TestTripLifecycle(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	apply(t, tr, nil, s0)

	t1 := t0.Add(30 * time.Second)
	s1 := snap(t1, 120, false)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)
	require.Equal(t, MutOpenTrip, muts[0].Kind)
	assert.Equal(t, t0, muts[0].Trip.StartTime)
	assert.Equal(t, 100.0, muts[0].Trip.StartOdometer)
	assert.True(t, tr.TripOpen())

	// 运动中不产生新记录
	t15 := t1.Add(time.Minute)
	s15 := snap(t15, 130, false)
	muts = apply(t, tr, &s1, s15)
	assert.Empty(t, muts)
	assert.True(t, tr.TripOpen())

	// 未到空闲阈值，行程保持打开
	tShort := t15.Add(idleThreshold - time.Minute)
	sShort := snap(tShort, 130, false)
	muts = apply(t, tr, &s15, sShort)
	assert.Empty(t, muts)
	assert.True(t, tr.TripOpen())

	// 到达阈值后关闭，终点使用最后一次运动快照
	t2 := t15.Add(idleThreshold)
	s2 := snap(t2, 130, false)
	muts = apply(t, tr, &sShort, s2)
	require.Len(t, muts, 1)
	require.Equal(t, MutCloseTrip, muts[0].Kind)
	assert.Equal(t, t15, *muts[0].Trip.EndTime)
	assert.Equal(t, 130.0, *muts[0].Trip.EndOdometer)
	assert.False(t, tr.TripOpen())
}

// 电量 40% -> 55%（充电中）-> 充电结束。
// 起点锚定在充电开始前的快照，终点使用最后一条充电中的快照。
func TestChargingLifecycle(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	s0.ChargeLevel = f64(40)
	apply(t, tr, nil, s0)

	t1 := t0.Add(10 * time.Minute)
	s1 := snap(t1, 100, true)
	s1.ChargeLevel = f64(55)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)
	require.Equal(t, MutOpenCharging, muts[0].Kind)
	assert.Equal(t, t0, muts[0].Charging.StartTime)
	require.NotNil(t, muts[0].Charging.StartLevel)
	assert.Equal(t, 40.0, *muts[0].Charging.StartLevel)
	assert.True(t, tr.ChargingOpen())

	t2 := t1.Add(10 * time.Minute)
	s2 := snap(t2, 100, false)
	s2.ChargeLevel = f64(55)
	muts = apply(t, tr, &s1, s2)
	require.Len(t, muts, 1)
	require.Equal(t, MutCloseCharging, muts[0].Kind)
	assert.Equal(t, t1, *muts[0].Charging.EndTime)
	assert.Equal(t, 55.0, *muts[0].Charging.EndLevel)
	assert.False(t, tr.ChargingOpen())
}

// 油量 30% -> 70%，未充电：产生一条加油记录，不开启任何会话
func TestRefuelingEvent(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	s0.FuelLevel = f64(30)
	apply(t, tr, nil, s0)

	t1 := t0.Add(5 * time.Minute)
	s1 := snap(t1, 100, false)
	s1.FuelLevel = f64(70)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)
	require.Equal(t, MutRefuel, muts[0].Kind)
	assert.Equal(t, t1, muts[0].Refuel.OccurredAt)
	assert.Equal(t, 30.0, muts[0].Refuel.StartLevel)
	assert.Equal(t, 70.0, muts[0].Refuel.EndLevel)
	assert.Equal(t, 40.0, muts[0].Refuel.LevelDelta)
	assert.False(t, tr.TripOpen())
	assert.False(t, tr.ChargingOpen())
}

// 同一快照同时触发行程关闭和充电开启，两个状态机互不干扰
func TestSimultaneousTripEndAndChargeStart(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	s0.ChargeLevel = f64(50)
	apply(t, tr, nil, s0)

	t1 := t0.Add(time.Minute)
	s1 := snap(t1, 120, false)
	s1.ChargeLevel = f64(48)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)
	require.Equal(t, MutOpenTrip, muts[0].Kind)

	// 到家插枪充电，行程超时关闭 + 充电开启在同一周期发生
	t2 := t1.Add(idleThreshold)
	s2 := snap(t2, 120, true)
	s2.ChargeLevel = f64(48)
	muts = apply(t, tr, &s1, s2)
	require.Len(t, muts, 2)
	assert.Equal(t, MutCloseTrip, muts[0].Kind)
	assert.Equal(t, MutOpenCharging, muts[1].Kind)
	assert.False(t, tr.TripOpen())
	assert.True(t, tr.ChargingOpen())
}

// 打开状态下重复的运动快照不会再次开启会话
func TestNoDoubleOpen(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	apply(t, tr, nil, s0)

	s1 := snap(t0.Add(time.Minute), 110, false)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)

	s2 := snap(t0.Add(2*time.Minute), 120, false)
	muts = apply(t, tr, &s1, s2)
	assert.Empty(t, muts)
	assert.True(t, tr.TripOpen())
}

// 进程重启恢复：打开的行程用最近一条快照做锚点，之后正常关闭
func TestRestoreOpenSession(t *testing.T) {
	tr := New(1, idleThreshold, true, false)
	last := snap(t0, 150, false)
	tr.SeedAnchors(&last)

	t1 := t0.Add(idleThreshold)
	s1 := snap(t1, 150, false)
	muts := apply(t, tr, &last, s1)
	require.Len(t, muts, 1)
	assert.Equal(t, MutCloseTrip, muts[0].Kind)
	assert.Equal(t, 150.0, *muts[0].Trip.EndOdometer)
}

func TestManagerIsolation(t *testing.T) {
	m := NewManager(idleThreshold)
	a := m.GetOrCreate(1, false, false)
	b := m.GetOrCreate(2, false, false)
	assert.NotSame(t, a, b)
	assert.Same(t, a, m.GetOrCreate(1, false, false))

	got, ok := m.Get(2)
	assert.True(t, ok)
	assert.Same(t, b, got)
}

// 两侧快照都没有电量读数时开启充电，起始电量保持未知而不是零
func TestChargingOpenWithoutLevelReadings(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	t1 := t0.Add(10 * time.Minute)
	s1 := snap(t1, 100, true)

	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 1)
	require.Equal(t, MutOpenCharging, muts[0].Kind)
	assert.Nil(t, muts[0].Charging.StartLevel)

	t2 := t1.Add(10 * time.Minute)
	s2 := snap(t2, 100, false)
	muts = apply(t, tr, &s1, s2)
	require.Len(t, muts, 1)
	require.Equal(t, MutCloseCharging, muts[0].Kind)
	assert.Nil(t, muts[0].Charging.EndLevel)
}

// 检查点回滚：落库失败后状态机回到推进前的状态，锚点一并恢复
func TestCheckpointRestore(t *testing.T) {
	tr := New(1, idleThreshold, false, false)

	s0 := snap(t0, 100, false)
	apply(t, tr, nil, s0)

	cp := tr.Checkpoint()
	t1 := t0.Add(time.Minute)
	s1 := snap(t1, 120, true)
	muts := apply(t, tr, &s0, s1)
	require.Len(t, muts, 2)
	require.True(t, tr.TripOpen())
	require.True(t, tr.ChargingOpen())

	tr.Restore(cp)
	assert.False(t, tr.TripOpen())
	assert.False(t, tr.ChargingOpen())

	// 回滚后同一转换可以重新触发
	muts = apply(t, tr, &s0, s1)
	require.Len(t, muts, 2)
	assert.Equal(t, MutOpenTrip, muts[0].Kind)
	assert.Equal(t, MutOpenCharging, muts[1].Kind)
}
