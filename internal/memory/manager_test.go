package memory

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/geom"
)

func newTestManager(cfg ManagerConfig, rcfg RecyclerConfig) (*Manager, *HeapBackend) {
	r, backend, _ := newTestRecycler(rcfg)
	return NewManager(cfg, r), backend
}

func sphereAt(x, z float32) geom.Sphere {
	return geom.MakeSphere(mgl32.Vec3{x, 0, z}, 1)
}

func TestRemovalWaitsForAllStages(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.InitialPoolVertices = 64
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())

	keep := m.Allocate(8, 12, sphereAt(0, 0), 1)
	victim := m.Allocate(8, 12, sphereAt(0, 0), 1)
	require.Equal(t, 1, m.ActivePoolCount())
	p := m.Pool(keep.PoolID())

	m.SubmitForRemoval([]*Record{victim})
	assert.True(t, victim.Hidden(), "submitted records are hidden at once")
	assert.False(t, keep.Hidden())

	for frame := 1; frame < cfg.RemovalStages; frame++ {
		m.AdvanceFrame()
		assert.Equal(t, 2, p.Len(), "reclaimed after only %d frames", frame)
		assert.Equal(t, 16, p.VertexExtent())
	}

	m.AdvanceFrame()
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 1, m.Stats().Manager.Reclaimed)

	reused := m.Allocate(8, 12, sphereAt(0, 0), 1)
	start, _ := reused.VertexRange()
	assert.Equal(t, 8, start, "victim's range is available again")
}

func TestImmediateRemoval(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.ImmediateRemoval = true
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())

	rec := m.Allocate(8, 12, sphereAt(0, 0), 1)
	m.SubmitForRemoval([]*Record{rec})

	assert.Zero(t, m.ActivePoolCount())
	assert.Zero(t, m.PendingRemovals())
	stats := m.Stats().Manager
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.Reclaimed)
}

func TestEmptyPoolIsDestroyed(t *testing.T) {
	m, backend := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())

	rec := m.Allocate(8, 12, sphereAt(0, 0), 1)
	buf := m.Pool(rec.PoolID()).Buffer()
	m.SubmitForRemoval([]*Record{rec})
	for i := 0; i < 4; i++ {
		m.AdvanceFrame()
	}

	assert.Zero(t, m.ActivePoolCount())
	assert.Nil(t, m.Pool(rec.PoolID()))
	assert.Equal(t, 1, m.Stats().Manager.PoolsDestroyed)
	assert.Equal(t, 1, m.Recycler().Stats().Pending, "pool buffer goes back to the recycler")
	assert.NotNil(t, backend.Vertices(buf.Handle()), "recycled, not destroyed")

	m.Recycler().RunMaintenance()
	assert.Same(t, buf, m.Recycler().Acquire(buf.VertexCapacity()))
}

func TestPendingRemovalsDrainInOrder(t *testing.T) {
	m, _ := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())

	recs := make([]*Record, 3)
	for i := range recs {
		recs[i] = m.Allocate(4, 6, sphereAt(0, 0), 1)
	}

	m.SubmitForRemoval(recs[:1])
	assert.Equal(t, 1, m.PendingRemovals())
	m.AdvanceFrame()
	m.SubmitForRemoval(recs[1:])
	assert.Equal(t, 2, m.PendingRemovals())

	m.AdvanceFrame()
	m.AdvanceFrame()
	assert.Equal(t, 2, m.PendingRemovals())
	m.AdvanceFrame()
	assert.Equal(t, 1, m.PendingRemovals(), "first batch reclaimed after four frames")
	assert.Equal(t, 1, m.Stats().Manager.Reclaimed)
	m.AdvanceFrame()
	assert.Zero(t, m.PendingRemovals())
	assert.Equal(t, 3, m.Stats().Manager.Reclaimed)
}

func TestComputeFragmentation(t *testing.T) {
	rcfg := DefaultRecyclerConfig()
	rcfg.HeadroomNum, rcfg.HeadroomDen = 1, 1
	m, _ := newTestManager(DefaultManagerConfig(), rcfg)
	assert.Zero(t, m.ComputeFragmentation())

	a, b := m.CreatePool(100), m.CreatePool(200)
	require.Equal(t, 100, a.VertexCapacity())
	require.Equal(t, 200, b.VertexCapacity())
	a.Allocate(50, 0)
	b.Allocate(50, 0)

	assert.InDelta(t, 2.0/3.0, m.ComputeFragmentation(), 1e-9)
}

func TestReclaimSkipsUnknownPools(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.ImmediateRemoval = true
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())

	keep := m.Allocate(4, 6, sphereAt(0, 0), 1)
	victim := m.Allocate(4, 6, sphereAt(0, 0), 1)
	bogus := &Record{pool: 99}

	m.SubmitForRemoval([]*Record{bogus, victim})

	stats := m.Stats().Manager
	assert.Equal(t, 1, stats.ConsistencyFaults)
	assert.Equal(t, 1, stats.Reclaimed, "the rest of the batch is still reclaimed")
	assert.Equal(t, 1, m.Pool(keep.PoolID()).Len())
}

func TestGrowthRetiresBufferThroughPipeline(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.InitialPoolVertices = 8
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())

	first := m.Allocate(8, 12, sphereAt(0, 0), 1)
	p := m.Pool(first.PoolID())
	old := p.Buffer()
	require.Equal(t, 8, old.VertexCapacity())

	second := m.Allocate(8, 12, sphereAt(0, 0), 1)
	assert.Equal(t, first.PoolID(), second.PoolID(), "the newest pool grows before a new pool is created")
	assert.NotSame(t, old, p.Buffer())
	assert.Equal(t, 1, m.Stats().Manager.RetiredBuffers)

	for i := 0; i < 3; i++ {
		m.AdvanceFrame()
		assert.Zero(t, m.Recycler().Stats().Pending, "retired buffer released early")
	}
	m.AdvanceFrame()
	assert.Equal(t, 1, m.Recycler().Stats().Pending)
}

func TestAllocateOpensNewPoolAtLimit(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.InitialPoolVertices = 16
	cfg.MaxPoolVertices = 32
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())

	a := m.Allocate(16, 24, sphereAt(0, 0), 1)
	b := m.Allocate(16, 24, sphereAt(0, 0), 1)
	c := m.Allocate(16, 24, sphereAt(0, 0), 1)

	assert.Equal(t, a.PoolID(), b.PoolID())
	assert.NotEqual(t, a.PoolID(), c.PoolID())
	assert.Equal(t, 2, m.ActivePoolCount())
	assert.Equal(t, 3, m.Stats().Records)
}

func TestCullAndEachVisible(t *testing.T) {
	m, _ := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())
	f := cull.NewFrustum(cull.DefaultConfig())
	f.Update(mgl32.Ortho(-64, 64, -64, 64, -64, 64), mgl32.Vec3{})

	near := m.Allocate(4, 6, sphereAt(0, 0), 1)
	far := m.Allocate(4, 6, sphereAt(200, 0), 1)
	other := m.Allocate(4, 6, sphereAt(10, 10), 1)

	pass := cull.Pass{View: cull.ViewMain}
	assert.Equal(t, 2, m.Cull(f, pass))

	var seen []*Record
	collect := func(_ *Pool, rec *Record) { seen = append(seen, rec) }
	m.EachVisible(pass, collect)
	assert.Empty(t, seen, "fresh decisions are not readable until the parity flips")

	pass = pass.Next()
	m.EachVisible(pass, collect)
	assert.ElementsMatch(t, []*Record{near, other}, seen)
	assert.False(t, far.Visible(pass))

	m.SubmitForRemoval([]*Record{near})
	seen = nil
	m.EachVisible(pass, collect)
	assert.Equal(t, []*Record{other}, seen, "hidden records drop out before they are reclaimed")

	assert.Equal(t, 1, m.Cull(f, pass))
}

func TestValidateIntegrity(t *testing.T) {
	m, _ := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())

	a := m.Allocate(8, 12, sphereAt(0, 0), 1)
	b := m.Allocate(8, 12, sphereAt(0, 0), 1)
	m.Allocate(0, 0, sphereAt(0, 0), 1)
	require.NoError(t, m.ValidateIntegrity())

	b.vertexStart = a.vertexStart + 4
	assert.Error(t, m.ValidateIntegrity())
}

func TestConcurrentSubmitForRemoval(t *testing.T) {
	m, _ := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())

	const producers, perProducer = 8, 50
	batches := make([][]*Record, producers)
	for i := range batches {
		for j := 0; j < perProducer; j++ {
			batches[i] = append(batches[i], m.Allocate(4, 6, sphereAt(0, 0), 1))
		}
	}

	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []*Record) {
			defer wg.Done()
			for _, rec := range batch {
				m.SubmitForRemoval([]*Record{rec})
			}
		}(batch)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			m.AdvanceFrame()
			stats := m.Stats()
			assert.LessOrEqual(t, stats.Manager.Reclaimed, stats.Manager.Submitted)
		}
	}

	for i := 0; i < 4; i++ {
		m.AdvanceFrame()
	}
	assert.Zero(t, m.PendingRemovals())
	stats := m.Stats()
	assert.Equal(t, producers*perProducer, stats.Manager.Submitted)
	assert.Equal(t, producers*perProducer, stats.Manager.Reclaimed)
	assert.Zero(t, stats.Pools)
}

func TestCompactionShrinksSparsePools(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.InitialPoolVertices = 16
	cfg.ImmediateRemoval = true
	rcfg := DefaultRecyclerConfig()
	rcfg.HeadroomNum, rcfg.HeadroomDen = 1, 1
	m, backend := newTestManager(cfg, rcfg)

	keep := m.Allocate(4, 6, sphereAt(0, 0), 1)
	vertices := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	indices := []uint32{0, 1, 2, 2, 3, 0}
	p := m.Pool(keep.PoolID())
	require.NoError(t, p.Write(keep, vertices, indices))

	burst := m.Allocate(400, 600, sphereAt(0, 0), 1)
	require.Equal(t, keep.PoolID(), burst.PoolID())
	require.Equal(t, 404, p.VertexCapacity())
	m.SubmitForRemoval([]*Record{burst})
	require.Equal(t, 4, p.VertexExtent())

	m.TryCompaction()
	assert.Equal(t, 16, p.VertexCapacity())
	assert.Equal(t, vertices, backend.Vertices(p.Buffer().Handle())[:len(vertices)])
	assert.Equal(t, indices, backend.Indices(p.Buffer().Handle())[:len(indices)])

	stats := m.Stats()
	assert.Equal(t, 1, stats.Manager.ShrunkPools)
	assert.Equal(t, 1, stats.Shrinks)
	assert.Equal(t, 2, stats.Manager.RetiredBuffers)
	require.NoError(t, m.ValidateIntegrity())

	m.TryCompaction()
	assert.Equal(t, 1, m.Stats().Manager.ShrunkPools, "pools at minimum capacity are left alone")
}

func TestCompactionDisabled(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.CompactionEnabled = false
	m, _ := newTestManager(cfg, DefaultRecyclerConfig())
	m.CreatePool(1 << 16)

	m.TryCompaction()
	assert.Zero(t, m.Stats().Manager.CompactionEvents)
}

func TestCloseReleasesEverything(t *testing.T) {
	m, backend := newTestManager(DefaultManagerConfig(), DefaultRecyclerConfig())

	m.Allocate(4, 6, sphereAt(0, 0), 1)
	victim := m.Allocate(4, 6, sphereAt(0, 0), 1)
	m.SubmitForRemoval([]*Record{victim})

	m.Close()
	assert.Zero(t, m.ActivePoolCount())
	assert.Zero(t, m.PendingRemovals())

	m.Recycler().Shutdown()
	assert.Zero(t, backend.Live())
}
