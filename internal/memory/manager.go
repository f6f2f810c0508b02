package memory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/geom"
)

// removal is a batch of records, and of buffers retired by pool growth, that
// waits in the deferred pipeline before being reclaimed.
type removal struct {
	records []*Record
	buffers []*Buffer
}

// Manager owns the pools and the deferred-removal pipeline.
//
// SubmitForRemoval may be called from any goroutine. Everything else must be
// called from the render goroutine.
type Manager struct {
	cfg      ManagerConfig
	recycler *Recycler

	pools      map[PoolID]*Pool
	order      []PoolID // ascending, the order pools are scanned in
	nextPoolID PoolID

	// Submissions land in the inbox and are moved into the current stage by
	// the next AdvanceFrame.
	inboxMu   sync.Mutex
	inbox     *queue.Queue
	submitted atomic.Int64 // written by producers, so kept out of stats

	// stages is a ring of FIFOs. AdvanceFrame moves stage forward and
	// reclaims whatever the new stage holds, which was queued exactly
	// len(stages) frames earlier.
	stages []*queue.Queue
	stage  int

	compactor *Compactor
	stats     ManagerStats
}

// ManagerStats counts manager events since creation.
type ManagerStats struct {
	Submitted         int
	Reclaimed         int
	RetiredBuffers    int
	PoolsCreated      int
	PoolsDestroyed    int
	ConsistencyFaults int
	CompactionEvents  int
	ShrunkPools       int
	LastCompactionUs  float64
}

// NewManager returns a manager allocating pool buffers from recycler.
func NewManager(cfg ManagerConfig, recycler *Recycler) *Manager {
	if cfg.RemovalStages < 1 {
		cfg.RemovalStages = 1
	}
	m := &Manager{
		cfg:       cfg,
		recycler:  recycler,
		pools:     make(map[PoolID]*Pool),
		inbox:     queue.New(),
		stages:    make([]*queue.Queue, cfg.RemovalStages),
		compactor: newCompactor(cfg),
	}
	for i := range m.stages {
		m.stages[i] = queue.New()
	}
	return m
}

// Recycler returns the recycler pools draw their buffers from.
func (m *Manager) Recycler() *Recycler { return m.recycler }

// CreatePool registers a new, empty pool with room for at least
// vertexCapacity vertices.
func (m *Manager) CreatePool(vertexCapacity int) *Pool {
	id := m.nextPoolID
	m.nextPoolID++
	p := newPool(id, m.recycler, vertexCapacity, m.retire)
	m.pools[id] = p
	m.order = append(m.order, id)
	m.stats.PoolsCreated++
	memoryLogger.Printf("created pool %d with %s", id, p.buffer)
	return p
}

// Pool returns the pool with the given id, or nil.
func (m *Manager) Pool(id PoolID) *Pool { return m.pools[id] }

// Pools returns the live pools in id order.
func (m *Manager) Pools() []*Pool {
	out := make([]*Pool, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.pools[id])
	}
	return out
}

// ActivePoolCount returns the number of live pools.
func (m *Manager) ActivePoolCount() int { return len(m.pools) }

// Allocate places an allocation in the first pool with room for it, growing
// the newest pool up to MaxPoolVertices, or creating a new pool.
func (m *Manager) Allocate(vertexCount, indexCount int, sphere geom.Sphere, lod int) *Record {
	var target *Pool
	for _, id := range m.order {
		if p := m.pools[id]; p.Fits(vertexCount, indexCount) {
			target = p
			break
		}
	}
	if target == nil && len(m.order) > 0 {
		last := m.pools[m.order[len(m.order)-1]]
		if last.VertexExtent()+vertexCount <= m.cfg.MaxPoolVertices {
			target = last
		}
	}
	if target == nil {
		target = m.CreatePool(max(m.cfg.InitialPoolVertices, vertexCount))
	}

	rec := target.Allocate(vertexCount, indexCount)
	rec.sphere = sphere
	rec.lod = lod
	return rec
}

// SubmitForRemoval hides every record immediately and queues them for
// reclamation after RemovalStages frames. In immediate mode they are
// reclaimed before returning, which is only safe on the render goroutine.
func (m *Manager) SubmitForRemoval(records []*Record) {
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		if rec != nil {
			rec.hidden.Store(true)
		}
	}

	batch := &removal{records: append([]*Record(nil), records...)}
	m.submitted.Add(int64(len(records)))
	m.inboxMu.Lock()
	if !m.cfg.ImmediateRemoval {
		m.inbox.Add(batch)
		m.inboxMu.Unlock()
		return
	}
	m.inboxMu.Unlock()
	m.reclaim(batch)
}

// retire defers the release of a buffer replaced by pool growth, the same way
// records are deferred.
func (m *Manager) retire(b *Buffer) {
	m.stats.RetiredBuffers++
	batch := &removal{buffers: []*Buffer{b}}
	if m.cfg.ImmediateRemoval {
		m.reclaim(batch)
		return
	}
	m.inboxMu.Lock()
	m.inbox.Add(batch)
	m.inboxMu.Unlock()
}

// AdvanceFrame moves the pipeline forward one frame and reclaims the batches
// submitted RemovalStages frames ago. Call it once per frame.
func (m *Manager) AdvanceFrame() {
	current := m.stages[m.stage]
	m.inboxMu.Lock()
	for m.inbox.Length() > 0 {
		current.Add(m.inbox.Remove())
	}
	m.inboxMu.Unlock()

	m.stage = (m.stage + 1) % len(m.stages)
	due := m.stages[m.stage]
	for due.Length() > 0 {
		m.reclaim(due.Remove().(*removal))
	}
}

// PendingRemovals returns the number of batches not yet reclaimed.
func (m *Manager) PendingRemovals() int {
	m.inboxMu.Lock()
	n := m.inbox.Length()
	m.inboxMu.Unlock()
	for _, q := range m.stages {
		n += q.Length()
	}
	return n
}

// reclaim frees a batch's records, destroys pools left empty and releases
// their buffers, along with any retired buffers, to the recycler.
func (m *Manager) reclaim(batch *removal) {
	for _, rec := range batch.records {
		if rec == nil {
			continue
		}
		p, ok := m.pools[rec.pool]
		if !ok {
			log.Printf("memory: reclaiming %s: unknown or destroyed pool %d", rec, rec.pool)
			m.stats.ConsistencyFaults++
			continue
		}
		if !p.Free(rec) {
			m.stats.ConsistencyFaults++
			continue
		}
		m.stats.Reclaimed++
		if p.Empty() {
			m.destroyPool(p)
		}
	}
	for _, b := range batch.buffers {
		m.releaseBuffer(b)
	}
}

func (m *Manager) destroyPool(p *Pool) {
	delete(m.pools, p.id)
	for i, id := range m.order {
		if id == p.id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.stats.PoolsDestroyed++
	memoryLogger.Printf("destroying empty pool %d", p.id)
	m.releaseBuffer(p.release())
}

func (m *Manager) releaseBuffer(b *Buffer) {
	if b == nil {
		return
	}
	if !m.recycler.Release(b) {
		m.recycler.Backend().Destroy(b.handle)
	}
}

// Cull evaluates every live record for the pass and returns how many are
// visible.
func (m *Manager) Cull(f *cull.Frustum, pass cull.Pass) int {
	visible := 0
	for _, id := range m.order {
		m.pools[id].Each(func(rec *Record) {
			if f.Evaluate(rec, pass) {
				visible++
			}
		})
	}
	return visible
}

// EachVisible calls fn for every record whose gate for pass is open, grouped
// by pool.
func (m *Manager) EachVisible(pass cull.Pass, fn func(*Pool, *Record)) {
	for _, id := range m.order {
		p := m.pools[id]
		p.Each(func(rec *Record) {
			if rec.Visible(pass) {
				fn(p, rec)
			}
		})
	}
}

// ComputeFragmentation returns 1 - used/allocated vertex capacity across all
// pools, or 0 when nothing is allocated.
func (m *Manager) ComputeFragmentation() float64 {
	used, capacity := 0, 0
	for _, p := range m.pools {
		used += p.UsedVertices()
		capacity += p.VertexCapacity()
	}
	if capacity == 0 {
		return 0
	}
	return 1 - float64(used)/float64(capacity)
}

// ValidateIntegrity checks that every record sits inside its pool's extents,
// does not overlap another record, and is filed under the right slot.
func (m *Manager) ValidateIntegrity() error {
	var errors []string

	for _, id := range m.order {
		p := m.pools[id]
		if p.buffer == nil {
			errors = append(errors, fmt.Sprintf("Pool %d has no backing buffer", id))
			continue
		}
		if p.vertices.extent > p.buffer.vertexCapacity || p.indices.extent > p.buffer.indexCapacity {
			errors = append(errors, fmt.Sprintf("Pool %d extents %d/%d exceed %s",
				id, p.vertices.extent, p.indices.extent, p.buffer))
		}

		var live []*Record
		for slot, rec := range p.records {
			if rec == nil {
				continue
			}
			if rec.pool != id || rec.slot != slot {
				errors = append(errors, fmt.Sprintf("Pool %d slot %d holds %s", id, slot, rec))
			}
			if rec.vertexEnd > p.vertices.extent || rec.indexEnd > p.indices.extent {
				errors = append(errors, fmt.Sprintf("Pool %d: %s outside extents %d/%d",
					id, rec, p.vertices.extent, p.indices.extent))
			}
			if rec.VertexCount() > 0 {
				live = append(live, rec)
			}
		}

		sort.Slice(live, func(i, j int) bool { return live[i].vertexStart < live[j].vertexStart })
		for i := 1; i < len(live); i++ {
			if live[i].vertexStart < live[i-1].vertexEnd {
				errors = append(errors, fmt.Sprintf("Pool %d: %s overlaps %s", id, live[i], live[i-1]))
			}
		}
	}

	if len(errors) > 0 {
		log.Printf("pool integrity check failed with %d errors:", len(errors))
		for _, err := range errors {
			log.Printf("  - %s", err)
		}
		return fmt.Errorf("pool integrity check failed with %d errors", len(errors))
	}
	return nil
}

// Close reclaims every pending batch and releases every pool. The manager
// must not be used afterwards.
func (m *Manager) Close() {
	for range m.stages {
		m.AdvanceFrame()
	}
	for _, p := range m.Pools() {
		m.destroyPool(p)
	}
}
