package memory

import (
	"sort"
	"time"
)

// Compactor returns memory from oversized pools to the recycler.
//
// Pools only ever grow while in use, so a pool that once held a burst of
// geometry keeps its large buffer after most of it is freed. The compactor
// finds pools whose high-water mark has fallen well below their capacity and
// moves their live prefix into a smaller buffer. Record offsets are unchanged.
type Compactor struct {
	enabled     bool
	threshold   float64
	maxPerFrame int
	minCapacity int
}

func newCompactor(cfg ManagerConfig) *Compactor {
	return &Compactor{
		enabled:     cfg.CompactionEnabled,
		threshold:   cfg.CompactionThreshold,
		maxPerFrame: cfg.CompactionMaxPerFrame,
		minCapacity: cfg.InitialPoolVertices,
	}
}

func extentUtil(p *Pool) float64 {
	if p.VertexCapacity() == 0 {
		return 1
	}
	return float64(p.VertexExtent()) / float64(p.VertexCapacity())
}

// ScanForCompaction identifies pools worth shrinking. Returns pools sorted by
// sparseness (i.e., lowest extent utilization first).
func (c *Compactor) ScanForCompaction(pools []*Pool) []*Pool {
	if !c.enabled {
		return nil
	}

	compactionLogger.Printf("scanning %d pools for candidates (max-util=%.1f%%)", len(pools), c.threshold*100)

	var candidates []*Pool
	for i, p := range pools {
		if p.VertexCapacity() <= c.minCapacity {
			compactionLogger.Printf("pool[%d/%d]#%d - skipping (at minimum capacity)", i+1, len(pools), p.id)
			continue
		}

		util := extentUtil(p)
		if util < c.threshold {
			candidates = append(candidates, p)
			compactionLogger.Printf("pool[%d/%d]#%d - CANDIDATE (%.1f%% util, %d/%d vertices below high-water mark)",
				i+1, len(pools), p.id, util*100, p.VertexExtent(), p.VertexCapacity())
		} else {
			compactionLogger.Printf("pool[%d/%d]#%d - TOO DENSE (%.1f%% util)", i+1, len(pools), p.id, util*100)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return extentUtil(candidates[i]) < extentUtil(candidates[j])
	})
	return candidates
}

// CompactPool shrinks p to twice its high-water mark, but no smaller than the
// initial pool size. Returns whether the pool was shrunk.
func (c *Compactor) CompactPool(p *Pool) bool {
	target := max(2*p.VertexExtent(), c.minCapacity)
	if target >= p.VertexCapacity() {
		return false
	}
	p.shrink(target)
	return true
}

// TryCompaction shrinks at most CompactionMaxPerFrame sparse pools. Should be
// called periodically (e.g., every 60 frames). Replaced buffers go through the
// deferred pipeline like any other free.
func (m *Manager) TryCompaction() {
	candidates := m.compactor.ScanForCompaction(m.Pools())
	if len(candidates) == 0 {
		return
	}

	startTime := time.Now()
	compacted := 0
	for _, p := range candidates {
		if compacted >= m.compactor.maxPerFrame {
			compactionLogger.Printf("reached max compactions (%d) per frame, skipping %d remaining candidates",
				m.compactor.maxPerFrame, len(candidates)-compacted)
			break
		}
		if m.compactor.CompactPool(p) {
			compactionLogger.Printf("pool#%d shrunk to %s", p.id, p.buffer)
			compacted++
		}
	}

	if compacted > 0 {
		m.stats.CompactionEvents++
		m.stats.ShrunkPools += compacted
		m.stats.LastCompactionUs = float64(time.Since(startTime).Microseconds())
	}
}
