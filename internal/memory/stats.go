package memory

import (
	"fmt"
	"strings"
)

// Stats is a snapshot of the manager and its recycler.
type Stats struct {
	Pools           int
	Records         int
	UsedVertices    int64
	UsedIndices     int64
	VertexCapacity  int64
	Fragmentation   float64
	PendingRemovals int
	Growths         int
	Shrinks         int
	Manager         ManagerStats
	Recycler        RecyclerStats
	PoolStats       []PoolStats
}

// PoolStats describes one pool.
type PoolStats struct {
	ID             PoolID
	Records        int
	UsedVertices   int
	VertexExtent   int
	VertexCapacity int
	Growths        int
	Shrinks        int
}

// Stats recalculates statistics from current state.
func (m *Manager) Stats() Stats {
	s := Stats{
		Pools:           len(m.pools),
		Fragmentation:   m.ComputeFragmentation(),
		PendingRemovals: m.PendingRemovals(),
		Manager:         m.stats,
		Recycler:        m.recycler.Stats(),
	}
	s.Manager.Submitted = int(m.submitted.Load())
	for _, p := range m.Pools() {
		s.Records += p.Len()
		s.UsedVertices += int64(p.UsedVertices())
		s.UsedIndices += int64(p.UsedIndices())
		s.VertexCapacity += int64(p.VertexCapacity())
		s.Growths += p.growths
		s.Shrinks += p.shrinks
		s.PoolStats = append(s.PoolStats, PoolStats{
			ID:             p.id,
			Records:        p.Len(),
			UsedVertices:   p.UsedVertices(),
			VertexExtent:   p.VertexExtent(),
			VertexCapacity: p.VertexCapacity(),
			Growths:        p.growths,
			Shrinks:        p.shrinks,
		})
	}
	return s
}

// PrintStats outputs memory statistics with visual bars.
func (m *Manager) PrintStats() {
	stats := m.Stats()

	memoryLogger.Println("===== Geometry Pool Stats =====")
	memoryLogger.Printf("%d pools, %d records, %s/%s vertices used (%.1f%% fragmented), %d removals pending",
		stats.Pools,
		stats.Records,
		formatNumber(stats.UsedVertices),
		formatNumber(stats.VertexCapacity),
		stats.Fragmentation*100,
		stats.PendingRemovals,
	)
	memoryLogger.Printf("%d submitted, %d reclaimed, %d retired buffers, %d consistency faults, %d growths, %d shrinks (%.2fμs last compaction)",
		stats.Manager.Submitted,
		stats.Manager.Reclaimed,
		stats.Manager.RetiredBuffers,
		stats.Manager.ConsistencyFaults,
		stats.Growths,
		stats.Shrinks,
		stats.Manager.LastCompactionUs,
	)

	for _, ps := range stats.PoolStats {
		util := 0.0
		if ps.VertexCapacity > 0 {
			util = float64(ps.UsedVertices) / float64(ps.VertexCapacity)
		}
		memoryLogger.Printf("  pool#%03d %s %.0f%% used (%s/%s vertices, high-water %s), %d records, %d× growth",
			ps.ID,
			makeUtilizationBar(util, 12),
			util*100,
			formatNumber(int64(ps.UsedVertices)),
			formatNumber(int64(ps.VertexCapacity)),
			formatNumber(int64(ps.VertexExtent)),
			ps.Records,
			ps.Growths,
		)
	}

	rs := stats.Recycler
	hitRate := 0.0
	if rs.Hits+rs.Misses > 0 {
		hitRate = float64(rs.Hits) / float64(rs.Hits+rs.Misses)
	}
	memoryLogger.Printf("recycler: %.1f%% hit rate (%d hits, %d misses), %d fresh, %d evicted (%d expired), %d pending",
		hitRate*100, rs.Hits, rs.Misses, rs.Fresh, rs.Evictions, rs.Expirations, rs.Pending)
	for _, class := range sizeClasses {
		cs := rs.Classes[class]
		fill := 0.0
		if cs.Ceiling > 0 {
			fill = float64(cs.Capacity) / float64(cs.Ceiling)
		}
		memoryLogger.Printf("  [%6s] %s %d idle buffers, %s/%s vertices cached",
			class.String(),
			makeUtilizationBar(fill, 12),
			cs.Entries,
			formatNumber(int64(cs.Capacity)),
			formatNumber(int64(cs.Ceiling)),
		)
	}
	memoryLogger.Println("===============================")
}

// makeUtilizationBar creates a visual bar for utilization percentage.
func makeUtilizationBar(utilization float64, width int) string {
	if utilization < 0 {
		utilization = 0
	}
	if utilization > 1 {
		utilization = 1
	}

	filled := int(utilization * float64(width))
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

// formatNumber formats large numbers with K/M suffixes for readability.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000.0)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000.0)
}
