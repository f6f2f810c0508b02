package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/geom"
)

// PoolID identifies a pool within its manager. IDs are never reused.
type PoolID int

// Record describes one allocation inside a pool: its vertex and index ranges,
// its cull sphere and LOD, and its visibility state.
type Record struct {
	pool        PoolID
	slot        int
	vertexStart int
	vertexEnd   int
	indexStart  int
	indexEnd    int
	sphere      geom.Sphere
	lod         int
	hidden      atomic.Bool
	vis         [cull.NumViews]cull.Visibility
}

var _ cull.Target = (*Record)(nil)

func (r *Record) PoolID() PoolID { return r.pool }

// VertexRange returns the record's vertex range [start, end) in its pool.
func (r *Record) VertexRange() (start, end int) { return r.vertexStart, r.vertexEnd }

// IndexRange returns the record's index range [start, end) in its pool.
func (r *Record) IndexRange() (start, end int) { return r.indexStart, r.indexEnd }

func (r *Record) VertexCount() int { return r.vertexEnd - r.vertexStart }
func (r *Record) IndexCount() int  { return r.indexEnd - r.indexStart }

func (r *Record) CullSphere() geom.Sphere      { return r.sphere }
func (r *Record) SetCullSphere(s geom.Sphere) { r.sphere = s }

func (r *Record) LOD() int        { return r.lod }
func (r *Record) SetLOD(lod int) { r.lod = lod }

// Hidden reports whether the record has been withdrawn from rendering. It is
// safe to call from any goroutine.
func (r *Record) Hidden() bool { return r.hidden.Load() }

// Visibility returns the record's state for one culling view.
func (r *Record) Visibility(v cull.View) *cull.Visibility { return &r.vis[v] }

// Visible reads the record's gate for the pass. Hidden records are never
// visible.
func (r *Record) Visible(pass cull.Pass) bool {
	return !r.Hidden() && r.vis[pass.View].Visible(pass.Parity)
}

func (r *Record) String() string {
	return fmt.Sprintf("record(pool=%d slot=%d vertices=[%d,%d) indices=[%d,%d) lod=%d)",
		r.pool, r.slot, r.vertexStart, r.vertexEnd, r.indexStart, r.indexEnd, r.lod)
}
