// Package render draws the pooled terrain geometry.
//
// Each frame it:
// 1. Extracts the view frustum from the camera.
// 2. Culls every record for the main and shadow views.
// 3. Groups the visible records by pool and issues one multi-draw per pool.
package render

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/glbuf"
	"github.com/irfansharif/geopool/internal/memory"
)

var renderLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GEOPOOL_DEBUG_RENDER") == "1" {
		renderLogger = log.New(os.Stdout, "[render] ", log.Ltime|log.Lmsgprefix)
	}
}

// Sky is the clear and fog colour.
var Sky = mgl32.Vec3{0.72, 0.82, 0.93}

// Stats tracks rendering performance metrics.
type Stats struct {
	Visible        int     // records passing the main view last frame
	ShadowCasters  int     // records passing the shadow view last frame
	Triangles      int     // triangles submitted last frame
	DrawCalls      int     // multi-draw calls last frame
	LastCullTimeUs float64 // time spent culling in the last frame
	LastDrawTimeUs float64 // time spent submitting draws in the last frame
}

// Renderer culls and draws the records of a manager.
type Renderer struct {
	camera  *Camera
	frustum *cull.Frustum
	manager *memory.Manager
	backend *glbuf.Backend
	shaders *ShaderManager

	main, shadow cull.Pass

	// Scratch space reused across frames.
	handles []memory.Handle
	ranges  map[memory.Handle][]glbuf.Range

	stats Stats
}

// NewRenderer creates a renderer. A GL context must be current.
func NewRenderer(camera *Camera, frustum *cull.Frustum, manager *memory.Manager, backend *glbuf.Backend) *Renderer {
	return &Renderer{
		camera:  camera,
		frustum: frustum,
		manager: manager,
		backend: backend,
		shaders: NewShaderManager(),
		main:    cull.Pass{View: cull.ViewMain},
		shadow:  cull.Pass{View: cull.ViewShadow},
		ranges:  make(map[memory.Handle][]glbuf.Range),
	}
}

func (r *Renderer) Camera() *Camera { return r.camera }

// Cull updates the frustum from the camera, evaluates every record for both
// views, and makes the fresh decisions current.
func (r *Renderer) Cull() {
	startTime := time.Now()

	r.frustum.Update(r.camera.ProjView(), r.camera.Position)
	r.stats.Visible = r.manager.Cull(r.frustum, r.main)
	r.stats.ShadowCasters = r.manager.Cull(r.frustum, r.shadow)
	r.main, r.shadow = r.main.Next(), r.shadow.Next()

	r.stats.LastCullTimeUs = float64(time.Since(startTime).Microseconds())
}

// batch groups the currently visible records by backing buffer, in pool
// order, and returns the buffers to draw.
func (r *Renderer) batch() []memory.Handle {
	for h, rs := range r.ranges {
		r.ranges[h] = rs[:0]
	}
	r.handles = r.handles[:0]
	r.stats.Triangles = 0

	r.manager.EachVisible(r.main, func(p *memory.Pool, rec *memory.Record) {
		if rec.IndexCount() == 0 {
			return
		}
		h := p.Buffer().Handle()
		rs := r.ranges[h]
		if len(rs) == 0 {
			r.handles = append(r.handles, h)
		}
		is, _ := rec.IndexRange()
		vs, _ := rec.VertexRange()
		r.ranges[h] = append(rs, glbuf.Range{IndexStart: is, IndexCount: rec.IndexCount(), BaseVertex: vs})
		r.stats.Triangles += rec.IndexCount() / 3
	})

	// Drop scratch entries for buffers that no longer draw.
	for h, rs := range r.ranges {
		if len(rs) == 0 {
			delete(r.ranges, h)
		}
	}
	return r.handles
}

// Draw culls and draws one frame.
func (r *Renderer) Draw() {
	r.Cull()

	startTime := time.Now()
	r.shaders.SetTransform(r.camera.ProjView())
	r.shaders.SetFog(r.camera.Position, r.camera.Far, Sky)

	r.backend.ResetFrame()
	for _, h := range r.batch() {
		r.backend.DrawRanges(h, r.ranges[h])
	}
	r.stats.DrawCalls = r.backend.Stats().DrawCalls
	r.stats.LastDrawTimeUs = float64(time.Since(startTime).Microseconds())

	renderLogger.Printf("%d visible (%d shadow casters), %d triangles in %d draw calls",
		r.stats.Visible, r.stats.ShadowCasters, r.stats.Triangles, r.stats.DrawCalls)
}

// Stats returns the current performance statistics
func (r *Renderer) Stats() Stats {
	return r.stats
}
