package render

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/geom"
	"github.com/irfansharif/geopool/internal/glbuf"
	"github.com/irfansharif/geopool/internal/memory"
)

func vecInDelta(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func TestCameraAxes(t *testing.T) {
	c := NewCamera(800, 600, 400)
	vecInDelta(t, mgl32.Vec3{0, 0, -1}, c.Forward())
	vecInDelta(t, mgl32.Vec3{1, 0, 0}, c.Right())

	c.Turn(math32.Pi/2, 0)
	vecInDelta(t, mgl32.Vec3{1, 0, 0}, c.Forward())
	vecInDelta(t, mgl32.Vec3{0, 0, 1}, c.Right())

	c.Turn(2*math32.Pi, 10)
	assert.InDelta(t, math32.Pi/2, c.Yaw, 1e-5, "yaw wraps")
	assert.Equal(t, float32(maxPitch), c.Pitch, "pitch clamps")
}

func TestCameraMoveStaysHorizontal(t *testing.T) {
	c := NewCamera(800, 600, 400)
	c.Turn(0, 1)
	c.Move(10, 0, 0)
	vecInDelta(t, mgl32.Vec3{0, 0, -10}, c.Position)

	c.Move(0, 5, 2)
	vecInDelta(t, mgl32.Vec3{5, 2, -10}, c.Position)
}

func TestCameraProjViewMapsForwardToScreenCenter(t *testing.T) {
	c := NewCamera(800, 600, 400)
	c.Position = mgl32.Vec3{3, 4, 5}
	c.Turn(0.3, -0.2)

	p := c.Position.Add(c.Forward().Mul(50))
	clip := c.ProjView().Mul4x1(p.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip[3])
	assert.InDelta(t, 0, ndc[0], 1e-4)
	assert.InDelta(t, 0, ndc[1], 1e-4)
	assert.Greater(t, clip[3], float32(0), "in front of the camera")

	c.SetFovY(10)
	assert.Equal(t, float32(maxFovY), c.FovY)
}

func newHeadlessRenderer(t *testing.T) (*Renderer, *memory.Manager) {
	t.Helper()
	backend := memory.NewHeapBackend(glbuf.Stride)
	recycler := memory.NewRecycler(memory.DefaultRecyclerConfig(), backend, memory.WallClock())
	m := memory.NewManager(memory.DefaultManagerConfig(), recycler)

	cam := NewCamera(800, 600, 400)
	cam.Position = mgl32.Vec3{0, 10, 0}
	return &Renderer{
		camera:  cam,
		frustum: cull.NewFrustum(cull.DefaultConfig()),
		manager: m,
		main:    cull.Pass{View: cull.ViewMain},
		shadow:  cull.Pass{View: cull.ViewShadow},
		ranges:  make(map[memory.Handle][]glbuf.Range),
	}, m
}

func TestCullAndBatch(t *testing.T) {
	r, m := newHeadlessRenderer(t)

	ahead := m.Allocate(8, 12, geom.MakeSphere(mgl32.Vec3{0, 0, -50}, 4), 1)
	behind := m.Allocate(8, 12, geom.MakeSphere(mgl32.Vec3{0, 0, 50}, 4), 1)
	far := m.Allocate(8, 12, geom.MakeSphere(mgl32.Vec3{0, 0, -300}, 4), 1)
	empty := m.Allocate(0, 0, geom.MakeSphere(mgl32.Vec3{0, 0, -20}, 4), 1)

	r.Cull()
	assert.Equal(t, 2, r.Stats().Visible, "ahead and empty; far is beyond the view distance")
	assert.True(t, ahead.Visible(r.main))
	assert.True(t, empty.Visible(r.main))
	assert.False(t, behind.Visible(r.main))
	assert.False(t, far.Visible(r.main))

	handles := r.batch()
	require.Len(t, handles, 1)
	ranges := r.ranges[handles[0]]
	require.Len(t, ranges, 1, "records without indices are not drawn")
	is, _ := ahead.IndexRange()
	vs, _ := ahead.VertexRange()
	assert.Equal(t, glbuf.Range{IndexStart: is, IndexCount: 12, BaseVertex: vs}, ranges[0])
	assert.Equal(t, 4, r.Stats().Triangles)

	m.SubmitForRemoval([]*memory.Record{ahead})
	r.Cull()
	assert.Empty(t, r.batch())
	assert.Empty(t, r.ranges, "scratch entries for idle buffers are dropped")
}

func TestShadowViewIsIndependent(t *testing.T) {
	r, m := newHeadlessRenderer(t)

	// Beyond the shadow range but inside the main view band.
	distant := m.Allocate(8, 12, geom.MakeSphere(mgl32.Vec3{0, 0, -200}, 4), 1)
	r.Cull()

	assert.True(t, distant.Visible(r.main))
	assert.False(t, distant.Visible(r.shadow))
	assert.Equal(t, 1, r.Stats().Visible)
	assert.Zero(t, r.Stats().ShadowCasters)
}
