package app

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/geopool/internal/config"
	"github.com/irfansharif/geopool/internal/cull"
	"github.com/irfansharif/geopool/internal/glbuf"
	"github.com/irfansharif/geopool/internal/memory"
	"github.com/irfansharif/geopool/internal/render"
	"github.com/irfansharif/geopool/internal/world"
)

// eyeHeight is how far above the terrain the camera is kept.
const eyeHeight = 4.0

// App encapsulates the main application state and logic.
type App struct {
	Window   *glfw.Window
	Config   config.Config
	Backend  *glbuf.Backend
	Recycler *memory.Recycler
	Manager  *memory.Manager
	Streamer *world.Streamer
	Renderer *render.Renderer

	frame int
}

// NewApp wires the buffer pools, streamer and renderer for a window whose GL
// context is current.
func NewApp(window *glfw.Window, cfg config.Config) (*App, error) {
	backend := glbuf.NewBackend()
	recycler := memory.NewRecycler(cfg.Recycler, backend, memory.WallClock())
	manager := memory.NewManager(cfg.Manager, recycler)

	streamer, err := world.NewStreamer(cfg.World, manager)
	if err != nil {
		return nil, fmt.Errorf("creating streamer: %w", err)
	}

	cw, ch := window.GetFramebufferSize()
	camera := render.NewCamera(cw, ch, cfg.Cull.ViewDistance*1.5)
	renderer := render.NewRenderer(camera, cull.NewFrustum(cfg.Cull), manager, backend)

	app := &App{
		Window:   window,
		Config:   cfg,
		Backend:  backend,
		Recycler: recycler,
		Manager:  manager,
		Streamer: streamer,
		Renderer: renderer,
	}
	app.ResetCamera()
	return app, nil
}

// Camera returns the renderer's camera.
func (app *App) Camera() *render.Camera { return app.Renderer.Camera() }

// ResetCamera puts the camera back over the origin, level, facing -Z.
func (app *App) ResetCamera() {
	c := app.Camera()
	c.Position = mgl32.Vec3{}
	c.Yaw, c.Pitch = 0, 0
	app.keepAboveGround()
}

// keepAboveGround lifts the camera to at least eyeHeight above the terrain.
func (app *App) keepAboveGround() {
	c := app.Camera()
	ground := app.Streamer.Mesher().Height(c.Position[0], c.Position[2])
	if c.Position[1] < ground+eyeHeight {
		c.Position[1] = ground + eyeHeight
	}
}

// Frame runs one frame: stream chunks around the camera, admit released
// buffers into the recycler, cull and draw, then advance the removal
// pipeline.
func (app *App) Frame() error {
	app.keepAboveGround()
	if err := app.Streamer.Update(app.Camera().Position); err != nil {
		return fmt.Errorf("streaming frame %d: %w", app.frame, err)
	}
	app.Recycler.RunMaintenance()
	app.Renderer.Draw()
	app.Manager.AdvanceFrame()
	app.frame++
	return nil
}

// FrameCount returns the number of frames run.
func (app *App) FrameCount() int { return app.frame }

// Close releases all geometry and GL resources. Pending removals are drained
// first so every buffer passes through the recycler once.
func (app *App) Close() {
	app.Streamer.Close()
	app.Manager.Close()
	app.Recycler.Shutdown()
	app.Backend.Close()
}
