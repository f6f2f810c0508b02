package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/irfansharif/geopool/internal/app"
	"github.com/irfansharif/geopool/internal/config"
	"github.com/irfansharif/geopool/internal/glbuf"
	"github.com/irfansharif/geopool/internal/memory"
	"github.com/irfansharif/geopool/internal/render"
	"github.com/irfansharif/geopool/internal/world"
)

const logFlags = log.Ltime | log.Lshortfile

var runtimeLogger *log.Logger = log.New(io.Discard, "", 0)

var configPath = flag.String("config", "", "path to a TOML config file overriding the defaults")

func init() {
	// OpenGL contexts are tied to specific OS threads - let's pin to just one.
	runtime.LockOSThread()
	log.SetFlags(logFlags)

	if os.Getenv("GEOPOOL_DEBUG_RUNTIME") == "1" {
		runtimeLogger = log.New(os.Stdout, "[runtime] ", log.Ltime|log.Lmsgprefix)
	}
}

func makeTitle(fps, avgFrameTime float64, renderStats render.Stats, memStats memory.Stats, glStats glbuf.Stats) string {
	return fmt.Sprintf("geopool (%.1f FPS, %.2fms/frame, %d pools, %d records, %d visible, %d triangles, %d draw calls/frame, %.1f%% fragmented, %.1fMiB GPU)",
		fps,
		avgFrameTime,
		memStats.Pools,
		memStats.Records,
		renderStats.Visible,
		renderStats.Triangles,
		renderStats.DrawCalls,
		memStats.Fragmentation*100,
		float64(glStats.GPUBytes)/(1024.0*1024.0),
	)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := glfw.Init(); err != nil {
		log.Fatalf("Failed to initialize GLFW: %v", err)
	}
	defer glfw.Terminate()

	// Configure GLFW window hints - use OpenGL 4.1.
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, "geopool", nil, nil)
	if err != nil {
		log.Fatalf("Failed to create window: %v", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		log.Fatalf("Failed to initialize OpenGL: %v", err)
	}
	gl.Enable(gl.DEPTH_TEST)

	application, err := app.NewApp(window, cfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	defer application.Close()

	eventHandlers := NewEventHandlers(application)

	frameCount, frameTimeSum := 0, 0.0
	lastFPSUpdate := time.Now()
	lastFrame := time.Now()

	// Main loop.
	for !application.Window.ShouldClose() {
		frameStart := time.Now()
		eventHandlers.handleContinuousMovement(frameStart.Sub(lastFrame).Seconds())
		lastFrame = frameStart

		w, h := application.Window.GetFramebufferSize()
		gl.Viewport(0, 0, int32(w), int32(h))
		gl.ClearColor(render.Sky[0], render.Sky[1], render.Sky[2], 1)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		if err := application.Frame(); err != nil {
			log.Fatalf("Frame failed: %v", err)
		}
		application.Window.SwapBuffers()
		glfw.PollEvents()

		frameTime := time.Since(frameStart).Seconds() * 1000.0 // ms
		frameTimeSum += frameTime

		frameCount++
		now := time.Now()
		if now.Sub(lastFPSUpdate) >= time.Second {
			fps := float64(frameCount) / now.Sub(lastFPSUpdate).Seconds()
			avgFrameTime := frameTimeSum / float64(frameCount)
			frameCount, frameTimeSum = 0, 0.0
			lastFPSUpdate = now

			memStats := application.Manager.Stats()
			renderStats := application.Renderer.Stats()
			glStats := application.Backend.Stats()
			streamStats := application.Streamer.Stats()

			application.Window.SetTitle(makeTitle(fps, avgFrameTime, renderStats, memStats, glStats))
			logPerformance(fps, avgFrameTime, renderStats, memStats, glStats, streamStats)
		}

		n := application.FrameCount()
		if cfg.StatsInterval > 0 && n%cfg.StatsInterval == 0 {
			application.Manager.PrintStats()
		}
		if cfg.CompactionInterval > 0 && n%cfg.CompactionInterval == 0 { // Periodic compaction.
			application.Manager.TryCompaction()
		}
		if cfg.IntegrityInterval > 0 && n%cfg.IntegrityInterval == 0 { // Periodically validate pool integrity.
			if err := application.Manager.ValidateIntegrity(); err != nil {
				log.Printf("Pool integrity invalid: %v", err)
			}
		}
	}
}

func logPerformance(fps, avgFrameTime float64, rs render.Stats, ms memory.Stats, gs glbuf.Stats, ss world.Stats) {
	runtimeLogger.Println("=== Performance statistics ===")
	runtimeLogger.Printf("Frame rate:     %.1f FPS (%.2f ms/frame, %d draw calls/frame)", fps, avgFrameTime, rs.DrawCalls)
	runtimeLogger.Printf("Geometry:       %d chunks, %d records in %d pools, %d visible, %d shadow casters, %d triangles",
		ss.Chunks, ms.Records, ms.Pools, rs.Visible, rs.ShadowCasters, rs.Triangles)
	runtimeLogger.Printf("Streaming:      %d loaded, %d unloaded, %d remeshed", ss.Loaded, ss.Unloaded, ss.Remeshed)
	runtimeLogger.Printf("GPU memory:     %.2f MiB in %d buffers (%d uploads, %d copies)",
		float64(gs.GPUBytes)/(1024.0*1024.0), gs.Live, gs.Uploads, gs.Copies)
	runtimeLogger.Printf("Render time:    %.2f µs (last cull), %.2f µs (last draw)", rs.LastCullTimeUs, rs.LastDrawTimeUs)
	runtimeLogger.Printf("Removals:       %d pending, %d reclaimed, %d retired buffers", ms.PendingRemovals, ms.Manager.Reclaimed, ms.Manager.RetiredBuffers)
	runtimeLogger.Printf("Recycler:       %d hits, %d misses, %d evictions", ms.Recycler.Hits, ms.Recycler.Misses, ms.Recycler.Evictions)
	runtimeLogger.Println("==============================")
}
