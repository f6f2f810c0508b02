package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/irfansharif/geopool/internal/app"
)

const (
	baseMoveSpeed  = 24.0  // world units per second
	fastMultiplier = 4.0   // while shift is held
	turnSpeed      = 1.5   // radians per second for arrow keys
	lookSpeed      = 0.004 // radians per pixel of mouse drag
	zoomStep       = 0.05  // radians of field of view per scroll step
)

// EventHandlers manages all event handling for the application.
type EventHandlers struct {
	application *app.App

	// Left-drag looks around.
	isDragging   bool
	lastX, lastY float64
}

// NewEventHandlers creates a new event handlers manager.
func NewEventHandlers(application *app.App) *EventHandlers {
	eh := &EventHandlers{application: application}
	eh.SetupCallbacks(application.Window)
	return eh
}

// SetupCallbacks configures all GLFW event callbacks.
func (eh *EventHandlers) SetupCallbacks(window *glfw.Window) {
	window.SetKeyCallback(func(wnd *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		eh.handleKey(key, action)
	})
	window.SetMouseButtonCallback(func(wnd *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		eh.handleMouseButton(button, action) // for looking around
	})
	window.SetCursorPosCallback(func(wnd *glfw.Window, xpos, ypos float64) {
		eh.handleCursorPos(xpos, ypos)
	})
	window.SetScrollCallback(func(wnd *glfw.Window, _, zoomDelta float64) {
		eh.performZoom(zoomDelta)
	})
	window.SetFramebufferSizeCallback(func(wnd *glfw.Window, newW, newH int) {
		eh.application.Camera().SetViewport(newW, newH)
	})
}

// handleKey handles one-shot keyboard actions. Movement is polled every frame
// by handleContinuousMovement.
func (eh *EventHandlers) handleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	switch key {
	case glfw.KeyEscape:
		eh.application.Window.SetShouldClose(true)
	case glfw.KeyR:
		eh.application.ResetCamera()
	case glfw.KeyP:
		eh.application.Manager.PrintStats()
	case glfw.KeyC:
		eh.application.Manager.TryCompaction()
	}
}

// handleContinuousMovement moves and turns the camera for every held key,
// scaled by the time since the last frame.
func (eh *EventHandlers) handleContinuousMovement(dt float64) {
	window := eh.application.Window
	held := func(key glfw.Key) bool { return window.GetKey(key) == glfw.Press }
	axis := func(pos, neg glfw.Key) float32 {
		v := float32(0)
		if held(pos) {
			v++
		}
		if held(neg) {
			v--
		}
		return v
	}

	speed := float32(baseMoveSpeed * dt)
	if held(glfw.KeyLeftShift) || held(glfw.KeyRightShift) {
		speed *= fastMultiplier
	}

	camera := eh.application.Camera()
	camera.Move(
		axis(glfw.KeyW, glfw.KeyS)*speed,
		axis(glfw.KeyD, glfw.KeyA)*speed,
		axis(glfw.KeyE, glfw.KeyQ)*speed,
	)
	turn := float32(turnSpeed * dt)
	camera.Turn(axis(glfw.KeyRight, glfw.KeyLeft)*turn, axis(glfw.KeyUp, glfw.KeyDown)*turn)
}

// handleMouseButton starts and stops drag-to-look.
func (eh *EventHandlers) handleMouseButton(button glfw.MouseButton, action glfw.Action) {
	if button != glfw.MouseButtonLeft {
		return
	}
	switch action {
	case glfw.Press:
		eh.isDragging = true
		eh.lastX, eh.lastY = eh.application.Window.GetCursorPos()
	case glfw.Release:
		eh.isDragging = false
	}
}

// handleCursorPos turns the camera while dragging.
func (eh *EventHandlers) handleCursorPos(xpos, ypos float64) {
	if !eh.isDragging {
		return
	}
	dx, dy := xpos-eh.lastX, ypos-eh.lastY
	eh.lastX, eh.lastY = xpos, ypos
	eh.application.Camera().Turn(float32(dx*lookSpeed), float32(-dy*lookSpeed))
}

// performZoom narrows or widens the field of view.
func (eh *EventHandlers) performZoom(zoomDelta float64) {
	camera := eh.application.Camera()
	camera.SetFovY(camera.FovY - float32(zoomDelta*zoomStep))
}
