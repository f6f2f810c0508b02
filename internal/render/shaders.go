package render

import (
	"log"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// ShaderManager handles OpenGL shader program compilation, linking, and uniform
// management.
type ShaderManager struct {
	program    uint32 // program ID
	uTransform int32  // uniform location for the projection × view matrix
	uEye       int32  // uniform location for the camera position
	uFog       int32  // uniform location for the fog distance
	uSky       int32  // uniform location for the fog colour
}

// Vertex shader. Applies the projection × view matrix and forwards the colour
// and world position to the fragment shader.
const vertexShaderSource = `
#version 330 core
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aColor;

uniform mat4 uTransform;

out vec3 vColor;
out vec3 vWorld;

void main() {
    gl_Position = uTransform * vec4(aPos, 1.0);
    vColor = aColor;
    vWorld = aPos;
}
` + "\x00"

// Fragment shader. Fades the vertex colour into the sky colour with
// horizontal distance from the eye.
const fragmentShaderSource = `
#version 330 core
in vec3 vColor;
in vec3 vWorld;
out vec4 FragColor;

uniform vec3 uEye;
uniform float uFog;
uniform vec3 uSky;

void main() {
    float d = length(vWorld.xz - uEye.xz);
    float f = clamp((d - 0.6 * uFog) / (0.4 * uFog), 0.0, 1.0);
    FragColor = vec4(mix(vColor, uSky, f), 1.0);
}
` + "\x00"

// NewShaderManager creates and initializes a new shader manager with compiled
// and linked shaders.
func NewShaderManager() *ShaderManager {
	sm := &ShaderManager{}

	vertexShader := sm.compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	defer gl.DeleteShader(vertexShader)

	fragmentShader := sm.compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	defer gl.DeleteShader(fragmentShader)

	sm.program = gl.CreateProgram()
	gl.AttachShader(sm.program, vertexShader)
	gl.AttachShader(sm.program, fragmentShader)
	gl.LinkProgram(sm.program)

	var status int32
	gl.GetProgramiv(sm.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(sm.program, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(sm.program, logLength, nil, gl.Str(logText))
		log.Fatalf("Shader linking failed: %s", logText)
	}

	sm.uTransform = gl.GetUniformLocation(sm.program, gl.Str("uTransform\x00"))
	sm.uEye = gl.GetUniformLocation(sm.program, gl.Str("uEye\x00"))
	sm.uFog = gl.GetUniformLocation(sm.program, gl.Str("uFog\x00"))
	sm.uSky = gl.GetUniformLocation(sm.program, gl.Str("uSky\x00"))
	gl.UseProgram(sm.program) // bind the shader program
	return sm
}

// SetTransform sets the projection × view matrix.
func (sm *ShaderManager) SetTransform(matrix mgl32.Mat4) {
	gl.UniformMatrix4fv(sm.uTransform, 1, false, &matrix[0])
}

// SetFog sets the eye position, the distance at which geometry is fully
// fogged, and the fog colour.
func (sm *ShaderManager) SetFog(eye mgl32.Vec3, distance float32, sky mgl32.Vec3) {
	gl.Uniform3f(sm.uEye, eye[0], eye[1], eye[2])
	gl.Uniform1f(sm.uFog, distance)
	gl.Uniform3f(sm.uSky, sky[0], sky[1], sky[2])
}

// compileShader compiles a single shader from source.
func (sm *ShaderManager) compileShader(source string, shaderType uint32) uint32 {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		log.Fatalf("Shader compilation failed: %s", logText)
	}

	return shader
}
