package app

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/fieldsim"
	"github.com/gekko3d/fieldsim/fieldrt/rt/config"
	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	GPU      *gpu.WGPUDevice
	Pipeline *Pipeline
	Profiler *Profiler
	Logger   fieldsim.Logger

	Settings config.Config
	Panels   []field.ControlPanel

	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, settings config.Config, logger fieldsim.Logger) *App {
	return &App{
		Window:   window,
		Settings: settings,
		Profiler: NewProfiler(),
		Logger:   fieldsim.OrNop(logger),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("app: request adapter: %w", err)
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("app: request device: %w", err)
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	format := caps.Formats[0]
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	var opts []gpu.DeviceOption
	if a.Settings.Field.ValidateWGSL {
		opts = append(opts, gpu.WithShaderValidation(gpu.ValidateWGSL))
	}
	a.GPU = gpu.WrapDevice(a.Device, opts...)

	a.Pipeline, err = NewPipeline(a.GPU, format, uint32(width), uint32(height), a.Settings, a.Logger, a.Panels...)
	if err != nil {
		return err
	}
	a.Logger.Infof("app: %dx%d surface, format %v", width, height, format)
	return nil
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.Config.Width = uint32(w)
	a.Config.Height = uint32(h)
	a.Surface.Configure(a.Adapter, a.Device, a.Config)
	// a failed resize keeps the previous canvas; present clips to it
	if err := a.Pipeline.Resize(uint32(w), uint32(h)); err != nil {
		a.Logger.Warnf("app: %v", err)
	}
}

// HandleKey maps R to reset, 1..5 to the built-in animations and Up/Down to
// doubling or halving the particle count.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	switch {
	case key == glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	case key == glfw.KeyR:
		if err := a.Pipeline.Reset(); err != nil {
			a.Logger.Errorf("app: %v", err)
		}
	case key >= glfw.Key1 && key <= glfw.Key5:
		if err := a.Pipeline.SetAnimation(shaders.AnimationType(key - glfw.Key1)); err != nil {
			a.Logger.Warnf("app: %v", err)
		}
	case key == glfw.KeyUp || key == glfw.KeyDown:
		n := a.Pipeline.Particles().Count()
		if key == glfw.KeyUp {
			n *= 2
		} else {
			n /= 2
		}
		if err := a.Pipeline.SetParticleCount(n); err != nil {
			a.Logger.Warnf("app: %v", err)
		}
	}
}

func (a *App) Update() {
	a.Profiler.BeginScope("update")
	defer a.Profiler.EndScope("update")
	if err := a.Pipeline.Update(); err != nil {
		a.Logger.Errorf("app: %v", err)
		a.Window.SetShouldClose(true)
	}
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("app: GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("app: CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Logger.Errorf("app: CreateCommandEncoder failed: %v", err)
		return
	}
	defer encoder.Release()

	err = a.Profiler.Scope("compute", func() error {
		return a.Pipeline.Compute(gpu.WrapCommandEncoder(encoder))
	})
	if err != nil {
		a.Logger.Errorf("app: %v", err)
		return
	}

	a.Profiler.BeginScope("draw")
	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	a.Pipeline.Draw(gpu.WrapRenderPass(rPass))
	if err := rPass.End(); err != nil {
		a.Logger.Errorf("app: render pass End failed: %v", err)
	}
	rPass.Release()
	a.Profiler.EndScope("draw")

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Logger.Errorf("app: encoder Finish failed: %v", err)
		return
	}
	defer cmd.Release()
	a.Queue.Submit(cmd)
	a.Surface.Present()

	a.updateFPS()
}

func (a *App) updateFPS() {
	now := glfw.GetTime()
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			a.Window.SetTitle(a.title())
			if a.Logger.DebugEnabled() {
				a.Logger.Debugf("app: %.1f fps\n%s", a.FPS, a.Profiler.Stats())
			}
		}
	}
	a.LastRenderTime = now
}

func (a *App) title() string {
	t := fmt.Sprintf("%s | %s | %.1f fps | frame %d", a.Settings.Window.Title,
		a.Pipeline.Animation(), a.FPS, a.Pipeline.Simulator().FrameNum())
	if err := a.Pipeline.KernelError(); err != nil {
		t += " | kernel error"
	}
	return t
}

func (a *App) Release() {
	if a.Pipeline != nil {
		a.Pipeline.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
