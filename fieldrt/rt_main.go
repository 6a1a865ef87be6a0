package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/fieldsim"
	"github.com/gekko3d/fieldsim/fieldrt/rt/app"
	"github.com/gekko3d/fieldsim/fieldrt/rt/config"
	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/panel"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	kernel := flag.String("kernel", "", "WGSL file defining field_velocity, reloaded on save")
	animation := flag.String("animation", "", "Built-in animation: basic, julia_set, spiral, black_hole, poiseuille")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *kernel != "" {
		cfg.Field.KernelPath = *kernel
	}
	if *animation != "" {
		a, err := shaders.ParseAnimationType(*animation)
		if err != nil {
			return err
		}
		cfg.Field.Animation = a
	}

	logger := fieldsim.NewDefaultLogger(cfg.Log.Prefix, cfg.Log.Debug)
	defer logger.Sync()

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, logger)
	if cfg.Field.KernelPath != "" {
		fp, err := panel.NewFilePanel(cfg.Field.KernelPath, panel.WithLogger(logger))
		if err != nil {
			return err
		}
		defer fp.Close()
		application.Panels = []field.ControlPanel{fp}
	}
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
	return nil
}
