package main

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"github.com/vkngwrapper/quad/config"
	"github.com/vkngwrapper/quad/render"
	"golang.org/x/sync/errgroup"
)

type application struct {
	cfg    *config.Config
	logger *slog.Logger

	window       *sdl.Window
	globalDriver core1_0.GlobalDriver

	device     *render.Device
	geometry   *render.GeometryBuffers
	pipeline   *render.Pipeline
	swapchains *render.SwapchainManager
	presenter  *render.VulkanPresenter
	frames     *render.FrameLoop
}

func (app *application) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}
	defer app.cleanup()

	err = app.initVulkan()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *application) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Window.Width), int32(app.cfg.Window.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	app.window = window

	app.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return errors.Wrap(err, "load vulkan")
}

func (app *application) initVulkan() error {
	var err error
	app.device, err = render.NewDevice(app.globalDriver, render.DeviceOptions{
		ApplicationName:    app.cfg.Window.Title,
		InstanceExtensions: app.window.VulkanGetInstanceExtensions(),
		Validation:         app.cfg.Render.Validation,
		Logger:             app.logger,
		CreateSurface: func(instance core1_0.Instance, surfaceExtension khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
			return vkng_sdl2.CreateSurface(instance, surfaceExtension, app.window)
		},
	})
	if err != nil {
		return err
	}

	surfaceFormat, err := app.device.SurfaceFormat()
	if err != nil {
		return err
	}

	shaders, err := loadShaders(app.cfg.Shaders)
	if err != nil {
		return err
	}

	// Geometry upload and pipeline creation share nothing but the device
	var group errgroup.Group
	group.Go(func() error {
		var err error
		app.geometry, err = render.UploadGeometry(app.device, render.QuadVertices(), render.QuadIndices())
		return err
	})
	group.Go(func() error {
		var err error
		app.pipeline, err = render.NewPipeline(app.device.Driver, surfaceFormat.Format, shaders)
		return err
	})
	err = group.Wait()
	if err != nil {
		return err
	}

	chains := render.NewChainFactory(app.device, app.pipeline.RenderPass, app.cfg.Render.PreferMailbox())
	app.swapchains = render.NewSwapchainManager(chains, app.pipeline.Format, app.logger)
	err = app.swapchains.Create(app.drawableExtent())
	if err != nil {
		return err
	}

	app.presenter, err = render.NewPresenter(app.device, app.pipeline, app.geometry, app.logger)
	if err != nil {
		return err
	}

	app.frames = render.NewFrameLoop(app.swapchains, app.presenter, render.FrameLoopOptions{
		FatalDeviceLoss: app.cfg.Render.FatalDeviceLoss,
		Stats:           render.NewFrameStats(app.cfg.Stats.Interval, app.logger),
		Logger:          app.logger,
	})

	return nil
}

func loadShaders(paths config.Shaders) (render.ShaderCode, error) {
	vertex, err := os.ReadFile(paths.Vertex)
	if err != nil {
		return render.ShaderCode{}, errors.Wrap(err, "vertex shader")
	}

	fragment, err := os.ReadFile(paths.Fragment)
	if err != nil {
		return render.ShaderCode{}, errors.Wrap(err, "fragment shader")
	}

	return render.ShaderCode{Vertex: vertex, Fragment: fragment}, nil
}

func (app *application) drawableExtent() core1_0.Extent2D {
	w, h := app.window.VulkanGetDrawableSize()
	return core1_0.Extent2D{Width: int(w), Height: int(h)}
}

func (app *application) mainLoop() error {
	rendering := true
	state := render.Stable

appLoop:
	for true {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
					state = render.NeedsRebuild
				case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
					state = render.NeedsRebuild
				}
			}
		}

		if !rendering {
			sdl.Delay(10)
			continue
		}

		var err error
		state, err = app.frames.Step(state, app.drawableExtent())
		if err != nil {
			return err
		}
	}

	return nil
}

func (app *application) cleanup() {
	if app.frames != nil {
		err := app.frames.Close()
		if err != nil {
			app.logger.Warn("drain frames", slog.Any("err", err))
		}
	}

	if app.device != nil {
		err := app.device.WaitIdle()
		if err != nil {
			app.logger.Warn("wait idle", slog.Any("err", err))
		}
	}

	if app.presenter != nil {
		app.presenter.Close()
	}

	if app.swapchains != nil {
		app.swapchains.Close()
	}

	if app.pipeline != nil {
		app.pipeline.Destroy()
	}

	if app.geometry != nil {
		app.geometry.Destroy()
	}

	if app.device != nil {
		app.device.Destroy()
	}

	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}
