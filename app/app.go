// Package app ties the window collaborator and the render core together
// into a runnable application with a two phase lifecycle.
package app

import (
	"fmt"
	"log"

	"github.com/alcor-engine/alcor/render"
	"github.com/alcor-engine/alcor/window"
)

// App drives the render loop. It starts out uninitialized, holding only
// the configuration; the first activation builds the window and the
// renderer. The transition is one way and happens exactly once per run.
type App struct {
	cfg *render.Config

	window   *window.Window
	renderer *render.Renderer
}

// New returns an uninitialized App.
func New(cfg *render.Config) *App {
	return &App{cfg: cfg}
}

// Renderer returns the renderer, or nil before activation. Useful for
// registering a drawable.
func (a *App) Renderer() *render.Renderer {
	return a.renderer
}

// activate builds the window and the renderer. Calling it on an already
// initialized App is a programming error.
func (a *App) activate(width, height int) error {
	if a.window != nil {
		panic("app: activated twice")
	}

	log.Printf("initialising application %q", a.cfg.AppName)

	win, err := window.New(a.cfg.AppName, width, height)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}

	renderer, err := render.NewRenderer(a.cfg, win)
	if err != nil {
		win.Destroy()
		return fmt.Errorf("creating renderer: %w", err)
	}

	win.OnResize(func(_, _ int) {
		renderer.Invalidate()
	})

	a.window = win
	a.renderer = renderer
	return nil
}

// Run activates the App and drives the continuous render loop until the
// window collaborator requests shutdown, then tears everything down after
// a full device idle wait.
func (a *App) Run(width, height int) error {
	if err := a.activate(width, height); err != nil {
		return err
	}
	defer a.teardown()

	for !a.window.ShouldClose() {
		w, h := a.window.FramebufferSize()
		if w == 0 || h == 0 {
			// Minimized. Nothing to present until the window comes back.
			a.window.WaitEvents()
			continue
		}

		if err := a.renderer.Render(); err != nil {
			return fmt.Errorf("error drawing a frame: %w", err)
		}

		a.window.PollEvents()
	}

	return nil
}

func (a *App) teardown() {
	if a.renderer != nil {
		a.renderer.Destroy()
		a.renderer = nil
	}
	if a.window != nil {
		a.window.Destroy()
		a.window = nil
	}
}
