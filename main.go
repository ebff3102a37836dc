package main

import (
	"flag"
	"log"
	"runtime"

	"github.com/alcor-engine/alcor/app"
	"github.com/alcor-engine/alcor/render"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable Vulkan validation layers")
}

var args struct {
	debug bool
}

const title = "Alcor"

func main() {
	flag.Parse()

	cfg := &render.Config{
		AppName:        title,
		Version:        render.Version{Major: 0, Minor: 1, Patch: 0},
		FramesInFlight: 2,
		Debug:          args.debug,
	}

	a := app.New(cfg)
	if err := a.Run(800, 600); err != nil {
		log.Fatalf("ERROR: %s", err)
	}
}
