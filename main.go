/*
Opens a window and draws a single triangle with Vulkan until the window is closed.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/triangle/engine"
	"github.com/spaghettifunk/triangle/engine/config"
	"github.com/spaghettifunk/triangle/engine/core"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		core.LogError(err.Error())
		return 1
	}
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		core.LogError(err.Error())
		return 1
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogError(err.Error())
		return 1
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		core.LogInfo("Received %s, stopping after the current frame.", sig)
		e.RequestStop()
	}()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		code = 1
	} else if err := e.Run(); err != nil {
		code = 1
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
		code = 1
	}
	return code
}
