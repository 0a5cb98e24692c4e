//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"picovga/app"
	"picovga/hal"
	"picovga/internal/statsview"
	"picovga/vga"
)

func main() {
	var cfg hal.HeadlessConfig
	var framePath string
	var sceneTicks int
	var rgb bool
	var stats bool
	var statsAddr string
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Frames scanned per second (0 = as fast as the model runs).")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.BoolVar(&cfg.Preview, "preview", false, "Print an ANSI preview of the screen in headless mode.")
	flag.StringVar(&framePath, "frame", "", "Raw 76800-byte frame to show as a scene (see cmd/mkframe).")
	flag.IntVar(&sceneTicks, "scene-ticks", 120, "Frames per demo scene.")
	flag.BoolVar(&rgb, "rgb", false, "Color pins wired red first (default blue first).")
	flag.BoolVar(&stats, "statsview", false, "Serve runtime stats (needs the statsview build tag).")
	flag.StringVar(&statsAddr, "statsview-addr", statsview.DefaultAddr, "Listen address for -statsview.")
	flag.Parse()

	if rgb {
		cfg.Order = vga.RGB
	}
	appCfg := app.Config{SceneTicks: sceneTicks}
	if framePath != "" {
		frame, err := os.ReadFile(framePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if len(frame) != vga.FrameLen {
			fmt.Fprintf(os.Stderr, "%s: %d bytes, want %d\n", framePath, len(frame), vga.FrameLen)
			os.Exit(1)
		}
		appCfg.Frame = frame
	}
	if stats {
		if !statsview.Enabled {
			fmt.Fprintln(os.Stderr, "statsview not available in this build (use -tags statsview)")
			os.Exit(2)
		}
		statsview.Start(statsAddr, os.Stdout)
	}

	newApp := func(h hal.HAL) func() error {
		return app.NewWithConfig(h, appCfg)
	}

	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newApp, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newApp, hal.WindowConfig{Hz: cfg.Hz, Order: cfg.Order}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
