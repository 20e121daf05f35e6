package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/camera"
	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/media"
	"github.com/boothbuddy/boothbuddy/internal/strip"
)

type shootOptions struct {
	image     string
	device    string
	format    string
	shots     int
	countdown int
	outDir    string
}

func newShootCommand(ctx *commandContext) *cobra.Command {
	opts := shootOptions{}

	cmd := &cobra.Command{
		Use:   "shoot",
		Short: "Run one capture sequence and write the frames and strip to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			k := cfg.Kiosk()
			if opts.device == "" {
				opts.device = k.CameraDevice
			}
			if opts.format == "" {
				opts.format = k.CameraFormat
			}
			if opts.shots == 0 {
				opts.shots = k.Shots
			}
			if opts.countdown < 0 {
				opts.countdown = k.Countdown()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger(cfg.LogLevel())
			paths, err := runShoot(runCtx, opts, booth.DefaultTick, k.Flash(), func(st booth.State) {
				if st.Phase == booth.PhaseCounting {
					fmt.Fprintf(cmd.OutOrStdout(), "shot %d/%d in %d...\n", st.Step, st.Shots, st.SecondsLeft)
				}
			}, logger)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.image, "image", "", "Use a still image instead of the camera")
	cmd.Flags().StringVar(&opts.device, "device", "", "Camera device (default from config)")
	cmd.Flags().StringVar(&opts.format, "format", "", "ffmpeg input format (default from config)")
	cmd.Flags().IntVar(&opts.shots, "shots", 0, "Number of shots (default from config)")
	cmd.Flags().IntVar(&opts.countdown, "countdown", -1, "Countdown seconds per shot (default from config)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "Output directory")
	return cmd
}

// runShoot captures opts.shots frames and writes frame-N.png files plus
// strip.png into opts.outDir, returning the written paths.
func runShoot(ctx context.Context, opts shootOptions, tick, flash time.Duration, onState func(booth.State), logger *slog.Logger) ([]string, error) {
	src, closeSrc, err := openShootSource(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	seq := booth.NewSequencer(src, booth.Options{
		Shots:         opts.shots,
		CountdownFrom: opts.countdown,
		Tick:          tick,
		Flash:         flash,
		OnState:       onState,
	}, logger)

	frames, err := seq.Run(ctx, nil)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	sources := make([]strip.Source, len(frames))
	for i, f := range frames {
		data, err := media.EncodePNG(f.Image)
		if err != nil {
			return nil, err
		}
		p := filepath.Join(opts.outDir, fmt.Sprintf("frame-%d.png", f.Index+1))
		if err := os.WriteFile(p, data, 0644); err != nil {
			return nil, fmt.Errorf("write frame: %w", err)
		}
		paths = append(paths, p)
		sources[i] = strip.FromImage(f.Image)
	}

	img, err := strip.ComposeBands(ctx, sources, strip.DefaultLayout)
	if err != nil {
		return nil, err
	}
	data, err := strip.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	stripPath := filepath.Join(opts.outDir, "strip.png")
	if err := os.WriteFile(stripPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write strip: %w", err)
	}
	paths = append(paths, stripPath)

	logger.Info("capture written", "dir", opts.outDir, "frames", len(frames))
	return paths, nil
}

func openShootSource(ctx context.Context, opts shootOptions, logger *slog.Logger) (booth.VideoSource, func(), error) {
	if opts.image != "" {
		still, err := camera.LoadStill(opts.image)
		if err != nil {
			return nil, nil, err
		}
		return still, func() { still.Close() }, nil
	}

	cam := camera.NewFFmpegSource(opts.device, opts.format, logger)
	if err := cam.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("open camera %s: %w", opts.device, err)
	}
	return cam, func() { cam.Close() }, nil
}
