package main

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/boothbuddy/boothbuddy/internal/filters"
	"github.com/boothbuddy/boothbuddy/internal/strip"
)

type composeOptions struct {
	output      string
	frameWidth  int
	frameHeight int
	padding     int
	filter      string
	intensity   float64
}

func newComposeCommand() *cobra.Command {
	opts := composeOptions{}

	cmd := &cobra.Command{
		Use:   "compose <frame>...",
		Short: "Compose image files into a strip without a server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := composeFiles(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			data, err := strip.EncodePNG(img)
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.output, data, 0644); err != nil {
				return fmt.Errorf("write strip: %w", err)
			}
			b := img.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %s\n", opts.output, b.Dx(), b.Dy(), humanize.Bytes(uint64(len(data))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "strip.png", "Output PNG path")
	cmd.Flags().IntVar(&opts.frameWidth, "width", 0, "Frame width (0 keeps native width in the stacked layout)")
	cmd.Flags().IntVar(&opts.frameHeight, "height", 0, "Frame height; selects fixed bands of width x height")
	cmd.Flags().IntVar(&opts.padding, "padding", strip.DefaultPadding, "Gap between frames in the stacked layout")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter applied to each frame first")
	cmd.Flags().Float64Var(&opts.intensity, "intensity", filters.DefaultIntensity, "Filter intensity")
	return cmd
}

func composeFiles(ctx context.Context, paths []string, opts composeOptions) (*image.NRGBA, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.filter != "" && opts.filter != filters.None {
		if err := filters.Validate(opts.filter, opts.intensity); err != nil {
			return nil, err
		}
	}

	sources := make([]strip.Source, len(paths))
	for i, p := range paths {
		sources[i] = filteredFile(p, opts.filter, opts.intensity)
	}

	if opts.frameHeight > 0 {
		width := opts.frameWidth
		if width <= 0 {
			width = strip.DefaultFrameWidth
		}
		return strip.ComposeBands(ctx, sources, strip.Layout{
			FrameWidth:    width,
			FrameHeight:   opts.frameHeight,
			DecodeTimeout: strip.DefaultDecodeTimeout,
		})
	}
	return strip.ComposeVertical(ctx, sources, strip.VerticalOptions{
		FrameWidth:    opts.frameWidth,
		Padding:       opts.padding,
		DecodeTimeout: strip.DefaultDecodeTimeout,
	})
}

func filteredFile(path, filterType string, intensity float64) strip.Source {
	load := strip.FromFile(path)
	if filterType == "" || filterType == filters.None {
		return load
	}
	return func(ctx context.Context) (image.Image, error) {
		img, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return filters.Apply(img, filterType, intensity)
	}
}
