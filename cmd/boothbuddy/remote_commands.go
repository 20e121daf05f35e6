package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/boothbuddy/boothbuddy/internal/client"
	"github.com/boothbuddy/boothbuddy/internal/filters"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/logging"
)

const remoteTimeout = 15 * time.Second

func newFiltersCommand(ctx *commandContext) *cobra.Command {
	var apiFlag string

	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the filters offered by the booth API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := remoteClient(ctx, apiFlag)
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
			defer cancel()

			specs, err := api.FilterTypes(reqCtx)
			if err != nil {
				return err
			}
			renderFilters(cmd.OutOrStdout(), specs)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "Booth API base URL (default: the local server)")
	return cmd
}

func newGalleryCommand(ctx *commandContext) *cobra.Command {
	var apiFlag string

	cmd := &cobra.Command{
		Use:   "gallery [user-id]",
		Short: "List saved strips of a user (guest when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := gallery.GuestUser
			if len(args) == 1 {
				userID = args[0]
			}

			api, err := remoteClient(ctx, apiFlag)
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
			defer cancel()

			records, err := api.ListUserStrips(reqCtx, userID)
			if err != nil {
				return err
			}
			renderGallery(cmd.OutOrStdout(), records, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "Booth API base URL (default: the local server)")
	return cmd
}

func remoteClient(ctx *commandContext, apiFlag string) (*client.HTTPClient, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return client.NewHTTPClient(apiURL(apiFlag, cfg), "", logging.NewLogger(cfg.LogLevel())), nil
}

func renderFilters(w io.Writer, specs []filters.FilterSpec) {
	rows := make([][]string, len(specs))
	for i, f := range specs {
		rows[i] = []string{
			f.ID,
			f.Name,
			fmt.Sprintf("%g-%g", f.MinIntensity, f.MaxIntensity),
			strconv.FormatFloat(f.DefaultIntensity, 'g', -1, 64),
		}
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Name", "Range", "Default"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
}

func renderGallery(w io.Writer, records []client.StripRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No saved strips.")
		return
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		created := r.CreatedAt
		if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
			created = humanize.RelTime(t, now, "ago", "from now")
		}
		rows[i] = []string{r.ID, created, r.URL}
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Created", "URL"}, rows, nil))
	if isTerminal(w) {
		fmt.Fprintf(w, "%d strips\n", len(records))
	}
}
