package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"murmur/internal/catalog"
	"murmur/internal/command"
	"murmur/internal/logging"
	"murmur/internal/media/ffprobe"
	"murmur/internal/queue"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "List voices and music tracks",
	}
	catalogCmd.AddCommand(newCatalogVoicesCommand(ctx))
	catalogCmd.AddCommand(newCatalogTracksCommand(ctx))
	return catalogCmd
}

func newCatalogVoicesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var lang string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List catalog voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Paths.CatalogFile)
			if err != nil {
				return err
			}
			voices := make([]catalog.Voice, 0, len(cat.Voices()))
			for _, voice := range cat.Voices() {
				if lang != "" && !strings.HasPrefix(strings.ToLower(voice.Language), strings.ToLower(lang)) {
					continue
				}
				voices = append(voices, voice)
			}
			if jsonOut {
				return writeJSON(cmd, voices)
			}
			if len(voices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No voices")
				return nil
			}
			rows := make([][]string, 0, len(voices))
			for _, voice := range voices {
				rows = append(rows, []string{voice.ID, voice.Name, voice.Language, voice.Gender, voice.ProviderVoice})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Language", "Gender", "Provider voice"},
				rows, nil,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "language", "", "Only voices whose language starts with this tag")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCatalogTracksCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var probe bool

	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "List catalog music tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var opts []catalog.Option
			if probe {
				exec := ctx.engineOptions.Executor
				if exec == nil {
					exec = command.NewExecutor(logging.NewNop())
				}
				opts = append(opts, catalog.WithProber(ffprobe.NewProber(exec, cfg.FFmpeg.FFprobeBinary, cfg.CommandTimeout())))
				if store, err := queue.Open(cfg); err == nil {
					defer store.Close()
					opts = append(opts, catalog.WithDurationCache(store))
				}
			}
			cat, err := catalog.Load(cfg.Paths.CatalogFile, opts...)
			if err != nil {
				return err
			}

			tracks := cat.Tracks()
			if probe {
				for i, track := range tracks {
					resolved, err := cat.Track(cmd.Context(), track.ID)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s: %v\n", track.ID, err)
						continue
					}
					tracks[i] = resolved
				}
			}
			if jsonOut {
				return writeJSON(cmd, tracks)
			}
			if len(tracks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tracks")
				return nil
			}
			rows := make([][]string, 0, len(tracks))
			for _, track := range tracks {
				size := "missing"
				if info, err := os.Stat(track.Path); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
				}
				rows = append(rows, []string{track.ID, track.Title, formatSeconds(track.DurationSeconds), size, track.Path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Duration", "Size", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Measure durations with ffprobe for tracks that do not declare one")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
