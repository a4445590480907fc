package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/catalog"
	"murmur/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check murmur configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: set tts.endpoint and tts.api_key (or MURMUR_TTS_API_KEY), point paths.catalog_file at a voice catalog, then run `murmur config validate`.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination (defaults to ~/.config/murmur/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveInitTarget(flag string) (string, error) {
	if target := strings.TrimSpace(flag); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	target, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and catalog and report problems",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(ctx.configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Config path: %s\n", path)
			} else {
				fmt.Fprintf(out, "Config path: %s (missing, defaults used)\n", path)
			}
			fmt.Fprintf(out, "TTS provider: %s\n", cfg.TTS.Provider)
			fmt.Fprintf(out, "Publish target: %s\n", cfg.Publish.Target)
			fmt.Fprintf(out, "Workers: %d\n", cfg.Workflow.Workers)

			cat, err := catalog.Load(cfg.Paths.CatalogFile)
			if err != nil {
				return fmt.Errorf("catalog %s: %w", cfg.Paths.CatalogFile, err)
			}
			fmt.Fprintf(out, "Catalog: %d voices, %d tracks\n", len(cat.Voices()), len(cat.Tracks()))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
