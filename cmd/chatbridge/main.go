package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chatbridge/internal/config"
	"chatbridge/internal/journal"
	"chatbridge/internal/media"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "chatbridge",
		Short:   "chatbridge: LINE and Telegram bridge to a multimodal Gemini conversation",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.chatbridge/config.json)")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(sampleCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file that reads credentials from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Template()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Set LINE_CHANNEL_SECRET, LINE_CHANNEL_ACCESS_TOKEN and GEMINI_API_KEY, then run 'chatbridge serve'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. video.frameInterval)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. video.maxFrames 60)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			for _, k := range config.SortedPaths(paths) {
				fmt.Printf("%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.ExpandPath(resolveConfigPath()))
		},
	})

	return cmd
}

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the most recent transcript entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			j, err := journal.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			rows, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Println(formatRow(r))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func formatRow(r journal.Row) string {
	ts := r.At.Format(time.DateTime)
	if r.Kind == "clear" {
		return fmt.Sprintf("%s  --- conversation cleared ---", ts)
	}
	line := fmt.Sprintf("%s  %-9s %s", ts, r.Role, r.Text)
	if r.ImageParts > 0 {
		line += fmt.Sprintf(" [+%d image(s)]", r.ImageParts)
	}
	return line
}

func sampleCmd() *cobra.Command {
	var interval, maxFrames, maxDim int
	cmd := &cobra.Command{
		Use:   "sample [video file]",
		Short: "Run the frame sampler on a local video and report what would be sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sampler := media.Sampler{Interval: interval, MaxFrames: maxFrames, MaxDimension: maxDim}
			start := time.Now()
			frames, err := sampler.Sample(data)
			if err != nil {
				return err
			}
			b := frames[0].Bounds()
			fmt.Printf("%d frame(s), %dx%d, sampled in %s\n", len(frames), b.Dx(), b.Dy(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval", media.DefaultFrameInterval, "keep every n-th frame")
	cmd.Flags().IntVar(&maxFrames, "max-frames", media.DefaultMaxFrames, "stop after this many frames")
	cmd.Flags().IntVar(&maxDim, "max-dimension", 768, "scale frames to fit this size (0 keeps source size)")
	return cmd
}
