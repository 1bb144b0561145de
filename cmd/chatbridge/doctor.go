package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"chatbridge/internal/config"
	"chatbridge/internal/journal"
	"chatbridge/internal/media"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("chatbridge doctor v%s\n\n", version)

			var r report

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'chatbridge init' to create a configuration.\n")
				return r.summary()
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			if cfg.Gemini.APIKey == "" {
				r.fail("Gemini", "gemini.apiKey is empty")
			} else {
				r.pass("Gemini", "model "+cfg.Gemini.ModelName)
			}

			if err := media.CheckDecoder(); err != nil {
				r.warn("Video decoder", err.Error()+"; video messages will fail")
			} else {
				r.pass("Video decoder", "ffmpeg and ffprobe on PATH")
			}

			if !cfg.Line.Enabled && !cfg.Telegram.Enabled {
				r.warn("Channels", "no channel enabled")
			}
			if cfg.Line.Enabled {
				r.pass("LINE", "callback at "+cfg.Line.CallbackPath)
			}
			if cfg.Telegram.Enabled {
				r.pass("Telegram", "token configured")
			}

			if cfg.Journal.Enabled {
				if err := checkJournal(cfg.Journal.DBPath); err != nil {
					r.fail("Journal", err.Error())
				} else {
					r.pass("Journal", cfg.Journal.DBPath)
				}
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Server port", fmt.Sprintf("%d available", cfg.Server.Port))
			}

			return r.summary()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkJournal opens (and migrates) the journal and reads from it.
func checkJournal(path string) error {
	j, err := journal.Open(path, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = j.Recent(ctx, 1)
	return err
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
