package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatbridge/internal/bus"
	"chatbridge/internal/channel"
	"chatbridge/internal/config"
	"chatbridge/internal/dispatch"
	"chatbridge/internal/domain"
	"chatbridge/internal/journal"
	"chatbridge/internal/media"
	"chatbridge/internal/metrics"
	"chatbridge/internal/normalize"
	"chatbridge/internal/provider"
	"chatbridge/internal/session"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, the enabled channels and the dispatch loop",
		Long:  "Serves the LINE webhook, the history admin routes and, when enabled, Telegram polling and metrics. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder session.Recorder
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer j.Close()
		recorder = j
		logger.Info("journal enabled", "path", cfg.Journal.DBPath)
	}

	timeout := time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second
	gen := cfg.Gemini.GenerationConfig
	backend, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.ModelName,
		SystemInstruction: cfg.Gemini.SystemInstruction,
		Generation: provider.GenerationConfig{
			Temperature:     gen.Temperature,
			TopP:            gen.TopP,
			TopK:            gen.TopK,
			MaxOutputTokens: gen.MaxOutputTokens,
		},
		HTTPTimeout: timeout + 10*time.Second,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("backend ready", "provider", backend.Name(), "model", backend.Model())

	sess := session.New(session.Config{
		Backend:  backend,
		Timeout:  timeout,
		Recorder: recorder,
		Logger:   logger,
	})
	sampler := media.Sampler{
		Interval:     cfg.Video.FrameInterval,
		MaxFrames:    cfg.Video.MaxFrames,
		MaxDimension: cfg.Video.MaxDimension,
	}
	if err := media.CheckDecoder(); err != nil {
		logger.Warn("video messages will fail", "err", err)
	}
	dispatcher := dispatch.New(dispatch.Config{
		Session:    sess,
		Normalizer: normalize.New(sampler, media.DecodeImage),
		Logger:     logger,
	})

	messageBus := bus.New(cfg.General.BusBuffer, logger)
	downloads := provider.SharedHTTPClient(0)

	var channels []domain.Channel
	var lineCh *channel.Line
	if cfg.Line.Enabled {
		lineCh, err = channel.NewLine(channel.LineConfig{
			ChannelSecret:      cfg.Line.ChannelSecret,
			ChannelAccessToken: cfg.Line.ChannelAccessToken,
			MaxImageBytes:      cfg.Image.MaxBytes,
			MaxVideoBytes:      cfg.Video.MaxBytes,
			HTTPClient:         downloads,
			Logger:             logger,
		})
		if err != nil {
			return err
		}
		dispatcher.Register(lineCh.Name(), lineCh)
		channels = append(channels, lineCh)
	}
	if cfg.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:         cfg.Telegram.Token,
			AllowFrom:     cfg.Telegram.AllowFrom,
			ParseMode:     cfg.Telegram.ParseMode,
			MaxImageBytes: cfg.Image.MaxBytes,
			MaxVideoBytes: cfg.Video.MaxBytes,
			HTTPClient:    downloads,
			Clearer:       sess,
			Logger:        logger,
		})
		dispatcher.Register(tg.Name(), tg)
		channels = append(channels, tg)
	}
	if len(channels) == 0 {
		logger.Warn("no channel enabled; only the history routes will be served")
	}

	loop := dispatch.NewLoop(dispatch.LoopConfig{
		Handler:      dispatcher,
		Bus:          messageBus,
		Workers:      cfg.General.Workers,
		FailureReply: cfg.General.FailureReply,
		Logger:       logger,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	srvCfg := channel.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Line:         lineCh,
		CallbackPath: cfg.Line.CallbackPath,
		History:      sess,
		HistoryPath:  cfg.Line.HistoryPath,
		Logger:       logger,
	}
	if cfg.Metrics.Enabled {
		srvCfg.Metrics = metrics.Collector.Handler()
		srvCfg.MetricsPath = cfg.Metrics.Endpoint
	}

	serveErr := channel.NewServer(srvCfg).Run(ctx)
	stop()
	logger.Info("shutting down")

	const shutdownTimeout = 10 * time.Second
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			_ = ch.Stop()
		}
		wg.Wait()
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
	return serveErr
}
