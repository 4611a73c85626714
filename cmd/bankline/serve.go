package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/bankline/internal/auth"
	"github.com/zulandar/bankline/internal/bridge"
	"github.com/zulandar/bankline/internal/config"
	"github.com/zulandar/bankline/internal/conversation"
	"github.com/zulandar/bankline/internal/db"
	"github.com/zulandar/bankline/internal/escalation"
	"github.com/zulandar/bankline/internal/openaichat"
	"github.com/zulandar/bankline/internal/server"
	"github.com/zulandar/bankline/internal/sessions"
	"gorm.io/gorm"
)

// purgeSchedule clears expired OTP codes.
const purgeSchedule = "@every 15m"

func newServeCmd() *cobra.Command {
	var (
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the language worker",
		Long: "Starts the supervised language worker, then serves the banking chat API " +
			"until interrupted. The worker is restarted if it exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config, 8000)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	dispatcher := bridge.NewDispatcher(bridge.DispatcherOpts{
		CallTimeout: cfg.Worker.CallTimeout,
		Logger:      log,
	})
	sup, err := bridge.NewSupervisor(bridge.SupervisorOpts{
		Spawner: &bridge.ExecSpawner{
			Command: cfg.Worker.Command,
			Args:    cfg.Worker.Args,
			Dir:     cfg.Worker.Dir,
			Env:     cfg.Worker.Env,
		},
		Dispatcher:     dispatcher,
		DB:             gormDB,
		Logger:         log,
		RestartBackoff: cfg.Worker.RestartBackoff,
		MaxBackoff:     cfg.Worker.MaxBackoff,
		StableAfter:    cfg.Worker.StableAfter,
		StopTimeout:    cfg.Worker.StopTimeout,
	})
	if err != nil {
		return err
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Worker.StopTimeout*2)
		defer stopCancel()
		if err := sup.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("stop worker")
		}
	}()

	worker := bridge.NewClient(dispatcher)
	srv, purger, err := buildServices(ctx, cfg, gormDB, worker, sup, log, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(purgeSchedule, func() {
		n, err := purger.PurgeExpired(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("purge expired otps")
			return
		}
		if n > 0 {
			log.Info().Int64("cleared", n).Msg("purged expired otps")
		}
	}); err != nil {
		return fmt.Errorf("schedule otp purge: %w", err)
	}
	c.Start()
	defer c.Stop()

	return srv.Start(ctx)
}

// buildServices wires the stores, the conversation machine and the HTTP
// server on top of an open database and a running worker.
func buildServices(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, worker *bridge.Client,
	health server.Health, log zerolog.Logger, out io.Writer) (*server.Server, *auth.Service, error) {
	chat, err := newChatBackend(cfg.Chat, worker, log)
	if err != nil {
		return nil, nil, err
	}

	sms, err := auth.NewSMSSender(ctx, cfg.Auth.SMS, log)
	if err != nil {
		return nil, nil, err
	}
	sessStore, err := sessions.NewStore(sessions.StoreOpts{DB: gormDB, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	authSvc, err := auth.NewService(auth.ServiceOpts{
		DB:       gormDB,
		Sessions: sessStore,
		SMS:      sms,
		OTPTTL:   cfg.Auth.OTPTTL,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, err
	}

	notifiers, err := buildNotifiers(cfg.Escalation)
	if err != nil {
		return nil, nil, err
	}
	escStore, err := escalation.NewStore(escalation.StoreOpts{
		DB:        gormDB,
		Notifiers: notifiers,
		SMS:       sms,
		Logger:    log,
	})
	if err != nil {
		return nil, nil, err
	}

	machine, err := conversation.NewMachine(conversation.MachineOpts{
		OTP:          authSvc,
		Chat:         chat,
		Escalator:    escStore,
		Recorder:     sessStore,
		SupportPhone: cfg.Escalation.SupportPhone,
		Logger:       log,
	})
	if err != nil {
		return nil, nil, err
	}
	mgr, err := conversation.NewManager(conversation.ManagerOpts{
		Machine:         machine,
		DefaultLanguage: cfg.Conversation.DefaultLanguage,
		IdleTimeout:     cfg.Conversation.IdleTimeout,
		Logger:          log,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.RunSweeper(ctx, cfg.Conversation.SweepSchedule); err != nil {
		return nil, nil, err
	}

	srv, err := server.New(server.Opts{
		Auth:          authSvc,
		Sessions:      sessStore,
		Escalations:   escStore,
		Conversations: mgr,
		Chat:          chat,
		Worker:        worker,
		Health:        health,
		Port:          cfg.Server.Port,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Logger:        log,
		Out:           out,
	})
	if err != nil {
		return nil, nil, err
	}
	return srv, authSvc, nil
}

// newChatBackend returns the configured banking chat: the worker itself or
// the openai backend.
func newChatBackend(cfg config.ChatConfig, worker *bridge.Client, log zerolog.Logger) (conversation.BankingChat, error) {
	switch cfg.Backend {
	case "", "worker":
		return worker, nil
	case "openai":
		b, err := openaichat.New(openaichat.Opts{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported chat backend %q", cfg.Backend)
	}
}

// buildNotifiers returns a notifier for each configured support channel.
func buildNotifiers(cfg config.EscalationConfig) ([]escalation.Notifier, error) {
	var notifiers []escalation.Notifier
	if cfg.Slack.Enabled() {
		n, err := escalation.NewSlackNotifier(escalation.SlackOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.Discord.Enabled() {
		n, err := escalation.NewDiscordNotifier(escalation.DiscordOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}
