package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sftpush/internal/app"
	"sftpush/internal/daemon"
	"sftpush/pkg/config"
	"sftpush/pkg/logger"
	"sftpush/pkg/publisher"
)

const (
	defaultConfigPath = "/etc/sftpush/sftpushd.toml"
	shutdownTimeout   = 30 * time.Second
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sftpushd",
		Short:         "Queue worker running sftpush settings files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process queued uploads and serve the publish API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return err
			}

			log, err := newLogger(cfg, cmd)
			if err != nil {
				return err
			}
			defer log.Close()

			svc, err := daemon.NewDaemonService(cfg, log)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("starting sftpush daemon", map[string]any{"version": app.Version})
				return svc.Start()
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("received shutdown signal", nil)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return svc.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				log.Error("daemon stopped with error", err, nil)
				return err
			}
			log.Info("daemon stopped successfully", nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "path to config file")
	return cmd
}

func newPublishCmd() *cobra.Command {
	var configPath, settingsPath, keyPath string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Queue an upload of a settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return err
			}

			log := logger.New(cmd.OutOrStdout())
			pub, err := publisher.NewPublisher(cfg, log)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}
			defer pub.Close()

			info, err := pub.PublishUploadTask(settingsPath, keyPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued task %s\n", info.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "settings file written by sftpush")
	cmd.Flags().StringVar(&keyPath, "key", "", "key file of an encrypted settings file")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sftpushd %s\n", app.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  go: %s\n", runtime.Version())
		},
	}
}

func newLogger(cfg *config.Config, cmd *cobra.Command) (*logger.Logger, error) {
	log := logger.New(cmd.OutOrStdout())

	level, err := logger.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	if dir := cfg.Daemon.LogDirectory; dir != "" {
		if _, err := log.AddFileSink(dir); err != nil {
			return nil, err
		}
	}
	return log, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("sftpushd failed", err, nil)
		os.Exit(1)
	}
}
