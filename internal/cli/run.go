package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/cloudsync"
	"github.com/quietlabs/engram/internal/config"
	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/notify"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engram daemon",
		Long: "Run the background loops: scheduled pruning, cloud sync when enabled,\n" +
			"and live config reload. Stops cleanly on SIGINT/SIGTERM, finishing with\n" +
			"a final sync round.",
		Run: runDaemon,
	}

	RootCmd.AddCommand(cmd)
}

func runDaemon(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	obs := newObserver(cmd)

	eng := fusion.NewEngine(cfg.User.UserID, obs)
	mgr, err := openManager(cfg, obs, eng)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go mgr.RunPruneLoop(ctx, 24*time.Hour)

	var syncer *cloudsync.Syncer
	if cfg.Sync.Enabled {
		transport, terr := cloudsync.NewDirTransport(cfg.Sync.Dir)
		if terr != nil {
			exitErr("sync transport", terr)
		}
		resolver, rerr := cloudsync.NewResolver(cloudsync.Strategy(cfg.Sync.ConflictStrategy))
		if rerr != nil {
			exitErr("sync resolver", rerr)
		}
		syncer, err = cloudsync.NewSyncer(mgr, transport, cloudsync.Options{
			Resolver: resolver,
			Observer: obs,
		})
		if err != nil {
			exitErr("sync", err)
		}
		go syncer.Run(ctx, cfg.SyncInterval())
	}

	// Live reload only makes sense with an explicit config file.
	if configPath != "" {
		watcher := notify.NewConfigWatcher(configPath, obs, func(next *config.Config) {
			mgr.SetRetentionDays(next.Storage.RetentionDays)
		})
		if werr := watcher.Start(); werr != nil {
			obs.Log().Warn().Err(werr).Msg("config watch unavailable")
		} else {
			defer watcher.Stop()
		}
	}

	obs.Log().Info().
		Str("engine", cfg.Storage.Engine).
		Bool("sync", cfg.Sync.Enabled).
		Str("user", cfg.User.UserID).
		Msg("engram daemon started")

	<-ctx.Done()
	stop()

	obs.Log().Info().Msg("shutting down")

	if syncer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, serr := syncer.SyncOnce(shutdownCtx); serr != nil &&
			!errors.Is(serr, cloudsync.ErrRateLimited) && !errors.Is(serr, cloudsync.ErrCircuitOpen) {
			obs.Log().Error().Err(serr).Msg("final sync failed")
		}
	}
}
