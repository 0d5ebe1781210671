package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/cloudsync"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync round against the replica",
		Run:   runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	obs := newObserver(cmd)

	if cfg.Sync.Dir == "" {
		exitErr("sync", fmt.Errorf("no replica directory configured (sync.dir / ENGRAM_SYNC_DIR)"))
	}

	mgr, err := openManager(cfg, obs, nil)
	if err != nil {
		exitErr("open store", err)
	}
	defer mgr.Close()

	transport, err := cloudsync.NewDirTransport(cfg.Sync.Dir)
	if err != nil {
		exitErr("sync", err)
	}
	resolver, err := cloudsync.NewResolver(cloudsync.Strategy(cfg.Sync.ConflictStrategy))
	if err != nil {
		exitErr("sync", err)
	}

	syncer, err := cloudsync.NewSyncer(mgr, transport, cloudsync.Options{
		Resolver: resolver,
		Observer: obs,
	})
	if err != nil {
		exitErr("sync", err)
	}

	report, err := syncer.SyncOnce(cmd.Context())
	if err != nil {
		exitErr("sync", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
