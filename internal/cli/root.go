// Package cli implements the engram CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quietlabs/engram/internal/config"
	"github.com/quietlabs/engram/internal/crypto"
	"github.com/quietlabs/engram/internal/fusion"
	"github.com/quietlabs/engram/internal/memory"
	"github.com/quietlabs/engram/internal/observe"
	"github.com/quietlabs/engram/internal/storage"
	"github.com/quietlabs/engram/internal/storage/postgres"
	"github.com/quietlabs/engram/internal/storage/sqlite"
)

var (
	configPath string
	verbose    bool
	logJSON    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engramd",
	Short: "Local-first encrypted memory and context engine",
	Long: "Engram stores memories encrypted at rest in SQLite or Postgres, fuses\n" +
		"context from registered sources, and can replicate to a remote through\n" +
		"pluggable sync transports.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $ENGRAM_CONFIG)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	RootCmd.PersistentFlags().Bool("log-json", false, "JSON log output")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func newObserver(cmd *cobra.Command) *observe.Observer {
	logJSON, _ = cmd.Flags().GetBool("log-json")
	if logJSON {
		return observe.NewJSON(os.Stderr, verbose)
	}
	return observe.New(os.Stderr, verbose)
}

// openManager builds the memory manager from configuration: storage backend,
// encryption, and the fusion engine. The caller owns Close.
func openManager(cfg *config.Config, obs *observe.Observer, eng *fusion.Engine) (*memory.Manager, error) {
	var (
		store storage.RecordStore
		err   error
	)
	switch cfg.Storage.Engine {
	case "postgres":
		store, err = postgres.NewRecordStore(cfg.Storage.PostgresDSN)
	default:
		if mkErr := os.MkdirAll(cfg.Storage.DataPath, 0o700); mkErr != nil {
			return nil, fmt.Errorf("create data directory: %w", mkErr)
		}
		store, err = sqlite.NewRecordStore(cfg.DatabasePath())
	}
	if err != nil {
		return nil, err
	}

	opts := memory.Options{
		Fusion:        eng,
		RetentionDays: cfg.Storage.RetentionDays,
		Observer:      obs,
	}
	if cfg.Security.EncryptionEnabled {
		key, keyErr := crypto.LoadOrCreateKey(cfg.KeyPath())
		if keyErr != nil {
			store.Close()
			return nil, keyErr
		}
		cipher, cipherErr := crypto.NewAESCipher(key)
		if cipherErr != nil {
			store.Close()
			return nil, cipherErr
		}
		opts.Cipher = cipher
		opts.KeyID = "master"
	}

	mgr, err := memory.NewManager(store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return mgr, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
