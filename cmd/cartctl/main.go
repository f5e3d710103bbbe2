package main

import (
	"fmt"
	"os"

	"github.com/fjod/cartsync/internal/client/bridge"
	"github.com/fjod/cartsync/internal/client/remote"
	"github.com/fjod/cartsync/internal/client/storage"
	"github.com/fjod/cartsync/internal/client/store"
	"github.com/fjod/cartsync/internal/config"
	"github.com/fjod/cartsync/pkg/logger"
)

func main() {
	cfg := config.LoadClient()
	log := logger.New(logger.Options{Service: "cartctl", Level: cfg.LogLevel, Output: os.Stderr})

	var st storage.Storage
	db, err := storage.OpenSQLite(cfg.StatePath)
	if err != nil {
		log.Warn("persistent cart storage unavailable, keeping state in memory", "path", cfg.StatePath, "error", err)
	} else {
		defer db.Close()
		st = db
	}

	cart := store.New(st, log)
	client := remote.New(remote.Options{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout, Log: log})
	syncer := bridge.New(client, cart, bridge.Options{Debounce: cfg.SyncDebounce, Log: log})
	defer syncer.Close()

	if cfg.Token != "" {
		if err := syncer.Authenticate(cfg.Token); err != nil {
			log.Error("failed to start session", "error", err)
		}
	}

	sh := &shell{
		store:    cart,
		session:  syncer,
		products: client,
		timeout:  cfg.RequestTimeout,
		out:      os.Stdout,
	}
	fmt.Fprintln(os.Stdout, "cartctl: type help for commands")
	if err := sh.run(os.Stdin); err != nil {
		log.Error("reading input", "error", err)
	}
}
