// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/csmine/csmined/internal/api"
	"github.com/csmine/csmined/internal/mining"
)

// newAPI returns a new API configured with the provided details that is ready
// to run.
func newAPI(cfg *config, engine *mining.Engine) (*api.API, error) {
	passHash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPass),
		bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acfg := &api.Config{
		Listen:             cfg.APIListen,
		AdminPassHash:      passHash,
		Paused:             engine.Paused,
		SetPaused:          engine.SetPaused,
		LastBlockNumber:    engine.LastBlockNumber,
		NetworkStats:       engine.NetworkStats,
		FetchLatestBlocks:  engine.FetchLatestBlocks,
		FetchMinerRewards:  engine.FetchMinerRewards,
		ReconcileHashrates: engine.ReconcileHashrates,
		BlockNotifications: engine.BlockNotifications,
	}

	return api.NewAPI(acfg), nil
}

// realMain is the real main function for csmined.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func realMain() error {
	// Load configuration and parse command line. This also initializes
	// logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context whose done channel will be closed when a shutdown signal
	// has been triggered from an OS signal such as SIGINT (Ctrl+C) or when
	// the returned cancel function is manually called.
	//
	// Primary context that controls the entire process.
	ctx, cancel := shutdownListener()
	defer mainLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	mainLog.Infof("Version %s (Go version %s %s/%s)", version(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	mainLog.Infof("Home dir: %s", cfg.HomeDir)

	var db mining.Database
	if cfg.UsePostgres {
		db, err = mining.InitPostgresDB(cfg.PGHost, cfg.PGPort, cfg.PGUser,
			cfg.PGPass, cfg.PGDBName)
	} else {
		db, err = mining.InitBoltDB(cfg.DBFile)
	}
	if err != nil {
		cancel()
		mainLog.Errorf("failed to initialize database: %v", err)
		return err
	}
	defer db.Close()

	if cfg.Profile != "" {
		// Start the profiler.
		go func() {
			listenAddr := cfg.Profile
			mainLog.Infof("Creating profiling server listening on %s",
				listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			server := &http.Server{
				Addr:              listenAddr,
				ReadHeaderTimeout: time.Second * 3,
			}
			err := server.ListenAndServe()
			if err != nil {
				mainLog.Critical(err)
				cancel()
			}
		}()
	}

	// Create the mining engine.
	engine := mining.NewEngine(&mining.EngineConfig{
		DB:           db,
		BlockReward:  cfg.BlockReward,
		MineInterval: time.Duration(cfg.MineInterval) * time.Second,
	})

	// Create an api instance.
	apiServer, err := newAPI(cfg, engine)
	if err != nil {
		cancel()
		mainLog.Errorf("unable to initialize API: %v", err)
		return err
	}

	// Run the engine and the API in the background.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		// Ensure the overall process context is cancelled once Run returns
		// since the daemon can't operate without the engine.
		engine.Run(ctx)
		cancel()
		wg.Done()
	}()
	go func() {
		apiServer.Run(ctx)
		wg.Done()
	}()
	wg.Wait()

	// Write a backup of the DB (if not using postgres) once the engine
	// shuts down.
	if !cfg.UsePostgres {
		mainLog.Info("Backing up database.")
		err = db.Backup(mining.BoltBackupFile)
		if err != nil {
			mainLog.Errorf("Failed to write database backup file: %v", err)
		}
	}

	mainLog.Info("Engine shutdown complete")
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
