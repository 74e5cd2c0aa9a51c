package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/zenithlabs/nexus/internal/api"
	"github.com/zenithlabs/nexus/internal/config"
	"github.com/zenithlabs/nexus/internal/engine"
	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/store"
	"github.com/zenithlabs/nexus/internal/terminal"
)

func main() {
	// Absent .env files are fine; the environment may be set externally.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("nexus: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	registry := buildRegistry(cfg)
	dispatcher := engine.NewDispatcher(registry, logger)
	broker := terminal.NewBroker()

	srv := api.NewServer(cfg.ListenAddr, db, registry, dispatcher, broker, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildRegistry registers one profile per configured provider. Registration
// order is failover order: Piston first (and its mirror, if any), then the
// other hosted providers, then local execution when enabled.
func buildRegistry(cfg config.Config) *executor.Registry {
	allLangs := []string{"java", "python", "javascript", "c", "cpp", "csharp"}

	reg := executor.NewRegistry(cfg.BreakerCooldown)

	reg.Register(executor.Profile{
		Name:     "piston",
		Aliases:  allLangs,
		Endpoint: cfg.PistonURL,
		Timeout:  cfg.HTTPTimeout,
	}, executor.NewPistonBackend("piston", cfg.PistonURL))

	if cfg.PistonMirrorURL != "" {
		reg.Register(executor.Profile{
			Name:     "piston-mirror",
			Aliases:  allLangs,
			Endpoint: cfg.PistonMirrorURL,
			Timeout:  cfg.HTTPTimeout,
		}, executor.NewPistonBackend("piston-mirror", cfg.PistonMirrorURL))
	}

	reg.Register(executor.Profile{
		Name:     "judge0",
		Aliases:  allLangs,
		Endpoint: cfg.Judge0URL,
		Timeout:  cfg.HTTPTimeout,
	}, executor.NewJudge0Backend("judge0", cfg.Judge0URL))

	reg.Register(executor.Profile{
		Name:     "wandbox",
		Aliases:  allLangs,
		Endpoint: cfg.WandboxURL,
		Timeout:  cfg.HTTPTimeout,
	}, executor.NewWandboxBackend("wandbox", cfg.WandboxURL))

	reg.Register(executor.Profile{
		Name:     "paiza",
		Aliases:  allLangs,
		Endpoint: cfg.PaizaURL,
		Timeout:  cfg.PaizaTimeout,
	}, executor.NewPaizaBackend("paiza", cfg.PaizaURL, cfg.PaizaAPIKey))

	reg.Register(executor.Profile{
		Name:     "onecompiler",
		Aliases:  allLangs,
		Endpoint: cfg.OneCompilerURL,
		Timeout:  cfg.HTTPTimeout,
	}, executor.NewOneCompilerBackend("onecompiler", cfg.OneCompilerURL))

	if cfg.LocalExec {
		reg.Register(executor.Profile{
			Name:    "local",
			Aliases: allLangs,
			Timeout: cfg.LocalTimeout,
		}, executor.NewLocalBackend("local", os.TempDir()))
	}

	return reg
}
