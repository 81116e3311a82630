package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/database"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"
	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog/log"
)

func main() {
	var module string
	var command string

	flag.StringVar(&module, "module", "saas", "Module to migrate (saas)")
	flag.StringVar(&command, "cmd", "up", "Migration command (up, down, version, force, steps)")
	flag.Parse()

	cfg := config.LoadConfig()
	utils.InitLogger(cfg.LogLevel, !cfg.IsProduction())

	migrationDir := fmt.Sprintf("migrations/%s", module)

	log.Info().
		Str("module", module).
		Str("path", migrationDir).
		Str("database", database.MaskDatabaseURL(cfg.DatabaseURL)).
		Msg("🔄 Running migrations")

	m, err := database.NewMigrator(cfg.DatabaseURL, migrationDir)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to create migrate instance")
	}
	defer m.Close()

	switch command {
	case "up":
		log.Info().Msg("⬆️  Running UP migrations...")
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("❌ Migration UP failed")
		}
		log.Info().Msg("✅ Migrations UP completed!")

	case "down":
		log.Info().Msg("⬇️  Running DOWN migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("❌ Migration DOWN failed")
		}
		log.Info().Msg("✅ Migrations DOWN completed!")

	case "steps":
		var n int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &n); err != nil || n == 0 {
			log.Fatal().Msg("❌ Please provide a non-zero step count for steps command")
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Int("steps", n).Msg("❌ Migration steps failed")
		}
		log.Info().Int("steps", n).Msg("✅ Migration steps completed!")

	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatal().Err(err).Msg("❌ Failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("📌 Current version")

	case "force":
		if len(flag.Args()) < 1 {
			log.Fatal().Msg("❌ Please provide version number for force command")
		}
		var forceVersion int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &forceVersion); err != nil {
			log.Fatal().Err(err).Msg("❌ Invalid version number")
		}
		if err := m.Force(forceVersion); err != nil {
			log.Fatal().Err(err).Msg("❌ Force failed")
		}
		log.Info().Int("version", forceVersion).Msg("✅ Forced version")

	default:
		log.Fatal().Str("cmd", command).Msg("❌ Unknown command (use: up, down, steps, version, force)")
	}
}
