package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/quickutil/toolstats/internal/cli/env"
	"github.com/quickutil/toolstats/internal/config"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/util"
)

// BootstrapResult contains the loaded configuration and its origin.
type BootstrapResult struct {
	Config         *config.Config
	ConfigFilePath string
}

// Bootstrap initializes the application configuration: .env, config file
// (created on first run at the default location), env overrides, and the
// resolved admin key. Call before any command that needs configuration.
func Bootstrap(configPath string) (*BootstrapResult, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	defaultConfigPath := filepath.Join(util.ConfigDir(), "config.yaml")

	var cfg *config.Config
	var configFilePath string

	if configPath != "" {
		if resolved, errResolve := util.ResolvePath(configPath); errResolve == nil {
			configPath = resolved
		}
		configFilePath = configPath

		if configPath == defaultConfigPath {
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				autoInitConfig(configPath)
			}
		}
		cfg, err = config.LoadConfigOptional(configPath, true)
	} else {
		configFilePath = filepath.Join(wd, "config.yaml")
		cfg, err = config.LoadConfigOptional(configFilePath, true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	applyEnvOverrides(cfg)
	resolveAdminKey(cfg)
	resolveDSN(cfg)

	return &BootstrapResult{
		Config:         cfg,
		ConfigFilePath: configFilePath,
	}, nil
}

// autoInitConfig silently creates the config on first run.
func autoInitConfig(configPath string) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return
	}
	if err := os.WriteFile(configPath, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		return
	}
	fmt.Printf("First run: created config at %s\n", configPath)
}

// applyEnvOverrides applies environment variable overrides on top of the
// file-based configuration.
func applyEnvOverrides(cfg *config.Config) {
	if port, ok := env.LookupEnvInt("TOOLSTATS_PORT", "PORT"); ok {
		cfg.Port = port
		log.Infof("Port overridden by env: %d", port)
	}

	if debug, ok := env.LookupEnvBool("TOOLSTATS_DEBUG"); ok {
		cfg.Debug = debug
		log.Infof("Debug overridden by env: %v", debug)
	}

	if toFile, ok := env.LookupEnvBool("TOOLSTATS_LOGGING_TO_FILE"); ok {
		cfg.LoggingToFile = toFile
		log.Infof("Logging to file overridden by env: %v", toFile)
	}

	if dsn, ok := env.LookupEnv("TOOLSTATS_DSN"); ok {
		cfg.Usage.DSN = dsn
		log.Infof("Usage DSN overridden by env")
	}

	if services, ok := env.LookupEnv("TOOLSTATS_PUBLIC_IP_SERVICES"); ok {
		cfg.PublicIPServices = nil
		for _, s := range strings.Split(services, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				cfg.PublicIPServices = append(cfg.PublicIPServices, trimmed)
			}
		}
		log.Infof("Public IP services overridden by env: %d services", len(cfg.PublicIPServices))
	}

	if enabled, ok := env.LookupEnvBool("ANALYTICS_ENABLED"); ok {
		cfg.Client.Enabled = enabled
	}

	if baseURL, ok := env.LookupEnv("API_BASE_URL"); ok {
		cfg.Client.BaseURL = baseURL
	}
}

// resolveAdminKey fills cfg.AdminKey from the credentials chain when the
// config file left it empty. An empty result disables the admin routes;
// there is deliberately no baked-in default key.
func resolveAdminKey(cfg *config.Config) {
	if cfg.AdminKey != "" {
		return
	}
	cfg.AdminKey = config.GetAdminKey()
	if cfg.AdminKey == "" {
		log.Warnf("No admin key configured; /api/admin routes are disabled. Run 'toolstats init' to generate one.")
	}
}

// resolveDSN picks the storage DSN: explicit DSN, then DB_* variables
// assembled into a postgres URL, then the default SQLite database under
// the config directory.
func resolveDSN(cfg *config.Config) {
	if cfg.Usage.DSN != "" {
		return
	}
	if dsn := config.DSNFromDBEnv(env.LookupEnv); dsn != "" {
		cfg.Usage.DSN = dsn
		log.Infof("Storage DSN assembled from DB_* environment")
		return
	}
	dir := util.ConfigDir()
	if dir == "" {
		dir = "."
	}
	cfg.Usage.DSN = "sqlite://" + filepath.Join(dir, "toolstats.sqlite")
}
