package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quickutil/toolstats/internal/config"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/util"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config and generate the admin key",
	Long: `Initialize the toolstats configuration and generate an admin key.

On first run this creates the config file and credentials. If credentials
already exist, the current admin key is shown instead.

Use --force to regenerate the admin key.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath := cfgFile
		if configPath == "" {
			configPath = "$XDG_CONFIG_HOME/toolstats/config.yaml"
		}
		if err := doInitConfig(configPath, forceInit); err != nil {
			log.Fatalf("Init failed: %v", err)
		}
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "force regenerate admin key")
	rootCmd.AddCommand(initCmd)
}

func doInitConfig(configPath string, force bool) error {
	configPath, _ = util.ResolvePath(configPath)
	credPath := config.CredentialsFilePath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if !util.FileExists(configPath) {
		if err := os.WriteFile(configPath, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Created: %s\n", configPath)
	}

	if util.FileExists(credPath) && !force {
		if key := config.GetAdminKey(); key != "" {
			fmt.Printf("Admin key: %s\n", key)
			fmt.Printf("Location: %s\n", credPath)
			fmt.Println("Use 'init --force' to regenerate")
			return nil
		}
	}

	key, err := config.CreateCredentials()
	if err != nil {
		return fmt.Errorf("failed to create credentials: %w", err)
	}

	if force {
		fmt.Println("Regenerated admin key:")
	} else {
		fmt.Println("Generated admin key:")
	}
	fmt.Printf("  %s\n", key)
	fmt.Printf("Location: %s\n", credPath)
	return nil
}
