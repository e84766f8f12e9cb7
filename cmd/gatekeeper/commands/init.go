package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/app"
	"github.com/f7las/gatekeeper/internal/config"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config and a sample workspace",
		RunE:  runInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite sample files that already exist")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	force := false
	if cmd != nil {
		force, _ = cmd.Flags().GetBool("force")
	}

	configPath := config.ConfigPath()
	if configPathFlag != "" {
		configPath = configPathFlag
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		loaded, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
		if err := config.SaveTo(configPath, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(filepath.Join(workspace, "state"), 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	written, err := app.WriteSamples(workspace, force)
	if err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	fmt.Printf("gatekeeper initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Workspace: %s\n", workspace)
	for _, path := range written {
		fmt.Printf("  wrote %s\n", path)
	}
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to describe your tools\n", cfg.ContractsPath())
	fmt.Printf("2. Add rules under %s\n", cfg.PoliciesDir())
	fmt.Printf("3. Run 'gatekeeper execute signin_logs' to try the pipeline\n")

	return nil
}
