package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/rlm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		masked := cfg.Masked()
		if jsonOut {
			return printJSON(masked)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("%s %s\n", mutedStyle.Render("user:   "), config.GetUserConfigPath())
		fmt.Printf("%s %s\n", mutedStyle.Render("project:"), project)
		source := cfg.Delegate.KeySource()
		fmt.Printf("%s %s\n", mutedStyle.Render("api key:"), source)
		if source != config.KeySourceNone {
			key, _ := cfg.Delegate.Key()
			if err := config.ValidateAPIKey(key); err != nil {
				printStatus("⚠", err.Error(), color.FgYellow)
			}
		}
		fmt.Printf("%s %s\n", mutedStyle.Render("provider:"), cfg.Delegate.ResolvedProvider())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
