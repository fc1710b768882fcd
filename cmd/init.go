package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ameskov/botgate/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a botgate configuration interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard()
		if err != nil {
			return fmt.Errorf("running wizard: %w", err)
		}
		fmt.Printf("Configured %d bot(s). Run `botgate serve` to start the gateway.\n", len(cfg.Bots))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
