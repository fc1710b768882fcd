package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "botgate",
	Short: "HTTP gateway for multiple messaging-platform accounts",
	Long: `Botgate exposes one HTTP control plane over several independent
messaging accounts, each possibly on a different platform. Callers
send messages and import contacts through a uniform API; inbound
replies are matched against registered one-shot handlers and
forwarded to webhooks.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".botgate.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
