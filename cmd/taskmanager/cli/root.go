package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cathouse/taskmanager/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by /health and the MCP server
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskmanager",
		Short: "Task management API behind rotating service keys",
		Long: `Task Manager: a task management API for first-party client applications.

Clients authenticate with service keys that can be rotated without downtime, and
send every operation through a single command endpoint (POST /execute). Keys are
administered over the /admin API or with the 'key' subcommands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./taskmanager.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("taskmanager")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.taskmanager")
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())
	viper.ReadInConfig() // Ignore error - config file is optional
}
