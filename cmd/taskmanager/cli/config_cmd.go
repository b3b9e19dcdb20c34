package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/cathouse/taskmanager/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Task Manager configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force       bool
		path        string
		promptAdmin bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default taskmanager.yaml configuration file",
		Example: `  taskmanager config init
  taskmanager config init --prompt-admin-key --path /etc/taskmanager/taskmanager.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(path, force, promptAdmin)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", config.DefaultFileName, "Where to write the file")
	cmd.Flags().BoolVar(&promptAdmin, "prompt-admin-key", false, "Prompt for the admin API key (input hidden)")

	return cmd
}

func runConfigInit(path string, force, promptAdmin bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	adminKey := ""
	if promptAdmin {
		key, err := promptSecret("Admin API key: ")
		if err != nil {
			return err
		}
		adminKey = key
	}

	if err := config.WriteDefaultConfig(path, adminKey); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	if adminKey == "" {
		fmt.Println("Set auth.admin_api_key (or ADMIN_API_KEY) before running 'taskmanager serve'.")
	}
	return nil
}

// promptSecret reads a secret from the terminal without echo, asking twice.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--prompt-admin-key needs an interactive terminal")
	}

	fmt.Print(label)
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	fmt.Print("Confirm: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	secret := strings.TrimSpace(string(first))
	if secret != strings.TrimSpace(string(second)) {
		return "", errors.New("values do not match")
	}
	if len(secret) < 16 {
		return "", errors.New("admin API key must be at least 16 characters")
	}
	return secret, nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("# Config file: %s\n", configFile)
	} else {
		fmt.Println("# Config file: (none found, using defaults and environment)")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("# Warning: %v\n", err)
	}

	data, err := config.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(string(data))
	return nil
}
