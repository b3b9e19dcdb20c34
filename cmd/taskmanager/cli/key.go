package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"service-key"},
		Short:   "Manage service keys",
		Long:    "Issue, rotate, list, and revoke the service keys client applications use to call POST /execute.",
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// withKeyService opens the configured store and runs fn with a KeyService.
func withKeyService(fn func(ctx context.Context, keys *service.KeyService) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, service.NewKeyService(st, stderrLogger(), cfg.Auth.RotationGracePeriod, nil))
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:     "issue <name>",
		Aliases: []string{"create"},
		Short:   "Issue a new service key",
		Long:    "Generate a service key for a client application. The secret is shown once and cannot be retrieved again.",
		Example: `  taskmanager key issue mobile-app --env prod
  taskmanager key issue web-dashboard --env dev`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyIssue(args[0], env)
		},
	}

	cmd.Flags().StringVar(&env, "env", model.EnvironmentProd, "Key environment (prod or dev)")

	return cmd
}

func runKeyIssue(name, env string) error {
	return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
		issued, err := keys.Issue(ctx, name, env)
		if err != nil {
			return fmt.Errorf("issue service key: %w", err)
		}

		fmt.Println("Service key issued:")
		fmt.Println()
		fmt.Printf("  Name:  %s\n", issued.KeyName)
		fmt.Printf("  ID:    %s\n", issued.ID)
		fmt.Printf("  Key:   %s\n", issued.ServiceKey)
		fmt.Println()
		fmt.Println("  Save this key now - it cannot be retrieved again.")
		return nil
	})
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate <name>",
		Short: "Rotate a service key",
		Long: `Issue a replacement secret for a key name. The current secret keeps working
until the end of the rotation grace period (auth.rotation_grace_period).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRotate(args[0])
		},
	}

	return cmd
}

func runKeyRotate(name string) error {
	return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
		rotated, err := keys.Rotate(ctx, name)
		if err != nil {
			return fmt.Errorf("rotate service key: %w", err)
		}

		fmt.Println("Service key rotated:")
		fmt.Println()
		fmt.Printf("  Name:            %s\n", name)
		fmt.Printf("  New key:         %s\n", rotated.NewKey)
		fmt.Printf("  Old key expires: %s\n", rotated.OldKeyExpiresAt.Format(time.RFC3339))
		fmt.Println()
		fmt.Println("  Deploy the new key before the old one expires.")
		return nil
	})
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all service keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
		list, err := keys.List(ctx)
		if err != nil {
			return fmt.Errorf("list service keys: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(model.ServiceKeyListResponse{Keys: list, Count: len(list)})
		}

		if len(list) == 0 {
			fmt.Println("No service keys issued. Use 'taskmanager key issue' to create one.")
			return nil
		}

		now := time.Now()
		fmt.Printf("%-36s %-24s %-4s %-18s %-10s %-20s\n", "ID", "NAME", "GEN", "PREFIX", "STATUS", "EXPIRES")
		fmt.Printf("%-36s %-24s %-4s %-18s %-10s %-20s\n", "--", "----", "---", "------", "------", "-------")
		for _, k := range list {
			expires := "never"
			if k.ExpiresAt != nil {
				expires = k.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Printf("%-36s %-24s %-4d %-18s %-10s %-20s\n",
				k.ID, k.KeyName, k.Generation, k.KeyPrefix, keyStatus(&k, now), expires)
		}
		return nil
	})
}

func keyStatus(k *model.ServiceKey, now time.Time) string {
	switch {
	case !k.Active:
		return "revoked"
	case !k.Usable(now):
		return "expired"
	case k.ExpiresAt != nil:
		return "expiring"
	default:
		return "active"
	}
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id|prefix>",
		Short: "Revoke a service key by id or display prefix",
		Long:  "Deactivate a service key immediately, preventing any further authenticated requests using it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(ref string) error {
	return withKeyService(func(ctx context.Context, keys *service.KeyService) error {
		id := ref
		if _, err := uuid.Parse(ref); err != nil {
			list, err := keys.List(ctx)
			if err != nil {
				return fmt.Errorf("list service keys: %w", err)
			}
			match, err := matchPrefix(list, ref)
			if err != nil {
				return err
			}
			id = match.ID
		}

		if err := keys.Revoke(ctx, id); err != nil {
			return fmt.Errorf("revoke service key: %w", err)
		}
		fmt.Printf("Revoked service key %s\n", id)
		return nil
	})
}

// matchPrefix finds the single active key whose display prefix starts with
// prefix. Ambiguous prefixes are rejected.
func matchPrefix(keys []model.ServiceKey, prefix string) (*model.ServiceKey, error) {
	var found *model.ServiceKey
	for i := range keys {
		if !keys[i].Active || !strings.HasPrefix(keys[i].KeyPrefix, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("prefix %q matches more than one active key; use the id", prefix)
		}
		found = &keys[i]
	}
	if found == nil {
		return nil, fmt.Errorf("no active service key found with prefix %q", prefix)
	}
	return found, nil
}
