package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instalist/instalist-server/internal/auth"
	"github.com/instalist/instalist-server/internal/config"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/services"
)

// NewGroupCommand creates the group command and its subcommands.
func NewGroupCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage device groups",
	}
	cmd.AddCommand(newGroupCreateCommand(opts))
	return cmd
}

type groupOutput struct {
	ID          uint64 `json:"id"`
	PairingCode string `json:"pairingCode"`
}

func newGroupCreateCommand(_ *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group and print its pairing code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			db, closeDB, err := openDB(cfg, false)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := services.NewPairingService(db, repo.Store{}, auth.NewBcryptHasher(cfg.Auth.BcryptCost))
			svc.MaxAttempts = cfg.Auth.PairingCodeAttempts
			g, err := svc.CreateGroup(cmd.Context())
			if err != nil {
				return fmt.Errorf("create group: %w", err)
			}

			out := groupOutput{ID: g.ID}
			if g.PairingCode != nil {
				out.PairingCode = *g.PairingCode
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(w, "group %d\npairing code %s\n", out.ID, out.PairingCode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
