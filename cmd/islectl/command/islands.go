package command

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pixil98/go-isleborn/internal/display"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/storage"
)

type islandReply struct {
	Island   storage.Document `json:"island"`
	Degraded bool             `json:"degraded"`
	Tier     string           `json:"tier"`
}

func newIslandCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "island",
		Short: "Read and write persisted islands",
	}
	cmd.AddCommand(newIslandGetCmd(opts), newIslandSetCmd(opts))
	return cmd
}

func newIslandGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get OWNER",
		Short: "Show an owner's island",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out islandReply
			if err := opts.client().do(cmd.Context(), http.MethodGet, ownerPath("/islands/", args[0], ""), nil, &out); err != nil {
				return err
			}
			return display.Island(cmd.OutOrStdout(), out.Island, out.Tier, out.Degraded)
		},
	}
}

func newIslandSetCmd(opts *options) *cobra.Command {
	var (
		name  string
		level int
		state string
	)
	cmd := &cobra.Command{
		Use:   "set OWNER",
		Short: "Update fields of an owner's island",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u island.Update
			if cmd.Flags().Changed("name") {
				u.OwnerName = &name
			}
			if cmd.Flags().Changed("level") {
				u.Level = &level
			}
			if state != "" {
				if !json.Valid([]byte(state)) {
					return fmt.Errorf("--state must be valid json")
				}
				u.State = json.RawMessage(state)
			}

			var out islandReply
			if err := opts.client().do(cmd.Context(), http.MethodPut, ownerPath("/islands/", args[0], ""), u, &out); err != nil {
				return err
			}
			return display.Island(cmd.OutOrStdout(), out.Island, out.Tier, out.Degraded)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "owner display name")
	cmd.Flags().IntVar(&level, "level", 0, "island level")
	cmd.Flags().StringVar(&state, "state", "", "replacement state blob (json)")
	return cmd
}
