package command

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixil98/go-isleborn/internal/display"
	"github.com/pixil98/go-isleborn/internal/instance"
)

func ownerPath(prefix, owner, suffix string) string {
	return prefix + url.PathEscape(owner) + suffix
}

func newStartCmd(opts *options) *cobra.Command {
	var mount string
	cmd := &cobra.Command{
		Use:   "start OWNER",
		Short: "Start an owner's world instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if mount != "" {
				body = map[string]string{"mount_path": mount}
			}
			var out struct {
				Status string `json:"status"`
				Owner  string `json:"owner"`
				Handle string `json:"handle"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodPost, ownerPath("/instances/", args[0], "/start"), body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", out.Owner, strings.ReplaceAll(out.Status, "_", " "), out.Handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&mount, "mount", "", "absolute host path to mount as the world's data dir")
	return cmd
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop OWNER",
		Short: "Stop an owner's world instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodPost, ownerPath("/instances/", args[0], "/stop"), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", args[0])
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status OWNER",
		Short: "Show an owner's instance record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec instance.Record
			if err := opts.client().do(cmd.Context(), http.MethodGet, ownerPath("/instances/", args[0], ""), nil, &rec); err != nil {
				return err
			}
			return display.Records(cmd.OutOrStdout(), []instance.Record{rec})
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Instances []instance.Record `json:"instances"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/instances?view=records", nil, &out); err != nil {
				return err
			}
			return display.Records(cmd.OutOrStdout(), out.Instances)
		},
	}
}
