package command

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPI = "http://localhost:8080"

type options struct {
	api     string
	timeout time.Duration
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "islectl",
		Short:         "Operate the isleborn fleet",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.api, "api", defaultAPI, "fleet API base url")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "request timeout")

	cmd.AddCommand(
		newStartCmd(opts),
		newStopCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newIslandCmd(opts),
		newPromoteCmd(),
		newWatchCmd(),
	)
	return cmd
}

func (o *options) client() *apiClient {
	return &apiClient{base: o.api, http: &http.Client{Timeout: o.timeout}}
}
