package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixil98/go-isleborn/internal/instance"
	"github.com/pixil98/go-isleborn/internal/messaging"
)

func newWatchCmd() *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "watch [OWNER]",
		Short: "Follow instance lifecycle events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := messaging.NewClient(natsURL, "islectl-watch")
			conn, err := client.Dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			subject := messaging.SubjectPrefix + ".>"
			if len(args) == 1 {
				subject = messaging.SubjectPrefix + "." + args[0] + ".*"
			}

			out := cmd.OutOrStdout()
			unsub, err := client.Subscribe(subject, func(_ string, data []byte) {
				var ev instance.Event
				if err := json.Unmarshal(data, &ev); err != nil {
					fmt.Fprintf(out, "undecodable event: %v\n", err)
					return
				}
				fmt.Fprintln(out, formatEvent(ev))
			})
			if err != nil {
				return err
			}
			defer unsub()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "nats url")
	return cmd
}

func formatEvent(ev instance.Event) string {
	line := fmt.Sprintf("%s %-8s %s", ev.Time.Format(time.RFC3339), ev.Type, ev.Owner)
	if ev.Handle != "" {
		line += " " + ev.Handle
	}
	if ev.Error != "" {
		line += ": " + ev.Error
	}
	return line
}
