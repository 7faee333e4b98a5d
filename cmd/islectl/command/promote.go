package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	isleborn "github.com/pixil98/go-isleborn/cmd/isleborn/command"
	"github.com/pixil98/go-isleborn/internal/island"
	"github.com/pixil98/go-isleborn/internal/lock"
	"github.com/pixil98/go-isleborn/internal/messaging"
)

func newPromoteCmd() *cobra.Command {
	var (
		storage isleborn.StorageConfig
		driver  string
		natsURL string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Push fallback island files into the primary store",
		Long: "Opens the storage tiers directly and writes every pending fallback copy to the " +
			"primary store, dropping copies the primary already has a newer version of. " +
			"Pass --nats to take the fleet's owner locks; without it the fleet must be stopped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			storage.Primary.Driver = isleborn.StorageDriver(driver)

			tiers, closer, err := storage.BuildTiers(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()

			var locks lock.Service = lock.NewMemory()
			if natsURL != "" {
				client := messaging.NewClient(natsURL, "islectl")
				conn, err := client.Dial(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()
				if locks, err = lock.NewNats(client, "", ttl); err != nil {
					return err
				}
			}

			rep, err := island.NewStore(tiers, locks, island.WithLockTTL(ttl)).Promote(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "promoted %d, stale %d, busy %d\n", rep.Promoted, rep.Stale, rep.Busy)
			return err
		},
	}
	cmd.Flags().StringVar(&driver, "driver", string(isleborn.StorageDriverSqlite), "primary store driver (sqlite or badger)")
	cmd.Flags().StringVar(&storage.Primary.Path, "path", "", "primary store path")
	cmd.Flags().StringVar(&storage.FallbackDir, "fallback-dir", "", "directory holding island_<owner>.json files")
	cmd.Flags().StringVar(&natsURL, "nats", "", "nats url of the fleet's lock bucket")
	cmd.Flags().DurationVar(&ttl, "lock-ttl", island.DefaultLockTTL, "owner lock ttl")
	_ = cmd.MarkFlagRequired("fallback-dir")
	return cmd
}
