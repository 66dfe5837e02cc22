package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

func init() {
	rootCmd.AddCommand(presenceCmd)
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show who is online",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		snap, err := c.Presence(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d online in %q\n", snap.Online, snap.Channel)
		return printPresence(cmd, snap.State)
	},
}

func printPresence(cmd *cobra.Command, st presence.State) error {
	ids := make([]uuid.UUID, 0, len(st))
	for id := range st {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := st[ids[i]], st[ids[j]]
		if a.Online != b.Online {
			return a.Online
		}
		return a.LastSeen.After(b.LastSeen)
	})
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, id := range ids {
		s := st[id]
		status := "online"
		if !s.Online {
			status = "last seen " + humanize.Time(s.LastSeen)
		}
		fmt.Fprintf(tw, "%s\t%s\n", id, status)
	}
	return tw.Flush()
}
