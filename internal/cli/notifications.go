package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	notificationsCmd.Flags().Int("limit", 50, "maximum notifications to list")
	notificationsCmd.Flags().Bool("unread", false, "only unread notifications")
	notificationsCmd.Flags().Bool("mark-read", false, "mark the listed notifications as read")
	rootCmd.AddCommand(unreadCmd, notificationsCmd)
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show unread message counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		u, err := c.Unread(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s unread\n", humanize.Comma(u.Total))
		for id, n := range u.ByConversation {
			if n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", id, humanize.Comma(n))
			}
		}
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		unreadOnly, _ := cmd.Flags().GetBool("unread")
		markRead, _ := cmd.Flags().GetBool("mark-read")

		rows, err := c.ListNotifications(cmd.Context(), limit, unreadOnly)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tKIND\tFROM\tCONVERSATION\tREAD")
		ids := make([]uuid.UUID, 0, len(rows))
		for _, n := range rows {
			conv := ""
			if n.ConversationID != nil {
				conv = n.ConversationID.String()
			}
			read := "no"
			if n.ReadAt != nil {
				read = humanize.Time(*n.ReadAt)
			} else {
				ids = append(ids, n.ID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(n.CreatedAt), n.Kind, shortID(n.ActorID), conv, read)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if markRead && len(ids) > 0 {
			n, err := c.MarkNotificationsRead(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d read\n", n)
		}
		return nil
	},
}
