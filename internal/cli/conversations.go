package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/services"
)

func init() {
	conversationsCmd.Flags().Int("limit", 50, "maximum conversations to list")
	messagesCmd.Flags().Int("limit", 50, "maximum messages to show")
	dmCmd.Flags().String("origin", "", "origin reference to scope the conversation to")
	muteCmd.Flags().Bool("off", false, "unmute instead")

	rootCmd.AddCommand(conversationsCmd, messagesCmd, dmCmd, readCmd, muteCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		convs, err := c.ListConversations(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no conversations")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWITH\tUNREAD\tLAST\tWHEN")
		for _, s := range convs {
			last, when := "", humanize.Time(s.UpdatedAt)
			if s.LastMessage != nil {
				last = clip(s.LastMessage.Content, 40)
				when = humanize.Time(s.LastMessage.CreatedAt)
			}
			unread := humanize.Comma(s.UnreadCount)
			if s.Muted {
				unread += " (muted)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, conversationLabel(s), unread, last, when)
		}
		return tw.Flush()
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show the latest messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		msgs, err := c.ListMessages(cmd.Context(), convID, limit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printMessage(cmd, m)
		}
		return nil
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <handle>",
	Short: "Open (or reuse) a direct conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		peer, err := c.ProfileByHandle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var origin *string
		if o, _ := cmd.Flags().GetString("origin"); o != "" {
			origin = &o
		}
		conv, created, err := c.StartDirectConversation(cmd.Context(), peer.ID, origin)
		if err != nil {
			return err
		}
		verb := "existing"
		if created {
			verb = "new"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s conversation with @%s: %s\n", verb, peer.Handle, conv.ID)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		return c.MarkRead(cmd.Context(), convID)
	},
}

var muteCmd = &cobra.Command{
	Use:   "mute <conversation-id>",
	Short: "Stop notifications for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		off, _ := cmd.Flags().GetBool("off")
		return c.SetMuted(cmd.Context(), convID, !off)
	},
}

func conversationLabel(s *services.ConversationSummary) string {
	switch {
	case s.Peer != nil && s.Peer.Handle != "":
		return "@" + s.Peer.Handle
	case s.Title != nil && *s.Title != "":
		return *s.Title
	default:
		return string(s.Kind)
	}
}

func printMessage(cmd *cobra.Command, m *types.Message) {
	edited := ""
	if m.EditedAt != nil {
		edited = " (edited)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s%s\n",
		humanize.Time(m.CreatedAt), shortID(m.SenderID), m.Content, edited)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
