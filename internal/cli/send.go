package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/echoworld-backend/internal/composer"
	types "github.com/yungbote/echoworld-backend/internal/domain"
)

func init() {
	sendCmd.Flags().String("reply", "", "message id to reply to")
	sendCmd.Flags().Int("retry", 0, "resubmit a failed send up to this many times")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		c, log, err := newClient(cmd)
		if err != nil {
			return err
		}
		me, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}

		comp := composer.New(convID, me.ID, c, composer.NewTimeline(), log, composer.Options{})
		if raw, _ := cmd.Flags().GetString("reply"); raw != "" {
			parentID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid --reply: %w", err)
			}
			comp.SetReplyTo(&types.Message{ID: parentID, ConversationID: convID})
		}
		retries, _ := cmd.Flags().GetInt("retry")

		clientID, err := comp.Submit(cmd.Context(), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		comp.Wait()
		for attempt := 0; attempt < retries; attempt++ {
			if ui, _ := comp.Timeline().Get(clientID); ui.Status != composer.StatusFailed {
				break
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "send failed, retrying (%d/%d)\n", attempt+1, retries)
			if err := comp.Retry(cmd.Context(), clientID); err != nil {
				return err
			}
			comp.Wait()
		}

		ui, _ := comp.Timeline().Get(clientID)
		if ui.Status != composer.StatusSent {
			return fmt.Errorf("send failed: %s", ui.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s (client id %s)\n", ui.ID, clientID)
		return nil
	},
}
