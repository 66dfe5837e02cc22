package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/echoworld-backend/internal/client"
	"github.com/yungbote/echoworld-backend/internal/composer"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/inbox"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

func init() {
	rootCmd.AddCommand(watchCmd, chatCmd)
}

// localFeed is a hub fed by the server stream plus a session over it.
type localFeed struct {
	hub     *realtime.Hub
	session *realtime.Session
}

func newLocalFeed(log *logger.Logger) localFeed {
	hub := realtime.NewHub(log)
	return localFeed{
		hub:     hub,
		session: realtime.NewSession(hub, realtime.NewPublisher(&realtime.HubEmitter{Hub: hub}, log), log),
	}
}

func (f localFeed) relay(ctx context.Context, c *client.Client, userID uuid.UUID, onPresence func(presence.State)) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Relay(ctx, f.hub, userID, onPresence) }()
	return done
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow incoming messages, notifications and presence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		me, err := c.Me(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var mu sync.Mutex
		printf := func(format string, a ...any) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, format, a...)
		}

		feed := newLocalFeed(log)
		defer feed.session.Stop()
		feed.session.OnMessage(realtime.Listen(func(rec realtime.MessageRecord) {
			printf("message  %s  %s: %s\n", rec.ConversationID, rec.SenderID[:8], rec.Content)
		}))
		feed.session.OnNotification(realtime.Listen(func(rec realtime.NotificationRecord) {
			printf("notify   %s  from %s\n", rec.Kind, rec.ActorID)
		}))
		if err := feed.session.Start(me.ID); err != nil {
			return err
		}

		lastOnline := -1
		printf("watching as @%s (ctrl-c to stop)\n", me.Handle)
		return <-feed.relay(ctx, c, me.ID, func(st presence.State) {
			if n := st.OnlineCount(); n != lastOnline {
				lastOnline = n
				printf("presence %d online\n", n)
			}
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Interactive chat in one conversation (/retry, /quit)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		c, log, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		me, err := c.Me(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var mu sync.Mutex
		printf := func(format string, a ...any) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, format, a...)
		}

		var lastFailed string
		feed := newLocalFeed(log)
		view := inbox.NewView(me.ID, c, feed.session, log, inbox.Options{
			MessageLimit: 30,
			Composer: composer.Options{
				OnSendFailed: func(clientID string, err error) {
					mu.Lock()
					lastFailed = clientID
					mu.Unlock()
					printf("! send failed (%v); /retry to resend\n", err)
				},
			},
		})
		if err := view.Mount(ctx); err != nil {
			return err
		}
		defer view.Unmount()
		feed.session.OnMessage(realtime.Listen(func(rec realtime.MessageRecord) {
			if rec.ConversationID == convID.String() && rec.SenderID != me.ID.String() {
				printf("%s: %s\n", rec.SenderID[:8], rec.Content)
			}
		}))
		relayDone := feed.relay(ctx, c, me.ID, nil)

		if err := view.Open(ctx, convID); err != nil {
			return err
		}
		for _, m := range view.Messages() {
			printMessage(cmd, &m.Message)
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				lines <- sc.Text()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-relayDone:
				return err
			case line, ok := <-lines:
				if !ok {
					cancel()
					return nil
				}
				if err := chatLine(ctx, view, convID, strings.TrimSpace(line), &mu, &lastFailed); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					printf("! %v\n", err)
				}
			}
		}
	},
}

var errQuit = errors.New("quit")

func chatLine(ctx context.Context, view *inbox.View, convID uuid.UUID, line string, mu *sync.Mutex, lastFailed *string) error {
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case line == "/retry":
		mu.Lock()
		clientID := *lastFailed
		mu.Unlock()
		_, comp := view.Active()
		if clientID == "" || comp == nil {
			return fmt.Errorf("nothing to retry")
		}
		return comp.Retry(ctx, clientID)
	case strings.HasPrefix(line, "/reply "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "/reply "))
		id, text, _ := strings.Cut(rest, " ")
		parentID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("usage: /reply <message-id> <text>")
		}
		_, comp := view.Active()
		if comp == nil {
			return fmt.Errorf("no open conversation")
		}
		comp.SetReplyTo(&types.Message{ID: parentID, ConversationID: convID})
		_, err = comp.Submit(ctx, text)
		return err
	default:
		_, err := view.SendTo(ctx, convID, line)
		return err
	}
}
