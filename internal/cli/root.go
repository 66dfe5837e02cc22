package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/echoworld-backend/internal/client"
	"github.com/yungbote/echoworld-backend/internal/platform/envutil"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/platform/shutdown"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "echoctl",
	Short: "EchoWorld command line client",
	Long: `echoctl talks to an EchoWorld server as one signed-in user: list and open
conversations, send messages, and follow the realtime feed.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	_ = godotenv.Load(".env")
	ctx, stop := shutdown.NotifyContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("server", envutil.String("ECHOWORLD_URL", "http://localhost:8080"), "server base url (ECHOWORLD_URL)")
	rootCmd.PersistentFlags().String("token", envutil.String("ECHOWORLD_TOKEN", ""), "bearer token (ECHOWORLD_TOKEN)")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log client activity to stderr")
}

func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return logger.Nop(), nil
	}
	return logger.New("development")
}

func newClient(cmd *cobra.Command) (*client.Client, *logger.Logger, error) {
	log, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if token == "" {
		return nil, nil, fmt.Errorf("no token: pass --token or set ECHOWORLD_TOKEN (see `echoctl token`)")
	}
	c, err := client.New(log, client.Config{BaseURL: server, Token: token, Timeout: timeout, MaxRetries: 2})
	if err != nil {
		return nil, nil, err
	}
	return c, log, nil
}
