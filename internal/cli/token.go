package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/echoworld-backend/internal/platform/envutil"
	"github.com/yungbote/echoworld-backend/internal/services"
)

func init() {
	tokenCmd.Flags().String("user", "", "user id to sign for (default: a new random id)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token signed with JWT_SECRET_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		rawUser, _ := cmd.Flags().GetString("user")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		userID := uuid.New()
		if rawUser != "" {
			if userID, err = uuid.Parse(rawUser); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
		}
		auth := services.NewAuthService(log,
			envutil.String("JWT_SECRET_KEY", "defaultsecret"),
			envutil.String("JWT_ISSUER", "echoworld"),
		)
		token, err := auth.IssueToken(userID, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "user %s\n", userID)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
