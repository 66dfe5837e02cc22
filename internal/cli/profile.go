package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	types "github.com/yungbote/echoworld-backend/internal/domain"
)

func init() {
	meCmd.Flags().String("handle", "", "claim this handle if no profile exists yet")
	meCmd.Flags().String("name", "", "display name to set with --handle")
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(whoisCmd)
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show (or create) the signed-in profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		handle, _ := cmd.Flags().GetString("handle")
		name, _ := cmd.Flags().GetString("name")

		var p *types.Profile
		if handle != "" {
			p, err = c.EnsureMe(cmd.Context(), handle, name)
		} else {
			p, err = c.Me(cmd.Context())
		}
		if err != nil {
			return err
		}
		printProfile(cmd, p)
		return nil
	},
}

var whoisCmd = &cobra.Command{
	Use:   "whois <handle>",
	Short: "Look up a profile by handle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		p, err := c.ProfileByHandle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProfile(cmd, p)
		return nil
	},
}

func printProfile(cmd *cobra.Command, p *types.Profile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "@%s  %s\n", p.Handle, p.DisplayName)
	fmt.Fprintf(out, "  id: %s\n", p.ID)
}
