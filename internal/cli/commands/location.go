package commands

import (
	"fmt"

	"github.com/leapstack-labs/lineagekit/internal/location"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/spf13/cobra"
)

// NewLocationCommand creates the location command.
func NewLocationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location <file>",
		Short: "Print the git permalink of a file",
		Long: `Print a permalink to the last commit that touched a file, built from
the repository's remote URL. SSH remotes are converted to https.`,
		Example: `  lineagekit location dags/daily_etl.yaml
  lineagekit location dags/daily_etl.yaml --remote upstream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			loc, err := location.NewLocator(cc.Cfg.Location.Remote, cc.Logger).Resolve(args[0])
			if err != nil {
				return err
			}

			if cc.JSON() {
				return cc.WriteJSON(struct {
					URL string `json:"url"`
					core.Location
				}{URL: loc.URL(), Location: loc})
			}
			_, err = fmt.Fprintln(cc.Out, loc.URL())
			return err
		},
	}

	cmd.Flags().String("remote", "", "Git remote to read the URL from (default: origin)")

	return cmd
}
