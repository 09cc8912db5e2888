package commands

import (
	"context"
	"qualflat/internal/output"
	"qualflat/internal/store"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(surveysCmd)
}

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "List every survey visible to the api token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		surveys, err := sess.service.PullSurveys(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd, sess.config, result{
			tables: []output.Table{output.SurveysTable(surveys)},
			save: func(ctx context.Context, s store.Store) (string, error) {
				return s.SaveSurveys(ctx, surveys)
			},
		})
	},
}
