package commands

import (
	"context"
	"qualflat/internal/output"
	"qualflat/internal/store"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(responsesCmd)
}

var responsesCmd = &cobra.Command{
	Use:   "responses <survey id>",
	Short: "Export the responses of a survey and reconcile labels with numeric codes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		surveyID := args[0]
		rows, err := sess.service.PullResults(cmd.Context(), surveyID)
		if err != nil {
			return err
		}
		return emit(cmd, sess.config, result{
			tables: []output.Table{output.ResponsesTable(rows)},
			save: func(ctx context.Context, s store.Store) (string, error) {
				return s.SaveResponses(ctx, surveyID, rows)
			},
		})
	},
}
