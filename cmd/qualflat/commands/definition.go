package commands

import (
	"context"
	"qualflat/internal/output"
	"qualflat/internal/store"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(definitionCmd)
}

var definitionCmd = &cobra.Command{
	Use:   "definition <survey id>",
	Short: "Flatten a survey definition into one row per question or choice.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		surveyID := args[0]
		flat, err := sess.service.PullDefinition(cmd.Context(), surveyID)
		if err != nil {
			return err
		}
		return emit(cmd, sess.config, result{
			tables: output.DefinitionTables(flat),
			save: func(ctx context.Context, s store.Store) (string, error) {
				return s.SaveDefinition(ctx, surveyID, flat.Rows)
			},
		})
	},
}
