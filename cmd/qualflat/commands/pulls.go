package commands

import (
	"fmt"
	"qualflat/internal/output"
	"qualflat/lib/configutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pullsCmd)
}

var pullsCmd = &cobra.Command{
	Use:   "pulls",
	Short: "List the pulls saved into the database with --format sqlite.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configutil.ReadConfig[Config](configPath)
		if err != nil && outPath == "" {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}

		s, closeDB, err := openStore(cmd.Context(), config.Database)
		if err != nil {
			return err
		}
		defer closeDB()

		pulls, err := s.Pulls(cmd.Context())
		if err != nil {
			return err
		}

		t := output.NewPrettyTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Pull", "Kind", "SurveyID", "PulledAt", "Rows"})
		for _, p := range pulls {
			t.AppendRow(table.Row{p.ID, p.Kind, p.SurveyID, p.PulledAt.Format("2006-01-02 15:04:05"), p.RowCount})
		}
		t.Render()
		return nil
	},
}
