package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"qualflat/internal/components/chrono"
	"qualflat/internal/output"
	"qualflat/internal/store"
	configlibsql "qualflat/lib/configutil/libsql"

	"github.com/spf13/cobra"
)

type format string

const (
	formatPretty format = "pretty"
	formatCSV    format = "csv"
	formatXLSX   format = "xlsx"
	formatSQLite format = "sqlite"
)

func parseFormat(s string) (format, error) {
	switch f := format(s); f {
	case formatPretty, formatCSV, formatXLSX, formatSQLite:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q, expected pretty, csv, xlsx or sqlite", s)
}

// result is what a pull produced, the tables render it for files and save
// persists it into the store.
type result struct {
	tables []output.Table
	save   func(ctx context.Context, s store.Store) (string, error)
}

func openOutput(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outPath == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openStore(ctx context.Context, config configlibsql.Struct) (store.Store, func() error, error) {
	if outPath != "" {
		config = configlibsql.Struct{File: outPath}
	}
	db, err := config.OpenDB()
	if err != nil {
		return store.Store{}, nil, fmt.Errorf("open database: %w", err)
	}
	s := store.NewStore(db, chrono.NewStandardImpl())
	err = s.Migrate(ctx)
	if err != nil {
		db.Close()
		return store.Store{}, nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, db.Close, nil
}

// emit writes a result in the selected format. pretty and csv only carry
// the first table, xlsx carries all of them as sheets.
func emit(cmd *cobra.Command, config Config, res result) error {
	f, err := parseFormat(formatName)
	if err != nil {
		return err
	}

	if f == formatSQLite {
		s, closeDB, err := openStore(cmd.Context(), config.Database)
		if err != nil {
			return err
		}
		defer closeDB()

		pullID, err := res.save(cmd.Context(), s)
		if err != nil {
			return fmt.Errorf("save pull: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pullID)
		return nil
	}

	if f == formatXLSX && outPath == "" {
		return fmt.Errorf("--format xlsx requires --out")
	}

	w, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}

	switch f {
	case formatPretty:
		output.WritePretty(w, res.tables[0])
	case formatCSV:
		err = output.WriteCSV(w, res.tables[0])
	case formatXLSX:
		err = output.WriteXLSX(w, res.tables...)
	}
	if err != nil {
		closeOut()
		return err
	}
	return closeOut()
}
