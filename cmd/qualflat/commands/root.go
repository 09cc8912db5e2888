package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"qualflat/internal/components/telemetry"
	"qualflat/internal/etl"
	"qualflat/internal/qualtrics"
	"qualflat/lib/osutil"
	"qualflat/lib/restyutil"
	libtelemetry "qualflat/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	formatName string
	outPath    string
	verbose    bool
	dumpHttp   string
)

var otelSetup libtelemetry.Telemetry

var rootCmd = &cobra.Command{
	Use:   "qualflat",
	Short: "qualflat pulls Qualtrics surveys and flattens definitions and responses into tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		libtelemetry.InitSlog(verbose)

		_, err := parseFormat(formatName)
		if err != nil {
			return err
		}

		otelSetup, err = libtelemetry.SetupFromEnv(cmd.Context(), "qualflat")
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("telemetry.json5 not found, traces and metrics are disabled")
		} else if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}
		libtelemetry.InstrumentPerfStats(cmd.Context())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := otelSetup.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "qualflat.json5", "path to the configuration file")
	flags.StringVar(&formatName, "format", string(formatPretty), "output format: pretty, csv, xlsx or sqlite")
	flags.StringVar(&outPath, "out", "", "output file, stdout when empty (sqlite: database file overriding the config)")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flags.StringVar(&dumpHttp, "dump-http", "", "directory to dump every http request and response into")
}

// session is everything a pull command needs, built from the config file
// and flags.
type session struct {
	config  Config
	service etl.Service
	tel     telemetry.API
}

func newSession() (session, error) {
	config, err := readConfig(configPath)
	if err != nil {
		return session{}, err
	}
	clientOpts, err := config.clientOptions()
	if err != nil {
		return session{}, err
	}
	serviceOpts, err := config.serviceOptions()
	if err != nil {
		return session{}, err
	}

	if dumpHttp != "" {
		output, err := restyutil.NewFilesystemOutput(dumpHttp)
		if err != nil {
			return session{}, fmt.Errorf("dump-http: %w", err)
		}
		clientOpts.HttpDump = output
	}

	tel := telemetry.SlogAPI{}
	client, err := qualtrics.NewClient(clientOpts, tel)
	if err != nil {
		return session{}, err
	}

	return session{
		config:  config,
		service: etl.NewService(client, serviceOpts, tel),
		tel:     tel,
	}, nil
}

func Execute() {
	ctx := osutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		osutil.Fatal("qualflat failed", err)
	}
}
