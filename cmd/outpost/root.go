package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/outpost-run/outpost-go/pkg/client"
	"github.com/outpost-run/outpost-go/pkg/config"
	"github.com/outpost-run/outpost-go/pkg/lfs"
	logpkg "github.com/outpost-run/outpost-go/pkg/log"
	"github.com/outpost-run/outpost-go/pkg/metrics"
	"github.com/outpost-run/outpost-go/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	ojson bool

	metricsTextfile string

	logFile *os.File

	registry = prometheus.NewRegistry()
	observer = metrics.NewObserver(registry)

	rootCmd = &cobra.Command{
		Use:               "outpost",
		Short:             "Command line client for Outpost",
		Long:              "Outpost manages inference endpoints and moves large files to Outpost repositories.",
		SilenceUsage:      true,
		PersistentPreRunE: initContext,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if logFile != nil {
				defer logFile.Close() // nolint: errcheck
			}
			if metricsTextfile != "" {
				if err := metrics.WriteTextfile(metricsTextfile, registry); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "write client metrics to this file on exit")
	rootCmd.AddCommand(
		lfsCmd,
		endpointsCmd,
		configCmd,
		manCmd,
	)

	for _, cmd := range []*cobra.Command{
		lfsCmd,
		endpointsCmd,
	} {
		cmd.PersistentFlags().BoolVar(&ojson, "json", false, "output as JSON")
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	if len(version.CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + version.CommitSHA[0:7] + ")\n")
	}
	rootCmd.Version = version.Version
}

// initContext loads the configuration and the logger and stores both in the
// command context.
func initContext(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		cfg.Location = configPath
	}
	if err := cfg.Parse(); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger, f, err := logpkg.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logFile = f

	ctx := config.WithContext(cmd.Context(), cfg)
	ctx = log.WithContext(ctx, logger)
	cmd.SetContext(ctx)

	return nil
}

func newAPIClient(cmd *cobra.Command) (*client.Client, error) {
	ctx := cmd.Context()
	return client.New(
		client.WithConfig(config.FromContext(ctx)),
		client.WithLogger(log.FromContext(ctx)),
		client.WithObserver(observer),
	)
}

func newLFSClient(cmd *cobra.Command) *lfs.Client {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	url := cfg.LFS.URL
	if url == "" {
		url = cfg.BaseURL
	}
	return lfs.NewClient(url,
		lfs.WithToken(cfg.APIToken),
		lfs.WithTransferAdapters(cfg.LFS.TransferAdapters...),
		lfs.WithLogger(log.FromContext(ctx)),
	)
}

func writeJSON(w io.Writer, t any) error {
	bts, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bts))
	return err
}
