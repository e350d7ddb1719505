package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/swft/internal/store"
	"github.com/srg/swft/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective settings or change the persisted record",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings and the persisted record",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetVersionCmd = &cobra.Command{
	Use:   "set-version MAJOR.MINOR.BUILD",
	Short: "Store a new version in the persisted record",
	Example: `  swft config set-version 1.4.0
  swft config set-version v2.0.13 --store ./record.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetVersion,
}

var configStorePath string

func init() {
	configCmd.PersistentFlags().StringVar(&configStorePath, "store", "", "Record file (default: SWFT_STORE_PATH or the user config directory)")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetVersionCmd)
}

// loadSettings returns the effective configuration and the record store it points at
func loadSettings() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if configStorePath != "" {
		cfg.StorePath = configStorePath
	}
	return cfg, store.New(cfg.StorePath), nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, st, err := loadSettings()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	rec, err := st.Load()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Store:\t%s\n", st.Path())
	fmt.Fprintf(w, "Version:\t%s\n", rec.Version())
	fmt.Fprintf(w, "Scan timeout:\t%s\n", cfg.ScanTimeout)
	fmt.Fprintf(w, "Allow duplicates:\t%t\n", cfg.AllowDuplicates)
	fmt.Fprintf(w, "Output format:\t%s\n", cfg.OutputFormat)
	return w.Flush()
}

func runConfigSetVersion(cmd *cobra.Command, args []string) error {
	v, err := store.ParseVersion(args[0])
	if err != nil {
		return err
	}

	cfg, st, err := loadSettings()
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	rec, err := st.Update(func(r *store.Record) error {
		r.SetVersion(v)
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithField("path", st.Path()).Info("Record saved")
	fmt.Fprintf(cmd.OutOrStdout(), "Version set to %s\n", rec.Version())
	return nil
}
