package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/studydata/pkg/common/config"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

// env holds what every subcommand needs once the root flags are parsed.
type env struct {
	cfg     *config.Config
	catalog terminology.Catalog
}

func newRootCmd() *cobra.Command {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:   "datasetctl",
		Short: "Generate study datasets from the command line",
		Long: `datasetctl evaluates dataset definitions against dummy data or a
PostgreSQL database holding patients and clinical_events tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logger.Configure(cmd.ErrOrStderr(), level)
			e.cfg = config.Load()

			path, _ := cmd.Flags().GetString("catalog")
			return e.loadCatalog(path)
		},
	}
	rootCmd.PersistentFlags().String("catalog", "", "path to a codelist catalog YAML file")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(generateDatasetCmd(e))
	rootCmd.AddCommand(loadDummyDataCmd(e))
	rootCmd.AddCommand(codelistsCmd(e))
	rootCmd.AddCommand(validateCmd(e))
	return rootCmd
}

// loadCatalog reads path, then CODELIST_CATALOG_PATH, then falls back to the
// built-in codelists.
func (e *env) loadCatalog(path string) error {
	if path == "" {
		path = e.cfg.CodelistCatalogPath
	}
	if path == "" {
		e.catalog = terminology.DefaultCatalog()
		return nil
	}
	loaded, err := terminology.Load(path)
	if err != nil {
		return fmt.Errorf("could not load codelist catalog %s: %w", path, err)
	}
	e.catalog = loaded
	return nil
}
