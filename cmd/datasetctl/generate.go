package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/studydata/pkg/common/database"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/extraction"
	"github.com/synaptica-ai/studydata/pkg/output"
	"github.com/synaptica-ai/studydata/pkg/storage"
)

func generateDatasetCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-dataset",
		Short: "Evaluates a dataset definition and writes one row per patient",
		Long: `Evaluates the study dataset, or the definition given with --definition,
against generated dummy data or the configured PostgreSQL database. The
output format follows the extension of --output (.csv, .csv.gz, .json);
without --output CSV is written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, _ := cmd.Flags().GetString("definition")
			size, _ := cmd.Flags().GetInt("dummy-data")
			seed, _ := cmd.Flags().GetUint64("seed")
			usePostgres, _ := cmd.Flags().GetBool("postgres")
			outputPath, _ := cmd.Flags().GetString("output")
			summary, _ := cmd.Flags().GetBool("summary")

			format, err := output.FormatFromPath(outputPath)
			if err != nil {
				return err
			}

			opts := []extraction.Option{
				extraction.WithDefinitionPath(definition),
				extraction.WithDummyDefaults(e.cfg.DummyPopulationSize, e.cfg.DummySeed),
			}
			req := models.DatasetRequest{
				Source:         models.SourceDummy,
				PopulationSize: size,
				Seed:           seed,
				Format:         format,
				SkipCache:      true,
			}
			if usePostgres {
				db, err := database.GetPostgres(e.cfg)
				if err != nil {
					return fmt.Errorf("could not connect to postgres: %w", err)
				}
				defer database.ClosePostgres()
				opts = append(opts, extraction.WithPostgres(storage.NewPostgresSource(db)))
				req.Source = models.SourcePostgres
			}

			svc := extraction.NewService(e.catalog, opts...)
			gen, err := svc.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			if err := writeOutput(cmd.OutOrStdout(), outputPath, format, gen); err != nil {
				return err
			}
			if summary {
				return output.WriteSummary(cmd.ErrOrStderr(), gen.Result.Len(), output.Summarize(gen.Result, time.Now().UTC()))
			}
			return nil
		},
	}
	cmd.Flags().String("definition", "", "YAML dataset definition (defaults to the study dataset)")
	cmd.Flags().Int("dummy-data", 0, "number of dummy patients to generate (defaults to DUMMY_POPULATION_SIZE)")
	cmd.Flags().Uint64("seed", 0, "dummy data seed (defaults to DUMMY_SEED)")
	cmd.Flags().Bool("postgres", false, "read patients and clinical_events from PostgreSQL")
	cmd.Flags().StringP("output", "o", "", "output file, - for stdout")
	cmd.Flags().Bool("summary", false, "print per-column summary statistics to stderr")
	cmd.MarkFlagsMutuallyExclusive("postgres", "dummy-data")
	cmd.MarkFlagsMutuallyExclusive("postgres", "seed")
	return cmd
}

func writeOutput(stdout io.Writer, path, format string, gen *extraction.Generation) error {
	if path == "" || path == "-" {
		return output.Write(stdout, format, gen.Result)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := output.Write(f, format, gen.Result); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d rows to %s\n", gen.Summary.RowCount, path)
	return nil
}
