package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/studydata/pkg/common/database"
	"github.com/synaptica-ai/studydata/pkg/dummydata"
	"github.com/synaptica-ai/studydata/pkg/extraction"
	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/storage"
)

func loadDummyDataCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-dummy-data",
		Short: "Seeds PostgreSQL with dummy patients and clinical events",
		Long: `Generates dummy data shaped by the dataset definition and inserts it into
the patients and clinical_events tables, creating them when missing. With
--dry-run only the row counts are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, _ := cmd.Flags().GetString("definition")
			size, _ := cmd.Flags().GetInt("dummy-data")
			seed, _ := cmd.Flags().GetUint64("seed")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			if size <= 0 {
				size = e.cfg.DummyPopulationSize
			}
			if !cmd.Flags().Changed("seed") {
				seed = e.cfg.DummySeed
			}

			svc := extraction.NewService(e.catalog, extraction.WithDefinitionPath(definition))
			ds, err := svc.Resolve("")
			if err != nil {
				return err
			}
			src, err := dummydata.Generate(cmd.Context(), ds, dummydata.Options{
				PopulationSize: size,
				Seed:           seed,
				Today:          time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s: %d rows\n", query.PatientsTable, src.Len(query.PatientsTable))
				fmt.Fprintf(out, "%s: %d rows\n", query.ClinicalEventsTable, src.Len(query.ClinicalEventsTable))
				return nil
			}

			db, err := database.GetPostgres(e.cfg)
			if err != nil {
				return fmt.Errorf("could not connect to postgres: %w", err)
			}
			defer database.ClosePostgres()

			pg := storage.NewPostgresSource(db)
			if err := pg.AutoMigrate(); err != nil {
				return fmt.Errorf("could not migrate tables: %w", err)
			}
			if err := pg.Load(cmd.Context(), src); err != nil {
				return err
			}
			fmt.Fprintf(out, "Loaded %d patients and %d clinical events\n",
				src.Len(query.PatientsTable), src.Len(query.ClinicalEventsTable))
			return nil
		},
	}
	cmd.Flags().String("definition", "", "YAML dataset definition whose codelists shape the events")
	cmd.Flags().Int("dummy-data", 0, "number of dummy patients (defaults to DUMMY_POPULATION_SIZE)")
	cmd.Flags().Uint64("seed", 0, "dummy data seed (defaults to DUMMY_SEED)")
	cmd.Flags().Bool("dry-run", false, "generate without writing to the database")
	return cmd
}
