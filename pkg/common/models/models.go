package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // dataset.requested, dataset.generated, dataset.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventDatasetRequested    = "dataset.requested"
	EventDatasetGenerated    = "dataset.generated"
	EventDatasetFailed       = "dataset.failed"
	EventDatasetJobCompleted = "dataset.job.completed"
)

const (
	SourceDummy    = "dummy"
	SourcePostgres = "postgres"
)

// Dataset generation
type DatasetRequest struct {
	Definition     string `json:"definition,omitempty"` // YAML; empty selects the study definition
	Source         string `json:"source,omitempty"`     // dummy, postgres
	PopulationSize int    `json:"population_size,omitempty"`
	Seed           uint64 `json:"seed,omitempty"`
	Format         string `json:"format,omitempty"` // csv, csv.gz, json
	RequestedBy    string `json:"requested_by,omitempty"`
	SkipCache      bool   `json:"skip_cache,omitempty"`
}

type DatasetSummary struct {
	DefinitionHash string        `json:"definition_hash"`
	Source         string        `json:"source"`
	Columns        []string      `json:"columns"`
	RowCount       int           `json:"row_count"`
	Cached         bool          `json:"cached"`
	Duration       time.Duration `json:"duration"`
}

type DatasetJob struct {
	ID             uuid.UUID  `json:"id"`
	DefinitionHash string     `json:"definition_hash"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	Columns        []string   `json:"columns,omitempty"`
	RowCount       int        `json:"row_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RequestedBy    string     `json:"requested_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type CodelistInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	System      string   `json:"system"`
	Codes       []string `json:"codes"`
}

type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Message        string   `json:"message"`
	DefinitionHash string   `json:"definition_hash,omitempty"`
	Columns        []string `json:"columns,omitempty"`
}
