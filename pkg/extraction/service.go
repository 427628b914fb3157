// Package extraction generates datasets from declarations against a chosen
// data source and exposes generation over HTTP, Kafka and background jobs.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/synaptica-ai/studydata/pkg/analytics/dsl"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/dummydata"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/observability/metrics"
	"github.com/synaptica-ai/studydata/pkg/output"
	"github.com/synaptica-ai/studydata/pkg/storage"
	"github.com/synaptica-ai/studydata/pkg/study"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

const (
	eventSource       = "dataset-service"
	maxPopulationSize = 1_000_000
)

var ErrNotFound = errors.New("not found")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type ResultCache interface {
	Get(ctx context.Context, hash, source string) (*engine.Result, error)
	Put(ctx context.Context, hash, source string, result *engine.Result) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Service struct {
	catalog        terminology.Catalog
	definitionPath string
	postgres       engine.Source
	cache          ResultCache
	publisher      Publisher
	dummy          dummydata.Options
	now            func() time.Time
}

type Option func(*Service)

// WithDefinitionPath replaces the built-in study declaration with a YAML
// definition file for requests that carry no definition of their own.
func WithDefinitionPath(path string) Option {
	return func(s *Service) { s.definitionPath = path }
}

func WithPostgres(src engine.Source) Option {
	return func(s *Service) { s.postgres = src }
}

func WithCache(cache ResultCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithDummyDefaults(size int, seed uint64) Option {
	return func(s *Service) {
		s.dummy.PopulationSize = size
		s.dummy.Seed = seed
	}
}

func NewService(catalog terminology.Catalog, opts ...Option) *Service {
	svc := &Service{
		catalog: catalog,
		dummy:   dummydata.Options{PopulationSize: dummydata.DefaultPopulationSize, Seed: 1},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Generation is an evaluated dataset together with its summary.
type Generation struct {
	Summary models.DatasetSummary
	Result  *engine.Result
}

// Resolve compiles the request definition. An empty definition selects the
// configured definition file or, failing that, the study declaration.
func (s *Service) Resolve(definition string) (*dataset.Dataset, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	switch {
	case strings.TrimSpace(definition) != "":
		ds, err = dsl.ParseDefinition([]byte(definition), s.catalog)
	case s.definitionPath != "":
		ds, err = dsl.LoadDefinition(s.definitionPath, s.catalog)
	default:
		ds, err = study.Definition()
	}
	if err != nil {
		return nil, ValidationError{reason: fmt.Errorf("invalid definition: %w", err)}
	}
	return ds, nil
}

func (s *Service) Validate(definition string) models.ValidationResult {
	ds, err := s.Resolve(definition)
	if err != nil {
		return models.ValidationResult{Valid: false, Message: err.Error()}
	}
	return models.ValidationResult{
		Valid:          true,
		Message:        "definition is valid",
		DefinitionHash: ds.Hash(),
		Columns:        columnNames(ds),
	}
}

func (s *Service) Codelists() []models.CodelistInfo {
	names := s.catalog.Names()
	infos := make([]models.CodelistInfo, 0, len(names))
	for _, name := range names {
		entry := s.catalog.Codelists[name]
		cl, _ := s.catalog.Lookup(name)
		infos = append(infos, models.CodelistInfo{
			Name:        name,
			Description: entry.Description,
			System:      cl.System,
			Codes:       cl.Codes(),
		})
	}
	return infos
}

func (s *Service) Generate(ctx context.Context, req models.DatasetRequest) (*Generation, error) {
	started := s.now()
	gen, err := s.generate(ctx, req)
	if err != nil {
		metrics.ObserveFailed()
		s.publish(ctx, models.EventDatasetFailed, map[string]interface{}{
			"source":       req.Source,
			"requested_by": req.RequestedBy,
			"error":        err.Error(),
		})
		return nil, err
	}
	gen.Summary.Duration = s.now().Sub(started)
	metrics.ObserveGenerated(gen.Summary.RowCount, gen.Summary.Cached)

	logger.Log.WithFields(map[string]interface{}{
		"definition_hash": gen.Summary.DefinitionHash,
		"source":          gen.Summary.Source,
		"rows":            gen.Summary.RowCount,
		"cached":          gen.Summary.Cached,
		"duration_ms":     gen.Summary.Duration.Milliseconds(),
	}).Info("Dataset generated")

	s.publish(ctx, models.EventDatasetGenerated, map[string]interface{}{
		"definition_hash": gen.Summary.DefinitionHash,
		"source":          gen.Summary.Source,
		"columns":         gen.Summary.Columns,
		"row_count":       gen.Summary.RowCount,
		"cached":          gen.Summary.Cached,
		"requested_by":    req.RequestedBy,
	})
	return gen, nil
}

func (s *Service) generate(ctx context.Context, req models.DatasetRequest) (*Generation, error) {
	if req.Format != "" && !supportedFormat(req.Format) {
		return nil, ValidationError{reason: fmt.Errorf("format %q not supported", req.Format)}
	}
	if req.PopulationSize < 0 || req.PopulationSize > maxPopulationSize {
		return nil, ValidationError{reason: fmt.Errorf("population_size must be between 0 and %d (0 = default)", maxPopulationSize)}
	}

	ds, err := s.Resolve(req.Definition)
	if err != nil {
		return nil, err
	}
	hash := ds.Hash()

	source, opts, err := s.sourceKey(req)
	if err != nil {
		return nil, err
	}
	summary := models.DatasetSummary{
		DefinitionHash: hash,
		Source:         source,
		Columns:        columnNames(ds),
	}

	if s.cache != nil && !req.SkipCache {
		result, err := s.cache.Get(ctx, hash, source)
		switch {
		case err == nil:
			summary.RowCount = result.Len()
			summary.Cached = true
			return &Generation{Summary: summary, Result: result}, nil
		case !errors.Is(err, storage.ErrCacheMiss):
			logger.Log.WithError(err).Warn("Result cache lookup failed")
		}
	}

	var src engine.Source
	if opts != nil {
		src, err = dummydata.Generate(ctx, ds, *opts)
		if err != nil {
			return nil, fmt.Errorf("generating dummy data: %w", err)
		}
	} else {
		src = s.postgres
	}

	result, err := engine.Evaluate(ctx, ds, src)
	if err != nil {
		return nil, fmt.Errorf("evaluating dataset: %w", err)
	}
	summary.RowCount = result.Len()

	if s.cache != nil {
		if err := s.cache.Put(ctx, hash, source, result); err != nil {
			logger.Log.WithError(err).Warn("Failed to cache dataset result")
		}
	}
	return &Generation{Summary: summary, Result: result}, nil
}

// sourceKey names the data source for caching. Dummy sources are keyed by
// size, seed and the generation day since dates of birth depend on it.
func (s *Service) sourceKey(req models.DatasetRequest) (string, *dummydata.Options, error) {
	switch strings.ToLower(strings.TrimSpace(req.Source)) {
	case "", models.SourceDummy:
		opts := s.dummy
		if req.PopulationSize > 0 {
			opts.PopulationSize = req.PopulationSize
		}
		if req.Seed != 0 {
			opts.Seed = req.Seed
		}
		today := s.now().UTC()
		opts.Today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		key := fmt.Sprintf("%s-%d-%d-%s", models.SourceDummy, opts.PopulationSize, opts.Seed, opts.Today.Format(engine.DateLayout))
		return key, &opts, nil
	case models.SourcePostgres:
		if s.postgres == nil {
			return "", nil, ValidationError{reason: errors.New("postgres source not configured")}
		}
		return models.SourcePostgres, nil, nil
	default:
		return "", nil, ValidationError{reason: fmt.Errorf("source %q not supported", req.Source)}
	}
}

// HandleEvent runs dataset.requested events. The result is kept only in the
// result cache; use Runner.HandleEvent to record it as a job.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	return handleRequest(ctx, event, func(ctx context.Context, req models.DatasetRequest) error {
		_, err := s.Generate(ctx, req)
		return err
	})
}

// handleRequest decodes a dataset.requested event and runs it. Malformed and
// invalid requests are logged and acknowledged so they are not redelivered.
func handleRequest(ctx context.Context, event models.Event, run func(context.Context, models.DatasetRequest) error) error {
	if event.Type != models.EventDatasetRequested {
		return nil
	}
	req, err := decodeRequest(event.Data)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("Discarding malformed dataset request")
		return nil
	}
	if err := run(ctx, req); err != nil {
		if IsValidationError(err) {
			logger.Log.WithError(err).WithField("event_id", event.ID).Warn("Rejected dataset request")
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish dataset event")
	}
}

func decodeRequest(data map[string]interface{}) (models.DatasetRequest, error) {
	var req models.DatasetRequest
	raw, err := json.Marshal(data)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(raw, &req)
	return req, err
}

func supportedFormat(format string) bool {
	for _, f := range output.Formats() {
		if f == format {
			return true
		}
	}
	return false
}

func columnNames(ds *dataset.Dataset) []string {
	cols := ds.Columns()
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}
