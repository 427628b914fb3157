package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
	"gorm.io/gorm"
)

const insertBatchSize = 500

type PatientRecord struct {
	PatientID   string     `gorm:"primaryKey;column:patient_id"`
	DateOfBirth *time.Time `gorm:"column:date_of_birth;type:date"`
	Sex         *string    `gorm:"column:sex"`
}

func (PatientRecord) TableName() string {
	return query.PatientsTable
}

type ClinicalEventRecord struct {
	ID           uint       `gorm:"primaryKey;column:id"`
	PatientID    string     `gorm:"column:patient_id;index"`
	Date         *time.Time `gorm:"column:date;type:date"`
	SNOMEDCTCode *string    `gorm:"column:snomedct_code;index"`
	NumericValue *float64   `gorm:"column:numeric_value"`
}

func (ClinicalEventRecord) TableName() string {
	return query.ClinicalEventsTable
}

// PostgresSource reads the patients and clinical_events tables through gorm.
type PostgresSource struct {
	db *gorm.DB
}

func NewPostgresSource(db *gorm.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) AutoMigrate() error {
	return s.db.AutoMigrate(&PatientRecord{}, &ClinicalEventRecord{})
}

func (s *PostgresSource) Rows(ctx context.Context, table string) ([]engine.Row, error) {
	switch table {
	case query.PatientsTable:
		var records []PatientRecord
		if err := s.db.WithContext(ctx).Order("patient_id").Find(&records).Error; err != nil {
			return nil, err
		}
		return patientRows(records), nil
	case query.ClinicalEventsTable:
		var records []ClinicalEventRecord
		if err := s.db.WithContext(ctx).Order("patient_id, id").Find(&records).Error; err != nil {
			return nil, err
		}
		return eventRows(records), nil
	default:
		return nil, fmt.Errorf("%s: %w", table, query.ErrUnknownTable)
	}
}

// Load copies every row of src into the database in a single transaction.
func (s *PostgresSource) Load(ctx context.Context, src *engine.MemorySource) error {
	patients, err := src.Rows(ctx, query.PatientsTable)
	if err != nil {
		return err
	}
	events, err := src.Rows(ctx, query.ClinicalEventsTable)
	if err != nil {
		return err
	}
	patientRecords := toPatientRecords(patients)
	eventRecords := toEventRecords(events)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(patientRecords) > 0 {
			if err := tx.CreateInBatches(patientRecords, insertBatchSize).Error; err != nil {
				return fmt.Errorf("inserting patients: %w", err)
			}
		}
		if len(eventRecords) > 0 {
			if err := tx.CreateInBatches(eventRecords, insertBatchSize).Error; err != nil {
				return fmt.Errorf("inserting clinical events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"patients":        len(patientRecords),
		"clinical_events": len(eventRecords),
	}).Info("Loaded rows into PostgreSQL")
	return nil
}

// Nullable columns stay typed nil pointers; the engine reads them as null.
func patientRows(records []PatientRecord) []engine.Row {
	rows := make([]engine.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, engine.Row{
			"patient_id":    r.PatientID,
			"date_of_birth": r.DateOfBirth,
			"sex":           r.Sex,
		})
	}
	return rows
}

func eventRows(records []ClinicalEventRecord) []engine.Row {
	rows := make([]engine.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, engine.Row{
			"patient_id":    r.PatientID,
			"date":          r.Date,
			"snomedct_code": r.SNOMEDCTCode,
			"numeric_value": r.NumericValue,
		})
	}
	return rows
}

func toPatientRecords(rows []engine.Row) []PatientRecord {
	records := make([]PatientRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, PatientRecord{
			PatientID:   fmt.Sprint(row["patient_id"]),
			DateOfBirth: timePtr(row["date_of_birth"]),
			Sex:         stringPtr(row["sex"]),
		})
	}
	return records
}

func toEventRecords(rows []engine.Row) []ClinicalEventRecord {
	records := make([]ClinicalEventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ClinicalEventRecord{
			PatientID:    fmt.Sprint(row["patient_id"]),
			Date:         timePtr(row["date"]),
			SNOMEDCTCode: stringPtr(row["snomedct_code"]),
			NumericValue: floatPtr(row["numeric_value"]),
		})
	}
	return records
}

func timePtr(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func stringPtr(v interface{}) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		return s
	}
	return nil
}

func floatPtr(v interface{}) *float64 {
	switch f := v.(type) {
	case float64:
		return &f
	case *float64:
		return f
	}
	return nil
}
