package database

import (
	"testing"

	"github.com/synaptica-ai/studydata/pkg/common/config"
)

func TestPostgresDSN(t *testing.T) {
	cfg := &config.Config{
		PostgresHost:     "db",
		PostgresPort:     "5433",
		PostgresUser:     "reader",
		PostgresPassword: "secret",
		PostgresDB:       "ehr",
		PostgresSSLMode:  "require",
	}
	want := "host=db user=reader password=secret dbname=ehr port=5433 sslmode=require"
	if got := PostgresDSN(cfg); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
