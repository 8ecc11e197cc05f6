package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerReportsErrorsAndSlowQueries(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	logger := NewGormLogger(zap.New(core))
	statement := func() (string, int64) { return "SELECT 1", 1 }

	logger.Trace(context.Background(), time.Now(), statement, errors.New("boom"))
	logger.Trace(context.Background(), time.Now(), statement, gorm.ErrRecordNotFound)
	logger.Trace(context.Background(), time.Now().Add(-time.Second), statement, nil)
	logger.Trace(context.Background(), time.Now(), statement, nil)

	if got := recorded.FilterMessage("gorm query error").Len(); got != 1 {
		t.Fatalf("expected one query error entry, got %d", got)
	}
	if got := recorded.FilterMessage("slow query").Len(); got != 1 {
		t.Fatalf("expected one slow query entry, got %d", got)
	}
	if got := recorded.Len(); got != 2 {
		t.Fatalf("expected fast queries to stay silent at warn level, got %d entries", got)
	}

	silent := logger.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), statement, errors.New("ignored"))
	if got := recorded.Len(); got != 2 {
		t.Fatalf("expected silent mode to drop entries, got %d", got)
	}
}
