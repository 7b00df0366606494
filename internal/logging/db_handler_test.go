package logging

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpetrenko/auth-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLogDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditLog{}))
	return db
}

func TestDBHandler_OnlyErrorAndAbove(t *testing.T) {
	h := NewDBHandler(newLogDB(t))
	defer h.Stop()

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestDBHandler_PersistsRecordAttrs(t *testing.T) {
	db := newLogDB(t)
	h := NewDBHandler(db)
	defer h.Stop()

	record := slog.NewRecord(time.Now(), slog.LevelError, "login failed", 0)
	record.AddAttrs(
		slog.String("request_id", "req-1"),
		slog.String("user_id", "user-1"),
		slog.String("action", "login"),
		slog.String("error", "boom"),
		slog.Int("attempt", 3),
	)
	require.NoError(t, h.Handle(context.Background(), record))
	h.flush()

	var rows []models.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	assert.Equal(t, "ERROR", rows[0].Level)
	assert.Equal(t, "login failed", rows[0].Message)
	assert.Equal(t, "req-1", rows[0].RequestID)
	require.NotNil(t, rows[0].UserID)
	assert.Equal(t, "user-1", *rows[0].UserID)
	assert.Equal(t, "login", rows[0].Action)
	assert.Equal(t, "boom", rows[0].Error)
	assert.JSONEq(t, `{"attempt":3}`, string(rows[0].Extra))
}

type countingHandler struct {
	level slog.Level
	count int
}

func (c *countingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level
}

func (c *countingHandler) Handle(context.Context, slog.Record) error {
	c.count++
	return nil
}

func (c *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *countingHandler) WithGroup(string) slog.Handler      { return c }

func TestFanout_RoutesByLevel(t *testing.T) {
	info := &countingHandler{level: slog.LevelInfo}
	errOnly := &countingHandler{level: slog.LevelError}
	f := NewFanout(info, errOnly)

	ctx := context.Background()
	require.NoError(t, f.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)))
	require.NoError(t, f.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelError, "broken", 0)))

	assert.Equal(t, 2, info.count)
	assert.Equal(t, 1, errOnly.count)
}
