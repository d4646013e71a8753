package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"capture-worker-go/internal/models"
)

// SessionRecord is one row of the sessions table
type SessionRecord struct {
	ID          int64 `gorm:"primaryKey;autoIncrement:false"`
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationSec float64 `gorm:"column:duration_sec"`
	Crops       int
	TrackIDs    int     `gorm:"column:track_ids"`
	DiskFreeMB  float64 `gorm:"column:disk_free_mb"`
	StopReason  string
	Dir         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName implements gorm's tabler
func (SessionRecord) TableName() string {
	return "sessions"
}

// Store keeps session identity and summaries in a SQL database
type Store struct {
	db *gorm.DB
}

// Open connects to the database named by dsn and migrates the schema.
// postgres:// and mysql:// prefixes select the server drivers, anything
// else is treated as a SQLite file path.
func Open(dsn string) (*Store, error) {
	dial, isSQLite := getDialector(dsn)
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry database: %w", err)
	}
	return &Store{db: db}, nil
}

// getDialector returns the dialector and whether it is SQLite
func getDialector(dsn string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(dsn, "postgres"):
		return postgres.New(postgres.Config{
			DriverName: "pgx",
			DSN:        dsn,
		}), false
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), false
	default:
		return sqlite.Open(dsn), true
	}
}

// NextID reserves the ID after the highest one in the table. The row is
// created right away so a crashed session still consumes its ID.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&SessionRecord{}).Select("COALESCE(MAX(id), 0)").Scan(&last).Error; err != nil {
			return err
		}
		next = last + 1
		return tx.Create(&SessionRecord{ID: next, StartedAt: time.Now()}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve session ID: %w", err)
	}
	return next, nil
}

// WriteSummary stores the final state of a session on the row reserved by
// NextID. A session without a reserved row gets a new one.
func (s *Store) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	end := summary.End
	rec := SessionRecord{
		ID:          summary.SessionID,
		StartedAt:   summary.Start,
		EndedAt:     &end,
		DurationSec: summary.Duration.Seconds(),
		Crops:       summary.Crops,
		TrackIDs:    summary.TrackIDs,
		DiskFreeMB:  summary.DiskFreeMB,
		StopReason:  string(summary.StopReason),
		Dir:         summary.Dir,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&SessionRecord{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return tx.Create(&rec).Error
		}

		// A map keeps zero counters and leaves created_at alone
		return tx.Model(&SessionRecord{ID: rec.ID}).Updates(map[string]any{
			"started_at":   rec.StartedAt,
			"ended_at":     rec.EndedAt,
			"duration_sec": rec.DurationSec,
			"crops":        rec.Crops,
			"track_ids":    rec.TrackIDs,
			"disk_free_mb": rec.DiskFreeMB,
			"stop_reason":  rec.StopReason,
			"dir":          rec.Dir,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to write session summary: %w", err)
	}
	return nil
}

// Get returns the stored record of a session
func (s *Store) Get(ctx context.Context, id int64) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
