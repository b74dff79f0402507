package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type sessionRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	GameName   string    `gorm:"size:255;not null"`
	MasterName string    `gorm:"size:255;not null"`
	State      string    `gorm:"size:20;not null"`
	Seats      int       `gorm:"not null"`
	Players    int       `gorm:"not null"`
	StartedAt  time.Time `gorm:"index;not null"`
	EndedAt    *time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type scriptErrorRow struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null"`
	Event     string    `gorm:"size:255;not null"`
	Message   string    `gorm:"type:text;not null"`
	At        time.Time `gorm:"not null"`
}

func (scriptErrorRow) TableName() string { return "script_errors" }

// Postgres is a Store backed by gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&sessionRow{}, &scriptErrorRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveSession(ctx context.Context, rec SessionRecord) error {
	row := sessionRow(rec)
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) Session(ctx context.Context, id uuid.UUID) (SessionRecord, error) {
	var row sessionRow
	err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return SessionRecord(row), nil
}

func (p *Postgres) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	var rows []sessionRow
	if err := p.db.WithContext(ctx).Order("started_at desc").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, SessionRecord(row))
	}
	return out, nil
}

func (p *Postgres) AppendScriptError(ctx context.Context, e ScriptError) error {
	row := scriptErrorRow{SessionID: e.SessionID, Event: e.Event, Message: e.Message, At: e.At}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append script error: %w", err)
	}
	return nil
}

func (p *Postgres) ListScriptErrors(ctx context.Context, sessionID uuid.UUID) ([]ScriptError, error) {
	var rows []scriptErrorRow
	err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list script errors: %w", err)
	}
	out := make([]ScriptError, 0, len(rows))
	for _, row := range rows {
		out = append(out, ScriptError{SessionID: row.SessionID, Event: row.Event, Message: row.Message, At: row.At})
	}
	return out, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
