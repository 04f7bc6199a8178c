package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	recErrors "recletter/internal/errors"
	"recletter/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// contextRow holds the program context of a session as a JSON document
type contextRow struct {
	SessionID     string `gorm:"primaryKey;size:64"`
	SchemaVersion int
	Document      string `gorm:"type:text"`
	UpdatedAt     time.Time
}

func (contextRow) TableName() string { return "session_contexts" }

// draftRow is one entry of the append-only draft history
type draftRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SessionID string    `gorm:"index;size:64"`
	CreatedAt time.Time `gorm:"index"`
	Label     string    `gorm:"size:32"`
	Content   string    `gorm:"type:text"`
}

func (draftRow) TableName() string { return "drafts" }

// SQLStore keeps contexts and drafts in SQLite tables through gorm
type SQLStore struct {
	db     *gorm.DB
	logger *recErrors.Logger
}

// NewSQLStore opens (creating if needed) the SQLite database at path
func NewSQLStore(path string, logger *recErrors.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, storeError("failed to open sqlite database", err)
	}
	return NewSQLStoreWithDB(db, logger)
}

// NewSQLStoreWithDB migrates the schema on an existing connection
func NewSQLStoreWithDB(db *gorm.DB, logger *recErrors.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&contextRow{}, &draftRow{}); err != nil {
		return nil, storeError("failed to migrate sqlite schema", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// LoadState implements Store
func (s *SQLStore) LoadState(ctx context.Context, sessionID string) (*State, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var row contextRow
	err := db.Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewState(), nil
	}
	if err != nil {
		return nil, storeError("failed to load context row", err)
	}

	var drafts []draftRow
	if err := db.Where("session_id = ?", sessionID).Order("created_at DESC").Find(&drafts).Error; err != nil {
		return nil, storeError("failed to load drafts", err)
	}

	// Run the row through the shared codec so old context documents migrate
	doc := map[string]any{
		"schemaVersion": row.SchemaVersion,
		"context":       json.RawMessage(row.Document),
		"drafts":        draftsToTypes(drafts),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, storeError("failed to assemble stored state", err)
	}
	state, err := DecodeState(raw, s.logger)
	if err != nil {
		return nil, storeError("failed to decode stored state", err)
	}
	return state, nil
}

// SaveState implements Store. Drafts already present are left untouched.
func (s *SQLStore) SaveState(ctx context.Context, sessionID string, state *State) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	doc, err := json.Marshal(state.Context.Normalized())
	if err != nil {
		return storeError("failed to encode context", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := contextRow{
			SessionID:     sessionID,
			SchemaVersion: SchemaVersion,
			Document:      string(doc),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_version", "document", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}

		if len(state.Drafts) == 0 {
			return nil
		}
		rows := make([]draftRow, 0, len(state.Drafts))
		for _, d := range state.Drafts {
			rows = append(rows, draftRow{
				ID:        d.ID,
				SessionID: sessionID,
				CreatedAt: d.Timestamp,
				Label:     string(d.Label),
				Content:   d.Content,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return storeError("failed to save state", err)
	}
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func draftsToTypes(rows []draftRow) []types.Draft {
	out := make([]types.Draft, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Draft{
			ID:        r.ID,
			Timestamp: r.CreatedAt,
			Label:     types.DraftLabel(r.Label),
			Content:   r.Content,
		})
	}
	return out
}
