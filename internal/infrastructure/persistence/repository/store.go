package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02 15:04:05.000000"

// Store is the SQLite implementation of every persistence port of the engine
type Store struct {
	*DefinitionRepository
	*InstanceRepository
	*StepInstanceRepository
	*MetricsRepository
	*OrgRepository
	*ConfigRepository
}

// NewStore creates the repositories over one database
func NewStore(db *sqlite.DB, logger *zap.Logger) *Store {
	return &Store{
		DefinitionRepository:   NewDefinitionRepository(db, logger),
		InstanceRepository:     NewInstanceRepository(db, logger),
		StepInstanceRepository: NewStepInstanceRepository(db, logger),
		MetricsRepository:      NewMetricsRepository(db, logger),
		OrgRepository:          NewOrgRepository(db, logger),
		ConfigRepository:       NewConfigRepository(db, logger),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(data), nil
}

// Verify interface compliance
var (
	_ port.WorkflowRepository = (*Store)(nil)
	_ port.OrgDirectory       = (*Store)(nil)
	_ port.ConfigurationStore = (*Store)(nil)
)
