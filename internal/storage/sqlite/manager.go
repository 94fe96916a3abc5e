package sqlite

import (
	"database/sql"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
)

// Manager bundles the storage services that share one SQLite handle
type Manager struct {
	db     *SQLiteDB
	audit  *AuditStorage
	domain *DomainStorage
	logger arbor.ILogger
}

// NewManager opens the database and wires the storage services
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (*Manager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:     db,
		audit:  NewAuditStorage(db, logger),
		domain: NewDomainStorage(db, logger),
		logger: logger,
	}, nil
}

// Audit returns the notification audit storage
func (m *Manager) Audit() *AuditStorage {
	return m.audit
}

// Domain returns the training domain storage
func (m *Manager) Domain() *DomainStorage {
	return m.domain
}

// DB exposes the raw handle, shared with the goqite queue
func (m *Manager) DB() *sql.DB {
	return m.db.DB()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
