package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	post     interfaces.PostStorage
	merit    interfaces.MeritStorage
	modLog   interfaces.ModLogStorage
	version  interfaces.VersionStorage
	rescrape interfaces.RescrapeStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager owning its own connection
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return NewManagerWithDB(db, logger), nil
}

// NewManagerWithDB creates a storage manager over an existing connection.
// Used when other components (the presence cache) share the same database.
func NewManagerWithDB(db *BadgerDB, logger arbor.ILogger) interfaces.StorageManager {
	manager := &Manager{
		db:       db,
		post:     NewPostStorage(db, logger),
		merit:    NewMeritStorage(db, logger),
		modLog:   NewModLogStorage(db, logger),
		version:  NewVersionStorage(db, logger),
		rescrape: NewRescrapeStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager
}

// PostStorage returns the Post storage interface
func (m *Manager) PostStorage() interfaces.PostStorage {
	return m.post
}

// MeritStorage returns the Merit storage interface
func (m *Manager) MeritStorage() interfaces.MeritStorage {
	return m.merit
}

// ModLogStorage returns the ModLog storage interface
func (m *Manager) ModLogStorage() interfaces.ModLogStorage {
	return m.modLog
}

// VersionStorage returns the Version storage interface
func (m *Manager) VersionStorage() interfaces.VersionStorage {
	return m.version
}

// RescrapeStorage returns the Rescrape storage interface
func (m *Manager) RescrapeStorage() interfaces.RescrapeStorage {
	return m.rescrape
}

// DB returns the underlying database connection
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
