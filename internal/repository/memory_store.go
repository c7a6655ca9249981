package repository

import (
	"context"
	"sync"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
)

// MemoryStore is the process-local store used when no database path is set.
type MemoryStore struct {
	mu        sync.RWMutex
	settings  *models.Settings
	watchlist *models.PersistedWatchlist
}

var (
	_ drepo.SettingsStore  = (*MemoryStore)(nil)
	_ drepo.WatchlistStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) LoadSettings(context.Context) (models.Settings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return models.Settings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *MemoryStore) LoadWatchlist(context.Context) (models.PersistedWatchlist, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.watchlist == nil {
		return models.PersistedWatchlist{}, false, nil
	}
	return clonePersisted(*m.watchlist), true, nil
}

func (m *MemoryStore) SaveWatchlist(_ context.Context, w models.PersistedWatchlist) error {
	c := clonePersisted(w)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlist = &c
	return nil
}

func clonePersisted(w models.PersistedWatchlist) models.PersistedWatchlist {
	return models.PersistedWatchlist{
		Symbols:   append([]string(nil), w.Symbols...),
		SignalLog: append([]models.SignalLogEntry(nil), w.SignalLog...),
	}
}
