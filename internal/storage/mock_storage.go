package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/cbailey/wheelhouse/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests. It
// mirrors JSONStorage's locking and copy semantics without touching
// disk, and can inject save failures.
type MockStorage struct {
	mu        sync.RWMutex
	positions map[string]*models.Position

	SaveErr   error
	SaveCalls int
}

var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates an empty mock book.
func NewMockStorage() *MockStorage {
	return &MockStorage{positions: make(map[string]*models.Position)}
}

func (m *MockStorage) CreatePosition(pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[pos.ID]; exists {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	m.positions[pos.ID] = clonePosition(pos)
	return m.save()
}

func (m *MockStorage) GetPosition(id string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	return clonePosition(pos), nil
}

func (m *MockStorage) UpdatePosition(id string, fn func(*models.Position) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	working := clonePosition(pos)
	if err := fn(working); err != nil {
		return err
	}
	if err := working.Validate(); err != nil {
		return err
	}
	m.positions[id] = working
	return m.save()
}

func (m *MockStorage) ArchivePosition(id string) error {
	return m.UpdatePosition(id, func(p *models.Position) error {
		return p.Archive(time.Now().UTC())
	})
}

func (m *MockStorage) ListOpen() ([]*models.Position, error) {
	return m.list(func(p *models.Position) bool { return !p.IsArchived() })
}

func (m *MockStorage) ListAll() ([]*models.Position, error) {
	return m.list(func(*models.Position) bool { return true })
}

func (m *MockStorage) list(keep func(*models.Position) bool) ([]*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		if keep(pos) {
			out = append(out, clonePosition(pos))
		}
	}
	return out, nil
}

func (m *MockStorage) Summary() (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := &Summary{}
	for _, pos := range m.positions {
		sum.Positions++
		if pos.OpenTrade != nil {
			sum.OpenTrades++
		}
		sum.PremiumCollected += pos.PremiumCollected()
		sum.ClosedTrades += len(pos.History)
	}
	return sum, nil
}

func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save()
}

func (m *MockStorage) Load() error { return nil }

// save is called with the write lock held.
func (m *MockStorage) save() error {
	m.SaveCalls++
	return m.SaveErr
}
