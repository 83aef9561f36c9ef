package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cbailey/wheelhouse/internal/models"
)

// JSONStorage keeps the whole book in one JSON file. Writes go to a
// temp file first and rename into place, so a crash mid-save never
// leaves a torn file behind.
type JSONStorage struct {
	mu   sync.RWMutex
	path string
	data *bookData
}

type bookData struct {
	Positions   map[string]*models.Position `json:"positions"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// NewJSONStorage opens (or initializes) the book at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		path: path,
		data: &bookData{Positions: make(map[string]*models.Position)},
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

// Load replaces in-memory state with the file's contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	data := &bookData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if data.Positions == nil {
		data.Positions = make(map[string]*models.Position)
	}
	s.data = data
	return nil
}

// Save persists in-memory state to disk.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// CreatePosition adds pos to the book.
func (s *JSONStorage) CreatePosition(pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Positions[pos.ID]; exists {
		return fmt.Errorf("position %s: %w", pos.ID, ErrDuplicatePosition)
	}
	copied := clonePosition(pos)
	s.data.Positions[pos.ID] = copied
	return s.saveLocked()
}

// GetPosition returns a copy of the stored position.
func (s *JSONStorage) GetPosition(id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.data.Positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
	}
	return clonePosition(pos), nil
}

// UpdatePosition mutates the stored position through fn under the write
// lock. Capacity checks and state transitions inside fn therefore run
// atomically against concurrent callers.
func (s *JSONStorage) UpdatePosition(id string, fn func(*models.Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.data.Positions[id]
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
	s.data.Positions[id] = working
	return s.saveLocked()
}

// ArchivePosition retires the position; refused while a trade is open.
func (s *JSONStorage) ArchivePosition(id string) error {
	return s.UpdatePosition(id, func(p *models.Position) error {
		return p.Archive(time.Now().UTC())
	})
}

// ListOpen returns all non-archived positions, sorted by symbol.
func (s *JSONStorage) ListOpen() ([]*models.Position, error) {
	return s.list(func(p *models.Position) bool { return !p.IsArchived() })
}

// ListAll returns every position, archived included, sorted by symbol.
func (s *JSONStorage) ListAll() ([]*models.Position, error) {
	return s.list(func(*models.Position) bool { return true })
}

func (s *JSONStorage) list(keep func(*models.Position) bool) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Position, 0, len(s.data.Positions))
	for _, pos := range s.data.Positions {
		if keep(pos) {
			out = append(out, clonePosition(pos))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Summary aggregates realized results across the book.
func (s *JSONStorage) Summary() (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{}
	for _, pos := range s.data.Positions {
		sum.Positions++
		if pos.OpenTrade != nil {
			sum.OpenTrades++
		}
		sum.PremiumCollected += pos.PremiumCollected()
		for i := range pos.History {
			sum.ClosedTrades++
			switch pos.History[i].Outcome {
			case models.OutcomeExpiredWorthless:
				sum.ExpiredWorthless++
			case models.OutcomeAssigned:
				sum.Assigned++
			case models.OutcomeCalledAway:
				sum.CalledAway++
			case models.OutcomeClosedEarly:
				sum.ClosedEarly++
			}
		}
	}
	return sum, nil
}

// clonePosition deep-copies via the JSON codec; positions are small and
// this keeps copies honest as fields are added.
func clonePosition(p *models.Position) *models.Position {
	raw, err := json.Marshal(p)
	if err != nil {
		copied := *p
		return &copied
	}
	out := &models.Position{}
	if err := json.Unmarshal(raw, out); err != nil {
		copied := *p
		return &copied
	}
	return out
}
