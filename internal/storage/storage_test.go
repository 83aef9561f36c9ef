package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbailey/wheelhouse/internal/models"
)

func tempStorage(t *testing.T) (*JSONStorage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := NewJSONStorage(path)
	require.NoError(t, err)
	return s, path
}

func TestCreateAndGetPosition(t *testing.T) {
	s, _ := tempStorage(t)

	pos := models.NewCashPosition("p1", "XYZ", 10000, "balanced")
	require.NoError(t, s.CreatePosition(pos))

	got, err := s.GetPosition("p1")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", got.Symbol)
	assert.Equal(t, models.StateCash, got.State)

	// The returned position is a copy; mutating it must not leak back.
	got.Symbol = "MUTATED"
	again, err := s.GetPosition("p1")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", again.Symbol)
}

func TestCreatePosition_Duplicate(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")))

	err := s.CreatePosition(models.NewCashPosition("p1", "ABC", 5000, "balanced"))
	assert.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestCreatePosition_RejectsInvalid(t *testing.T) {
	s, _ := tempStorage(t)
	bad := models.NewSharesPosition("p1", "XYZ", 150, 95, "balanced")
	assert.Error(t, s.CreatePosition(bad))
}

func TestGetPosition_NotFound(t *testing.T) {
	s, _ := tempStorage(t)
	_, err := s.GetPosition("missing")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestUpdatePosition(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")))

	err := s.UpdatePosition("p1", func(p *models.Position) error {
		return p.RecordTrade(models.TradeEvent{
			ID:              "ev1",
			Direction:       models.OptionTypePut,
			Strike:          95,
			Expiration:      time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
			PremiumPerShare: 1.10,
			Contracts:       1,
		})
	})
	require.NoError(t, err)

	got, err := s.GetPosition("p1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCashPutOpen, got.State)
	require.NotNil(t, got.OpenTrade)
}

func TestUpdatePosition_ErrorAbortsWithoutMutation(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "XYZ", 1000, "balanced")))

	// Capacity failure inside the update must leave the stored position
	// untouched.
	err := s.UpdatePosition("p1", func(p *models.Position) error {
		return p.RecordTrade(models.TradeEvent{
			ID:              "ev1",
			Direction:       models.OptionTypePut,
			Strike:          95,
			Expiration:      time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
			PremiumPerShare: 1.10,
			Contracts:       1,
		})
	})
	assert.ErrorIs(t, err, models.ErrInsufficientCapacity)

	got, err := s.GetPosition("p1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCash, got.State)
	assert.Nil(t, got.OpenTrade)
}

func TestArchivePosition(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")))
	require.NoError(t, s.ArchivePosition("p1"))

	open, err := s.ListOpen()
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.True(t, all[0].IsArchived())
}

func TestListOpen_SortedBySymbol(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "ZZZ", 1000, "balanced")))
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p2", "AAA", 1000, "balanced")))

	open, err := s.ListOpen()
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "AAA", open[0].Symbol)
	assert.Equal(t, "ZZZ", open[1].Symbol)
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, path := tempStorage(t)
	pos := models.NewCashPosition("p1", "XYZ", 10000, "balanced")
	require.NoError(t, s.CreatePosition(pos))

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	got, err := reopened.GetPosition("p1")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", got.Symbol)
	assert.InDelta(t, 10000.0, got.CapitalAllocated, 1e-9)

	// No stray temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSummary(t *testing.T) {
	s, _ := tempStorage(t)
	require.NoError(t, s.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")))

	require.NoError(t, s.UpdatePosition("p1", func(p *models.Position) error {
		err := p.RecordTrade(models.TradeEvent{
			ID:              "ev1",
			Direction:       models.OptionTypePut,
			Strike:          95,
			Expiration:      time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
			PremiumPerShare: 1.10,
			Contracts:       1,
		})
		if err != nil {
			return err
		}
		_, err = p.SettleAtExpiry(97, time.Now())
		return err
	}))

	sum, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Positions)
	assert.Equal(t, 0, sum.OpenTrades)
	assert.Equal(t, 1, sum.ClosedTrades)
	assert.Equal(t, 1, sum.ExpiredWorthless)
	assert.InDelta(t, 110.0, sum.PremiumCollected, 1e-9)
}

func TestMockStorage_ImplementsSameContract(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")))
	assert.ErrorIs(t, m.CreatePosition(models.NewCashPosition("p1", "XYZ", 10000, "balanced")), ErrDuplicatePosition)

	_, err := m.GetPosition("nope")
	assert.ErrorIs(t, err, ErrPositionNotFound)
	assert.Positive(t, m.SaveCalls)
}
