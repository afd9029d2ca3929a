package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "chartdesk-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func floatPtr(v float64) *float64 {
	return &v
}

func testDrawings() []domain.Drawing {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Drawing{
		{
			ID: "d1", Type: domain.DrawingTrendline, Color: "#3b82f6", LineWidth: 2, CreatedAt: now, UpdatedAt: now,
			StartPoint: &domain.Point{X: 1700000000, Y: 42000}, EndPoint: &domain.Point{X: 1700003600, Y: 42500.5},
		},
		{
			ID: "d2", Type: domain.DrawingPriceMarker, Color: "#22c55e", LineWidth: 2, CreatedAt: now, UpdatedAt: now,
			Price: 41999.99, Label: "Signal", Side: domain.SideBuy,
		},
		{
			ID: "d3", Type: domain.DrawingText, Color: "#ffffff", LineWidth: 1, CreatedAt: now, UpdatedAt: now,
			Position: &domain.Point{X: 1700001800, Y: 42300}, Text: "Breakout", FontSize: 14, BackgroundColor: "#1a1a28",
		},
	}
}

func TestRepository_SaveAndLoadDrawings(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	scope := domain.Scope{ReferralCode: "ref-1", Symbol: "BTCUSDT"}
	other := domain.Scope{ReferralCode: "ref-2", Symbol: "BTCUSDT"}

	require.NoError(t, repo.SaveDrawings(ctx, scope, testDrawings()))
	require.NoError(t, repo.SaveDrawings(ctx, other, testDrawings()[:1:1]))

	got, err := repo.LoadDrawings(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range testDrawings() {
		want.Scope = scope
		assert.Equal(t, want, got[i])
	}

	// Full-list replace: the next save drops what is no longer present.
	require.NoError(t, repo.SaveDrawings(ctx, scope, testDrawings()[2:]))
	got, err = repo.LoadDrawings(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d3", got[0].ID)

	// Clearing.
	require.NoError(t, repo.SaveDrawings(ctx, scope, nil))
	got, err = repo.LoadDrawings(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.LoadDrawings(ctx, other)
	require.NoError(t, err)
	assert.Len(t, got, 1, "other scopes are untouched")
}

func TestRepository_SaveDrawingsRejectsInvalid(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	scope := domain.Scope{ReferralCode: "ref-1", Symbol: "BTCUSDT"}
	require.NoError(t, repo.SaveDrawings(ctx, scope, testDrawings()))

	tests := []struct {
		name     string
		scope    domain.Scope
		drawings []domain.Drawing
		wantErr  error
	}{
		{
			name:     "missing scope",
			scope:    domain.Scope{Symbol: "BTCUSDT"},
			drawings: testDrawings(),
			wantErr:  ports.ErrInvalidRequest,
		},
		{
			name:     "trendline without points",
			scope:    scope,
			drawings: []domain.Drawing{{ID: "bad", Type: domain.DrawingTrendline, Color: "#ffffff", LineWidth: 1}},
			wantErr:  ports.ErrInvalidDrawing,
		},
		{
			name:     "duplicate id",
			scope:    scope,
			drawings: append(testDrawings(), testDrawings()[0]),
			wantErr:  ports.ErrDuplicateEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.SaveDrawings(ctx, tt.scope, tt.drawings)
			assert.ErrorIs(t, err, tt.wantErr)

			got, err := repo.LoadDrawings(ctx, scope)
			require.NoError(t, err)
			assert.Len(t, got, 3, "failed save must roll back")
		})
	}
}

func TestRepository_CreateAndFindPosition(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name     string
		position *domain.Position
	}{
		{
			name: "long with both exits",
			position: &domain.Position{
				ID: "p1", Symbol: "BTCUSDT", EntryPrice: 50000, Direction: domain.Long,
				TakeProfit: floatPtr(52000), StopLoss: floatPtr(49000),
				OpenedAt: time.Now().UTC().Truncate(time.Second), Status: domain.StatusOpen,
			},
		},
		{
			name: "short without exits",
			position: &domain.Position{
				ID: "p2", Symbol: "ETHUSDT", EntryPrice: 3000, Direction: domain.Short,
				OpenedAt: time.Now().UTC().Truncate(time.Second), Status: domain.StatusOpen,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, repo.Create(ctx, tt.position))

			found, err := repo.FindByID(ctx, tt.position.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, tt.position.Symbol, found.Symbol)
			assert.Equal(t, tt.position.EntryPrice, found.EntryPrice)
			assert.Equal(t, tt.position.Direction, found.Direction)
			assert.Equal(t, tt.position.TakeProfit, found.TakeProfit)
			assert.Equal(t, tt.position.StopLoss, found.StopLoss)
			assert.Equal(t, tt.position.Status, found.Status)
			assert.True(t, tt.position.OpenedAt.Equal(found.OpenedAt))
		})
	}

	err := repo.Create(ctx, tests[0].position)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_UpdateExits(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pos := &domain.Position{
		ID: "p1", Symbol: "BTCUSDT", EntryPrice: 50000, Direction: domain.Long,
		OpenedAt: time.Now().UTC(), Status: domain.StatusOpen,
	}
	require.NoError(t, repo.Create(ctx, pos))

	pos.SetExit(domain.ExitTakeProfit, 51000)
	require.NoError(t, repo.UpdateExits(ctx, pos))

	found, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, found.TakeProfit)
	assert.Equal(t, 51000.0, *found.TakeProfit)
	assert.Nil(t, found.StopLoss)

	err = repo.UpdateExits(ctx, &domain.Position{ID: "missing"})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FindOpenBySymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"newer", "older", "closed"} {
		require.NoError(t, repo.Create(ctx, &domain.Position{
			ID: id, Symbol: "BTCUSDT", EntryPrice: 50000, Direction: domain.Long,
			OpenedAt: base.Add(-time.Duration(i) * time.Hour), Status: domain.StatusOpen,
		}))
	}
	require.NoError(t, repo.MarkClosed(ctx, "closed"))
	require.NoError(t, repo.Create(ctx, &domain.Position{
		ID: "eth", Symbol: "ETHUSDT", EntryPrice: 3000, Direction: domain.Short, OpenedAt: base, Status: domain.StatusOpen,
	}))

	open, err := repo.FindOpenBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "older", open[0].ID)
	assert.Equal(t, "newer", open[1].ID)

	assert.ErrorIs(t, repo.MarkClosed(ctx, "missing"), ports.ErrNotFound)
}
