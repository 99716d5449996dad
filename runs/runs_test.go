package runs

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/export"
	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/timeparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a test run store
func createTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	require.NoError(t, err, "should create run store")
	t.Cleanup(func() { store.Close() })
	return store
}

// Test helper: records covering every timestamp state
func createTestRecords() []newsfeed.NewsRecord {
	return []newsfeed.NewsRecord{
		{
			ID:          uuid.New(),
			URL:         "https://news.test/article/a",
			Title:       "Markets rally",
			Description: "Up $5",
			ImageRef:    "a.png",
			PublishedAt: newsfeed.ParsedAt(time.Date(2024, 3, 10, 9, 55, 0, 0, time.UTC)),
			Features:    &newsfeed.TextFeatures{SearchPhraseMatches: 1, ContainsMoney: true},
		},
		{
			ID:          uuid.New(),
			URL:         "https://news.test/article/b",
			Title:       newsfeed.TitleNotFound,
			ImageRef:    newsfeed.ImageNotFound,
			PublishedAt: newsfeed.ParseError("sometime, 2024"),
		},
		{
			ID:          uuid.New(),
			URL:         "https://news.test/article/c",
			Title:       "Undated",
			ImageRef:    newsfeed.ImageNotFound,
			PublishedAt: newsfeed.NotFound(),
		},
	}
}

// TestNewStore_ExistingDatabase verifies data survives reopening
func TestNewStore_ExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := NewStore(dbPath)
	require.NoError(t, err)
	run, err := store1.CreateRun("finance", "", 0)
	require.NoError(t, err)
	store1.Close()

	store2, err := NewStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "finance", got.Keyword)
}

func TestCreateRun(t *testing.T) {
	store := createTestStore(t)

	run, err := store.CreateRun("finance", "Stories", 2)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.RunID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.False(t, run.IsFinished())

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "finance", got.Keyword)
	assert.Equal(t, "Stories", got.Category)
	assert.Equal(t, 2, got.MonthsWindow)
	assert.Equal(t, StatusRunning, got.Status)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.StopReason)
	assert.Equal(t, 0, got.RecordCount)
}

func TestGetRun_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.GetRun(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishRun_Completed(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	result := &newsfeed.AggregateResult{Pages: 2, StopReason: newsfeed.StopPolicy}
	require.NoError(t, store.FinishRun(run.RunID, result, nil))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.IsFinished())
	assert.Equal(t, 2, got.Pages)
	require.NotNil(t, got.StopReason)
	assert.Equal(t, "policy", *got.StopReason)
	assert.Nil(t, got.LastError)
}

func TestFinishRun_Failed(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	require.NoError(t, store.FinishRun(run.RunID, nil, errors.New("failed to open browser session")))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "failed to open browser session", *got.LastError)
	assert.Nil(t, got.StopReason)
}

func TestFinishRun_Twice(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	require.NoError(t, store.FinishRun(run.RunID, &newsfeed.AggregateResult{}, nil))
	assert.ErrorIs(t, store.FinishRun(run.RunID, &newsfeed.AggregateResult{}, nil), ErrRunFinished)
	assert.ErrorIs(t, store.FinishRun(uuid.New(), nil, nil), ErrRunNotFound)
}

func TestAddRecords_RoundTrip(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	records := createTestRecords()
	require.NoError(t, store.AddRecords(run.RunID, records[:2]))
	require.NoError(t, store.AddRecords(run.RunID, records[2:]))

	got, err := store.ListRecords(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	fetched, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, fetched.RecordCount)
}

func TestAddRecords_AssignsMissingIDs(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	require.NoError(t, store.AddRecords(run.RunID, []newsfeed.NewsRecord{{URL: "https://news.test/a"}}))

	got, err := store.ListRecords(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
}

func TestAddRecords_UnknownRun(t *testing.T) {
	store := createTestStore(t)

	err := store.AddRecords(uuid.New(), createTestRecords())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRecords(t *testing.T) {
	store := createTestStore(t)

	_, err := store.ListRecords(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)

	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)
	records, err := store.ListRecords(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListRuns(t *testing.T) {
	store := createTestStore(t)

	first, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)
	second, err := store.CreateRun("weather", "", 1)
	require.NoError(t, err)
	third, err := store.CreateRun("finance", "", 2)
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(third.RunID, &newsfeed.AggregateResult{}, nil))

	all, err := store.ListRuns(RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.RunID, all[0].RunID, "newest first")
	assert.Equal(t, first.RunID, all[2].RunID)

	keyword := "finance"
	byKeyword, err := store.ListRuns(RunFilter{Keyword: &keyword})
	require.NoError(t, err)
	assert.Len(t, byKeyword, 2)

	status := StatusRunning
	running, err := store.ListRuns(RunFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, running, 2)
	assert.Equal(t, second.RunID, running[0].RunID)

	page, err := store.ListRuns(RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.RunID, page[0].RunID)

	tail, err := store.ListRuns(RunFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, first.RunID, tail[0].RunID)
}

// TestListRecords_KeepsCrawlTimeZone verifies a record parsed outside UTC
// reads back with the same wall clock the exports show
func TestListRecords_KeepsCrawlTimeZone(t *testing.T) {
	store := createTestStore(t)
	run, err := store.CreateRun("finance", "", 0)
	require.NoError(t, err)

	jst := time.FixedZone("JST", 9*60*60)
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, jst)
	records := []newsfeed.NewsRecord{
		{URL: "https://news.test/article/a", PublishedAt: timeparse.Parse("March 2", now)},
		{URL: "https://news.test/article/b", PublishedAt: timeparse.Parse("30 mins ago", now)},
	}
	require.NoError(t, store.AddRecords(run.RunID, records))

	got, err := store.ListRecords(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "2024-03-02T00:00", got[0].PublishedAt.String())
	assert.Equal(t, "2024-03-10T07:30", got[1].PublishedAt.String())
	assert.True(t, records[0].PublishedAt.Time.Equal(got[0].PublishedAt.Time))

	exported := export.Rows(records)
	for i, row := range export.Rows(got) {
		assert.Equal(t, exported[i].Date, row.Date)
	}
}
