package schedule

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/store"
)

type recordingStarter struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingStarter) Start(url string, formIndex int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return "job1", nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAddValidates(t *testing.T) {
	s := New(openStore(t), &recordingStarter{}, nil)
	ctx := context.Background()

	_, err := s.Add(ctx, "ftp://a.test/", 0, "* * * * *")
	assert.ErrorIs(t, err, controller.ErrInvalidURL)

	_, err = s.Add(ctx, "https://a.test/", 0, "every minute")
	assert.ErrorContains(t, err, "invalid cron expression")

	sc, err := s.Add(ctx, "https://a.test/", -3, " */10 * * * * ")
	require.NoError(t, err)
	assert.Len(t, sc.ID, 10)
	assert.Equal(t, 0, sc.FormIndex)
	assert.Equal(t, "*/10 * * * *", sc.Cron)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sc.ID, list[0].ID)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRestoreAndRemove(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSchedule(ctx, &store.Schedule{ID: "good", URL: "https://a.test/", Cron: "0 * * * *"}))
	require.NoError(t, st.SaveSchedule(ctx, &store.Schedule{ID: "bad", URL: "https://b.test/", Cron: "not cron"}))

	s := New(st, &recordingStarter{}, nil)
	require.NoError(t, s.Restore(ctx))
	assert.Len(t, s.cron.Entries(), 1)
	assert.Contains(t, s.entries, "good")

	require.NoError(t, s.Remove(ctx, "good"))
	assert.Empty(t, s.cron.Entries())
	assert.ErrorIs(t, s.Remove(ctx, "good"), store.ErrNotFound)
}

func TestFireStartsJob(t *testing.T) {
	starter := &recordingStarter{}
	s := New(openStore(t), starter, nil)
	s.fire(store.Schedule{ID: "s1", URL: "https://a.test/contact", Cron: "* * * * *"})
	assert.Equal(t, []string{"https://a.test/contact"}, starter.urls)
}

func TestStartStop(t *testing.T) {
	s := New(openStore(t), &recordingStarter{}, nil)
	s.Start()
	<-s.Stop().Done()
}
