package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"parts-assistant/internal/cache"
	"parts-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func turns(n int) models.History {
	h := models.History{}
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		h = append(h, models.Turn{Role: role, Content: fmt.Sprintf("t%d", i)})
	}
	return h
}

func appendTurn(content string) UpdateFunc {
	return func(h models.History) (models.History, error) {
		return h.Append(
			models.Turn{Role: models.RoleUser, Content: content},
			models.Turn{Role: models.RoleAssistant, Content: "ok " + content},
		), nil
	}
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("unknown id is empty", func(t *testing.T) {
		h, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.NotNil(t, h)
		assert.Empty(t, h)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "c1", turns(2)))
		h, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, turns(2), h)
	})

	t.Run("update appends", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, "c2", appendTurn("a")))
		require.NoError(t, s.Update(ctx, "c2", appendTurn("b")))
		h, err := s.Get(ctx, "c2")
		require.NoError(t, err)
		require.Len(t, h, 4)
		assert.Equal(t, "a", h[0].Content)
		assert.Equal(t, "ok b", h[3].Content)
	})

	t.Run("failed update leaves history", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "c3", turns(2)))
		boom := errors.New("boom")
		err := s.Update(ctx, "c3", func(models.History) (models.History, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		h, err := s.Get(ctx, "c3")
		require.NoError(t, err)
		assert.Equal(t, turns(2), h)
	})

	t.Run("concurrent updates on one id are serialized", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Update(ctx, "busy", appendTurn(fmt.Sprint(i))))
			}()
		}
		wg.Wait()

		h, err := s.Get(ctx, "busy")
		require.NoError(t, err)
		require.Len(t, h, 2*workers)
		seen := map[string]bool{}
		for i := 0; i < len(h); i += 2 {
			assert.Equal(t, models.RoleUser, h[i].Role)
			assert.Equal(t, "ok "+h[i].Content, h[i+1].Content, "turn pairs stay adjacent")
			seen[h[i].Content] = true
		}
		assert.Len(t, seen, workers)
	})

	t.Run("updates on other ids are not blocked", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		held := make(chan error, 1)
		go func() {
			held <- s.Update(ctx, "conv-a", func(h models.History) (models.History, error) {
				close(entered)
				<-release
				return h, nil
			})
		}()
		<-entered

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				assert.NoError(t, s.Update(ctx, fmt.Sprintf("conv-%d", i), appendTurn("q")))
			}
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("update on another id waited for conv-a")
		}

		close(release)
		require.NoError(t, <-held)
		<-done
	})

	t.Run("ids are independent", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, "x", appendTurn("only x")))
		h, err := s.Get(ctx, "y")
		require.NoError(t, err)
		assert.Empty(t, h)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(MemoryOptions{}))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryOptions{})
	require.NoError(t, s.Put(ctx, "c", turns(2)))

	h, err := s.Get(ctx, "c")
	require.NoError(t, err)
	h[0].Content = "mutated"

	again, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "t0", again[0].Content)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryOptions{TTL: time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "c", turns(2)))
	now = now.Add(59 * time.Minute)
	h, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, h, 2)

	now = now.Add(2 * time.Minute)
	h, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryOptions{MaxConversations: 2})

	require.NoError(t, s.Put(ctx, "a", turns(2)))
	require.NoError(t, s.Put(ctx, "b", turns(2)))
	require.NoError(t, s.Update(ctx, "a", appendTurn("again")))
	require.NoError(t, s.Put(ctx, "c", turns(2)))

	assert.Equal(t, 2, s.Len())
	h, _ := s.Get(ctx, "b")
	assert.Empty(t, h)
	h, _ = s.Get(ctx, "a")
	assert.Len(t, h, 4)
}

func TestMemoryStoreMaxTurns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryOptions{MaxTurns: 4})

	require.NoError(t, s.Put(ctx, "c", turns(7)))
	h, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "t4", h[0].Content)
	assert.Equal(t, models.RoleUser, h[0].Role)
}

func TestTrim(t *testing.T) {
	assert.Len(t, trim(turns(10), 0), 10)
	assert.Len(t, trim(turns(3), 4), 3)
	assert.Len(t, trim(turns(10), 4), 4)
	assert.Equal(t, "t6", trim(turns(10), 4)[0].Content)
	assert.Len(t, trim(turns(3), 1), 1)

	// an unanswered user turn breaks the alternation
	u := func(c string) models.Turn { return models.Turn{Role: models.RoleUser, Content: c} }
	a := func(c string) models.Turn { return models.Turn{Role: models.RoleAssistant, Content: c} }
	h := models.History{u("u1"), u("u2"), a("a2"), u("u3"), a("a3")}
	assert.Equal(t, models.History{u("u2"), a("a2"), u("u3"), a("a3")}, trim(h, 4))
	assert.Equal(t, models.History{u("u3"), a("a3")}, trim(h, 3))
	assert.Equal(t, models.History{}, trim(models.History{u("u1"), a("a1")}, 1))
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex

	unlockA := k.lock("a")
	unlockB := k.lock("b")
	assert.Equal(t, 2, k.size())

	acquired := make(chan struct{})
	go func() {
		unlock := k.lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder of the same key did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	unlockB()
	unlockA()
	<-acquired
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	conn, err := cache.Connect(ctx, cache.RedisConfig{Addr: host + ":" + port.Port(), PoolSize: 30})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := NewRedisStore(conn, "test:conv:", time.Hour, 0)
	exerciseStore(t, s)

	ttl, err := conn.TTL(ctx, "test:conv:c1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	t.Run("concurrent writers across store instances", func(t *testing.T) {
		other := NewRedisStore(conn, "test:conv:", time.Hour, 0)
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); assert.NoError(t, s.Update(ctx, "shared", appendTurn("s"))) }()
			go func() { defer wg.Done(); assert.NoError(t, other.Update(ctx, "shared", appendTurn("o"))) }()
		}
		wg.Wait()

		h, err := s.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Len(t, h, 16)
	})
}
