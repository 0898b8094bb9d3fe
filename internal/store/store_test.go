package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/wayfarer.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.migrate(ctx))

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	db := testDB(t)
	var on int
	require.NoError(t, db.sql.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"sessions", "messages", "pois", "pois_fts"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

// --- Durable contract, run against both implementations ---

func durables(t *testing.T) map[string]Durable {
	return map[string]Durable{
		"sqlite": NewConversationStore(testDB(t)),
		"memory": NewMemoryDurable(),
	}
}

func TestDurable_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, d := range durables(t) {
		t.Run(name, func(t *testing.T) {
			got, err := d.FindSession(ctx, "s1")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, d.InsertSession(ctx, &domain.Session{ID: "s1", UserID: "u1", Title: "北京三日"}))

			got, err = d.FindSession(ctx, "s1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "北京三日", got.Title)
			assert.Empty(t, got.Itinerary)
			assert.False(t, got.CreatedAt.IsZero())

			require.NoError(t, d.UpdateItinerary(ctx, "s1", `{"dailyRoutes":[{"points":[]}]}`))
			require.NoError(t, d.RenameSession(ctx, "s1", "renamed"))
			got, err = d.FindSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "renamed", got.Title)
			assert.Equal(t, `{"dailyRoutes":[{"points":[]}]}`, got.Itinerary)
			assert.False(t, got.ModifiedAt.Before(got.CreatedAt))

			require.NoError(t, d.DeleteSession(ctx, "s1"))
			got, err = d.FindSession(ctx, "s1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestDurable_MissingSession(t *testing.T) {
	ctx := context.Background()
	for name, d := range durables(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, d.UpdateItinerary(ctx, "nope", "{}"), ErrSessionNotFound)
			assert.ErrorIs(t, d.RenameSession(ctx, "nope", "x"), ErrSessionNotFound)
			assert.ErrorIs(t, d.DeleteSession(ctx, "nope"), ErrSessionNotFound)
			assert.ErrorIs(t, d.TouchSession(ctx, "nope"), ErrSessionNotFound)
			assert.Error(t, d.InsertMessage(ctx, domain.Message{ID: "m", SessionID: "nope", Content: "x"}))
		})
	}
}

func TestDurable_MessagesOrdered(t *testing.T) {
	ctx := context.Background()
	for name, d := range durables(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, d.InsertSession(ctx, &domain.Session{ID: "s1", UserID: "u1"}))

			// identical timestamps: insertion order must still win
			ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for i := range 5 {
				require.NoError(t, d.InsertMessage(ctx, domain.Message{
					ID:        fmt.Sprintf("m%d", i),
					SessionID: "s1",
					Role:      domain.RoleFromString([]string{"user", "assistant"}[i%2]),
					Content:   fmt.Sprintf("content %d", i),
					CreatedAt: ts,
				}))
			}

			msgs, err := d.FindMessagesBySession(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, msgs, 5)
			for i, m := range msgs {
				assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
			}
			assert.Equal(t, domain.RoleUser, msgs[0].Role)
			assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
			assert.True(t, ts.Equal(msgs[0].CreatedAt))

			empty, err := d.FindMessagesBySession(ctx, "other")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestDurable_DeleteCascadesMessages(t *testing.T) {
	ctx := context.Background()
	for name, d := range durables(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, d.InsertSession(ctx, &domain.Session{ID: "s1", UserID: "u1"}))
			require.NoError(t, d.InsertMessage(ctx, domain.Message{ID: "m1", SessionID: "s1", Content: "hi"}))
			require.NoError(t, d.DeleteSession(ctx, "s1"))

			// Recreate with the same id: history must start empty
			require.NoError(t, d.InsertSession(ctx, &domain.Session{ID: "s1", UserID: "u1"}))
			msgs, err := d.FindMessagesBySession(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestDurable_ListSessionsPaged(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for name, d := range durables(t) {
		t.Run(name, func(t *testing.T) {
			for i := range 5 {
				at := base.Add(time.Duration(i) * time.Minute)
				require.NoError(t, d.InsertSession(ctx, &domain.Session{
					ID: fmt.Sprintf("s%d", i), UserID: "u1", CreatedAt: at, ModifiedAt: at,
				}))
			}
			require.NoError(t, d.InsertSession(ctx, &domain.Session{ID: "other", UserID: "u2"}))

			n, err := d.CountSessions(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 5, n)

			page1, err := d.ListSessions(ctx, "u1", 1, 2)
			require.NoError(t, err)
			require.Len(t, page1, 2)
			assert.Equal(t, "s4", page1[0].ID)
			assert.Equal(t, "s3", page1[1].ID)

			page3, err := d.ListSessions(ctx, "u1", 3, 2)
			require.NoError(t, err)
			require.Len(t, page3, 1)
			assert.Equal(t, "s0", page3[0].ID)

			beyond, err := d.ListSessions(ctx, "u1", 9, 2)
			require.NoError(t, err)
			assert.Empty(t, beyond)
		})
	}
}

// --- POI store ---

func TestPOIStore_ByCity(t *testing.T) {
	ctx := context.Background()
	ps := NewPOIStore(testDB(t))

	for i, name := range []string{"Forbidden City", "Temple of Heaven", "Summer Palace"} {
		_, err := ps.Upsert(ctx, POI{Name: name, City: "Beijing", RankInCity: 3 - i})
		require.NoError(t, err)
	}
	_, err := ps.Upsert(ctx, POI{Name: "The Bund", City: "Shanghai", RankInCity: 1})
	require.NoError(t, err)

	got, err := ps.ByCity(ctx, " Beijing ", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Summer Palace", got[0].Name)
	assert.Equal(t, "Forbidden City", got[2].Name)

	limited, err := ps.ByCity(ctx, "Beijing", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := ps.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPOIStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	ps := NewPOIStore(testDB(t))

	poi, err := ps.Upsert(ctx, POI{Name: "Summer Palace", City: "Beijing", Description: "imperial garden by a lake"})
	require.NoError(t, err)
	require.NotEmpty(t, poi.ID)

	found, err := ps.Search(ctx, "", "garden", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)

	poi.Description = "royal park"
	_, err = ps.Upsert(ctx, *poi)
	require.NoError(t, err)

	found, err = ps.Search(ctx, "Beijing", "garden", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = ps.Search(ctx, "Beijing", "park", 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = ps.Search(ctx, "Shanghai", "park", 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}
