package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("CLIENT_DB_PATH", t.TempDir())
	s, dbPath, err := OpenForUser("tester")
	require.NoError(t, err)
	require.NotEmpty(t, dbPath)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func TestStore_SaveAndList(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveObject(Object{
		ObjectID:      "obj-1",
		Name:          "cat.png",
		ContentType:   "image/png",
		ContentHash:   "deadbeef",
		PlaintextSize: 1024,
		CreatedAt:     100,
	}))
	require.NoError(t, s.SaveObject(Object{
		ObjectID:      "obj-2",
		Name:          "dog.jpg",
		ContentType:   "image/jpeg",
		ContentHash:   "cafebabe",
		PlaintextSize: 2048,
		CreatedAt:     200,
	}))

	list, err := s.ListObjects()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "obj-2", list[0].ObjectID, "newest first")

	got, err := s.GetObjectByName("cat.png")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", got.ObjectID)
	assert.Equal(t, int64(1024), got.PlaintextSize)

	_, err = s.GetObjectByName("missing.png")
	assert.Error(t, err)
}

func TestStore_UpsertAndDelete(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveObject(Object{ObjectID: "obj-1", Name: "a.png", ContentType: "image/png", ContentHash: "h1", PlaintextSize: 1}))
	// повторное сохранение того же объекта обновляет метаданные
	require.NoError(t, s.SaveObject(Object{ObjectID: "obj-1", Name: "a-v2.png", ContentType: "image/png", ContentHash: "h2", PlaintextSize: 2}))

	got, err := s.GetObjectByName("a-v2.png")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.ContentHash)

	require.NoError(t, s.DeleteObject("obj-1"))
	list, err := s.ListObjects()
	require.NoError(t, err)
	assert.Empty(t, list)

	// невалидный ввод
	assert.Error(t, s.SaveObject(Object{Name: "no-id"}))
	assert.NoError(t, s.DeleteObject("already-gone"))
}
