package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Missing(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.Get(context.Background(), "entities", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetMerge_CreatesDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "entities", "E1", map[string]any{"name": "Alcaldía", "phone": "222"}))

	body := decodeBody(t, s, "entities", "E1")
	assert.Equal(t, map[string]any{"name": "Alcaldía", "phone": "222"}, body)
}

func TestSetMerge_KeepsAbsentFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "entities", "E1", map[string]any{"name": "Alcaldía", "department": "La Paz"}))
	require.NoError(t, s.SetMerge(ctx, "entities", "E1", map[string]any{"name": "Alcaldía Municipal", "fax": "111"}))

	body := decodeBody(t, s, "entities", "E1")
	assert.Equal(t, "Alcaldía Municipal", body["name"])
	assert.Equal(t, "La Paz", body["department"])
	assert.Equal(t, "111", body["fax"])
}

func TestSetMerge_RejectsNull(t *testing.T) {
	s := createTestStore(t)

	err := s.SetMerge(context.Background(), "entities", "E1", map[string]any{"name": nil})
	assert.ErrorContains(t, err, "null values")
}

func TestSetMerge_KeepsZeroNumbers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "items", "P_a", map[string]any{"received_qty": 0.0}))

	body := decodeBody(t, s, "items", "P_a")
	assert.Equal(t, 0.0, body["received_qty"])
}

func TestUpdateIfExists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.UpdateIfExists(ctx, "processes", "P-1", map[string]any{"status": "Received"})
	require.NoError(t, err)
	assert.False(t, ok, "update of a missing document must report false")

	_, found, err := s.Get(ctx, "processes", "P-1")
	require.NoError(t, err)
	assert.False(t, found, "update must not create the document")

	require.NoError(t, s.SetMerge(ctx, "processes", "P-1", map[string]any{"status": "Published", "purpose": "x"}))
	ok, err = s.UpdateIfExists(ctx, "processes", "P-1", map[string]any{"status": "Received"})
	require.NoError(t, err)
	assert.True(t, ok)

	body := decodeBody(t, s, "processes", "P-1")
	assert.Equal(t, "Received", body["status"])
	assert.Equal(t, "x", body["purpose"])
}

func TestCreateIfAbsent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.CreateIfAbsent(ctx, "bidders", "acme", map[string]any{"name": "ACME S.R.L."})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIfAbsent(ctx, "bidders", "acme", map[string]any{"name": "Acme srl"})
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, "ACME S.R.L.", decodeBody(t, s, "bidders", "acme")["name"])
}

func TestQueryByField_OrderedByKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "items", "P-1_mouse", map[string]any{"process_id": "P-1"}))
	require.NoError(t, s.SetMerge(ctx, "items", "P-2_mouse", map[string]any{"process_id": "P-2"}))
	require.NoError(t, s.SetMerge(ctx, "items", "P-1_laptop", map[string]any{"process_id": "P-1"}))
	require.NoError(t, s.SetMerge(ctx, "processes", "P-1_x", map[string]any{"process_id": "P-1"}))

	docs, err := s.QueryByField(ctx, "items", "process_id", "P-1")
	require.NoError(t, err)

	var keys []string
	for _, d := range docs {
		keys = append(keys, d.Key)
		assert.Equal(t, "items", d.Collection)
	}
	assert.Equal(t, []string{"P-1_laptop", "P-1_mouse"}, keys)
}

func TestQueryByField_NoMatchesIsEmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	docs, err := s.QueryByField(context.Background(), "items", "process_id", "none")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestQueryByField_RejectsInjectedFieldName(t *testing.T) {
	s := createTestStore(t)

	_, err := s.QueryByField(context.Background(), "items", "x') OR 1=1 --", "v")
	assert.ErrorContains(t, err, "invalid field name")
}

func TestList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "bidders", "b", map[string]any{"name": "B"}))
	require.NoError(t, s.SetMerge(ctx, "bidders", "a", map[string]any{"name": "A"}))

	docs, err := s.List(ctx, "bidders")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Key)
	assert.Equal(t, "b", docs[1].Key)
}

func TestArrayUnion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.ArrayUnion(ctx, "processes", "P-1", "stages_seen", "FORM100")
	require.NoError(t, err)
	assert.False(t, ok, "union on a missing document must report false")

	require.NoError(t, s.SetMerge(ctx, "processes", "P-1", map[string]any{"status": "Published"}))

	for i := 0; i < 2; i++ {
		ok, err = s.ArrayUnion(ctx, "processes", "P-1", "stages_seen", "FORM100")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err = s.ArrayUnion(ctx, "processes", "P-1", "stages_seen", "FORM170", "FORM100", "FORM170")
	require.NoError(t, err)
	assert.True(t, ok)

	body := decodeBody(t, s, "processes", "P-1")
	assert.Equal(t, []any{"FORM100", "FORM170"}, body["stages_seen"])
	assert.Equal(t, "Published", body["status"])
}

func TestArrayUnion_NonArrayField(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMerge(ctx, "processes", "P-1", map[string]any{"stages_seen": "FORM100"}))
	_, err := s.ArrayUnion(ctx, "processes", "P-1", "stages_seen", "FORM170")
	assert.ErrorContains(t, err, "not a string array")
}

func TestUpdate_CommitsOnSuccess(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetMerge(ctx, "processes", "P-1", map[string]any{"status": "Published"}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		_, ok, err := tx.Get(ctx, "processes", "P-1")
		if err != nil {
			return err
		}
		assert.True(t, ok)
		_, err = tx.ArrayUnion(ctx, "processes", "P-1", "stages_seen", "FORM100")
		return err
	})
	require.NoError(t, err)

	body := decodeBody(t, s, "processes", "P-1")
	assert.Equal(t, []any{"FORM100"}, body["stages_seen"])
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.SetMerge(ctx, "processes", "P-1", map[string]any{"status": "Published"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := s.Get(ctx, "processes", "P-1")
	require.NoError(t, err)
	assert.False(t, ok, "rolled back write must not be visible")
}

func TestDocumentDecode(t *testing.T) {
	d := Document{Collection: "items", Key: "k", Body: []byte(`{"slug":"laptop"}`)}
	var v struct {
		Slug string `json:"slug"`
	}
	require.NoError(t, d.Decode(&v))
	assert.Equal(t, "laptop", v.Slug)

	bad := Document{Collection: "items", Key: "k", Body: []byte(`{`)}
	assert.ErrorContains(t, bad.Decode(&v), "decode items/k")
}
