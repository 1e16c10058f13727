package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
}

func TestCursorRoundTripKeepsNanoseconds(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	want := Cursor{CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793238, loc), ID: uuid.New()}

	token := Encode(want)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	got, err := Decode(token)
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.Equal(t, want.ID, got.ID)
}

func TestDecodeRejectsForeignTokens(t *testing.T) {
	for _, token := range []string{
		"abc",
		"c1.",
		"c2." + Encode(Cursor{ID: uuid.New()})[3:],
		"c1.!!!",
		"c1.bm90LWEtY3Vyc29y",
	} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestParamsWindow(t *testing.T) {
	w, err := Params{Limit: 500}.Window()
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, w.Size)
	assert.Nil(t, w.After)
	assert.Equal(t, MaxLimit+1, w.fetchSize())

	pos := Cursor{CreatedAt: time.Unix(1700000000, 0).UTC(), ID: uuid.New()}
	w, err = Params{Limit: 3, Cursor: Encode(pos)}.Window()
	require.NoError(t, err)
	require.NotNil(t, w.After)
	assert.Equal(t, pos.ID, w.After.ID)

	_, err = Params{Cursor: "garbage"}.Window()
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

type row struct {
	at time.Time
	id uuid.UUID
}

func position(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

func TestTrimEmitsCursorOnlyWhenMoreRowsExist(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	rows := []row{
		{at: base.Add(3 * time.Second), id: uuid.New()},
		{at: base.Add(2 * time.Second), id: uuid.New()},
		{at: base.Add(time.Second), id: uuid.New()},
	}

	page, next := Trim(rows, Window{Size: 2}, position)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	after, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, after.ID)

	page, next = Trim(rows, Window{Size: 3}, position)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}
