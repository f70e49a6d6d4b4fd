package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptPresence(t *testing.T) {
	var payload struct {
		Title       Opt[string] `json:"title"`
		Description Opt[string] `json:"description"`
		Comments    Opt[string] `json:"comments"`
		Status      Opt[string] `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"title":"t","description":null,"comments":""}`), &payload))

	assert.True(t, payload.Title.Valid())
	assert.Equal(t, "t", payload.Title.V)
	assert.True(t, payload.Description.Set)
	assert.True(t, payload.Description.Null)
	assert.True(t, payload.Comments.Null)
	assert.False(t, payload.Status.Set)

	status := "Peer Reviewed"
	payload.Status.Apply(&status, "")
	assert.Equal(t, "Peer Reviewed", status, "absent keys leave the field untouched")

	desc := "old"
	payload.Description.Apply(&desc, "")
	assert.Empty(t, desc)
}

func TestIDRefShapes(t *testing.T) {
	var refs []IDRef
	require.NoError(t, json.Unmarshal([]byte(`[{"id":3},4,"5",{"id":"3"}]`), &refs))
	assert.Equal(t, []int{3, 4, 5}, IDs(refs))

	var bad IDRef
	assert.Error(t, json.Unmarshal([]byte(`{"title":"x"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`0`), &bad))
}

func TestCodesShapes(t *testing.T) {
	var c Codes
	require.NoError(t, json.Unmarshal([]byte(`1`), &c))
	assert.Equal(t, Codes{1}, c)
	require.NoError(t, json.Unmarshal([]byte(`[2,"3",2]`), &c))
	assert.Equal(t, Codes{2, 3}, c.Normalize())
	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Empty(t, c)
	assert.True(t, Codes{1, 2}.Equal(Codes{2, 1, 1}))
	assert.False(t, Codes{1}.Equal(Codes{1, 2}))
}

func TestDateTimeLayouts(t *testing.T) {
	want := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"1990-01-01", "1990-01-01T00:00", "1990-01-01T00:00:00Z", "1990-01-01 00:00:00"} {
		got, err := ParseDateTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}
	_, err := ParseDateTime("01/01/1990")
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 59, 0, time.FixedZone("x", 3*3600))
	assert.Equal(t, "2024-03-09T11:05", FormatTime(&ts))
	assert.Nil(t, FormatTime(nil))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, StringList{"a", "b"}, NormalizeTags([]string{" a", "", "b", "a "}))
}
