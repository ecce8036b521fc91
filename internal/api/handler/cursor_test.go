package handler

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor(t *testing.T) {
	id, err := DecodeJobCursor(EncodeJobCursor(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = DecodeJobCursor("")
	require.NoError(t, err)
	assert.Zero(t, id)

	invalid := []string{
		"!!",
		base64.RawURLEncoding.EncodeToString([]byte("42")),
		base64.RawURLEncoding.EncodeToString([]byte("user|42")),
		base64.RawURLEncoding.EncodeToString([]byte("job|abc")),
		base64.RawURLEncoding.EncodeToString([]byte("job|0")),
	}
	for _, cursor := range invalid {
		_, err := DecodeJobCursor(cursor)
		assert.Error(t, err, cursor)
	}
}

func TestParseReferenceRun(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: "26-08-2014 14:00:00", want: "2014-08-26T14:00:00.000000Z"},
		{value: "26-08-2014 14:00", want: "2014-08-26T14:00:00.000000Z"},
		{value: "2014-08-26T14:00:00Z", want: "2014-08-26T14:00:00.000000Z"},
		{value: "2014-08-26T16:00:00+02:00", want: "2014-08-26T14:00:00.000000Z"},
		{value: "2014-08-26T14:00:00.123456Z", want: "2014-08-26T14:00:00.123456Z"},
		{value: "2014-08-26 14:00:00", want: "2014-08-26T14:00:00.000000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseReferenceRun(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02T15:04:05.000000Z"))
		})
	}

	_, err := parseReferenceRun("next tuesday")
	assert.Error(t, err)
}
