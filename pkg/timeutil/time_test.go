package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNow_AlwaysUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Now().Location())
	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
}

func TestFixedClock(t *testing.T) {
	pinned := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, pinned, FixedClock{T: pinned}.Now())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *time.Time
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "utc", input: "2025-11-20T10:00:00Z", want: Ptr(time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC))},
		{name: "offset normalised", input: "2025-11-20T12:00:00+02:00", want: Ptr(time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC))},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2025, 11, 20, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2025-11-20 00:00:00 +0000 UTC", StartOfDay(in).String())
}
