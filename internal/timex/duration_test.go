package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", in: `"30s"`, want: 30 * time.Second},
		{name: "nanoseconds", in: `1000000000`, want: time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bool", in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_Marshal(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}
