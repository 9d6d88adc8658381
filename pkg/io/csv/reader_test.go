package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recording = `time,hr,spo2
0,70,98
1,72,97
2,,97
3,abc,97
4,NaN,97
5,150
6, 71.5 ,98
`

func TestRead(t *testing.T) {
	tests := []struct {
		name string
		data string
		opts []Option
		want []float64
	}{
		{
			name: "by name",
			data: recording,
			opts: []Option{WithColumnName("HR")},
			want: []float64{70, 72, 150, 71.5},
		},
		{
			name: "by index",
			data: recording,
			opts: []Option{WithColumn(2)},
			want: []float64{98, 97, 97, 97, 97, 98},
		},
		{
			name: "no header",
			data: "70\n71\n72\n",
			opts: []Option{WithHeader(false)},
			want: []float64{70, 71, 72},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromReader(strings.NewReader(tt.data), tt.opts...)
			require.NoError(t, err)
			got, err := r.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnErrors(t *testing.T) {
	_, err := FromReader(strings.NewReader(recording), WithColumnName("bpm"))
	assert.Error(t, err)

	_, err = FromReader(strings.NewReader(recording), WithColumn(-1))
	assert.Error(t, err)

	_, err = FromReader(strings.NewReader(""))
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr.csv")
	require.NoError(t, os.WriteFile(path, []byte(recording), 0o600))

	r, err := NewReader(path, WithColumnName("hr"))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"time", "hr", "spo2"}, r.Headers())

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var got []float64
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []float64{70, 72, 150, 71.5}, got)
}
