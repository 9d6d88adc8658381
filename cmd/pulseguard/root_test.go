package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/pulseguard/pkg/config"
)

// Key "0123456789abcdef", nonce "fedcba9876543210".
const testConfig = `
session:
  warmup: 0s
  baseline: 1h
  tick_interval: 1ms
crypto:
  key: 30313233343536373839616263646566
  nonce: 66656463626139383736353433323130
source:
  type: stdin
metrics:
  enabled: false
telemetry:
  console: true
  websocket: false
log:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulseguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, _, err := execute(t, "", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "Ascon-128")
	assert.Contains(t, out, "source:    stdin")
	assert.NotContains(t, out, "telemetry:")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "absent.yaml")},
		{name: "short key", path: writeConfig(t, strings.Replace(testConfig, "30313233343536373839616263646566", "3031", 1))},
		{name: "unknown key", path: writeConfig(t, testConfig+"extra: 1\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", "validate", "--config", tt.path)
			assert.Error(t, err)
		})
	}
}

func TestSealProducesDecodableLines(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, _, err := execute(t, "", "seal", "--config", path, "70", "150.5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	codec, err := newCodec(cfg)
	require.NoError(t, err)

	var got []float64
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "Encrypted Hex: "), line)
		v, err := codec.Decode(line)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []float64{70, 150.5}, got)
}

func TestSealFromCSV(t *testing.T) {
	path := writeConfig(t, testConfig)
	csvPath := filepath.Join(t.TempDir(), "hr.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("t,hr\n0,70\n1,x\n2,72\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	codec, err := newCodec(cfg)
	require.NoError(t, err)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  []float64
	}{
		{
			name: "column name",
			args: []string{"--csv", csvPath, "--column", "hr"},
			want: []float64{70, 72},
		},
		{
			name: "column index",
			args: []string{"--csv", csvPath, "--column", "0"},
			want: []float64{0, 1, 2},
		},
		{
			name:  "stdin",
			stdin: "t,hr\n0,68\n1,69\n",
			args:  []string{"--csv", "-", "--column", "1"},
			want:  []float64{68, 69},
		},
		{
			name: "paced",
			args: []string{"--csv", csvPath, "--column", "hr", "--interval", "1ms"},
			want: []float64{70, 72},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"seal", "--config", path}, tt.args...)
			out, _, err := execute(t, tt.stdin, args...)
			require.NoError(t, err)

			var got []float64
			for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
				v, err := codec.Decode(line)
				require.NoError(t, err)
				got = append(got, v)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSealErrors(t *testing.T) {
	path := writeConfig(t, testConfig)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no values", args: []string{"seal", "--config", path}},
		{name: "not a number", args: []string{"seal", "--config", path, "seventy"}},
		{name: "values and csv", args: []string{"seal", "--config", path, "--csv", "x.csv", "70"}},
		{name: "missing csv", args: []string{"seal", "--config", path, "--csv", filepath.Join(t.TempDir(), "x.csv")}},
		{name: "unknown column", args: []string{"seal", "--config", path, "--csv", "-", "--column", "spo2"}},
		{name: "negative column", args: []string{"seal", "--config", path, "--csv", "-", "--column", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunReplaysStdin(t *testing.T) {
	path := writeConfig(t, testConfig)

	sealed, _, err := execute(t, "", "seal", "--config", path, "70", "72", "71")
	require.NoError(t, err)
	noise, _, err := execute(t, "", "seal", "--config", path, "--text", "BOOT OK")
	require.NoError(t, err)

	stdin := "sensor ready\n" + sealed + noise
	_, logs, err := execute(t, stdin, "run", "--config", path, "--no-server")
	require.NoError(t, err)

	assert.Contains(t, logs, "session started")
	assert.Contains(t, logs, "RECORDING NORMAL DATA")
	assert.Contains(t, logs, "replay finished")
}

func TestRunRejectsBadOverrides(t *testing.T) {
	path := writeConfig(t, testConfig)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown source", args: []string{"--source", "bluetooth"}},
		{name: "missing file", args: []string{"--source", "file", "--path", filepath.Join(t.TempDir(), "none.log")}},
		{name: "missing capture", args: []string{"--source", "pcap", "--path", filepath.Join(t.TempDir(), "none.pcap")}},
		{name: "port out of range", args: []string{"--source", "pcap", "--path", "x.pcap", "--port", "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--config", path, "--no-server"}, tt.args...)
			_, _, err := execute(t, "", args...)
			assert.Error(t, err)
		})
	}
}
