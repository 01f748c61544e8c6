package configtests

import "os"
import "path/filepath"
import "testing"
import "time"

import "github.com/stretchr/testify/require"

import "github.com/sirgallo/tso/pkg/config"


func TestDefaults(t *testing.T) {
	conf, confErr := config.LoadConfig("")
	require.NoError(t, confErr)

	require.Equal(t, 10 * time.Millisecond, conf.TSO.CtrolHeartBeatInterval.Duration)
	require.Equal(t, 10 * time.Millisecond, conf.TSO.CtrolTimeSyncInterval.Duration)
	require.Equal(t, 1 * time.Second, conf.TSO.CtrolStatsUpdateInterval.Duration)
	require.Equal(t, 8 * time.Millisecond, conf.TSO.CtrolTsBatchWinSize.Duration)
	require.Equal(t, uint32(1), conf.TSO.TsoId)
	require.False(t, conf.EnableTxChecksum)
}

func TestLoadYamlOverDefaults(t *testing.T) {
	contents := `
tso:
  ctrol_heart_beat_interval: 25ms
  ctrol_ts_batch_win_size: 4ms
  tso_id: 7
  shard_count: 3
  listen_url: tcp+k2rpc+127.0.0.1:14000
  paxos_url: tcp+k2rpc+127.0.0.1:12000
enable_tx_checksum: true
`

	path := filepath.Join(t.TempDir(), "tso.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	conf, confErr := config.LoadConfig(path)
	require.NoError(t, confErr)

	require.Equal(t, 25 * time.Millisecond, conf.TSO.CtrolHeartBeatInterval.Duration)
	require.Equal(t, 4 * time.Millisecond, conf.TSO.CtrolTsBatchWinSize.Duration)
	require.Equal(t, uint32(7), conf.TSO.TsoId)
	require.Equal(t, 3, conf.TSO.ShardCount)
	require.Equal(t, "tcp+k2rpc+127.0.0.1:14000", conf.TSO.ListenURL)
	require.Equal(t, "tcp+k2rpc+127.0.0.1:12000", conf.TSO.PaxosURL)
	require.True(t, conf.EnableTxChecksum)

	// keys absent from the file keep their defaults
	require.Equal(t, 10 * time.Millisecond, conf.TSO.CtrolTimeSyncInterval.Duration)
	require.Equal(t, 1 * time.Second, conf.TSO.CtrolStatsUpdateInterval.Duration)
}

func TestInvalidDuration(t *testing.T) {
	contents := `
tso:
  ctrol_heart_beat_interval: not-a-duration
`

	path := filepath.Join(t.TempDir(), "tso.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	_, confErr := config.LoadConfig(path)
	require.Error(t, confErr)
}
