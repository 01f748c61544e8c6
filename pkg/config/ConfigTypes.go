package config

import "time"


/*
	service configuration, the yaml layout mirrors the dotted key names so
	"tso.ctrol_heart_beat_interval" is tso: ctrol_heart_beat_interval:
*/

type Config struct {
	TSO TSOSection `yaml:"tso"`
	EnableTxChecksum bool `yaml:"enable_tx_checksum"`
}

type TSOSection struct {
	CtrolHeartBeatInterval Duration `yaml:"ctrol_heart_beat_interval"`
	CtrolTimeSyncInterval Duration `yaml:"ctrol_time_sync_interval"`
	CtrolStatsUpdateInterval Duration `yaml:"ctrol_stats_update_interval"`
	CtrolTsBatchWinSize Duration `yaml:"ctrol_ts_batch_win_size"`

	TsoId uint32 `yaml:"tso_id"`
	ShardCount int `yaml:"shard_count"`
	ListenURL string `yaml:"listen_url"`
	PaxosURL string `yaml:"paxos_url"`
	ClockURL string `yaml:"clock_url"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// yaml friendly wrapper over time.Duration, accepts "10ms" style values
type Duration struct {
	time.Duration
}

const NAME = "Config"
