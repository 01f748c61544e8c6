package config

import "os"
import "runtime"
import "time"

import "github.com/cockroachdb/errors"
import "gopkg.in/yaml.v2"


//=========================================== Config


/*
	defaults match the documented config keys, the batch window size should
	stay at or below the minimum transaction latency of the database above
*/

func DefaultConfig() *Config {
	return &Config{
		TSO: TSOSection{
			CtrolHeartBeatInterval: Duration{ 10 * time.Millisecond },
			CtrolTimeSyncInterval: Duration{ 10 * time.Millisecond },
			CtrolStatsUpdateInterval: Duration{ 1 * time.Second },
			CtrolTsBatchWinSize: Duration{ 8 * time.Millisecond },
			TsoId: 1,
			ShardCount: runtime.NumCPU(),
			ListenURL: "tcp+k2rpc+127.0.0.1:13000",
		},
		EnableTxChecksum: false,
	}
}

/*
	load the config file over the defaults, an empty path returns the
	defaults untouched
*/

func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" { return conf, nil }

	contents, readErr := os.ReadFile(path)
	if readErr != nil { return nil, errors.Wrapf(readErr, "unable to read config file %s", path) }

	unmarshalErr := yaml.Unmarshal(contents, conf)
	if unmarshalErr != nil { return nil, errors.Wrapf(unmarshalErr, "unable to parse config file %s", path) }

	return conf, nil
}

func (dur *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil { return err }

	parsed, parseErr := time.ParseDuration(raw)
	if parseErr != nil { return errors.Wrapf(parseErr, "invalid duration %q", raw) }

	dur.Duration = parsed
	return nil
}

func (dur Duration) MarshalYAML() (interface{}, error) {
	return dur.String(), nil
}
