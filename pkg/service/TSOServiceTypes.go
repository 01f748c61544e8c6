package service

import "sync"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/config"
import "github.com/sirgallo/tso/pkg/controller"
import "github.com/sirgallo/tso/pkg/shard"
import "github.com/sirgallo/tso/pkg/stats"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/worker"


/*
	one tso server process

	shard 0 hosts the controller, shards 1..C-1 each host one worker. every
	shard gets its own rpc endpoint, the controller's on the configured
	base port and worker i on base port + i, so clients address workers
	directly on the hot path.
*/

type TSOService struct {
	Conf *config.Config

	ShardSet *shard.ShardSet
	Protocols []*transport.Protocol
	Workers []*worker.TSOWorker
	Controller *controller.TSOController
	Stats *stats.TSOStats
	Clock *clock.MonotonicClock

	stopMutex sync.Mutex
	stopped bool
}

type TSOServiceOpts struct {
	Conf *config.Config

	// overridable for tests, defaults to os.Exit
	ExitFunc func(code int)
}

const NAME = "TSO Service"

// uncertainty reported by the local fallback clock source
const DefaultClockUncertaintyNanos = uint64(1000)
