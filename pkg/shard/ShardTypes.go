package shard

import "sync"


// a unit of work delivered to one shard's task queue
type Task = func()

/*
	a shard is one execution context of the process, it drains its task
	queue sequentially so everything owned by the shard is single threaded
*/

type Shard struct {
	Id int

	tasks chan Task
	loopDone chan struct{}
}

type ShardSet struct {
	shards []*Shard

	startMutex sync.Mutex
	started bool
}

const NAME = "Shard"

// controller lives on shard 0, every other shard hosts one worker
const ControllerShardId = 0

const TaskQueueSize = 1024
