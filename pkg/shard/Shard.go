package shard

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/logger"


//=========================================== Shard Set


var Log = clog.NewCustomLog(NAME)

// the service needs one controller shard and at least one worker shard
var ErrNotEnoughCores = errors.New("not enough cores")

/*
	initialize the shard set, shard 0 is reserved for the controller and
	shards 1..count-1 each host one worker
*/

func NewShardSet(count int) (*ShardSet, error) {
	if count < 2 { return nil, errors.Wrapf(ErrNotEnoughCores, "need at least two cores, core count: %d", count) }

	shardSet := &ShardSet{}

	for id := 0; id < count; id++ {
		shardSet.shards = append(shardSet.shards, &Shard{
			Id: id,
			tasks: make(chan Task, TaskQueueSize),
			loopDone: make(chan struct{}),
		})
	}

	return shardSet, nil
}

/*
	launch one goroutine per shard, each drains its queue in fifo order
*/

func (shardSet *ShardSet) Start() {
	shardSet.startMutex.Lock()
	defer shardSet.startMutex.Unlock()

	if shardSet.started { return }
	shardSet.started = true

	for _, shrd := range shardSet.shards {
		go func(shrd *Shard) {
			defer close(shrd.loopDone)

			for task := range shrd.tasks {
				task()
			}
		}(shrd)
	}
}

func (shardSet *ShardSet) Count() int {
	return len(shardSet.shards)
}

func (shardSet *ShardSet) WorkerCount() int {
	return len(shardSet.shards) - 1
}

/*
	enqueue a task on the target shard, fifo with everything else delivered
	to that shard
*/

func (shardSet *ShardSet) Submit(shardId int, task Task) error {
	if shardId < 0 || shardId >= len(shardSet.shards) { return errors.Newf("no such shard: %d", shardId) }

	shardSet.shards[shardId].tasks <- task
	return nil
}

/*
	enqueue a task on the target shard and wait for it to complete
*/

func (shardSet *ShardSet) SubmitWait(shardId int, task Task) error {
	done := make(chan struct{})

	submitErr := shardSet.Submit(shardId, func() {
		defer close(done)
		task()
	})

	if submitErr != nil { return submitErr }

	<- done
	return nil
}

/*
	Broadcast:
		fan a command out to every worker shard and wait for all of them to
		process it. delivery to each shard is fifo with any later message
		from the caller to the same shard.
*/

func (shardSet *ShardSet) Broadcast(task func(shardId int)) {
	pending := make([]chan struct{}, 0, shardSet.WorkerCount())

	for id := 1; id < len(shardSet.shards); id++ {
		done := make(chan struct{})
		pending = append(pending, done)

		targetId := id
		shardSet.shards[targetId].tasks <- func() {
			defer close(done)
			task(targetId)
		}
	}

	for _, done := range pending {
		<- done
	}
}

/*
	close every queue and wait for the drain loops, queued tasks complete
	before shutdown finishes
*/

func (shardSet *ShardSet) Stop() {
	shardSet.startMutex.Lock()
	defer shardSet.startMutex.Unlock()

	if !shardSet.started { return }

	for _, shrd := range shardSet.shards {
		close(shrd.tasks)
	}

	for _, shrd := range shardSet.shards {
		<- shrd.loopDone
	}

	shardSet.started = false
}
