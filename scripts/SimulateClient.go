package main

import "flag"
import "sync"
import "time"

import "github.com/sirgallo/tso/pkg/client"
import "github.com/sirgallo/tso/pkg/logger"


const NAME = "Simulate Client"
var Log = clog.NewCustomLog(NAME)

const CLIENTS = 8
const BATCHES_PER_CLIENT = 1024
const BATCH_SIZE = 16


/*
	hammer a running tso cluster with concurrent batch requests and verify
	strict monotonicity of what each client observes per worker
*/

func main() {
	serverURL := flag.String("server-url", "tcp+k2rpc+127.0.0.1:13000", "controller endpoint of a running tso instance")
	flag.Parse()

	var clientWG sync.WaitGroup

	start := time.Now()

	for range make([]int, CLIENTS) {
		clientWG.Add(1)

		go func() {
			defer clientWG.Done()

			tsoClient, clientErr := client.NewTSOClient(client.TSOClientOpts{ ServerURL: *serverURL })
			if clientErr != nil { Log.Fatal("unable to create client:", clientErr.Error()) }

			connectErr := tsoClient.Connect()
			if connectErr != nil { Log.Fatal("unable to connect:", connectErr.Error()) }

			defer tsoClient.Close()

			lastTbePerWorker := make(map[uint64]uint64)
			total := 0

			for i := 0; i < BATCHES_PER_CLIENT; i++ {
				received, batchErr := tsoClient.GetTimestampBatch(BATCH_SIZE)
				if batchErr != nil {
					Log.Warn("batch request failed:", batchErr.Error())
					continue
				}

				timestamps, expandErr := tsoClient.Timestamps(received)
				if expandErr != nil {
					Log.Warn("batch expired before use:", expandErr.Error())
					continue
				}

				workerOffset := received.Batch.TbeBaseNanos % uint64(received.Batch.TbeNanoSecStep)

				for _, ts := range timestamps {
					if ts.TbeNanos <= lastTbePerWorker[workerOffset] {
						Log.Fatal("monotonicity violation on worker offset", workerOffset)
					}

					lastTbePerWorker[workerOffset] = ts.TbeNanos
					total++
				}
			}

			Log.Info("client done,", total, "timestamps")
		}()
	}

	clientWG.Wait()
	Log.Info("all clients done in", time.Since(start).String())
}
