package main

import "os"
import "os/signal"
import "syscall"

import "github.com/spf13/cobra"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/paxos"
import "github.com/sirgallo/tso/pkg/transport"


const NAME = "Paxos Main"
var Log = clog.NewCustomLog(NAME)


/*
	single node stand-in for the external consensus and clock services,
	serves the lease record and GET_ATOMIC_CLOCK_TIME for local clusters
*/

func main() {
	var listenURL string
	var dbPath string
	var clockUncertainty uint64

	rootCmd := &cobra.Command{
		Use: "paxos",
		Short: "single node consensus stand-in for the tso service",
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol, protocolErr := transport.NewProtocol(transport.ProtocolOpts{ ListenURL: listenURL })
			if protocolErr != nil { return protocolErr }

			store, storeErr := paxos.NewPaxosStore(dbPath)
			if storeErr != nil { return storeErr }

			paxos.NewPaxosServer(paxos.PaxosServerOpts{
				Protocol: protocol,
				Store: store,
			})

			clock.RegisterClockService(protocol, clockUncertainty)

			startErr := protocol.Start()
			if startErr != nil { return startErr }

			Log.Info("paxos stand-in listening on", listenURL)

			sigChannel := make(chan os.Signal, 1)
			signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
			<- sigChannel

			stopErr := protocol.Stop()
			if stopErr != nil { Log.Warn("protocol stop failed:", stopErr.Error()) }

			return store.Close()
		},
	}

	rootCmd.Flags().StringVar(&listenURL, "listen-url", "tcp+k2rpc+127.0.0.1:12000", "endpoint url to listen on")
	rootCmd.Flags().StringVar(&dbPath, "db-path", "paxos.db", "path to the lease record store")
	rootCmd.Flags().Uint64Var(&clockUncertainty, "clock-uncertainty", 1000, "uncertainty window reported by the clock service in nanoseconds")

	execErr := rootCmd.Execute()
	if execErr != nil { Log.Fatal(execErr.Error()) }
}
