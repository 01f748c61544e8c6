package main

import "os"
import "os/signal"
import "syscall"

import "github.com/spf13/cobra"

import "github.com/sirgallo/tso/pkg/config"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/service"


const NAME = "Main"
var Log = clog.NewCustomLog(NAME)


func main() {
	var configPath string
	var listenURL string
	var paxosURL string
	var clockURL string
	var metricsAddr string
	var shardCount int

	rootCmd := &cobra.Command{
		Use: "tso",
		Short: "clustered timestamp oracle service",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, confErr := config.LoadConfig(configPath)
			if confErr != nil { return confErr }

			if cmd.Flags().Changed("listen-url") { conf.TSO.ListenURL = listenURL }
			if cmd.Flags().Changed("paxos-url") { conf.TSO.PaxosURL = paxosURL }
			if cmd.Flags().Changed("clock-url") { conf.TSO.ClockURL = clockURL }
			if cmd.Flags().Changed("metrics-addr") { conf.TSO.MetricsAddr = metricsAddr }
			if cmd.Flags().Changed("shard-count") { conf.TSO.ShardCount = shardCount }

			tso, serviceErr := service.NewTSOService(service.TSOServiceOpts{ Conf: conf })
			if serviceErr != nil { return serviceErr }

			startErr := tso.StartTSOService()
			if startErr != nil { return startErr }

			sigChannel := make(chan os.Signal, 1)
			signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
			<- sigChannel

			Log.Info("signal received, stopping")
			tso.GracefulStop()

			return nil
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the yaml config file")
	rootCmd.Flags().StringVar(&listenURL, "listen-url", "", "base endpoint url, worker shard i listens on base port + i")
	rootCmd.Flags().StringVar(&paxosURL, "paxos-url", "", "consensus endpoint url")
	rootCmd.Flags().StringVar(&clockURL, "clock-url", "", "atomic/gps clock endpoint url, empty falls back to the system clock")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address, empty disables metrics")
	rootCmd.Flags().IntVar(&shardCount, "shard-count", 0, "execution contexts, needs at least 2")

	execErr := rootCmd.Execute()
	if execErr != nil { Log.Fatal(execErr.Error()) }
}
