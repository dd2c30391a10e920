// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kittwire/core/internal/api/rpc"
	"github.com/kittwire/core/pkg/logging"
)

var (
	runAddr    string
	runRPCAddr string
	runDebug   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Starts the instance's HTTP query surface and session listener",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", ":7420", "address to listen on")
	runCmd.Flags().StringVar(&runRPCAddr, "rpc-addr", ":7421", "address the gRPC query surface listens on")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "enable gin debug mode and verbose request logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log := newLogger("coreinstance", runDebug)
	defer log.Close()

	in, err := bootstrap(ctx, dataDir, nil, log)
	if err != nil {
		return err
	}
	defer in.Close()

	telem, err := setupTelemetry(ctx, coreVersion)
	if err != nil {
		log.Warn("coreinstance: telemetry setup failed, continuing without it", "err", err)
		telem = nil
	} else {
		defer telem.Shutdown(context.Background())
	}

	router := in.buildRouter(runDebug, telem)

	stopAdvertise, err := advertiseOnLocalNetwork(ctx, in, runAddr, log)
	if err != nil {
		log.Warn("coreinstance: local-network advertisement failed, continuing without it", "err", err)
		stopAdvertise = func() {}
	}
	defer stopAdvertise()

	stopBackup, err := startBackupExporter(ctx, in, log)
	if err != nil {
		log.Warn("coreinstance: backup exporter setup failed, continuing without it", "err", err)
		stopBackup = func() {}
	}
	defer stopBackup()

	rpcServer := rpc.NewServer(in.svc, log)
	rpcListener, err := net.Listen("tcp", runRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := rpcServer.Serve(rpcListener); err != nil {
			log.Warn("coreinstance: rpc server exited", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("coreinstance: shutting down")
		rpcServer.GracefulStop()
		stopBackup()
		stopAdvertise()
		cancel()
		os.Exit(0)
	}()

	log.Info("coreinstance: listening", "addr", runAddr, "rpcAddr", runRPCAddr, "self", in.self.String())
	if err := router.Run(runAddr); err != nil {
		log.Error("coreinstance: server exited", "err", err)
		return err
	}
	return nil
}

// advertiseOnLocalNetwork publishes in.selfInst under addr's port via
// in.discover when cfg.Discovery.Enabled, so peers on the same local
// network can resolve this instance without a manually recorded
// endpoint URL. Returns a no-op stop function when discovery is
// disabled.
func advertiseOnLocalNetwork(ctx context.Context, in *instance, addr string, log *logging.Logger) (stop func(), err error) {
	if !in.cfg.Discovery.Enabled {
		return func() {}, nil
	}

	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	withdraw, err := in.discover.Advertise(ctx, in.selfInst.String(), port)
	if err != nil {
		return nil, err
	}
	log.Info("coreinstance: advertising on local network", "instance", in.selfInst.String(), "port", port)
	return withdraw, nil
}
