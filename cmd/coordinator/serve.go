package main

import (
	"context"
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/runtime"
	"github.com/spf13/cobra"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(common *commonFlags) *cobra.Command {
	flags := &coordinatorFlags{}
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load every coordinator partition and serve metrics and group state over http",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), common, flags, listenAddr)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&listenAddr, "listen", ":9100", "address of the http server")
	return cmd
}

func serve(ctx context.Context, common *commonFlags, flags *coordinatorFlags, listenAddr string) error {
	logger, err := newLogger(common.logLevel)
	if err != nil {
		return err
	}
	image, err := common.metadataImage()
	if err != nil {
		return err
	}
	config := flags.coordinatorConfig()
	srv := newServer(logger)
	for i := 0; i < common.partitions; i++ {
		r, err := openRuntime(common.logConfig(), flags.runtimeConfig(int32(i)), config, logger)
		if err != nil {
			srv.stop(ctx)
			return err
		}
		srv.runtimes = append(srv.runtimes, r)
		if err := r.Start(ctx, image); err != nil {
			srv.stop(ctx)
			return errors.Wrapf(err, "start partition %d", i)
		}
	}
	httpServer, err := srv.listen(listenAddr)
	if err != nil {
		srv.stop(ctx)
		return err
	}
	logger.Infof("coordinator serving %d partitions on %s", len(srv.runtimes), listenAddr)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	logger.Infof("interrupted, shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http server shutdown failed. err: %s", err)
	}
	srv.stop(shutdownCtx)
	return nil
}

type server struct {
	logger   log.Logger
	runtimes []*runtime.Runtime
}

func newServer(logger log.Logger, runtimes ...*runtime.Runtime) *server {
	return &server{logger: logger, runtimes: runtimes}
}

// listen binds addr before returning, then serves in the background.
func (s *server) listen(addr string) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	httpServer := &http.Server{Handler: s.handler()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("http server failed. addr: %s, err: %s", addr, err)
		}
	}()
	return httpServer, nil
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/groups", s.handleGroups)
	return mux
}

type partitionGroups struct {
	Partition int32                        `json:"partition"`
	State     string                       `json:"state"`
	Groups    []coordinator.DescribedGroup `json:"groups,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

// handleGroups describes the groups of every partition, or of the one named
// by the partition query parameter.
func (s *server) handleGroups(w http.ResponseWriter, req *http.Request) {
	runtimes := s.runtimes
	if raw := req.URL.Query().Get("partition"); raw != "" {
		partition, err := strconv.Atoi(raw)
		if err != nil || partition < 0 || partition >= len(s.runtimes) {
			http.Error(w, "unknown partition "+raw, http.StatusBadRequest)
			return
		}
		runtimes = s.runtimes[partition : partition+1]
	}
	result := make([]partitionGroups, 0, len(runtimes))
	for _, r := range runtimes {
		result = append(result, s.describe(req.Context(), r))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Errorf("encode groups failed. err: %s", err)
	}
}

func (s *server) describe(ctx context.Context, r *runtime.Runtime) partitionGroups {
	result := partitionGroups{Partition: r.Partition(), State: r.State().String()}
	groupIDs, err := r.GroupIDs(ctx)
	if err == nil {
		result.Groups, err = r.DescribeGroups(ctx, groupIDs)
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (s *server) stop(ctx context.Context) {
	for _, r := range s.runtimes {
		if err := r.Stop(ctx); err != nil {
			s.logger.Warnf("stop partition %d failed. err: %s", r.Partition(), err)
		}
	}
}
