package server

import (
	"context"
	"errors"
	"net"

	"OffloadEngine/config"
	"OffloadEngine/log"
	"OffloadEngine/offload"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	config     config.ServerConfig
	pool       *offload.ServicePool
	grpcServer *grpc.Server
	logger     *zap.Logger
}

func NewServer(cfg config.ServerConfig, pool *offload.ServicePool, opts ...grpc.ServerOption) *Server {
	s := &Server{
		config:     cfg,
		pool:       pool,
		grpcServer: grpc.NewServer(opts...),
		logger:     log.L(),
	}
	RegisterEngineServer(s.grpcServer, s)
	return s
}

// Serve handles requests on listener until ctx is cancelled, then ends the pool, lets queued
// tasks drain for at most ShutdownTimeout and stops the gRPC server.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Starting server", zap.String("listenAddress", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		s.logger.Error("gRPC server stopped", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping server", zap.Duration("shutdownTimeout", s.config.ShutdownTimeout))
	s.pool.End()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.pool.Drain(stopCtx); err != nil {
		s.logger.Warn("Worker pool did not drain in time", zap.Int("queueSize", s.pool.QueueSize()), zap.Error(err))
	}
	err := s.pool.Shutdown(stopCtx)
	if err != nil {
		s.logger.Warn("Worker pool shutdown incomplete", zap.Error(err))
	}

	s.grpcServer.GracefulStop()
	if serveErr := <-serveErr; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return serveErr
	}
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) Submit(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	requestID := uuid.New()
	logger := s.logger.With(zap.String("requestID", requestID.String()))
	logger.Debug("Received new gRPC call", zap.Any("request", request.AsMap()))

	descriptor, err := descriptorFromStruct(request)
	if err != nil {
		logger.Debug("Rejected malformed request", zap.Error(err))
		return nil, statusError(err)
	}

	result, err := s.pool.RunTask(ctx, descriptor)
	if err != nil {
		logger.Error("Task failed", zap.String("service", descriptor.Service),
			zap.String("operation", descriptor.Operation), zap.Error(err))
		return nil, statusError(err)
	}

	logger.Debug("Got task output", zap.String("service", descriptor.Service),
		zap.String("operation", descriptor.Operation))
	return resultToStruct(requestID, result)
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return statsToStruct(s.pool.Stats())
}

func (s *Server) End(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.logger.Info("Ending worker pool on request")
	s.pool.End()
	return &emptypb.Empty{}, nil
}

func (s *Server) Restart(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.logger.Info("Restarting worker pool on request")
	if err := s.pool.Restart(ctx); err != nil {
		return nil, statusError(err)
	}
	return &emptypb.Empty{}, nil
}
