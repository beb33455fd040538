package core

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// Server is the inbound grpc endpoint exposing RequestHandler over the
// ringwire codec. Concurrent handler execution is bounded by a semaphore
// so a burst of inbound requests cannot unbounded-spawn backend work.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	log        *logrus.Entry
}

// NewServer builds a grpc.Server bound to handler, enforcing at most
// maxConcurrent in-flight handler invocations.
func NewServer(handler RequestHandler, maxConcurrent int, log *logrus.Entry) *Server {
	sem := make(chan struct{}, maxConcurrent)
	limiter := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		defer func() { <-sem }()
		resp, err := handler(ctx, req)
		if err != nil {
			if ce, ok := AsCoreError(err); ok {
				return nil, status.Error(ce.Kind.GRPCCode(), ce.Error())
			}
			return nil, err
		}
		return resp, nil
	}

	srv := grpc.NewServer(
		grpc.ForceServerCodec(encoding.GetCodec(ringWireCodecName)),
		grpc.UnaryInterceptor(limiter),
	)
	srv.RegisterService(&nodeServiceDesc, handler)

	return &Server{grpcServer: srv, log: log}
}

// Listen binds addr (host:port) and starts serving in a background
// goroutine. Call Stop to shut down.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return ErrInternal(fmt.Errorf("server: listen %s: %w", addr, err))
	}
	s.listener = lis
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && s.log != nil {
			s.log.Warnf("server: Serve exited: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, valid after Listen succeeds.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the grpc server, waiting for in-flight RPCs.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
