package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// closeGracePeriod bounds how long Close waits for in-flight calls before
// closing the underlying connection out from under them.
const closeGracePeriod = 5 * time.Second

// healthCheckDeadline bounds a HealthCheck call with its own short deadline,
// distinct from the general per-call timeout passed to DialPeer.
const healthCheckDeadline = 5 * time.Second

// defaultKeepaliveTime sends a keep-alive ping every 10s.
const defaultKeepaliveTime = 10 * time.Second

// defaultKeepaliveTimeout bounds the keepalive ping round trip itself,
// distinct from the per-call deadline passed to DialPeer.
const defaultKeepaliveTimeout = 5 * time.Second

// PeerHandle wraps a single grpc.ClientConn to a remote node, dialed with
// the ringwire codec forced on every call so requests never fall back to
// protobuf encoding.
type PeerHandle struct {
	ID      string
	Address string
	conn    *grpc.ClientConn
	timeout time.Duration

	closed   atomic.Bool
	inFlight sync.WaitGroup
}

// DialPeer opens a grpc connection to address and returns a PeerHandle for
// id. callTimeout bounds every RPC issued through the handle.
func DialPeer(ctx context.Context, id, address string, callTimeout time.Duration) (*PeerHandle, error) {
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wireCodec{})),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                defaultKeepaliveTime,
			Timeout:             defaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, ErrPeerCommunication(id, err)
	}
	return &PeerHandle{ID: id, Address: address, conn: conn, timeout: callTimeout}, nil
}

func (p *PeerHandle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *PeerHandle) translateErr(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return ErrTimeout()
		case codes.Canceled:
			return ErrCancelled()
		case codes.Unavailable:
			return ErrPeerCommunication(p.ID, err)
		}
	}
	return ErrPeerCommunication(p.ID, err)
}

func (p *PeerHandle) invoke(ctx context.Context, method string, req, resp wireMessage) error {
	if p.closed.Load() {
		return ErrPeerClosed(p.ID)
	}
	p.inFlight.Add(1)
	defer p.inFlight.Done()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.conn.Invoke(ctx, methodFullName(method), req, resp); err != nil {
		return p.translateErr(err)
	}
	return nil
}

// SendPrompt forwards a prompt to this peer's shard.
func (p *PeerHandle) SendPrompt(ctx context.Context, req *SendPromptRequest) (*TensorResponse, error) {
	resp := &TensorResponse{}
	if err := p.invoke(ctx, "SendPrompt", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendTensor forwards an activation to this peer's shard.
func (p *PeerHandle) SendTensor(ctx context.Context, req *SendTensorRequest) (*TensorResponse, error) {
	resp := &TensorResponse{}
	if err := p.invoke(ctx, "SendTensor", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CollectTopology asks this peer to report its view of the ring.
func (p *PeerHandle) CollectTopology(ctx context.Context, req *CollectTopologyRequest) (*TopologyResponse, error) {
	resp := &TopologyResponse{}
	if err := p.invoke(ctx, "CollectTopology", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendResult delivers final generated tokens to the request's origin.
func (p *PeerHandle) SendResult(ctx context.Context, req *SendResultRequest) (*AckResponse, error) {
	resp := &AckResponse{}
	if err := p.invoke(ctx, "SendResult", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendOpaqueStatus forwards an out-of-band status update.
func (p *PeerHandle) SendOpaqueStatus(ctx context.Context, req *SendOpaqueStatusRequest) (*AckResponse, error) {
	resp := &AckResponse{}
	if err := p.invoke(ctx, "SendOpaqueStatus", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// HealthCheck pings this peer and reports liveness. It never returns an
// error: any transport failure is reported as a false response.
func (p *PeerHandle) HealthCheck(ctx context.Context) *HealthCheckResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckDeadline)
	defer cancel()
	resp := &HealthCheckResponse{}
	if err := p.invoke(ctx, "HealthCheck", &HealthCheckRequest{}, resp); err != nil {
		return &HealthCheckResponse{IsHealthy: false}
	}
	return resp
}

// Close is idempotent: it waits up to closeGracePeriod for in-flight calls
// to finish, then closes the underlying grpc connection. Further
// operations fail with Kind::PeerClosed.
func (p *PeerHandle) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGracePeriod):
	}
	return p.conn.Close()
}
