package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator's closed lifecycle state set.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ResultSubscriber receives upstream result/status updates delivered by
// SendResult and SendOpaqueStatus. The core does not mutate state on
// their behalf; it only logs and forwards.
type ResultSubscriber interface {
	OnResult(requestID string, tokenIDs []int32, isFinished bool)
	OnOpaqueStatus(requestID string, status string)
}

// OrchestratorConfig carries every tunable the orchestrator needs.
type OrchestratorConfig struct {
	NodeID                 string
	GRPCPort               uint16
	DiscoveryPort          uint16
	BroadcastInterval      time.Duration
	PeerTimeout            time.Duration
	ReaperInterval         time.Duration
	TopologyInterval       time.Duration
	RPCCallDeadline        time.Duration
	TopologyFanoutDeadline time.Duration
	MaxConcurrentInbound   int
}

// Orchestrator is the central hub of a running node: it owns discovery, the
// peer pool, the inbound server, the meter, and the backend reference, and
// implements RequestHandler.
type Orchestrator struct {
	cfg      OrchestratorConfig
	backend  Backend
	capProbe CapabilityProbe
	log      *logrus.Entry

	discovery *Discovery
	pool      *PeerPool
	meter     *ContributionMeter
	server    *Server

	subscriber ResultSubscriber

	stateMu  sync.RWMutex
	state    State
	stateErr error

	capsMu sync.RWMutex
	caps   DeviceCapabilities

	outstandingMu sync.Mutex
	outstanding   map[string]time.Time

	topoMu sync.RWMutex
	topo   Topology

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewOrchestrator wires an Orchestrator from its collaborators. The
// returned value is Stopped; call Start to bring it up.
func NewOrchestrator(cfg OrchestratorConfig, backend Backend, capProbe CapabilityProbe, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		backend:     backend,
		capProbe:    capProbe,
		log:         log,
		meter:       NewContributionMeter(),
		outstanding: make(map[string]time.Time),
		caps:        UnknownCapabilities,
		topo:        NewTopology(),
	}
}

// SetResultSubscriber registers an optional subscriber for SendResult and
// SendOpaqueStatus deliveries. Must be called before Start.
func (o *Orchestrator) SetResultSubscriber(s ResultSubscriber) {
	o.subscriber = s
}

func (o *Orchestrator) setState(s State, cause error) {
	o.stateMu.Lock()
	o.state = s
	o.stateErr = cause
	o.stateMu.Unlock()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Start runs the lifecycle start sequence: probe
// capabilities, start the inbound server, start discovery, subscribe to
// the peer change stream, launch the periodic topology task.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.setState(StateStarting, nil)

	caps, err := o.capProbe.Probe(ctx)
	if err != nil {
		o.setState(StateError, err)
		return ErrInternal(fmt.Errorf("orchestrator: capability probe: %w", err))
	}
	o.capsMu.Lock()
	o.caps = caps
	o.capsMu.Unlock()

	o.pool = NewPeerPool(o.cfg.RPCCallDeadline, o.log)

	o.server = NewServer(o, o.cfg.MaxConcurrentInbound, o.log)
	if err := o.server.Listen(fmt.Sprintf(":%d", o.cfg.GRPCPort)); err != nil {
		o.setState(StateError, err)
		return err
	}

	o.discovery = NewDiscovery(o.cfg.NodeID, o.cfg.DiscoveryPort, o.cfg.GRPCPort, o.cfg.BroadcastInterval, o.cfg.PeerTimeout, o.cfg.ReaperInterval, o.log)
	if err := o.discovery.Start(ctx); err != nil {
		o.setState(StateError, err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	o.group = g

	changes := o.discovery.Subscribe()
	g.Go(func() error {
		defer o.discovery.Unsubscribe(changes)
		for {
			select {
			case ev, ok := <-changes:
				if !ok {
					return nil
				}
				o.pool.Reconcile(gctx, ev.Peers)
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		o.topologyTask(gctx)
		return nil
	})

	o.setState(StateRunning, nil)
	return nil
}

// Stop runs the lifecycle stop sequence: stop discovery, stop the server,
// close all peer handles, clear the pool. Idempotent.
func (o *Orchestrator) Stop() {
	if o.State() == StateStopped {
		return
	}
	o.setState(StateStopping, nil)
	if o.cancel != nil {
		o.cancel()
	}
	if o.group != nil {
		_ = o.group.Wait()
	}
	if o.discovery != nil {
		o.discovery.Stop()
	}
	if o.server != nil {
		o.server.Stop()
	}
	if o.pool != nil {
		o.pool.CloseAll()
	}
	o.setState(StateStopped, nil)
}

func (o *Orchestrator) topologyTask(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TopologyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if o.pool.Len() == 0 {
				continue
			}
			fanoutCtx, cancel := context.WithTimeout(ctx, o.cfg.TopologyFanoutDeadline)
			top, err := o.handleTopology(fanoutCtx, nil, 2)
			cancel()
			if err != nil {
				if o.log != nil {
					o.log.Debugf("orchestrator: periodic topology refresh failed: %v", err)
				}
				continue
			}
			o.topoMu.Lock()
			o.topo = top
			o.topoMu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// IsHealthy reports whether the node is running and its capabilities are known.
func (o *Orchestrator) IsHealthy() bool {
	return o.State() == StateRunning && !o.currentCapabilities().IsUnknown()
}

func (o *Orchestrator) currentCapabilities() DeviceCapabilities {
	o.capsMu.RLock()
	defer o.capsMu.RUnlock()
	return o.caps
}

func (o *Orchestrator) trackOutstanding(requestID string) {
	o.outstandingMu.Lock()
	o.outstanding[requestID] = time.Now()
	o.outstandingMu.Unlock()
}

func (o *Orchestrator) untrackOutstanding(requestID string) {
	o.outstandingMu.Lock()
	delete(o.outstanding, requestID)
	o.outstandingMu.Unlock()
}

func synthesizeRequestID() string {
	return fmt.Sprintf("node_%d_%s", nowMs(), uuid.NewString())
}

// countWords is the conservative token estimate used for
// prompt contribution accounting.
func countWords(s string) uint64 {
	return uint64(len(strings.Fields(s)))
}

// HandleSendPrompt implements RequestHandler's prompt-handling path.
func (o *Orchestrator) HandleSendPrompt(ctx context.Context, req *SendPromptRequest) (*TensorResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = synthesizeRequestID()
	}
	if err := req.Shard.Validate(); err != nil {
		o.meter.RecordFailure()
		return nil, err
	}
	o.trackOutstanding(requestID)
	defer o.untrackOutstanding(requestID)

	start := time.Now()
	var out Tensor
	var state InferenceState
	var err error

	if req.Shard.IsFirstLayer() {
		out, state, err = o.backend.RunPrompt(ctx, req.Shard, req.Prompt, req.State)
		if err == nil && !req.Shard.IsLastLayer() {
			out, state, err = o.forward(ctx, req.Shard, out, requestID, state)
		}
	} else {
		peer, selErr := o.pool.SelectAny()
		if selErr != nil {
			err = selErr
		} else {
			var resp *TensorResponse
			resp, err = peer.SendPrompt(ctx, &SendPromptRequest{
				Shard: req.Shard, Prompt: req.Prompt, RequestID: requestID, State: req.State,
			})
			if err == nil {
				out, state = resp.Tensor, resp.State
			}
		}
	}

	if err != nil {
		o.meter.RecordFailure()
		return nil, err
	}

	o.meter.RecordPrompt(countWords(req.Prompt), uint64(time.Since(start).Milliseconds()), uint64(len(req.Prompt)))
	return &TensorResponse{Tensor: out, State: state}, nil
}

// HandleSendTensor implements RequestHandler's tensor-handling path.
func (o *Orchestrator) HandleSendTensor(ctx context.Context, req *SendTensorRequest) (*TensorResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = synthesizeRequestID()
	}
	if err := req.Shard.Validate(); err != nil {
		o.meter.RecordFailure()
		return nil, err
	}
	if err := req.Input.Validate(); err != nil {
		o.meter.RecordFailure()
		return nil, err
	}
	o.trackOutstanding(requestID)
	defer o.untrackOutstanding(requestID)

	start := time.Now()
	out, state, err := o.backend.RunTensor(ctx, req.Shard, req.Input, req.State)
	if err == nil && !req.Shard.IsLastLayer() {
		out, state, err = o.forward(ctx, req.Shard, out, requestID, state)
	}
	if err != nil {
		o.meter.RecordFailure()
		return nil, err
	}

	o.meter.RecordTensor(uint64(time.Since(start).Milliseconds()), uint64(len(req.Input.Bytes)))
	return &TensorResponse{Tensor: out, State: state}, nil
}

// forward sends tensor to the next shard's peer, advancing the shard by one
// segment and selecting a peer from the pool to receive it.
func (o *Orchestrator) forward(ctx context.Context, cur Shard, tensor Tensor, requestID string, state InferenceState) (Tensor, InferenceState, error) {
	next := cur.Advance()
	peer, err := o.pool.SelectAny()
	if err != nil {
		return Tensor{}, nil, err
	}
	resp, err := peer.SendTensor(ctx, &SendTensorRequest{Shard: next, Input: tensor, RequestID: requestID, State: state})
	if err != nil {
		return Tensor{}, nil, err
	}
	return resp.Tensor, resp.State, nil
}

// HandleCollectTopology implements RequestHandler, delegating to
// handleTopology.
func (o *Orchestrator) HandleCollectTopology(ctx context.Context, req *CollectTopologyRequest) (*TopologyResponse, error) {
	top, err := o.handleTopology(ctx, req.Visited, req.MaxDepth)
	if err != nil {
		return nil, err
	}
	return &TopologyResponse{Topology: top}, nil
}

// handleTopology recursively collects topology from peers, including
// cycle prevention via the visited set and bounded-parallelism fan-out.
func (o *Orchestrator) handleTopology(ctx context.Context, visited []string, maxDepth int32) (Topology, error) {
	for _, id := range visited {
		if id == o.cfg.NodeID {
			return NewTopology(), nil
		}
	}
	nextVisited := make([]string, len(visited), len(visited)+1)
	copy(nextVisited, visited)
	nextVisited = append(nextVisited, o.cfg.NodeID)

	result := NewTopology()
	result.Nodes[o.cfg.NodeID] = o.currentCapabilities()

	peers := o.pool.All()
	edges := make([]TopologyEdge, 0, len(peers))
	for _, p := range peers {
		edges = append(edges, TopologyEdge{To: p.ID, Description: "RPC peer"})
	}
	result.PeerGraph[o.cfg.NodeID] = edges

	if maxDepth <= 0 || len(peers) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(peers))
	results := make([]Topology, len(peers))
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			resp, err := p.CollectTopology(gctx, &CollectTopologyRequest{Visited: nextVisited, MaxDepth: maxDepth - 1})
			if err != nil {
				if o.log != nil {
					o.log.Debugf("orchestrator: topology fan-out to %s failed, ignoring: %v", p.ID, err)
				}
				return nil
			}
			results[i] = resp.Topology
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Nodes == nil {
			continue
		}
		result = result.Merge(r, o.log)
	}
	return result, nil
}

// HandleSendResult implements RequestHandler's result-relay path.
func (o *Orchestrator) HandleSendResult(ctx context.Context, req *SendResultRequest) (*AckResponse, error) {
	if o.log != nil {
		o.log.WithFields(logrus.Fields{"request_id": req.RequestID, "finished": req.IsFinished}).Info("orchestrator: received result")
	}
	if o.subscriber != nil {
		o.subscriber.OnResult(req.RequestID, req.TokenIDs, req.IsFinished)
	}
	return &AckResponse{Ok: true}, nil
}

// HandleSendOpaqueStatus implements RequestHandler's status-relay path.
func (o *Orchestrator) HandleSendOpaqueStatus(ctx context.Context, req *SendOpaqueStatusRequest) (*AckResponse, error) {
	if o.log != nil {
		o.log.WithFields(logrus.Fields{"request_id": req.RequestID, "status": req.Status}).Info("orchestrator: received opaque status")
	}
	if o.subscriber != nil {
		o.subscriber.OnOpaqueStatus(req.RequestID, req.Status)
	}
	return &AckResponse{Ok: true}, nil
}

// HandleHealthCheck implements RequestHandler.
func (o *Orchestrator) HandleHealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	o.topoMu.RLock()
	n := len(o.topo.Nodes)
	o.topoMu.RUnlock()
	return &HealthCheckResponse{IsHealthy: o.IsHealthy(), CachedTopologyLen: int32(n)}, nil
}

// Meter returns the orchestrator's contribution meter.
func (o *Orchestrator) Meter() *ContributionMeter {
	return o.meter
}

// NodeID returns the configured node identity.
func (o *Orchestrator) NodeID() string {
	return o.cfg.NodeID
}

// CachedTopology returns the last cached topology snapshot.
func (o *Orchestrator) CachedTopology() Topology {
	o.topoMu.RLock()
	defer o.topoMu.RUnlock()
	return o.topo
}

var _ RequestHandler = (*Orchestrator)(nil)
