package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// discoveryPacket is the JSON payload broadcast on the discovery port
// Unknown keys are ignored on decode. Older peers may still
// emit the legacy "id:port" wire form, handled by decodePacket.
type discoveryPacket struct {
	Type     string `json:"type"`
	NodeID   string `json:"node_id"`
	GRPCPort uint16 `json:"grpc_port"`
}

// PeerEventKind distinguishes a newly seen peer from one that departed.
type PeerEventKind int

const (
	PeerJoined PeerEventKind = iota
	PeerLeft
)

// PeerEvent is delivered on a Discovery's change stream.
type PeerEvent struct {
	Kind  PeerEventKind
	Peer  PeerInfo
	Peers map[string]PeerInfo
}

// Discovery broadcasts this node's presence over UDP and maintains a
// liveness-reaped table of peers announcing the same way. The three
// cooperative loops (broadcaster/listener/reaper) share one socket and are
// started under one errgroup as ticker-driven background tasks.
type Discovery struct {
	selfID         string
	port           uint16
	grpcPort       uint16
	broadcastEvery time.Duration
	peerTimeout    time.Duration
	reaperEvery    time.Duration

	conn    *net.UDPConn
	limiter *rate.Limiter

	mu    sync.RWMutex
	peers map[string]PeerInfo

	subsMu sync.Mutex
	subs   map[chan PeerEvent]struct{}

	log *logrus.Entry

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDiscovery constructs a Discovery bound to port for both broadcast and
// listen. grpcPort is the node's own inbound RPC port, advertised to peers
// in every broadcast packet — it is independent of port, the UDP discovery
// bind port.
func NewDiscovery(selfID string, port, grpcPort uint16, broadcastEvery, peerTimeout, reaperEvery time.Duration, log *logrus.Entry) *Discovery {
	return &Discovery{
		selfID:         selfID,
		port:           port,
		grpcPort:       grpcPort,
		broadcastEvery: broadcastEvery,
		peerTimeout:    peerTimeout,
		reaperEvery:    reaperEvery,
		limiter:        rate.NewLimiter(rate.Every(broadcastEvery), 1),
		peers:          make(map[string]PeerInfo),
		subs:           make(map[chan PeerEvent]struct{}),
		log:            log,
	}
}

// listenConfigReuseAddr sets SO_REUSEADDR on the discovery socket so the
// broadcaster and listener can share one port. Reuse-port is left to the
// platform and not forced.
var listenConfigReuseAddr = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = setReuseAddr(fd)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	},
}

// Start binds the shared socket and launches the broadcaster, listener and
// reaper loops under ctx. Call Stop to shut down; Start is not idempotent.
func (d *Discovery) Start(ctx context.Context) error {
	pc, err := listenConfigReuseAddr.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", d.port))
	if err != nil {
		return ErrInternal(fmt.Errorf("discovery: listen :%d: %w", d.port, err))
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return ErrInternal(fmt.Errorf("discovery: unexpected packet conn type %T", pc))
	}
	_ = conn.SetReadBuffer(64 * 1024)
	d.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	d.group = g

	if err := enableBroadcast(conn); err != nil && d.log != nil {
		d.log.Warnf("discovery: enable broadcast: %v", err)
	}

	g.Go(func() error { d.broadcastLoop(gctx); return nil })
	g.Go(func() error { d.listenLoop(gctx); return nil })
	g.Go(func() error { d.reapLoop(gctx); return nil })
	return nil
}

// Stop cancels all loops, closes the socket, and clears the peer map.
func (d *Discovery) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.conn != nil {
		_ = d.conn.Close()
	}
	if d.group != nil {
		_ = d.group.Wait()
	}
	d.mu.Lock()
	d.peers = make(map[string]PeerInfo)
	d.mu.Unlock()
}

func (d *Discovery) broadcastAddrs() []*net.UDPAddr {
	addrs := []*net.UDPAddr{{IP: net.IPv4bcast, Port: int(d.port)}}
	ifaces, err := net.Interfaces()
	if err != nil {
		return addrs
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := subnetBroadcast(ip4, ipnet.Mask)
			addrs = append(addrs, &net.UDPAddr{IP: bcast, Port: int(d.port)})
		}
	}
	return addrs
}

func subnetBroadcast(ip net.IP, mask net.IPMask) net.IP {
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

func (d *Discovery) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(d.broadcastEvery)
	defer ticker.Stop()
	d.announce()
	for {
		select {
		case <-ticker.C:
			d.announce()
		case <-ctx.Done():
			return
		}
	}
}

// announce sends one discovery packet to every broadcast address, subject to
// a rate limiter paced to broadcastEvery — belt-and-suspenders on top of the
// ticker in broadcastLoop in case announce is ever triggered from elsewhere.
func (d *Discovery) announce() {
	if !d.limiter.Allow() {
		return
	}
	pkt := discoveryPacket{Type: "discovery", NodeID: d.selfID, GRPCPort: d.grpcPort}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	for _, addr := range d.broadcastAddrs() {
		if _, err := d.conn.WriteToUDP(data, addr); err != nil && d.log != nil {
			d.log.Debugf("discovery: broadcast to %s failed: %v", addr, err)
		}
	}
}

func (d *Discovery) listenLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		pkt, err := decodePacket(buf[:n])
		if err != nil {
			if d.log != nil {
				d.log.Debugf("discovery: dropping malformed packet from %s: %v", addr, err)
			}
			continue
		}
		if pkt.NodeID == "" || pkt.NodeID == d.selfID {
			continue
		}
		d.upsert(PeerInfo{
			ID:         pkt.NodeID,
			Address:    addr.IP.String(),
			Port:       pkt.GRPCPort,
			LastSeenMs: nowMs(),
		})
	}
}

// decodePacket decodes a discovery datagram, falling back to the legacy
// "id:port" plaintext form when it does not start with '{'.
func decodePacket(data []byte) (discoveryPacket, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var pkt discoveryPacket
		if err := json.Unmarshal([]byte(trimmed), &pkt); err != nil {
			return discoveryPacket{}, fmt.Errorf("discovery: bad json packet: %w", err)
		}
		return pkt, nil
	}
	parts := strings.SplitN(trimmed, ":", 2)
	if len(parts) != 2 {
		return discoveryPacket{}, fmt.Errorf("discovery: malformed legacy packet %q", trimmed)
	}
	port, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return discoveryPacket{}, fmt.Errorf("discovery: malformed legacy port in %q: %w", trimmed, err)
	}
	return discoveryPacket{NodeID: parts[0], GRPCPort: uint16(port)}, nil
}

func (d *Discovery) upsert(info PeerInfo) {
	d.mu.Lock()
	d.peers[info.ID] = info
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	d.publish(PeerEvent{Kind: PeerJoined, Peer: info, Peers: snapshot})
}

func (d *Discovery) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(d.reaperEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.reapOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discovery) reapOnce() {
	cutoff := nowMs() - d.peerTimeout.Milliseconds()
	var departed []PeerInfo
	d.mu.Lock()
	for id, p := range d.peers {
		if p.LastSeenMs < cutoff {
			departed = append(departed, p)
			delete(d.peers, id)
		}
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	for _, p := range departed {
		if d.log != nil {
			d.log.Debugf("discovery: reaped stale peer %s", p.ID)
		}
		d.publish(PeerEvent{Kind: PeerLeft, Peer: p, Peers: snapshot})
	}
}

func (d *Discovery) snapshotLocked() map[string]PeerInfo {
	out := make(map[string]PeerInfo, len(d.peers))
	for id, p := range d.peers {
		out[id] = p
	}
	return out
}

// Peers returns a snapshot of all currently known peers.
func (d *Discovery) Peers() []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerInfo, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// Lookup returns the PeerInfo known for id, if any.
func (d *Discovery) Lookup(id string) (PeerInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

// Subscribe returns a channel delivering the full peer map on every
// mutation. The channel buffers 16 events; an event published while a
// subscriber's buffer is full is dropped for that subscriber. The caller
// must Unsubscribe when done.
func (d *Discovery) Subscribe() chan PeerEvent {
	ch := make(chan PeerEvent, 16)
	d.subsMu.Lock()
	d.subs[ch] = struct{}{}
	d.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (d *Discovery) Unsubscribe(ch chan PeerEvent) {
	d.subsMu.Lock()
	if _, ok := d.subs[ch]; ok {
		delete(d.subs, ch)
		close(ch)
	}
	d.subsMu.Unlock()
}

func (d *Discovery) publish(ev PeerEvent) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
