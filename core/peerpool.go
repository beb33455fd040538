package core

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PeerPool is the orchestrator-owned concurrent map of peer id to an open
// PeerHandle; only the orchestrator mutates it. A sync.RWMutex-guarded map
// is used rather than sync.Map so the single-writer intent stays explicit.
// Liveness is owned by discovery, not by this pool — see Reconcile.
type PeerPool struct {
	mu          sync.RWMutex
	handles     map[string]*PeerHandle
	callTimeout time.Duration
	log         *logrus.Entry
}

// NewPeerPool returns an empty pool dialing peers with the given per-call
// timeout.
func NewPeerPool(callTimeout time.Duration, log *logrus.Entry) *PeerPool {
	return &PeerPool{
		handles:     make(map[string]*PeerHandle),
		callTimeout: callTimeout,
		log:         log,
	}
}

// Reconcile applies the pool's maintenance algorithm against the latest
// discovery snapshot: open a handle for every peer id
// present in snapshot but absent from the pool; close and remove every
// handle present in the pool but absent from snapshot.
func (pp *PeerPool) Reconcile(ctx context.Context, snapshot map[string]PeerInfo) {
	pp.mu.Lock()
	var toDial []PeerInfo
	for id, info := range snapshot {
		if _, ok := pp.handles[id]; !ok {
			toDial = append(toDial, info)
		}
	}
	var toClose []*PeerHandle
	for id, h := range pp.handles {
		if _, ok := snapshot[id]; !ok {
			toClose = append(toClose, h)
			delete(pp.handles, id)
		}
	}
	pp.mu.Unlock()

	for _, h := range toClose {
		_ = h.Close()
	}
	for _, info := range toDial {
		addr := fmt.Sprintf("%s:%d", info.Address, info.Port)
		h, err := DialPeer(ctx, info.ID, addr, pp.callTimeout)
		if err != nil {
			if pp.log != nil {
				pp.log.Warnf("peerpool: dial %s at %s failed: %v", info.ID, addr, err)
			}
			continue
		}
		pp.mu.Lock()
		if existing, ok := pp.handles[info.ID]; ok {
			pp.mu.Unlock()
			_ = h.Close()
			_ = existing
			continue
		}
		pp.handles[info.ID] = h
		pp.mu.Unlock()
	}
}

// Get returns the handle for id, if the pool currently holds one.
func (pp *PeerPool) Get(id string) (*PeerHandle, bool) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	h, ok := pp.handles[id]
	return h, ok
}

// Len returns the number of peers currently in the pool.
func (pp *PeerPool) Len() int {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	return len(pp.handles)
}

// All returns every handle currently in the pool.
func (pp *PeerPool) All() []*PeerHandle {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	out := make([]*PeerHandle, 0, len(pp.handles))
	for _, h := range pp.handles {
		out = append(out, h)
	}
	return out
}

// SelectAny returns some peer whenever the pool is non-empty, never self.
// It picks whichever handle the map iteration yields first; a real
// ring-ordering strategy is left to a downstream router.
func (pp *PeerPool) SelectAny() (*PeerHandle, error) {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	for _, h := range pp.handles {
		return h, nil
	}
	return nil, ErrNoPeers()
}

// Sample returns up to n distinct peer ids currently in the pool, chosen by
// a Fisher-Yates shuffle seeded from crypto/rand.
func (pp *PeerPool) Sample(n int) []string {
	pp.mu.RLock()
	ids := make([]string, 0, len(pp.handles))
	for id := range pp.handles {
		ids = append(ids, id)
	}
	pp.mu.RUnlock()
	for i := len(ids) - 1; i > 0; i-- {
		jBig, err := crand.Int(crand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			break
		}
		j := int(jBig.Int64())
		ids[i], ids[j] = ids[j], ids[i]
	}
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

// CloseAll closes every handle and empties the pool.
func (pp *PeerPool) CloseAll() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	for id, h := range pp.handles {
		_ = h.Close()
		delete(pp.handles, id)
	}
}
