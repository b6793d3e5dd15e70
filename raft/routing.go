package raft

import (
	"github.com/nthu-dsrg/raftkv/transport"
	"go.uber.org/zap"
)

// handleGet implements spec.md §4.4's GET routing: answer immediately if
// Leader, redirect if the leader is known, defer otherwise.
func (r *Raft) handleGet(m transport.Message) {
	switch r.role {
	case Leader:
		r.send(m.Src, transport.Message{Type: transport.KindOk, MID: m.MID, Value: r.values[m.Key]})
	default:
		r.dispatchOrDefer(m)
	}
}

// handlePut implements spec.md §4.4's PUT routing: append and defer the
// reply until commit if Leader, redirect/defer otherwise.
func (r *Raft) handlePut(m transport.Message) {
	switch r.role {
	case Leader:
		r.onPut(m.Key, m.Value, m.MID, m.Src)
	default:
		r.dispatchOrDefer(m)
	}
}

// dispatchOrDefer implements the non-Leader half of spec.md §4.4:
// redirect if a leader is known, otherwise enqueue on request_queue.
func (r *Raft) dispatchOrDefer(m transport.Message) {
	if r.assumedLeader != transport.UnknownLeader {
		r.send(m.Src, transport.Message{Type: transport.KindRedirect, MID: m.MID, Leader: r.assumedLeader})
		return
	}
	r.enqueue(m)
}

func (r *Raft) enqueue(m transport.Message) {
	if err := r.tryEnqueue(m); err != nil {
		r.logger.Warn("dropping client request", zap.String("mid", m.MID), zap.Error(err))
	}
}

func (r *Raft) tryEnqueue(m transport.Message) error {
	if len(r.requestQueue) >= r.config.RequestQueueSize {
		return errQueueFull
	}
	r.requestQueue = append(r.requestQueue, m)
	return nil
}

// flushQueue implements spec.md §9's "Deferred requests" design note: on
// becoming Leader, or on accepting a new leader via Append, re-dispatch
// every queued message through the normal (role, kind) pipeline, since
// the role may have changed since it was enqueued.
func (r *Raft) flushQueue() {
	if len(r.requestQueue) == 0 {
		return
	}
	queued := r.requestQueue
	r.requestQueue = nil
	for _, m := range queued {
		r.dispatch(m)
	}
}
