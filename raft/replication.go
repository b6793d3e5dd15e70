package raft

import (
	"github.com/nthu-dsrg/raftkv/transport"
	"go.uber.org/zap"
)

// onPut implements spec.md §4.2's "On client PUT" action: append a log
// entry, mark it pending, and push an Append at each peer's current
// match_index. Only called when r.role == Leader.
func (r *Raft) onPut(key, value, mid, putter string) {
	r.log.append(Entry{Term: r.term, Key: key, Value: value, MID: mid, Putter: putter})
	r.persist()
	r.pendingPuts[mid] = &pendingPut{putter: putter}

	r.logger.Info("appended put to log", zap.String("key", key), zap.String("mid", mid), zap.Int64("index", r.log.lastIndex()))

	for _, peer := range r.peers {
		r.sendAppend(peer)
	}
}

// appendArgs builds the Append RPC structure for one peer per spec.md
// §4.2: prev_log_index is the peer's match_index, prev_log_term is
// whatever term is at that index (or the leader's current term if out
// of bounds), entries default to the log suffix from
// max(prev_log_index+1, 0).
func (r *Raft) appendArgs(peer string) transport.Message {
	prevIdx := r.matchIndex[peer]
	prevTerm := r.log.termAt(prevIdx, r.term)

	from := prevIdx + 1
	if from < 0 {
		from = 0
	}
	entries := r.log.suffix(from)
	wire := make([]transport.EntryWire, len(entries))
	for i, e := range entries {
		wire[i] = e.toWire()
	}

	return transport.Message{
		Type:         transport.KindAppend,
		Term:         r.term,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      wire,
		LeaderCommit: r.commitIndex,
	}
}

func (r *Raft) sendAppend(peer string) {
	r.send(peer, r.appendArgs(peer))
}

// broadcastHeartbeat sends an Append with empty entries to every peer
// (spec.md §4.2: "Heartbeats. Every heartbeat_interval, the leader emits
// an Append with empty entries to each peer.").
func (r *Raft) broadcastHeartbeat() {
	for _, peer := range r.peers {
		m := r.appendArgs(peer)
		m.Entries = nil
		r.send(peer, m)
	}
}

// handleAck implements spec.md §4.2's "Append-ack handling (Leader)".
func (r *Raft) handleAck(m transport.Message) {
	if r.observeTerm(m.Term) {
		r.becomeFollower("")
		return
	}
	if r.role != Leader {
		return
	}

	// A confirmed_index our log couldn't possibly have produced is stale
	// relative to a later term (spec.md §4.2: "If len(log) <=
	// confirmed_index, the ack is stale ... demote").
	if int64(len(r.log.entries)) <= m.ConfirmedIndex {
		r.becomeFollower("")
		return
	}

	if !m.Success {
		if cur := r.matchIndex[m.Src]; cur > -1 {
			r.matchIndex[m.Src] = cur - 1
		}
		r.sendAppend(m.Src)
		return
	}

	r.matchIndex[m.Src] = m.ConfirmedIndex
	r.maybeAdvanceCommit(m.ConfirmedIndex)
}

// maybeAdvanceCommit implements spec.md §4.2's commit rule, including
// the §9-recommended leader-term check: commit_index only advances to N
// if a strict majority (leader included) has replicated N AND
// log[N].term == current term.
func (r *Raft) maybeAdvanceCommit(index int64) {
	if index <= r.commitIndex {
		return
	}
	entry, ok := r.log.at(index)
	if !ok || entry.Term != r.term {
		return
	}

	replicas := 1 // the leader itself
	for _, peer := range r.peers {
		if r.matchIndex[peer] >= index {
			replicas++
		}
	}
	if replicas < r.majoritySize() {
		return
	}

	r.advanceCommit(index)
	r.broadcastHeartbeat() // propagate the new commit index immediately
}

// advanceCommit applies newly-committed entries to values and answers
// any PUTs still pending an ok (spec.md §4.2, §4.4's response
// guarantee). Shared by the leader's commit path and the follower path
// in append.go.
func (r *Raft) advanceCommit(to int64) {
	from := r.commitIndex + 1
	r.commitIndex = to
	for i := from; i <= to; i++ {
		entry, ok := r.log.at(i)
		if !ok {
			continue
		}
		r.values[entry.Key] = entry.Value

		if pp, exists := r.pendingPuts[entry.MID]; exists && !pp.answered {
			pp.answered = true
			r.send(pp.putter, transport.Message{Type: transport.KindOk, MID: entry.MID})
		}
	}
	r.logger.Info("advanced commit index", zap.Int64("commitIndex", r.commitIndex))
}
