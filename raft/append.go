package raft

import (
	"github.com/nthu-dsrg/raftkv/transport"
	"go.uber.org/zap"
)

// handleAppend implements spec.md §4.3's Append handling for
// follower/candidate, step by step as numbered in the spec.
func (r *Raft) handleAppend(m transport.Message) {
	// 1. Reset last_activity.
	r.resetActivity()

	// 2. If term >= own_term: adopt leader.
	if m.Term >= r.term {
		r.term = m.Term
		r.votedFor = ""
		r.persist()
		r.role = Follower
		r.assumedLeader = m.Src
		r.flushQueue()
	}

	// 3. Apply leader_commit up to min(leader_commit, len(log)-1), even
	// before reconciling the log (safe: followers only commit entries
	// they already hold).
	if m.LeaderCommit > r.commitIndex {
		target := m.LeaderCommit
		if last := r.log.lastIndex(); target > last {
			target = last
		}
		if target > r.commitIndex {
			r.advanceCommit(target)
		}
	}

	// 4. If entries is empty, stop (heartbeat) — no ack is needed since
	// there is nothing for the leader to confirm.
	if len(m.Entries) == 0 {
		return
	}

	// 5. success = (term >= own_term) AND (prev_log_index == -1 OR
	// (prev_log_index < len(log) AND log[prev_log_index].term ==
	// prev_log_term)).
	success := m.Term >= r.term
	if success && m.PrevLogIndex != -1 {
		entry, ok := r.log.at(m.PrevLogIndex)
		success = ok && entry.Term == m.PrevLogTerm
	}

	if success {
		// 6. Reconcile at offset prev_log_index+1.
		entries := make([]Entry, len(m.Entries))
		for i, w := range m.Entries {
			entries[i] = fromWire(w)
		}
		r.log.reconcile(m.PrevLogIndex+1, entries)
		r.persist()
		r.logger.Info("reconciled log from leader",
			zap.String("leader", m.Src), zap.Int("newEntries", len(entries)), zap.Int64("logLen", r.log.lastIndex()+1))
	}

	// 7. Reply.
	r.replyAck(m, success)
}

func (r *Raft) replyAck(m transport.Message, success bool) {
	r.send(m.Src, transport.Message{
		Type:           transport.KindAck,
		Term:           r.term,
		Success:        success,
		ConfirmedIndex: r.log.lastIndex(),
	})
}
