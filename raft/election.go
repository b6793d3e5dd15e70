package raft

import (
	"github.com/nthu-dsrg/raftkv/transport"
	"go.uber.org/zap"
)

// startElection implements spec.md §4.1's "Start election" action:
// increment term, vote for self, become Candidate, clear the assumed
// leader and deferred queue, reset the vote tally, and broadcast a vote
// request.
//
// Grounded on joan902614-NTHU-DS-Raft-Lab's voteForSelf/broadcastRequestVote
// (raft.go lines 334-378), adapted to this core's lexicographic vote
// comparison (SPEC_FULL.md §13.2) instead of the teacher's index-only one.
func (r *Raft) startElection() {
	r.term++
	r.votedFor = r.id
	r.persist()
	r.role = Candidate
	r.assumedLeader = transport.UnknownLeader
	r.requestQueue = nil
	r.votesForMe = 1
	r.votesTotal = 1
	r.electionTerm = r.term
	r.resetActivity()
	r.electionTimeout = electionTimeout(r.config.ElectionTimeoutMin, r.config.ElectionTimeoutMax)

	lastIdx := r.log.lastIndex()
	lastTerm := r.term
	if e, ok := r.log.at(lastIdx); ok {
		lastTerm = e.Term
	}

	r.logger.Info("starting election", zap.Uint64("term", r.term))
	r.broadcast(transport.Message{
		Type:         transport.KindVote,
		Term:         r.term,
		CandidateID:  r.id,
		LastLogIndex: lastIdx,
		LastLogTerm:  lastTerm,
	})
}

// handleVote implements spec.md §4.1's grant-vote rule. The stricter,
// lexicographic (lastLogTerm, lastLogIndex) comparison is used per
// SPEC_FULL.md §13.2, superseding the source's index-only check flagged
// as a deviation in spec.md §9.
func (r *Raft) handleVote(m transport.Message) {
	if r.observeTerm(m.Term) && r.role == Leader {
		r.becomeFollower("")
	}

	reply := transport.Message{
		Type: transport.KindVoteAck,
		Term: r.term,
	}

	if m.Term < r.term {
		r.send(m.Src, reply)
		return
	}

	selfLastIdx := r.log.lastIndex()
	var selfLastTerm uint64 // an empty own log counts as term 0
	if e, ok := r.log.at(selfLastIdx); ok {
		selfLastTerm = e.Term
	}

	candidateUpToDate := m.LastLogTerm > selfLastTerm ||
		(m.LastLogTerm == selfLastTerm && m.LastLogIndex >= selfLastIdx)

	granted := (r.votedFor == "" || r.votedFor == m.CandidateID) &&
		m.Term >= r.term &&
		candidateUpToDate

	if granted {
		r.votedFor = m.CandidateID
		r.persist()
		r.resetActivity()
	}

	reply.VoteGranted = granted
	r.logger.Info("handled vote request",
		zap.String("candidate", m.CandidateID), zap.Bool("granted", granted))
	r.send(m.Src, reply)
}

// handleVoteAck implements spec.md §4.1's "Vote ack handling": update
// term, tally the ack, and become Leader on crossing a strict majority.
// Grounded on joan902614's handleVoteResult (raft.go lines 383-405).
func (r *Raft) handleVoteAck(m transport.Message) {
	if r.observeTerm(m.Term) {
		r.becomeFollower("")
		return
	}
	if r.role != Candidate || m.Term != r.electionTerm {
		return // stale ack from a previous election; harmless (spec.md §5)
	}

	r.votesTotal++
	if m.VoteGranted {
		r.votesForMe++
	}

	if r.votesForMe >= r.majoritySize() {
		r.becomeLeader()
	}
}

// becomeLeader implements spec.md §4.1: init match_index, flush the
// queue, emit an initial empty Append to establish leadership.
func (r *Raft) becomeLeader() {
	r.role = Leader
	r.assumedLeader = r.id
	r.matchIndex = make(map[string]int64, len(r.peers))
	for _, p := range r.peers {
		r.matchIndex[p] = r.commitIndex
	}
	r.pendingPuts = make(map[string]*pendingPut)

	r.logger.Info("won election, became leader", zap.Uint64("term", r.term))
	r.flushQueue()
	r.broadcastHeartbeat()
	r.lastHeartbeat = r.now()
}
