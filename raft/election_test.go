package raft

import (
	"testing"
	"time"

	"github.com/nthu-dsrg/raftkv/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReplica(t *testing.T, net *transport.Network, id string, peers []string) (*Raft, *transport.Pipe) {
	t.Helper()
	pipe := net.Attach(id, 32)
	r := New(id, peers, pipe, DefaultConfig(), NewMemoryPersister(), zap.NewNop())
	return r, pipe
}

func TestGrantVoteWhenUnvotedAndUpToDate(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "r1", []string{"r2", "r3"})

	r.handleVote(transport.Message{
		Src: "r2", Type: transport.KindVote,
		Term: 1, CandidateID: "r2", LastLogIndex: -1, LastLogTerm: 0,
	})

	assert.Equal(t, "r2", r.votedFor)
	assert.Equal(t, uint64(1), r.term)
}

func TestRejectVoteWhenAlreadyVotedForAnother(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "r1", []string{"r2", "r3"})
	r2 := net.Attach("r2", 8)
	r3 := net.Attach("r3", 8)

	r.handleVote(transport.Message{Src: "r2", Type: transport.KindVote, Term: 1, CandidateID: "r2", LastLogIndex: -1})
	require.Equal(t, "r2", r.votedFor)

	ack, ok, err := r2.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ack.VoteGranted)

	r.handleVote(transport.Message{Src: "r3", Type: transport.KindVote, Term: 1, CandidateID: "r3", LastLogIndex: -1})

	ack2, ok, err := r3.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ack2.VoteGranted)
}

func TestRejectVoteWhenCandidateLogIsStale(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "r1", []string{"r2"})
	r.log.append(Entry{Term: 3, Key: "x", Value: "1"})

	r.handleVote(transport.Message{
		Src: "r2", Type: transport.KindVote, Term: 3,
		CandidateID: "r2", LastLogIndex: -1, LastLogTerm: 0,
	})

	assert.Empty(t, r.votedFor)
}

func TestBecomeLeaderOnMajorityVotes(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "r1", []string{"r2", "r3"})

	r.startElection()
	require.Equal(t, Candidate, r.role)

	r.handleVoteAck(transport.Message{Src: "r2", Term: r.term, VoteGranted: true})
	assert.Equal(t, Leader, r.role)
	assert.Equal(t, r.commitIndex, r.matchIndex["r2"])
}

func TestDuplicateVoteAckIsHarmlessAfterElection(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "r1", []string{"r2", "r3"})

	r.startElection()
	r.handleVoteAck(transport.Message{Src: "r2", Term: r.term, VoteGranted: true})
	require.Equal(t, Leader, r.role)

	r.handleVoteAck(transport.Message{Src: "r2", Term: r.term, VoteGranted: true})
	assert.Equal(t, Leader, r.role) // still leader, no crash/flip from a re-delivered ack
}
