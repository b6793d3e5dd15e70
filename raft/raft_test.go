package raft

import (
	"testing"
	"time"

	"github.com/nthu-dsrg/raftkv/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// cluster wires up three replicas sharing an in-memory Network, driven by
// hand rather than Run(), so tests can assert on each step of spec.md's
// end-to-end scenarios deterministically.
type cluster struct {
	net   *transport.Network
	nodes map[string]*Raft
	pipes map[string]*transport.Pipe
}

func newCluster(t *testing.T, ids ...string) *cluster {
	t.Helper()
	net := transport.NewNetwork()
	c := &cluster{net: net, nodes: make(map[string]*Raft), pipes: make(map[string]*transport.Pipe)}
	for _, id := range ids {
		peers := make([]string, 0, len(ids)-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		pipe := net.Attach(id, 64)
		c.pipes[id] = pipe
		c.nodes[id] = New(id, peers, pipe, DefaultConfig(), NewMemoryPersister(), zap.NewNop())
	}
	return c
}

// electLeader drives r1 through a full election and asserts it wins,
// delivering its vote RPCs to the other replicas by hand.
func (c *cluster) electLeader(t *testing.T, id string, others ...string) {
	t.Helper()
	r := c.nodes[id]
	r.startElection()

	for _, otherID := range others {
		other := c.nodes[otherID]
		req, ok, err := c.pipes[otherID].Recv(time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, transport.KindVote, req.Type)

		other.handleVote(req)

		ack, ok, err := c.pipes[id].Recv(time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, transport.KindVoteAck, ack.Type)
		r.handleVoteAck(ack)
	}

	require.Equal(t, Leader, r.role)

	// Drain the initial empty Append heartbeats the new leader just sent.
	for _, otherID := range others {
		c.drainAppendAndAck(t, id, otherID)
	}
}

// drainAppendAndAck forwards one pending Append from leaderID to
// followerID, then forwards the resulting Ack back.
func (c *cluster) drainAppendAndAck(t *testing.T, leaderID, followerID string) {
	t.Helper()
	req, ok, err := c.pipes[followerID].Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, transport.KindAppend, req.Type)

	c.nodes[followerID].handleAppend(req)

	if len(req.Entries) == 0 {
		return // heartbeats get no ack, see append.go step 4
	}

	ack, ok, err := c.pipes[leaderID].Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	c.nodes[leaderID].handleAck(ack)
}

func TestHappyPathElectionAndCommit(t *testing.T) {
	c := newCluster(t, "r1", "r2", "r3")
	c.electLeader(t, "r1", "r2", "r3")
	client := c.net.Attach("client", 8)

	leader := c.nodes["r1"]
	require.NoError(t, leader.Propose("x", "1", "m1", "client"))

	c.drainAppendAndAck(t, "r1", "r2")
	c.drainAppendAndAck(t, "r1", "r3")

	assert.Equal(t, int64(0), leader.commitIndex)
	assert.Equal(t, "1", leader.values["x"])

	reply, ok, err := client.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transport.KindOk, reply.Type)
	assert.Equal(t, "m1", reply.MID)
}

func TestRedirectFromFollowerWithKnownLeader(t *testing.T) {
	c := newCluster(t, "r1", "r2", "r3")
	c.electLeader(t, "r1", "r2", "r3")

	client := c.net.Attach("client", 8)
	c.nodes["r2"].handleGet(transport.Message{Src: "client", Type: transport.KindGet, Key: "x", MID: "m2"})

	reply, ok, err := client.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transport.KindRedirect, reply.Type)
	assert.Equal(t, "r1", reply.Leader)
}

func TestDeferredRequestFlushesOnLeaderDiscovery(t *testing.T) {
	c := newCluster(t, "r1", "r2", "r3")
	client := c.net.Attach("client", 8)

	c.nodes["r3"].handlePut(transport.Message{Src: "client", Type: transport.KindPut, Key: "x", Value: "1", MID: "m3"})
	require.Len(t, c.nodes["r3"].requestQueue, 1)

	c.electLeader(t, "r1", "r2", "r3")

	assert.Empty(t, c.nodes["r3"].requestQueue)

	// The client endpoint is attached to the same Network, so it also
	// heard r1's broadcast vote request before r3's redirect.
	vote, ok, err := client.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, transport.KindVote, vote.Type)

	reply, ok, err := client.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transport.KindRedirect, reply.Type)
	assert.Equal(t, "r1", reply.Leader)
}

func TestElectionSafetyAtMostOneLeaderPerTerm(t *testing.T) {
	c := newCluster(t, "r1", "r2", "r3")

	c.nodes["r1"].startElection()
	req, ok, err := c.pipes["r2"].Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	c.nodes["r2"].handleVote(req)

	// r3 also tries to run for the same term after r1 already claimed
	// r2's vote; it must not win too.
	c.nodes["r3"].term = c.nodes["r1"].term - 1
	c.nodes["r3"].startElection()
	req2, ok, err := c.pipes["r2"].Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	c.nodes["r2"].handleVote(req2)

	ack1, _, _ := c.pipes["r1"].Recv(time.Second)
	ack2, _, _ := c.pipes["r3"].Recv(time.Second)

	c.nodes["r1"].handleVoteAck(ack1)
	c.nodes["r3"].handleVoteAck(ack2)

	leaders := 0
	if c.nodes["r1"].role == Leader {
		leaders++
	}
	if c.nodes["r3"].role == Leader {
		leaders++
	}
	assert.LessOrEqual(t, leaders, 1)
}
