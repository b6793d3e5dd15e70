package raft

import (
	"time"

	"github.com/nthu-dsrg/raftkv/transport"
	"go.uber.org/zap"
)

// Role is one of Follower, Candidate, Leader (spec.md §3).
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// pendingPut tracks whether an in-flight client PUT has been answered
// yet (spec.md §3: "pending_puts: for each in-flight client PUT (by
// mid), whether it has been answered yet").
type pendingPut struct {
	putter   string
	answered bool
}

// Raft holds one replica's entire consensus state. Field layout follows
// the teacher's single-struct shape (joan902614-NTHU-DS-Raft-Lab raft.go:
// Raft embeds *raftState holding state/currentTerm/votedFor/logs/
// commitIndex/nextIndex/matchIndex); unlike the teacher, every field here
// is touched only from the single goroutine running Run (spec.md §5: "no
// locks are required"), so there is no mutex anywhere in this type.
type Raft struct {
	id    string
	peers []string // all other replica ids, fixed at startup (spec.md §2)
	conn  transport.PacketConn

	config    *Config
	persister Persister
	logger    *zap.Logger

	role          Role
	term          uint64
	votedFor      string // "" means none
	assumedLeader string
	log           Log
	commitIndex   int64
	values        map[string]string

	// Leader-only.
	matchIndex  map[string]int64
	pendingPuts map[string]*pendingPut

	// Candidate-only vote tally.
	votesForMe   int
	votesTotal   int
	electionTerm uint64 // term the current tally belongs to

	requestQueue []transport.Message

	lastActivity    time.Time
	electionTimeout time.Duration
	lastHeartbeat   time.Time

	now func() time.Time // overridable for tests
}

// New constructs a Follower replica at term 0 with an empty log, per
// spec.md §3's lifecycle: "a replica is born Follower at term 0 with
// empty log." If the persister holds saved state, its term, votedFor
// and log are restored instead.
func New(id string, peers []string, conn transport.PacketConn, config *Config, persister Persister, logger *zap.Logger) *Raft {
	if config == nil {
		config = DefaultConfig()
	}
	if persister == nil {
		persister = NewMemoryPersister()
	}

	r := &Raft{
		id:            id,
		peers:         peers,
		conn:          conn,
		config:        config,
		persister:     persister,
		logger:        logger.With(zap.String("id", id)),
		role:          Follower,
		assumedLeader: transport.UnknownLeader,
		commitIndex:   -1,
		values:        make(map[string]string),
		pendingPuts:   make(map[string]*pendingPut),
		now:           time.Now,
	}

	if saved, ok, err := persister.Load(); err != nil {
		r.logger.Error("failed to load persisted state, starting fresh", zap.Error(err))
	} else if ok {
		r.term = saved.Term
		r.votedFor = saved.VotedFor
		r.log.entries = saved.Log
		r.logger.Info("restored persisted state",
			zap.Uint64("term", r.term), zap.String("votedFor", r.votedFor), zap.Int("logEntries", len(r.log.entries)))
	}

	r.lastActivity = r.now()
	r.electionTimeout = electionTimeout(config.ElectionTimeoutMin, config.ElectionTimeoutMax)
	return r
}

// persist snapshots term/votedFor/log, matching spec.md §9's durability
// recommendation. Called after every mutation to one of those fields.
func (r *Raft) persist() {
	if err := r.persister.Save(PersistentState{Term: r.term, VotedFor: r.votedFor, Log: append([]Entry{}, r.log.entries...)}); err != nil {
		r.logger.Error("failed to persist state", zap.Error(err))
	}
}

// majoritySize returns the smallest quorum for the cluster, strict
// majority of len(peers)+1 (spec.md §4.1: "⌊(N+1)/2⌋+1" == strict
// majority of N+1; GLOSSARY: "> floor(cluster_size/2)").
func (r *Raft) majoritySize() int {
	n := len(r.peers) + 1
	return n/2 + 1
}

// resetActivity marks last_activity as now, per spec.md §3 ("reset by
// any leader contact or granted vote").
func (r *Raft) resetActivity() {
	r.lastActivity = r.now()
}

// observeTerm implements the cross-cutting rule in spec.md §4.1's table:
// "Any, observed higher term -> term <- that term; voted_for <- none".
// It does not change role; callers decide role transitions afterward.
// Returns true if the term actually advanced.
func (r *Raft) observeTerm(term uint64) bool {
	if term <= r.term {
		return false
	}
	r.term = term
	r.votedFor = ""
	r.persist()
	return true
}

// becomeFollower demotes to Follower, optionally adopting a new assumed
// leader; used for higher-term demotion (spec.md §4.1). Accepting a
// leader via Append (spec.md §4.3 step 2) is done inline in handleAppend.
func (r *Raft) becomeFollower(leader string) {
	wasLeader := r.role == Leader
	r.role = Follower
	if leader != "" {
		r.assumedLeader = leader
	} else {
		r.assumedLeader = transport.UnknownLeader
	}
	if wasLeader {
		r.matchIndex = nil
		r.pendingPuts = make(map[string]*pendingPut)
	}
}
