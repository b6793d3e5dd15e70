// Package transport carries the wire message model and datagram adapters
// used by a raftkv replica. Messages are single JSON objects, UTF-8, one
// per datagram, matching the shape in spec.md §6.
package transport

import "encoding/json"

// Broadcast is the destination id meaning "every replica on the cluster".
const Broadcast = "FFFF"

// UnknownLeader is the sentinel leader id used before any leader is known.
const UnknownLeader = "unknown"

// Kind tags the type field carried by every message.
type Kind string

const (
	KindHello    Kind = "hello"
	KindGet      Kind = "get"
	KindPut      Kind = "put"
	KindOk       Kind = "ok"
	KindRedirect Kind = "redirect"
	KindFail     Kind = "fail"
	KindVote     Kind = "vote"
	KindVoteAck  Kind = "vote ack"
	KindAppend   Kind = "append"
	KindAck      Kind = "ack"
)

// EntryWire is the wire rendering of a single replicated log entry,
// carried inside an append message's entries array.
type EntryWire struct {
	Term   uint64 `json:"term"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	MID    string `json:"MID"`
	Putter string `json:"putter"`
}

// Message is the envelope every datagram carries. Every field that isn't
// relevant to a given Kind is simply left at its zero value and omitted
// from the encoded JSON.
type Message struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Leader string `json:"leader"`
	Type   Kind   `json:"type"`

	// client <-> replica
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
	MID   string `json:"MID,omitempty"`

	// vote / vote ack
	Term         uint64 `json:"term,omitempty"`
	CandidateID  string `json:"candidateId,omitempty"`
	LastLogIndex int64  `json:"lastLogIndex,omitempty"`
	LastLogTerm  uint64 `json:"lastLogTerm,omitempty"`
	VoteGranted  bool   `json:"voteGranted,omitempty"`

	// append / ack
	PrevLogIndex   int64       `json:"prev_log_index,omitempty"`
	PrevLogTerm    uint64      `json:"prev_log_term,omitempty"`
	Entries        []EntryWire `json:"entries,omitempty"`
	LeaderCommit   int64       `json:"leader_commit,omitempty"`
	Success        bool        `json:"success,omitempty"`
	ConfirmedIndex int64       `json:"confirmed_index,omitempty"`
}

// Encode renders a Message as a single JSON datagram payload.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a single JSON datagram payload into a Message.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
