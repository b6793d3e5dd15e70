package raft

import "errors"

// errNotLeader is returned when a client operation reaches a replica that
// cannot itself append to the log right now, named after the teacher's
// own sentinel (joan902614-NTHU-DS-Raft-Lab raft.go: errNotLeader).
var errNotLeader = errors.New("raftkv: not the leader")

// errQueueFull is returned when a deferred client request can't be
// enqueued because request_queue (spec.md §3) is already at capacity.
var errQueueFull = errors.New("raftkv: deferred request queue full")
