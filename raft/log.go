package raft

import "github.com/nthu-dsrg/raftkv/transport"

// Entry is a single LogEntry as defined in spec.md §3: immutable once
// committed, equality for divergence checks defined over (term, key,
// value).
type Entry struct {
	Term   uint64
	Key    string
	Value  string
	MID    string
	Putter string
}

// equal implements spec.md §3's equality rule for divergence checks:
// "(term, key, value)" — MID and Putter are request bookkeeping, not
// part of the committed value, and are deliberately excluded.
func (e Entry) equal(o Entry) bool {
	return e.Term == o.Term && e.Key == o.Key && e.Value == o.Value
}

func (e Entry) toWire() transport.EntryWire {
	return transport.EntryWire{Term: e.Term, Key: e.Key, Value: e.Value, MID: e.MID, Putter: e.Putter}
}

func fromWire(w transport.EntryWire) Entry {
	return Entry{Term: w.Term, Key: w.Key, Value: w.Value, MID: w.MID, Putter: w.Putter}
}

// Log is the ordered, zero-indexed, append-mostly sequence of Entry
// described in spec.md §3. It enforces none of the invariants itself
// (Leader Append-Only is a caller discipline: raft.go never truncates
// the log while it is Leader); it only supplies the shared slice
// operations both roles need.
type Log struct {
	entries []Entry
}

// lastIndex returns len(log)-1, i.e. -1 for an empty log.
func (l *Log) lastIndex() int64 {
	return int64(len(l.entries)) - 1
}

// termAt returns the term of the entry at idx, or currentTerm if the log
// is empty or idx is out of range — spec.md §4.2's rule for
// prev_log_term when prev_log_index has no corresponding entry.
func (l *Log) termAt(idx int64, currentTerm uint64) uint64 {
	if idx < 0 || idx >= int64(len(l.entries)) {
		return currentTerm
	}
	return l.entries[idx].Term
}

// at returns the entry at idx and whether idx was in range.
func (l *Log) at(idx int64) (Entry, bool) {
	if idx < 0 || idx >= int64(len(l.entries)) {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// append adds entries to the end of the log (Leader Append-Only,
// spec.md §3 — callers never invoke this to overwrite leader state).
func (l *Log) append(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// suffix returns a copy of entries[from:], clamping from into
// [0, len]. Used to build the default Append payload (spec.md §4.2).
func (l *Log) suffix(from int64) []Entry {
	if from < 0 {
		from = 0
	}
	if from >= int64(len(l.entries)) {
		return nil
	}
	out := make([]Entry, len(l.entries)-int(from))
	copy(out, l.entries[from:])
	return out
}

// reconcile implements spec.md §4.3 step 6: scan new entries against the
// existing log starting at offset, truncating at the first divergence
// and splicing in the remainder. Entries that already match are left
// untouched, making replay of an identical Append a no-op (spec.md §5,
// §8 property 7).
func (l *Log) reconcile(offset int64, entries []Entry) {
	i := int64(0)
	for ; i < int64(len(entries)); i++ {
		pos := offset + i
		if pos >= int64(len(l.entries)) {
			break
		}
		if !l.entries[pos].equal(entries[i]) {
			break
		}
	}
	if i == int64(len(entries)) {
		return // every supplied entry already matches; no-op
	}

	truncateAt := offset + i
	if truncateAt < int64(len(l.entries)) {
		l.entries = l.entries[:truncateAt]
	}
	l.entries = append(l.entries, entries[i:]...)
}
