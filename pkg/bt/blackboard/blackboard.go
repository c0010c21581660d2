// Package blackboard implements the keyed shared store behavior-tree nodes
// read and write during a tick, with last-write provenance (tick, timestamp,
// writer node) retained per entry for trace and debugging use.
package blackboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
)

// ValueKind discriminates the variants a Value can hold.
type ValueKind uint8

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
)

// Value is the tagged union a blackboard entry stores.
type Value struct {
	Kind ValueKind
	B    bool
	I    int64
	F    float64
	S    string
}

func Nil() Value             { return Value{Kind: ValueNil} }
func Bool(b bool) Value      { return Value{Kind: ValueBool, B: b} }
func Int(i int64) Value      { return Value{Kind: ValueInt, I: i} }
func Float(f float64) Value  { return Value{Kind: ValueFloat, F: f} }
func String(s string) Value  { return Value{Kind: ValueString, S: s} }

// Repr renders a value the way trace/log/dump output does.
func (v Value) Repr() string {
	switch v.Kind {
	case ValueNil:
		return "nil"
	case ValueBool:
		if v.B {
			return "#t"
		}
		return "#f"
	case ValueInt:
		return fmt.Sprintf("%d", v.I)
	case ValueFloat:
		return fmt.Sprintf("%g", v.F)
	case ValueString:
		return v.S
	default:
		return "nil"
	}
}

// TypeName returns the short type tag used in trace events and errors.
func (v Value) TypeName() string {
	switch v.Kind {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	default:
		return "nil"
	}
}

// Entry is one blackboard slot: a value plus provenance of its last write.
type Entry struct {
	Value          Value
	LastWriteTick  uint64
	LastWriteTS    time.Time
	LastWriterNode ast.NodeID
	LastWriterName string
}

// Blackboard is a per-instance keyed store, safe for concurrent use by
// callback goroutines observing an in-flight tick (e.g. async VLA
// continuations writing results back).
type Blackboard struct {
	mu  sync.RWMutex
	kv  map[string]Entry
}

// New constructs an empty Blackboard.
func New() *Blackboard {
	return &Blackboard{kv: make(map[string]Entry)}
}

// Has reports whether key has an entry.
func (b *Blackboard) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.kv[key]
	return ok
}

// Get returns the entry for key and whether it was present.
func (b *Blackboard) Get(key string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.kv[key]
	return e, ok
}

// Put writes value to key, recording the write's provenance.
func (b *Blackboard) Put(key string, value Value, tick uint64, ts time.Time, writerNode ast.NodeID, writerName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv[key] = Entry{
		Value:          value,
		LastWriteTick:  tick,
		LastWriteTS:    ts,
		LastWriterNode: writerNode,
		LastWriterName: writerName,
	}
}

// KeyEntry pairs a key with its entry, as returned by Snapshot.
type KeyEntry struct {
	Key   string
	Entry Entry
}

// Snapshot returns every key/entry pair currently stored. Order is
// unspecified, matching the unordered_map iteration order of the reference
// implementation this package ports.
func (b *Blackboard) Snapshot() []KeyEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]KeyEntry, 0, len(b.kv))
	for k, e := range b.kv {
		out = append(out, KeyEntry{Key: k, Entry: e})
	}
	return out
}

// Clear removes every entry.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv = make(map[string]Entry)
}
