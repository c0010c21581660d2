// Package ast defines the flat, arena-indexed behavior-tree representation
// the compiler produces and the interpreter walks. Nodes are addressed by a
// stable integer NodeID equal to their index in Definition.Nodes, so
// compiled definitions are relocatable: they hold no pointers, only indices,
// so subtrees can be shared or reused across instances without cloning.
package ast

import "fmt"

// NodeID is a stable index into a Definition's node array.
type NodeID uint32

// Kind enumerates every node kind the compiler can emit, including the
// extended kinds declared but not tick-dispatched to base semantics (see
// SupportedKinds).
type Kind uint8

const (
	Seq Kind = iota
	Sel
	Invert
	Repeat
	Retry
	Cond
	Act
	Succeed
	Fail
	Running
	PlanAction
	VLARequest
	VLAWait
	VLACancel
	MemSeq
	MemSel
	AsyncSeq
	ReactiveSeq
	ReactiveSel
)

var kindNames = map[Kind]string{
	Seq:         "seq",
	Sel:         "sel",
	Invert:      "invert",
	Repeat:      "repeat",
	Retry:       "retry",
	Cond:        "cond",
	Act:         "act",
	Succeed:     "succeed",
	Fail:        "fail",
	Running:     "running",
	PlanAction:  "plan-action",
	VLARequest:  "vla-request",
	VLAWait:     "vla-wait",
	VLACancel:   "vla-cancel",
	MemSeq:      "mem-seq",
	MemSel:      "mem-sel",
	AsyncSeq:    "async-seq",
	ReactiveSeq: "reactive-seq",
	ReactiveSel: "reactive-sel",
}

// String renders the node kind the way trace/log/DOT output names it.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// SupportedKinds is the set of kinds the interpreter actually tick-dispatches.
// The remaining declared kinds (MemSeq, MemSel, AsyncSeq, ReactiveSeq,
// ReactiveSel) have no form in the compiler's grammar, so compiling one fails
// with an unknown-form compile error; a Definition built directly with one of
// them is rejected by Definition.Validate rather than silently downgraded to
// base seq/sel semantics.
var SupportedKinds = map[Kind]bool{
	Seq: true, Sel: true, Invert: true, Repeat: true, Retry: true,
	Cond: true, Act: true, Succeed: true, Fail: true, Running: true,
	PlanAction: true, VLARequest: true, VLAWait: true, VLACancel: true,
}

// ArgKind discriminates the six literal kinds a compiled leaf argument may
// carry.
type ArgKind uint8

const (
	ArgNil ArgKind = iota
	ArgBool
	ArgInt
	ArgFloat
	ArgSymbol
	ArgString
)

// ArgValue is a compiled leaf argument literal. Extending this union with a
// new literal kind requires bumping the binary format version (see
// pkg/bt/btio) and extending the compiler's argument-parsing rules.
type ArgValue struct {
	Kind   ArgKind
	Bool   bool
	Int    int64
	Float  float64
	Text   string // symbol name or string payload
}

func NilArg() ArgValue           { return ArgValue{Kind: ArgNil} }
func BoolArg(b bool) ArgValue    { return ArgValue{Kind: ArgBool, Bool: b} }
func IntArg(i int64) ArgValue    { return ArgValue{Kind: ArgInt, Int: i} }
func FloatArg(f float64) ArgValue { return ArgValue{Kind: ArgFloat, Float: f} }
func SymbolArg(s string) ArgValue { return ArgValue{Kind: ArgSymbol, Text: s} }
func StringArg(s string) ArgValue { return ArgValue{Kind: ArgString, Text: s} }

// Node is one flat behavior-tree node, addressed by NodeID == its index in
// Definition.Nodes.
type Node struct {
	ID       NodeID
	Kind     Kind
	Children []NodeID

	LeafName string // required for Cond/Act
	Args     []ArgValue

	IntParam int64 // repeat/retry loop bound
}

// Definition is a compiled, flat behavior tree: an ordered array of nodes
// indexed by ID, plus the root ID.
type Definition struct {
	Nodes []Node
	Root  NodeID
}

// Node returns the node with the given id, or an error if out of range.
func (d *Definition) Node(id NodeID) (*Node, error) {
	if int(id) >= len(d.Nodes) {
		return nil, fmt.Errorf("ast: node id %d out of range (have %d nodes)", id, len(d.Nodes))
	}
	return &d.Nodes[id], nil
}

// Validate checks structural invariants: composite nodes have at least one
// child, decorators have exactly one, cond/act have non-empty names and no
// children, succeed/fail/running have no children, all child ids are in
// range, and repeat/retry counts are non-negative.
func (d *Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return fmt.Errorf("ast: definition has no nodes")
	}
	if int(d.Root) >= len(d.Nodes) {
		return fmt.Errorf("ast: root node id %d out of range", d.Root)
	}

	for i := range d.Nodes {
		n := &d.Nodes[i]
		if int(n.ID) != i {
			return fmt.Errorf("ast: node id mismatch at index %d (id=%d)", i, n.ID)
		}
		for _, child := range n.Children {
			if int(child) >= len(d.Nodes) {
				return fmt.Errorf("ast: node %d: child id %d out of range", n.ID, child)
			}
		}

		if !SupportedKinds[n.Kind] {
			return fmt.Errorf("ast: node %d: unsupported node kind %s", n.ID, n.Kind)
		}

		switch n.Kind {
		case Seq, Sel, MemSeq, MemSel, AsyncSeq, ReactiveSeq, ReactiveSel:
			if len(n.Children) == 0 {
				return fmt.Errorf("ast: node %d (%s): composite nodes require at least one child", n.ID, n.Kind)
			}
		case Invert, Repeat, Retry:
			if len(n.Children) != 1 {
				return fmt.Errorf("ast: node %d (%s): decorator nodes require exactly one child", n.ID, n.Kind)
			}
			if (n.Kind == Repeat || n.Kind == Retry) && n.IntParam < 0 {
				return fmt.Errorf("ast: node %d (%s): count must be non-negative", n.ID, n.Kind)
			}
		case Cond, Act:
			if n.LeafName == "" {
				return fmt.Errorf("ast: node %d (%s): requires a leaf name", n.ID, n.Kind)
			}
			if len(n.Children) != 0 {
				return fmt.Errorf("ast: node %d (%s): leaf nodes cannot have children", n.ID, n.Kind)
			}
		case Succeed, Fail, Running, PlanAction, VLARequest, VLAWait, VLACancel:
			if len(n.Children) != 0 {
				return fmt.Errorf("ast: node %d (%s): cannot have children", n.ID, n.Kind)
			}
		}
	}
	return nil
}
