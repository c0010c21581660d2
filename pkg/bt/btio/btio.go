// Package btio persists a compiled ast.Definition to and from a small
// bespoke binary format ("MBT1"), and exports a definition to Graphviz DOT
// for visualization. The binary layout is this module's own, not a general
// interchange format any ecosystem library already covers, so it is built
// on encoding/binary and os rather than a third-party serialization
// library.
package btio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
)

var magic = [4]byte{'M', 'B', 'T', '1'}

const (
	formatVersion        = 1
	endiannessLittle      = 1
	maxSerialisedItems    = 1_000_000
)

// Save writes def to path in the binary MBT1 format.
func Save(def *ast.Definition, path string) error {
	if len(def.Nodes) > maxSerialisedItems {
		return bterrors.New(bterrors.KindHost, "bt.save: too many nodes to serialise")
	}

	f, err := os.Create(path)
	if err != nil {
		return bterrors.NewWithCause(bterrors.KindHost, "bt.save: failed to open file: "+path, err)
	}
	defer f.Close()

	w := &writer{f: f}
	w.bytes(magic[:])
	w.u32(formatVersion)
	w.u8(endiannessLittle)
	w.u8(0)
	w.u8(0)
	w.u8(0)
	w.u32(uint32(len(def.Nodes)))
	w.u32(uint32(def.Root))

	for _, n := range def.Nodes {
		w.u8(uint8(n.Kind))
		w.u8(0)
		w.u8(0)
		w.u8(0)
		w.i64(n.IntParam)

		if len(n.Children) > maxSerialisedItems {
			return bterrors.New(bterrors.KindHost, "bt.save: node has too many children")
		}
		w.u32(uint32(len(n.Children)))
		for _, c := range n.Children {
			w.u32(uint32(c))
		}

		w.str(n.LeafName)

		if len(n.Args) > maxSerialisedItems {
			return bterrors.New(bterrors.KindHost, "bt.save: node has too many args")
		}
		w.u32(uint32(len(n.Args)))
		for _, arg := range n.Args {
			w.u8(uint8(arg.Kind))
			switch arg.Kind {
			case ast.ArgNil:
			case ast.ArgBool:
				w.bool(arg.Bool)
			case ast.ArgInt:
				w.i64(arg.Int)
			case ast.ArgFloat:
				w.f64(arg.Float)
			case ast.ArgSymbol, ast.ArgString:
				w.str(arg.Text)
			}
		}
	}
	return w.err
}

// Load reads a definition previously written by Save.
func Load(path string) (*ast.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bterrors.NewWithCause(bterrors.KindHost, "bt.load: failed to open file: "+path, err)
	}

	r := &reader{data: data}
	var gotMagic [4]byte
	r.bytes(gotMagic[:])
	if r.err == nil && gotMagic != magic {
		return nil, bterrors.New(bterrors.KindHost, "bt.load: invalid header (expected MBT1)")
	}

	version := r.u32()
	if r.err == nil && version != formatVersion {
		return nil, bterrors.Errorf(bterrors.KindHost, "bt.load: unsupported format version %d", version)
	}
	endianness := r.u8()
	if r.err == nil && endianness != endiannessLittle {
		return nil, bterrors.New(bterrors.KindHost, "bt.load: unsupported endianness marker")
	}
	r.u8()
	r.u8()
	r.u8()

	nodeCount := r.u32()
	if r.err == nil && nodeCount == 0 {
		return nil, bterrors.New(bterrors.KindHost, "bt.load: file has no nodes")
	}
	if r.err == nil && nodeCount > maxSerialisedItems {
		return nil, bterrors.New(bterrors.KindHost, "bt.load: node count is too large")
	}

	def := &ast.Definition{Root: ast.NodeID(r.u32())}
	if r.err != nil {
		return nil, bterrors.NewWithCause(bterrors.KindHost, "bt.load: unexpected end of file", r.err)
	}
	def.Nodes = make([]ast.Node, nodeCount)

	for i := uint32(0); i < nodeCount; i++ {
		n := ast.Node{ID: ast.NodeID(i)}

		rawKind := r.u8()
		if !isValidNodeKind(rawKind) {
			return nil, bterrors.New(bterrors.KindHost, "bt.load: invalid node kind")
		}
		n.Kind = ast.Kind(rawKind)
		r.u8()
		r.u8()
		r.u8()

		n.IntParam = r.i64()

		childCount := r.u32()
		if childCount > maxSerialisedItems {
			return nil, bterrors.New(bterrors.KindHost, "bt.load: child count is too large")
		}
		n.Children = make([]ast.NodeID, childCount)
		for c := uint32(0); c < childCount; c++ {
			n.Children[c] = ast.NodeID(r.u32())
		}

		n.LeafName = r.str()

		argCount := r.u32()
		if argCount > maxSerialisedItems {
			return nil, bterrors.New(bterrors.KindHost, "bt.load: arg count is too large")
		}
		n.Args = make([]ast.ArgValue, argCount)
		for a := uint32(0); a < argCount; a++ {
			rawArgKind := r.u8()
			if !isValidArgKind(rawArgKind) {
				return nil, bterrors.New(bterrors.KindHost, "bt.load: invalid arg kind")
			}
			arg := ast.ArgValue{Kind: ast.ArgKind(rawArgKind)}
			switch arg.Kind {
			case ast.ArgNil:
			case ast.ArgBool:
				arg.Bool = r.u8() != 0
			case ast.ArgInt:
				arg.Int = r.i64()
			case ast.ArgFloat:
				arg.Float = r.f64()
			case ast.ArgSymbol, ast.ArgString:
				arg.Text = r.str()
			}
			n.Args[a] = arg
		}

		if r.err != nil {
			return nil, bterrors.NewWithCause(bterrors.KindHost, "bt.load: unexpected end of file", r.err)
		}
		def.Nodes[i] = n
	}

	if err := def.Validate(); err != nil {
		return nil, bterrors.FromError(bterrors.KindHost, err)
	}
	return def, nil
}

func isValidNodeKind(raw uint8) bool { return ast.Kind(raw) <= ast.ReactiveSel }
func isValidArgKind(raw uint8) bool  { return ast.ArgKind(raw) <= ast.ArgString }

// ExportDOT renders def as a Graphviz DOT digraph, the root node in bold.
func ExportDOT(def *ast.Definition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", bterrors.FromError(bterrors.KindHost, err)
	}

	var b strings.Builder
	b.WriteString("digraph bt {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\"];\n")

	for _, n := range def.Nodes {
		fmt.Fprintf(&b, "  n%d [label=\"%s\"", n.ID, dotEscape(nodeLabel(n)))
		if n.ID == def.Root {
			b.WriteString(`, style="bold"`)
		}
		b.WriteString("];\n")
	}
	for _, n := range def.Nodes {
		for _, child := range n.Children {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", n.ID, child)
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func nodeLabel(n ast.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%d\n", n.ID)
	if n.LeafName != "" {
		fmt.Fprintf(&b, "%s\n", n.LeafName)
	}
	fmt.Fprintf(&b, "[%s", n.Kind)
	if n.Kind == ast.Repeat || n.Kind == ast.Retry {
		fmt.Fprintf(&b, " %d", n.IntParam)
	}
	b.WriteString("]")
	return b.String()
}

func dotEscape(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, c := range text {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// writer sequentially appends little-endian fields, latching the first
// error it sees so call sites don't need to check after every field.
type writer struct {
	f   *os.File
	err error
}

func (w *writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.f.Write(p)
}

func (w *writer) bytes(p []byte) { w.write(p) }
func (w *writer) u8(v uint8)     { w.write([]byte{v}) }
func (w *writer) bool(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}
func (w *writer) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.write(buf[:])
}
func (w *writer) u64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.write(buf[:])
}
func (w *writer) i64(v int64) { w.u64(uint64(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }
func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	if len(s) > 0 {
		w.write([]byte(s))
	}
}

// reader sequentially consumes little-endian fields from an in-memory
// buffer, latching the first error (typically an unexpected end of file).
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) read(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("unexpected end of file")
		return make([]byte, n)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) bytes(dst []byte) { copy(dst, r.read(len(dst))) }
func (r *reader) u8() uint8        { return r.read(1)[0] }
func (r *reader) u32() uint32      { return binary.LittleEndian.Uint32(r.read(4)) }
func (r *reader) u64() uint64      { return binary.LittleEndian.Uint64(r.read(8)) }
func (r *reader) i64() int64       { return int64(r.u64()) }
func (r *reader) f64() float64     { return math.Float64frombits(r.u64()) }
func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > maxSerialisedItems*16 {
		r.err = fmt.Errorf("string length is too large")
		return ""
	}
	return string(r.read(int(n)))
}
