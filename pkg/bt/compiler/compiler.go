// Package compiler turns a script.Value cons-list form into a flat
// ast.Definition the interpreter can tick. It accepts the base grammar
// (seq/sel/invert/repeat/retry/cond/act/succeed/fail/running) plus the four
// leaf forms the interpreter dispatches for real (plan-action, vla-request,
// vla-wait, vla-cancel) — each of those takes a leaf name followed by
// literal/symbol arguments the same way cond/act does.
package compiler

import (
	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/script"
)

type compilerState struct {
	nodes []ast.Node
}

// Compile parses form into an ast.Definition rooted at the compiled form.
func Compile(form script.Value) (*ast.Definition, error) {
	state := &compilerState{}
	root, err := state.compileNode(form)
	if err != nil {
		return nil, err
	}
	def := &ast.Definition{Nodes: state.nodes, Root: root}
	if err := def.Validate(); err != nil {
		return nil, bterrors.FromError(bterrors.KindCompile, err)
	}
	return def, nil
}

func compileErr(format string, args ...any) error {
	return bterrors.Errorf(bterrors.KindCompile, format, args...)
}

func (c *compilerState) compileNode(expr script.Value) (ast.NodeID, error) {
	if !expr.IsCons() {
		return 0, compileErr("BT form must be a list")
	}
	items, err := script.Items(expr)
	if err != nil {
		return 0, compileErr("malformed BT form: %v", err)
	}
	if len(items) == 0 {
		return 0, compileErr("BT form list cannot be empty")
	}
	if !items[0].IsSymbol() {
		return 0, compileErr("BT form head must be a symbol")
	}
	formName := items[0].SymbolName()

	switch formName {
	case "seq", "sel":
		return c.compileComposite(formName, items)
	case "invert":
		return c.compileInvert(formName, items)
	case "repeat", "retry":
		return c.compileLoop(formName, items)
	case "cond", "act":
		return c.compileLeaf(formName, items, 0)
	case "plan-action":
		return c.compileLeaf(formName, items, 0)
	case "vla-request":
		return c.compileLeaf(formName, items, 0)
	case "vla-wait", "vla-cancel":
		return c.compileLeaf(formName, items, 0)
	case "succeed":
		return c.compileNullary(formName, items, ast.Succeed)
	case "fail":
		return c.compileNullary(formName, items, ast.Fail)
	case "running":
		return c.compileNullary(formName, items, ast.Running)
	default:
		return 0, compileErr("unknown BT form: %s", formName)
	}
}

func (c *compilerState) compileComposite(formName string, items []script.Value) (ast.NodeID, error) {
	if len(items) < 2 {
		return 0, compileErr("%s: expects at least one child", formName)
	}
	n := ast.Node{Kind: ast.Seq}
	if formName == "sel" {
		n.Kind = ast.Sel
	}
	for _, child := range items[1:] {
		id, err := c.compileNode(child)
		if err != nil {
			return 0, err
		}
		n.Children = append(n.Children, id)
	}
	return c.emit(n), nil
}

func (c *compilerState) compileInvert(formName string, items []script.Value) (ast.NodeID, error) {
	if err := requireArity(formName, items, 2); err != nil {
		return 0, err
	}
	child, err := c.compileNode(items[1])
	if err != nil {
		return 0, err
	}
	return c.emit(ast.Node{Kind: ast.Invert, Children: []ast.NodeID{child}}), nil
}

func (c *compilerState) compileLoop(formName string, items []script.Value) (ast.NodeID, error) {
	if err := requireArity(formName, items, 3); err != nil {
		return 0, err
	}
	if !items[1].IsInt() {
		return 0, compileErr("%s: repeat/retry count must be integer", formName)
	}
	count := items[1].IntValue()
	if count < 0 {
		return 0, compileErr("%s: count must be non-negative", formName)
	}
	child, err := c.compileNode(items[2])
	if err != nil {
		return 0, err
	}
	kind := ast.Repeat
	if formName == "retry" {
		kind = ast.Retry
	}
	return c.emit(ast.Node{Kind: kind, IntParam: count, Children: []ast.NodeID{child}}), nil
}

// compileLeaf handles cond/act and the four supplemental leaves, all of
// which share the shape (form-name leaf-name arg...).
func (c *compilerState) compileLeaf(formName string, items []script.Value, _ int) (ast.NodeID, error) {
	if len(items) < 2 {
		return 0, compileErr("%s: expects at least a leaf name", formName)
	}
	if !items[1].IsSymbol() && !items[1].IsString() {
		return 0, compileErr("%s: leaf name must be symbol or string", formName)
	}
	leafName := items[1].SymbolName()
	if items[1].IsString() {
		leafName = items[1].StringValue()
	}

	n := ast.Node{Kind: leafKind(formName), LeafName: leafName}
	for _, raw := range items[2:] {
		arg, err := compileArg(raw)
		if err != nil {
			return 0, err
		}
		n.Args = append(n.Args, arg)
	}
	return c.emit(n), nil
}

func leafKind(formName string) ast.Kind {
	switch formName {
	case "cond":
		return ast.Cond
	case "act":
		return ast.Act
	case "plan-action":
		return ast.PlanAction
	case "vla-request":
		return ast.VLARequest
	case "vla-wait":
		return ast.VLAWait
	case "vla-cancel":
		return ast.VLACancel
	default:
		return ast.Fail
	}
}

func (c *compilerState) compileNullary(formName string, items []script.Value, kind ast.Kind) (ast.NodeID, error) {
	if err := requireArity(formName, items, 1); err != nil {
		return 0, err
	}
	return c.emit(ast.Node{Kind: kind}), nil
}

func requireArity(formName string, items []script.Value, expected int) error {
	if len(items) != expected {
		return compileErr("%s: expected %d arguments, got %d", formName, expected-1, len(items)-1)
	}
	return nil
}

func compileArg(raw script.Value) (ast.ArgValue, error) {
	switch raw.Kind() {
	case script.KindNil:
		return ast.NilArg(), nil
	case script.KindBool:
		return ast.BoolArg(raw.BoolValue()), nil
	case script.KindInt:
		return ast.IntArg(raw.IntValue()), nil
	case script.KindFloat:
		return ast.FloatArg(raw.FloatValue()), nil
	case script.KindSymbol:
		return ast.SymbolArg(raw.SymbolName()), nil
	case script.KindString:
		return ast.StringArg(raw.StringValue()), nil
	default:
		return ast.ArgValue{}, compileErr("leaf args must be literals or symbols")
	}
}

func (c *compilerState) emit(n ast.Node) ast.NodeID {
	n.ID = ast.NodeID(len(c.nodes))
	c.nodes = append(c.nodes, n)
	return n.ID
}
