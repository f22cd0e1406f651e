// Package revset implements the revset query language over
// the change graph with set algebra, ranges, and named predicates. The
// parser produces an AST; the evaluator walks a pure, in-memory snapshot
// of the graph plus bookmark/tag/conflict state so that evaluating the
// same expression twice without mutation yields the same ordered list.
package revset

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jjcore/jjcore/internal/idgen"
)

// ParseError reports a lexical or syntactic problem at a byte offset.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("revset: parse error at %d: %s", e.Position, e.Message)
}

// UnknownFunctionError reports a call to a function not in the required set.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("revset: unknown function %q", e.Name)
}

// ArityError reports a function called with the wrong number of arguments.
type ArityError struct {
	Name     string
	Expected string
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("revset: %s expects %s arguments, got %d", e.Name, e.Expected, e.Got)
}

// ---- lexer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokAt
	tokLParen
	tokRParen
	tokComma
	tokAmp
	tokPipe
	tokTilde
	tokDotDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func isIdentByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == '/':
		return true
	}
	return false
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n') {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}
	b := l.src[l.pos]
	switch b {
	case '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, pos: start}, nil
	case '&':
		l.pos++
		return token{kind: tokAmp, pos: start}, nil
	case '|':
		l.pos++
		return token{kind: tokPipe, pos: start}, nil
	case '~':
		l.pos++
		return token{kind: tokTilde, pos: start}, nil
	case '@':
		l.pos++
		return token{kind: tokAt, pos: start}, nil
	case '.':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '.' {
			l.pos += 2
			return token{kind: tokDotDot, pos: start}, nil
		}
		return token{}, &ParseError{Position: start, Message: "unexpected '.'"}
	case '"', '\'':
		quote := b
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			sb.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, &ParseError{Position: start, Message: "unterminated string literal"}
		}
		l.pos++ // consume closing quote
		return token{kind: tokString, text: sb.String(), pos: start}, nil
	default:
		if isIdentByte(b) {
			for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
				l.pos++
			}
			return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
		}
		return token{}, &ParseError{Position: start, Message: fmt.Sprintf("unexpected character %q", string(b))}
	}
}

// ---- AST ----

// NodeKind discriminates the Expr variants.
type NodeKind int

const (
	NodeUnion NodeKind = iota
	NodeIntersect
	NodeDiff
	NodeRange
	NodeAt
	NodeHex
	NodeCall
)

// Expr is a parsed revset AST node.
type Expr struct {
	Kind     NodeKind
	Left     *Expr
	Right    *Expr
	Hex      string
	FuncName string
	Args     []Arg
}

// Arg is a function argument: either a nested revset Expr or a string
// literal pattern.
type Arg struct {
	Expr    *Expr
	Pattern string
	IsExpr  bool
}

// Parse compiles a revset expression string into an AST.
func Parse(src string) (*Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, &ParseError{Position: p.cur.pos, Message: fmt.Sprintf("unexpected trailing input %q", p.cur.text)}
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// parseRange handles the lowest-precedence binary forms: union/difference,
// left-associative, then an optional ".." range applied to the whole
// union/difference result on each side.
func (p *parser) parseRange() (*Expr, error) {
	left, err := p.parseUnionDiff()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokDotDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnionDiff()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: NodeRange, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnionDiff() (*Expr, error) {
	left, err := p.parseIntersect()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPipe || p.cur.kind == tokTilde {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseIntersect()
		if err != nil {
			return nil, err
		}
		if op == tokPipe {
			left = &Expr{Kind: NodeUnion, Left: left, Right: right}
		} else {
			left = &Expr{Kind: NodeDiff, Left: left, Right: right}
		}
	}
	return left, nil
}

func (p *parser) parseIntersect() (*Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAmp {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: NodeIntersect, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (*Expr, error) {
	switch p.cur.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, &ParseError{Position: p.cur.pos, Message: "expected ')'"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokAt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: NodeAt}, nil
	case tokIdent:
		name := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLParen {
			return p.parseCall(name)
		}
		// Bare identifier: only valid if it looks like a ChangeId hex literal.
		if idgen.IsValidChangeID(strings.ToLower(name)) && isLowerHexString(name) {
			return &Expr{Kind: NodeHex, Hex: strings.ToLower(name)}, nil
		}
		return nil, &ParseError{Position: pos, Message: fmt.Sprintf("unknown identifier %q (expected a function call or a hex change id)", name)}
	default:
		return nil, &ParseError{Position: p.cur.pos, Message: "expected an expression"}
	}
}

func isLowerHexString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return len(s) > 0
}

func (p *parser) parseCall(name string) (*Expr, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Arg
	if p.cur.kind != tokRParen {
		for {
			arg, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if p.cur.kind != tokRParen {
		return nil, &ParseError{Position: p.cur.pos, Message: "expected ')' to close argument list"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &Expr{Kind: NodeCall, FuncName: name, Args: args}, nil
}

func (p *parser) parseArg() (Arg, error) {
	if p.cur.kind == tokString {
		pattern := p.cur.text
		if err := p.advance(); err != nil {
			return Arg{}, err
		}
		return Arg{Pattern: pattern}, nil
	}
	expr, err := p.parseRange()
	if err != nil {
		return Arg{}, err
	}
	return Arg{Expr: expr, IsExpr: true}, nil
}

// ---- evaluation ----

// Change is the minimal view of a graph node the evaluator needs. The
// repository core adapts types.Change into this shape so the evaluator
// has no dependency on the changegraph package.
type Change struct {
	ChangeID     string
	Parents      []string
	Tree         string
	Author       string
	Committer    string
	Description  string
	Timestamp   int64 // unix nanos, for newest-first ordering
	Abandoned   bool
}

// Accelerator answers the scan-heavy predicates from a secondary index.
// Each method returns ok=false when the index cannot answer (stale,
// absent, unsupported pattern); the evaluator then falls back to its
// linear scan, so an accelerator affects performance, never results.
type Accelerator interface {
	Author(pattern string) ([]string, bool)
	Committer(pattern string) ([]string, bool)
	Description(pattern string) ([]string, bool)
	Paths(glob string) ([]string, bool)
	Conflicted() ([]string, bool)
}

// Context is the pure snapshot of repository state a revset evaluates
// against: every Change, local bookmarks, tags, the current working-copy
// ChangeId, the current user (for mine()), and the set of ChangeIds with
// unresolved conflicts.
type Context struct {
	Changes         map[string]*Change
	Bookmarks       map[string]string
	Tags            map[string]string
	GitRefs         map[string]string // mirrored git refs, name -> ChangeId
	GitHead         string            // ChangeId HEAD currently resolves to, "" if none
	WorkingCopy     string
	CurrentUserName string
	EmptyTree       string
	Conflicted      map[string]bool     // ChangeId -> has an unresolved conflict
	TouchedPaths    map[string][]string // ChangeId -> paths it touches, best-effort
	Accel           Accelerator         // optional index; nil means always scan
}

func (c *Context) childIndex() map[string][]string {
	idx := make(map[string][]string)
	for id, ch := range c.Changes {
		for _, p := range ch.Parents {
			idx[p] = append(idx[p], id)
		}
	}
	return idx
}

// set is an ordered-agnostic collection used internally; final output
// ordering (newest-first by timestamp) is applied once at the top level.
type set map[string]bool

func newSet(ids ...string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func union(a, b set) set {
	out := make(set, len(a)+len(b))
	for id := range a {
		out[id] = true
	}
	for id := range b {
		out[id] = true
	}
	return out
}

func intersect(a, b set) set {
	out := make(set)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

func diff(a, b set) set {
	out := make(set)
	for id := range a {
		if !b[id] {
			out[id] = true
		}
	}
	return out
}

// Evaluate runs expr against ctx and returns the matching ChangeIds
// ordered newest-first by timestamp (ties broken by ChangeId for
// determinism).
func Evaluate(ctx *Context, expr *Expr) ([]string, error) {
	s, err := evalNode(ctx, expr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := ctx.Changes[out[i]], ctx.Changes[out[j]]
		if ci == nil || cj == nil {
			return out[i] < out[j]
		}
		if ci.Timestamp != cj.Timestamp {
			return ci.Timestamp > cj.Timestamp
		}
		return out[i] < out[j]
	})
	return out, nil
}

func evalNode(ctx *Context, e *Expr) (set, error) {
	switch e.Kind {
	case NodeUnion:
		l, err := evalNode(ctx, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(ctx, e.Right)
		if err != nil {
			return nil, err
		}
		return union(l, r), nil
	case NodeIntersect:
		l, err := evalNode(ctx, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(ctx, e.Right)
		if err != nil {
			return nil, err
		}
		return intersect(l, r), nil
	case NodeDiff:
		l, err := evalNode(ctx, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(ctx, e.Right)
		if err != nil {
			return nil, err
		}
		return diff(l, r), nil
	case NodeRange:
		// A..B == descendants(A) ∩ ancestors(B) \ {A}
		l, err := evalNode(ctx, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(ctx, e.Right)
		if err != nil {
			return nil, err
		}
		result := make(set)
		childIdx := ctx.childIndex()
		for a := range l {
			desc := descendantsOf(ctx, childIdx, a)
			for b := range r {
				anc := ancestorsOf(ctx, b)
				anc[b] = true
				for id := range desc {
					if anc[id] && id != a {
						result[id] = true
					}
				}
			}
		}
		return result, nil
	case NodeAt:
		if ctx.WorkingCopy == "" {
			return newSet(), nil
		}
		return newSet(ctx.WorkingCopy), nil
	case NodeHex:
		if _, ok := ctx.Changes[e.Hex]; !ok {
			return newSet(), nil
		}
		return newSet(e.Hex), nil
	case NodeCall:
		return evalCall(ctx, e)
	default:
		return nil, fmt.Errorf("revset: unhandled node kind %d", e.Kind)
	}
}

func ancestorsOf(ctx *Context, id string) set {
	seen := make(set)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ch, ok := ctx.Changes[cur]
		if !ok {
			continue
		}
		for _, p := range ch.Parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return seen
}

func descendantsOf(ctx *Context, childIdx map[string][]string, id string) set {
	seen := set{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childIdx[cur] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return seen
}

func evalExprArg(ctx *Context, a Arg) (set, error) {
	if !a.IsExpr {
		return nil, fmt.Errorf("revset: expected a revset argument, got a string literal")
	}
	return evalNode(ctx, a.Expr)
}

func evalPatternArg(a Arg) (string, error) {
	if a.IsExpr {
		return "", fmt.Errorf("revset: expected a string literal argument, got a revset expression")
	}
	return a.Pattern, nil
}

func evalCall(ctx *Context, e *Expr) (set, error) {
	name := e.FuncName
	args := e.Args
	arity := func(n int) error {
		if len(args) != n {
			return &ArityError{Name: name, Expected: fmt.Sprintf("%d", n), Got: len(args)}
		}
		return nil
	}

	switch name {
	case "all":
		if err := arity(0); err != nil {
			return nil, err
		}
		out := make(set, len(ctx.Changes))
		for id, ch := range ctx.Changes {
			if !ch.Abandoned {
				out[id] = true
			}
		}
		return out, nil
	case "none":
		if err := arity(0); err != nil {
			return nil, err
		}
		return newSet(), nil
	case "root":
		if err := arity(0); err != nil {
			return nil, err
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if len(ch.Parents) == 0 {
				out[id] = true
			}
		}
		return out, nil
	case "visible_heads":
		if err := arity(0); err != nil {
			return nil, err
		}
		return visibleHeads(ctx), nil
	case "parents":
		if err := arity(1); err != nil {
			return nil, err
		}
		src, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		out := make(set)
		for id := range src {
			if ch, ok := ctx.Changes[id]; ok {
				for _, p := range ch.Parents {
					out[p] = true
				}
			}
		}
		return out, nil
	case "children":
		if err := arity(1); err != nil {
			return nil, err
		}
		src, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		childIdx := ctx.childIndex()
		out := make(set)
		for id := range src {
			for _, c := range childIdx[id] {
				out[c] = true
			}
		}
		return out, nil
	case "ancestors":
		if err := arity(1); err != nil {
			return nil, err
		}
		src, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		out := make(set)
		for id := range src {
			out[id] = true
			for a := range ancestorsOf(ctx, id) {
				out[a] = true
			}
		}
		return out, nil
	case "descendants":
		if err := arity(1); err != nil {
			return nil, err
		}
		src, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		childIdx := ctx.childIndex()
		out := make(set)
		for id := range src {
			for d := range descendantsOf(ctx, childIdx, id) {
				out[d] = true
			}
		}
		return out, nil
	case "reachable":
		if err := arity(1); err != nil {
			return nil, err
		}
		heads, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		childIdx := ctx.childIndex()
		out := make(set)
		for id := range heads {
			out[id] = true
			for a := range ancestorsOf(ctx, id) {
				out[a] = true
			}
			for d := range descendantsOf(ctx, childIdx, id) {
				out[d] = true
			}
		}
		return out, nil
	case "connected":
		if err := arity(2); err != nil {
			return nil, err
		}
		a, err := evalExprArg(ctx, args[0])
		if err != nil {
			return nil, err
		}
		b, err := evalExprArg(ctx, args[1])
		if err != nil {
			return nil, err
		}
		childIdx := ctx.childIndex()
		out := make(set)
		for x := range a {
			for y := range b {
				anc := ancestorsOf(ctx, y)
				anc[y] = true
				desc := descendantsOf(ctx, childIdx, x)
				for id := range desc {
					if anc[id] {
						out[id] = true
					}
				}
				ancX := ancestorsOf(ctx, x)
				ancX[x] = true
				descY := descendantsOf(ctx, childIdx, y)
				for id := range descY {
					if ancX[id] {
						out[id] = true
					}
				}
			}
		}
		return out, nil
	case "bookmark":
		if err := arity(1); err != nil {
			return nil, err
		}
		pattern, err := evalPatternArg(args[0])
		if err != nil {
			return nil, err
		}
		out := make(set)
		for bname, id := range ctx.Bookmarks {
			if matchPattern(pattern, bname) {
				out[id] = true
			}
		}
		return out, nil
	case "tags":
		if len(args) > 1 {
			return nil, &ArityError{Name: name, Expected: "0 or 1", Got: len(args)}
		}
		pattern := ""
		if len(args) == 1 {
			p, err := evalPatternArg(args[0])
			if err != nil {
				return nil, err
			}
			pattern = p
		}
		out := make(set)
		for tname, id := range ctx.Tags {
			if pattern == "" || matchPattern(pattern, tname) {
				out[id] = true
			}
		}
		return out, nil
	case "git_refs":
		if err := arity(0); err != nil {
			return nil, err
		}
		out := make(set)
		for _, id := range ctx.GitRefs {
			out[id] = true
		}
		return out, nil
	case "git_head":
		if err := arity(0); err != nil {
			return nil, err
		}
		if ctx.GitHead == "" {
			return newSet(), nil
		}
		return newSet(ctx.GitHead), nil
	case "author":
		if err := arity(1); err != nil {
			return nil, err
		}
		pattern, err := evalPatternArg(args[0])
		if err != nil {
			return nil, err
		}
		if ctx.Accel != nil {
			if ids, ok := ctx.Accel.Author(pattern); ok {
				return newSet(ids...), nil
			}
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if strings.Contains(ch.Author, pattern) {
				out[id] = true
			}
		}
		return out, nil
	case "committer":
		if err := arity(1); err != nil {
			return nil, err
		}
		pattern, err := evalPatternArg(args[0])
		if err != nil {
			return nil, err
		}
		if ctx.Accel != nil {
			if ids, ok := ctx.Accel.Committer(pattern); ok {
				return newSet(ids...), nil
			}
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if strings.Contains(ch.Committer, pattern) {
				out[id] = true
			}
		}
		return out, nil
	case "description":
		if err := arity(1); err != nil {
			return nil, err
		}
		pattern, err := evalPatternArg(args[0])
		if err != nil {
			return nil, err
		}
		if ctx.Accel != nil {
			if ids, ok := ctx.Accel.Description(pattern); ok {
				return newSet(ids...), nil
			}
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if strings.Contains(ch.Description, pattern) {
				out[id] = true
			}
		}
		return out, nil
	case "mine":
		if err := arity(0); err != nil {
			return nil, err
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if ctx.CurrentUserName != "" && strings.Contains(ch.Author, ctx.CurrentUserName) {
				out[id] = true
			}
		}
		return out, nil
	case "empty":
		if err := arity(0); err != nil {
			return nil, err
		}
		out := make(set)
		for id, ch := range ctx.Changes {
			if ch.Tree == ctx.EmptyTree || ch.Tree == "" {
				out[id] = true
			}
		}
		return out, nil
	case "paths":
		if err := arity(1); err != nil {
			return nil, err
		}
		glob, err := evalPatternArg(args[0])
		if err != nil {
			return nil, err
		}
		if ctx.Accel != nil {
			if ids, ok := ctx.Accel.Paths(glob); ok {
				return newSet(ids...), nil
			}
		}
		out := make(set)
		for id, paths := range ctx.TouchedPaths {
			for _, p := range paths {
				if ok, _ := pathMatch(glob, p); ok {
					out[id] = true
					break
				}
			}
		}
		return out, nil
	case "conflicted":
		if err := arity(0); err != nil {
			return nil, err
		}
		if ctx.Accel != nil {
			if ids, ok := ctx.Accel.Conflicted(); ok {
				return newSet(ids...), nil
			}
		}
		out := make(set, len(ctx.Conflicted))
		for id := range ctx.Conflicted {
			out[id] = true
		}
		return out, nil
	default:
		return nil, &UnknownFunctionError{Name: name}
	}
}

// visibleHeads returns every Change that is not abandoned and has no
// non-abandoned child.
func visibleHeads(ctx *Context) set {
	childIdx := ctx.childIndex()
	out := make(set)
	for id, ch := range ctx.Changes {
		if ch.Abandoned {
			continue
		}
		hasVisibleChild := false
		for _, c := range childIdx[id] {
			if cc, ok := ctx.Changes[c]; ok && !cc.Abandoned {
				hasVisibleChild = true
				break
			}
		}
		if !hasVisibleChild {
			out[id] = true
		}
	}
	return out
}

func matchPattern(pattern, s string) bool {
	return strings.Contains(s, pattern)
}

func pathMatch(pattern, p string) (bool, error) {
	return path.Match(pattern, p)
}
