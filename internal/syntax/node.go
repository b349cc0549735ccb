// Package syntax defines the syntax-tree shape the grammar layer hands to the
// catalog's definition translator.
//
// Definition trees have this layout:
//
//	global_def | local_def  -> [definition]
//	node_def                -> [name, col_defs]
//	edge_def                -> [name(src), name(edge), name(dst), col_defs?]
//	associate_def           -> [name, name(src), col_defs]
//	type_def                -> [name, typing]
//	index_def               -> (not supported)
//	col_defs                -> [col_def...]
//	col_def                 -> [key_marker?, name, typing]
//
// name and typing nodes carry their text in Text.
package syntax

import (
	"encoding/json"
	"fmt"
)

// Rule tags a syntax node.
type Rule int

const (
	RuleUnknown Rule = iota
	RuleGlobalDef
	RuleLocalDef
	RuleNodeDef
	RuleEdgeDef
	RuleAssocDef
	RuleTypeDef
	RuleIndexDef
	RuleName
	RuleKeyMarker
	RuleColDefs
	RuleColDef
	RuleTyping
)

var ruleNames = [...]string{
	RuleUnknown:   "unknown",
	RuleGlobalDef: "global_def",
	RuleLocalDef:  "local_def",
	RuleNodeDef:   "node_def",
	RuleEdgeDef:   "edge_def",
	RuleAssocDef:  "associate_def",
	RuleTypeDef:   "type_def",
	RuleIndexDef:  "index_def",
	RuleName:      "name",
	RuleKeyMarker: "key_marker",
	RuleColDefs:   "col_defs",
	RuleColDef:    "col_def",
	RuleTyping:    "typing",
}

func (r Rule) String() string {
	if r >= 0 && int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rule) UnmarshalText(b []byte) error {
	for i, name := range ruleNames {
		if name == string(b) && Rule(i) != RuleUnknown {
			*r = Rule(i)
			return nil
		}
	}
	return fmt.Errorf("unknown syntax rule %q", string(b))
}

// Node is one syntax-tree node.
type Node struct {
	Rule     Rule    `json:"rule"`
	Text     string  `json:"text,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Child returns child i, or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Decode reads a tree from its JSON form.
func Decode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode syntax tree: %w", err)
	}
	return &n, nil
}

// Name builds a name leaf.
func Name(s string) *Node { return &Node{Rule: RuleName, Text: s} }

// Typing builds a typing leaf.
func Typing(s string) *Node { return &Node{Rule: RuleTyping, Text: s} }

// Col builds a column definition.
func Col(name, typing string, key bool) *Node {
	n := &Node{Rule: RuleColDef}
	if key {
		n.Children = append(n.Children, &Node{Rule: RuleKeyMarker})
	}
	n.Children = append(n.Children, Name(name), Typing(typing))
	return n
}

// Cols groups column definitions.
func Cols(cols ...*Node) *Node {
	return &Node{Rule: RuleColDefs, Children: cols}
}

// Global wraps a definition for the root scope.
func Global(def *Node) *Node { return &Node{Rule: RuleGlobalDef, Children: []*Node{def}} }

// Local wraps a definition for the current scope.
func Local(def *Node) *Node { return &Node{Rule: RuleLocalDef, Children: []*Node{def}} }

// NodeDef builds a node table definition.
func NodeDef(name string, cols ...*Node) *Node {
	return &Node{Rule: RuleNodeDef, Children: []*Node{Name(name), Cols(cols...)}}
}

// EdgeDef builds an edge definition from src to dst.
func EdgeDef(src, name, dst string, cols ...*Node) *Node {
	n := &Node{Rule: RuleEdgeDef, Children: []*Node{Name(src), Name(name), Name(dst)}}
	if len(cols) > 0 {
		n.Children = append(n.Children, Cols(cols...))
	}
	return n
}

// AssocDef builds an association on src.
func AssocDef(name, src string, cols ...*Node) *Node {
	return &Node{Rule: RuleAssocDef, Children: []*Node{Name(name), Name(src), Cols(cols...)}}
}

// TypeDef builds a named type alias.
func TypeDef(name, typing string) *Node {
	return &Node{Rule: RuleTypeDef, Children: []*Node{Name(name), Typing(typing)}}
}
