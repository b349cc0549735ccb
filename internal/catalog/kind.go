package catalog

import (
	"fmt"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/tuple"
)

// DataKind tags a definition payload. It is stored as the payload tuple's
// prefix discriminator.
type DataKind uint32

const (
	KindData DataKind = iota
	KindNode
	KindEdge
	KindAssoc
	KindIndex
	KindValue
	KindType
)

var dataKindNames = [...]string{
	KindData:  "Data",
	KindNode:  "Node",
	KindEdge:  "Edge",
	KindAssoc: "Assoc",
	KindIndex: "Index",
	KindValue: "Value",
	KindType:  "Type",
}

func (k DataKind) String() string {
	if int(k) < len(dataKindNames) {
		return dataKindNames[k]
	}
	return fmt.Sprintf("DataKind(%d)", uint32(k))
}

// IsTable reports whether definitions of this kind own a row partition.
func (k DataKind) IsTable() bool {
	switch k {
	case KindNode, KindEdge, KindAssoc, KindIndex:
		return true
	}
	return false
}

// DataKindOf reads the kind of a stored payload.
func DataKindOf(payload tuple.View) (DataKind, error) {
	if len(payload.Bytes()) < tuple.PrefixLen {
		return 0, errors.CorruptedData("payload shorter than its prefix", nil)
	}
	k := DataKind(payload.Prefix())
	if int(k) >= len(dataKindNames) {
		return 0, errors.CorruptedData(fmt.Sprintf("unknown data kind %d", uint32(k)), nil)
	}
	return k, nil
}

// NewPayload starts a payload tuple of the given kind.
func NewPayload(k DataKind) *tuple.Owned {
	return tuple.New(uint32(k))
}

// ScopeID identifies a lexical scope. The root scope is 0 and each nested
// scope is one below its parent.
type ScopeID int32

// RootScope is the durable, outermost scope.
const RootScope ScopeID = 0

// IsRoot reports whether s is the root scope.
func (s ScopeID) IsRoot() bool { return s == RootScope }

// Push returns the child scope of s.
func (s ScopeID) Push() ScopeID { return s - 1 }

// Pop returns the parent scope of s. The root scope is its own parent.
func (s ScopeID) Pop() ScopeID {
	if s.IsRoot() {
		return s
	}
	return s + 1
}

// Depth is the nesting level: 0 for the root, 1 for its first child.
func (s ScopeID) Depth() int { return -int(s) }

// Code is the integer stored in catalog keys.
func (s ScopeID) Code() int64 { return int64(s) }

func (s ScopeID) String() string {
	if s.IsRoot() {
		return "root"
	}
	return fmt.Sprintf("scope(%d)", int32(s))
}
