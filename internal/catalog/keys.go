package catalog

import (
	"github.com/greydoubt/cozo/internal/tuple"
)

// Catalog keys share prefix 0. Row partitions use the table id as prefix;
// ids start at 1 so the two never overlap.
//
//	[Null]                                    table id counter
//	[Text name, Int scope]                    definition
//	[Int scope, Text name]                    scope sweep index (local only)
//	[Null, Text table, Int scope, Int kind, Text member]
//	[Null, Int scope, Text table, Int kind, Text member]
//	                                          member back-references
//	[Bool true, Int id]                       table info
const catalogPrefix uint32 = 0

func counterKey() *tuple.Owned {
	return tuple.New(catalogPrefix).PushNull()
}

func nameKey(name string) *tuple.Owned {
	return tuple.New(catalogPrefix).PushText(name)
}

func definitionKey(name string, scope ScopeID) *tuple.Owned {
	return nameKey(name).PushInt(scope.Code())
}

func sweepPrefix(scope ScopeID) *tuple.Owned {
	return tuple.New(catalogPrefix).PushInt(scope.Code())
}

func sweepKey(scope ScopeID, name string) *tuple.Owned {
	return sweepPrefix(scope).PushText(name)
}

func tableInfoKey(id int64) *tuple.Owned {
	return tuple.New(catalogPrefix).PushBool(true).PushInt(id)
}

func backRefPrefix(table string) *tuple.Owned {
	return tuple.New(catalogPrefix).PushNull().PushText(table)
}

func backRefKey(table string, scope ScopeID, kind DataKind, member string) *tuple.Owned {
	return backRefPrefix(table).PushInt(scope.Code()).PushInt(int64(kind)).PushText(member)
}

func backRefScopePrefix(scope ScopeID) *tuple.Owned {
	return tuple.New(catalogPrefix).PushNull().PushInt(scope.Code())
}

func backRefScopeKey(scope ScopeID, table string, kind DataKind, member string) *tuple.Owned {
	return backRefScopePrefix(scope).PushText(table).PushInt(int64(kind)).PushText(member)
}

// backRefPair returns both orientations of one back-reference.
func backRefPair(table string, scope ScopeID, kind DataKind, member string) []*tuple.Owned {
	return []*tuple.Owned{
		backRefKey(table, scope, kind, member),
		backRefScopeKey(scope, table, kind, member),
	}
}

// RowPartition is the prefix shared by every row of table id.
func RowPartition(id int64) *tuple.Owned {
	return tuple.New(uint32(id))
}
