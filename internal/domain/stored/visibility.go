package stored

import (
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/domain/query"
)

// Visibility is the filter every read on behalf of caller carries:
// anonymous callers see published public rows, providers additionally
// see their own.
func Visibility(caller domprov.Caller) query.Group {
	public := query.NewGroup(query.And, []query.Condition{
		{Path: FieldPublished, Operator: query.OpEq, Values: []string{TagTrue}},
		{Path: FieldPrivate, Operator: query.OpNotEq, Values: []string{TagTrue}},
	})
	if caller.IsAnonymous() {
		return public
	}
	own := query.Condition{Path: FieldProvider, Operator: query.OpEq, Values: []string{caller.UUID()}}
	return query.NewGroup(query.Or, []query.Condition{own}, public)
}
