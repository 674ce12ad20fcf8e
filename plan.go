package participants

import "github.com/careaccess/participants/sqlgen"

// queryPlan is the value threaded through the pipeline stages: the requesting
// user, the accumulated criteria tree, the registered joins, and the
// sort/pagination plan. Each stage clones the plan before extending it, so a
// stage value can be reused to branch two independent queries without the
// later stages observing each other's mutations. A plan is created fresh per
// request and discarded after Run.
type queryPlan struct {
	user       User
	privileged bool

	criteria []sqlgen.Expr
	joins    []sqlgen.JoinClause

	// Join attachment flags consumed by the sort planner and the executor.
	// A flag records that the corresponding alias is registered and its
	// columns may be referenced in ordering and scanned from the result.
	hasEngagements bool
	hasHiredGlobal bool
	hasRos         bool
	hasDistance    bool
	hasPrimaryEng  bool
	hasPrimarySite bool
	hasPrimaryUser bool

	order  []sqlgen.OrderKey
	limit  int
	offset int
}

// clone returns a copy whose slices are detached from the receiver.
func (p queryPlan) clone() queryPlan {
	c := p
	c.criteria = append([]sqlgen.Expr(nil), p.criteria...)
	c.joins = append([]sqlgen.JoinClause(nil), p.joins...)
	c.order = append([]sqlgen.OrderKey(nil), p.order...)
	return c
}

// baseRelation is the physical relation the plan reads: the raw participants
// table for row-level visibility roles, the precomputed aggregate view for
// privileged roles. Both are bound under the same alias so criteria built by
// earlier stages apply to either.
func (p queryPlan) baseRelation() string {
	if p.privileged {
		return statusInfosView
	}
	return participantsRelation
}

// addJoin registers a join clause. Join aliases are unique per plan; the
// attachment flags above are the authority on what has been registered.
func (p *queryPlan) addJoin(j sqlgen.JoinClause) {
	p.joins = append(p.joins, j)
}
