package participants

import (
	"github.com/lib/pq"

	"github.com/careaccess/participants/sqlgen"
)

// attributeSortFields are the participant-attribute keys a caller may sort
// by. Anything else that is not a known join-backed key is silently ignored
// and falls back to identifier ordering, never rejected.
var attributeSortFields = map[string]bool{
	"firstName":    true,
	"lastName":     true,
	"emailAddress": true,
	"postalCode":   true,
	"program":      true,
	"interested":   true,
}

// Paginate builds the deterministic sort/pagination plan and returns the
// terminal stage.
//
// The baseline order is by identifier in the requested direction. A resolved
// sort key is prepended (not appended) ahead of the baseline, with nulls
// sorted last since join-backed keys such as distance can be absent; the
// identifier remains the final deterministic tie-break. Offset and page size
// apply verbatim.
func (tf FilteredFinder) Paginate(pg Pagination, sortField string) PaginatedFinder {
	p := tf.plan.clone()
	desc := pg.Direction == "desc"

	keys := resolveSortKeys(&p, sortField, desc)
	keys = append(keys, sqlgen.OrderKey{
		Expr: sqlgen.Col{Table: aliasBase, Column: "id"},
		Desc: desc,
	})
	p.order = keys
	p.limit = pg.PageSize
	p.offset = pg.Offset

	return PaginatedFinder{f: tf.f, plan: p}
}

// PaginatedFinder is the terminal stage; the only remaining operation is Run.
type PaginatedFinder struct {
	f    *Finder
	plan queryPlan
}

// resolveSortKeys maps a requested sort field to its physical location,
// attaching the scalar-sort laterals it needs. Keys that cannot be resolved
// for the caller's role or the attached joins resolve to nothing.
func resolveSortKeys(p *queryPlan, field string, desc bool) []sqlgen.OrderKey {
	key := func(e sqlgen.Expr) sqlgen.OrderKey {
		return sqlgen.OrderKey{Expr: e, Desc: desc, NullsLast: true}
	}

	switch field {
	case "", "id":
		return nil

	case "distance":
		if !p.hasDistance {
			return nil
		}
		return []sqlgen.OrderKey{key(sqlgen.Col{Table: aliasDistance, Column: "distance"})}

	case "rosStartDate":
		if !p.hasRos {
			return nil
		}
		return []sqlgen.OrderKey{key(sqlgen.Col{Table: aliasRos, Column: "start_date"})}

	case "rosSiteName":
		if !p.hasRos {
			return nil
		}
		return []sqlgen.OrderKey{key(sqlgen.Col{Table: aliasRos, Column: "site_name"})}

	case "employerName", "lastEngagedBy":
		if p.privileged || !p.hasEngagements {
			return nil
		}
		attachPrimaryEngagement(p)
		attachPrimaryUser(p)
		// Two-key composite: first name then last name, both ahead of the
		// identifier tie-break.
		doc := sqlgen.Col{Table: aliasPrimaryUser, Column: "body"}
		return []sqlgen.OrderKey{
			key(sqlgen.JSONText{Doc: doc, Field: "firstName"}),
			key(sqlgen.JSONText{Doc: doc, Field: "lastName"}),
		}

	case "siteName":
		if p.privileged || !p.hasEngagements {
			return nil
		}
		attachPrimaryEngagement(p)
		attachPrimarySite(p)
		return []sqlgen.OrderKey{key(sqlgen.Col{Table: aliasPrimarySite, Column: "name"})}

	case "status":
		if p.privileged {
			return []sqlgen.OrderKey{key(sqlgen.Raw(aliasBase + ".status_infos::text"))}
		}
		if !p.hasEngagements {
			return nil
		}
		attachPrimaryEngagement(p)
		return []sqlgen.OrderKey{key(sqlgen.Col{Table: aliasPrimaryEng, Column: "status"})}

	default:
		if !attributeSortFields[field] {
			return nil
		}
		return []sqlgen.OrderKey{key(bodyText(field))}
	}
}

// attachPrimaryEngagement registers the scalar-sort lateral: the first
// caller-visible current engagement record, one row, whose columns ordering
// keys can reference directly.
func attachPrimaryEngagement(p *queryPlan) {
	if p.hasPrimaryEng {
		return
	}
	sub := sqlgen.SelectStmt{
		Columns: []sqlgen.Expr{sqlgen.Raw("s.*")},
		From:    statusRelation,
		Alias:   "s",
		Where: sqlgen.And(
			sqlgen.Eq{
				Left:  sqlgen.Col{Table: "s", Column: "participant_id"},
				Right: sqlgen.Col{Table: aliasBase, Column: "id"},
			},
			sqlgen.IsTrue{Expr: sqlgen.Col{Table: "s", Column: "current"}},
			sqlgen.Or(
				sqlgen.Eq{
					Left:  sqlgen.Col{Table: "s", Column: "employer_id"},
					Right: sqlgen.Arg{Value: p.user.ID},
				},
				sqlgen.EqAny{
					Expr:  sqlgen.Col{Table: "s", Column: "site_id"},
					Array: pq.Array(p.user.Sites),
				},
			),
		),
		OrderBy: []sqlgen.OrderKey{{Expr: sqlgen.Col{Table: "s", Column: "id"}}},
		Limit:   1,
	}
	p.addJoin(sqlgen.JoinClause{Type: "LEFT", Lateral: true, Sub: &sub, Alias: aliasPrimaryEng})
	p.hasPrimaryEng = true
}

// attachPrimarySite joins the site catalog for the primary engagement's site
// name. Requires the primary engagement lateral to be registered first.
func attachPrimarySite(p *queryPlan) {
	if p.hasPrimarySite {
		return
	}
	p.addJoin(sqlgen.JoinClause{
		Type:  "LEFT",
		Table: sitesRelation,
		Alias: aliasPrimarySite,
		On: sqlgen.Eq{
			Left:  sqlgen.Col{Table: aliasPrimarySite, Column: "id"},
			Right: sqlgen.Col{Table: aliasPrimaryEng, Column: "site_id"},
		},
	})
	p.hasPrimarySite = true
}

// attachPrimaryUser joins the employer identity for the primary engagement.
// Requires the primary engagement lateral to be registered first.
func attachPrimaryUser(p *queryPlan) {
	if p.hasPrimaryUser {
		return
	}
	p.addJoin(sqlgen.JoinClause{
		Type:  "LEFT",
		Table: usersRelation,
		Alias: aliasPrimaryUser,
		On: sqlgen.Eq{
			Left:  sqlgen.Col{Table: aliasPrimaryUser, Column: "id"},
			Right: sqlgen.Col{Table: aliasPrimaryEng, Column: "employer_id"},
		},
	})
	p.hasPrimaryUser = true
}
