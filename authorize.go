package participants

import (
	"github.com/lib/pq"

	"github.com/careaccess/participants/sqlgen"
)

// FieldsFilteredFinder has all participant-attribute criteria applied and
// accepts the status-tab/role authorization stage.
type FieldsFilteredFinder struct {
	f    *Finder
	plan queryPlan
}

// tabSet classifies a requested status-tab list into the groupings the
// visibility rules branch on. The UI sends one tab at a time; when several
// arrive anyway, each classified tab contributes its predicate and the
// predicates combine by OR (union of tabs).
type tabSet struct {
	open       bool
	inProgress bool
	hired      bool
	archived   bool
	rejected   bool
	ros        bool
}

func classifyTabs(tabs []Status) tabSet {
	var t tabSet
	for _, s := range tabs {
		switch s {
		case StatusOpen:
			t.open = true
		case StatusProspecting, StatusInterviewing, StatusOfferMade:
			t.inProgress = true
		case StatusHired:
			t.hired = true
		case StatusArchived:
			t.archived = true
		case StatusRejected:
			t.rejected = true
		case StatusROS:
			t.ros = true
		}
	}
	return t
}

// empty reports whether no recognized tab was requested.
func (t tabSet) empty() bool {
	return !t.open && !t.inProgress && !t.hired && !t.archived && !t.rejected && !t.ros
}

// onlyOpen reports whether the open pool is the only requested tab. The open
// pool needs no engagement enrichment: visible participants have no current
// records by definition.
func (t tabSet) onlyOpen() bool {
	return t.open && !t.inProgress && !t.hired && !t.archived && !t.rejected && !t.ros
}

// FilterExternalFields is the authorization core: it selects which joins are
// attached and which criteria enforce tab/role visibility.
//
// Privileged roles filter the aggregate view's serialized status collection;
// no joins are attached and no row-splitting is possible. Employer and
// health-authority roles get per-tab EXISTS predicates over the raw status
// relations plus the lateral enrichment joins the executor decomposes.
//
// An empty tab list is a no-op: all rows subject to earlier-stage criteria,
// used by the unfiltered "all participants" view.
func (ff FieldsFilteredFinder) FilterExternalFields(tabs []Status, siteIDDistance int64) FilteredFinder {
	p := ff.plan.clone()
	t := classifyTabs(tabs)

	if p.privileged {
		attachPrivilegedCriteria(&p, t)
	} else {
		attachEngagementJoins(&p, t, siteIDDistance)
		attachVisibilityCriteria(&p, t)
	}

	return FilteredFinder{f: ff.f, plan: p}
}

// FilteredFinder has the full criteria tree and join registry built and
// accepts only the sort/pagination plan.
type FilteredFinder struct {
	f    *Finder
	plan queryPlan
}

// --- criteria building (employer / health authority) ---

// currentStatusSub builds a correlated subquery over current status records
// for the base row's participant, ANDing any extra conditions.
func currentStatusSub(extra ...sqlgen.Expr) sqlgen.SelectStmt {
	conds := []sqlgen.Expr{
		sqlgen.Eq{
			Left:  sqlgen.Col{Table: "s", Column: "participant_id"},
			Right: sqlgen.Col{Table: aliasBase, Column: "id"},
		},
		sqlgen.IsTrue{Expr: sqlgen.Col{Table: "s", Column: "current"}},
	}
	conds = append(conds, extra...)
	return sqlgen.SelectStmt{
		From:  statusRelation,
		Alias: "s",
		Where: sqlgen.And(conds...),
	}
}

// currentRosSub builds a correlated subquery over current return-of-service
// records for the base row's participant.
func currentRosSub() sqlgen.SelectStmt {
	return sqlgen.SelectStmt{
		From:  rosRelation,
		Alias: "r",
		Where: sqlgen.And(
			sqlgen.Eq{
				Left:  sqlgen.Col{Table: "r", Column: "participant_id"},
				Right: sqlgen.Col{Table: aliasBase, Column: "id"},
			},
			sqlgen.IsTrue{Expr: sqlgen.Col{Table: "r", Column: "is_current"}},
		),
	}
}

// orgWideSub builds the org-wide claim subquery: a current record held by a
// different employer that shares at least one of the caller's sites. It is
// used purely for exclusion from the open pool; nothing about the holding
// organization is exposed.
func orgWideSub(user User) sqlgen.SelectStmt {
	sub := currentStatusSub(sqlgen.Ne{
		Left:  sqlgen.Col{Table: "s", Column: "employer_id"},
		Right: sqlgen.Arg{Value: user.ID},
	})
	sub.Joins = append(sub.Joins, sqlgen.JoinClause{
		Type:  "INNER",
		Table: usersRelation,
		Alias: "u",
		On: sqlgen.And(
			sqlgen.Eq{
				Left:  sqlgen.Col{Table: "u", Column: "id"},
				Right: sqlgen.Col{Table: "s", Column: "employer_id"},
			},
			sqlgen.ArrayOverlap{
				Left:  sqlgen.Col{Table: "u", Column: "sites"},
				Right: sqlgen.Arg{Value: pq.Array(user.Sites)},
			},
		),
	})
	return sub
}

// ownedByCaller matches records created by the caller's own organization.
func ownedByCaller(user User) sqlgen.Expr {
	return sqlgen.Eq{
		Left:  sqlgen.Col{Table: "s", Column: "employer_id"},
		Right: sqlgen.Arg{Value: user.ID},
	}
}

// ownedOrSiteShared matches records the caller owns or whose site is among
// the caller's own sites.
func ownedOrSiteShared(user User) sqlgen.Expr {
	return sqlgen.Or(
		ownedByCaller(user),
		sqlgen.EqAny{
			Expr:  sqlgen.Col{Table: "s", Column: "site_id"},
			Array: pq.Array(user.Sites),
		},
	)
}

func statusIs(status Status) sqlgen.Expr {
	return sqlgen.Eq{
		Left:  sqlgen.Col{Table: "s", Column: "status"},
		Right: sqlgen.Arg{Value: string(status)},
	}
}

func statusIn(statuses ...Status) sqlgen.Expr {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return sqlgen.In{Expr: sqlgen.Col{Table: "s", Column: "status"}, Values: values}
}

// attachVisibilityCriteria composes the per-tab visibility predicate for
// row-level roles. Requested tabs combine by OR; within a tab the predicate
// is a conjunction, so adding constraints can only narrow results.
func attachVisibilityCriteria(p *queryPlan, t tabSet) {
	if t.empty() {
		return
	}

	user := p.user
	var perTab []sqlgen.Expr

	if t.open {
		// Nobody anywhere holds an active claim: no global hire, no claim by
		// a site-sharing organization, and no record from the caller itself.
		perTab = append(perTab, sqlgen.And(
			sqlgen.NotExists{Query: currentStatusSub(statusIs(StatusHired))},
			sqlgen.NotExists{Query: orgWideSub(user)},
			sqlgen.NotExists{Query: currentStatusSub(ownedByCaller(user))},
		))
	}

	if t.hired {
		// Hired records are visible to the owner and to site-sharing
		// organizations; pending acknowledgements only to the owner.
		perTab = append(perTab, sqlgen.Or(
			sqlgen.Exists{Query: currentStatusSub(statusIs(StatusHired), ownedOrSiteShared(user))},
			sqlgen.Exists{Query: currentStatusSub(statusIs(StatusPendingAcknowledgement), ownedByCaller(user))},
		))
	}

	if t.archived || t.rejected {
		// Strictly own-organization visibility, never cross-org.
		var terminal []Status
		if t.archived {
			terminal = append(terminal, StatusArchived)
		}
		if t.rejected {
			terminal = append(terminal, StatusRejected)
		}
		perTab = append(perTab, sqlgen.Exists{
			Query: currentStatusSub(statusIn(terminal...), ownedByCaller(user)),
		})
	}

	if t.ros {
		perTab = append(perTab, sqlgen.Exists{Query: currentRosSub()})
	}

	if t.inProgress {
		// The working queue: an owned-or-site-shared record in an in-progress
		// state (plus the reject-acknowledged pass-through), not already
		// rejected by the caller, and not already moved on to a ROS the
		// caller has archived.
		working := append(append([]Status(nil), inProgressStatuses...), StatusRejectAcknowledgement)
		perTab = append(perTab, sqlgen.And(
			sqlgen.Exists{Query: currentStatusSub(statusIn(working...), ownedOrSiteShared(user))},
			sqlgen.NotExists{Query: currentStatusSub(statusIs(StatusRejected), ownedByCaller(user))},
			sqlgen.Or(
				sqlgen.NotExists{Query: currentRosSub()},
				sqlgen.NotExists{Query: currentStatusSub(statusIs(StatusArchived), ownedByCaller(user))},
			),
		))
	}

	p.criteria = append(p.criteria, sqlgen.Or(perTab...))
}

// attachPrivilegedCriteria filters the aggregate view's serialized status
// collection. "Open" is the absence of any current status, matched by a null
// check; every other tab contributes literal substring checks against the
// serialized collection. Tabs combine by OR.
func attachPrivilegedCriteria(p *queryPlan, t tabSet) {
	if t.empty() {
		return
	}

	statusInfos := sqlgen.Col{Table: aliasBase, Column: "status_infos"}
	serialized := sqlgen.Raw(aliasBase + ".status_infos::text")

	match := func(s Status) sqlgen.Expr {
		// jsonb text rendering is canonical, so the key/value pair is a
		// stable needle. A bare status needle would be wrong: "ros" is a
		// substring of "prospecting".
		return sqlgen.ContainsLike{Expr: serialized, Needle: `"status": "` + string(s) + `"`}
	}

	var perTab []sqlgen.Expr
	if t.open {
		perTab = append(perTab, sqlgen.IsNull{Expr: statusInfos})
	}
	if t.inProgress {
		for _, s := range inProgressStatuses {
			perTab = append(perTab, match(s))
		}
	}
	if t.hired {
		perTab = append(perTab, match(StatusHired))
	}
	if t.archived {
		perTab = append(perTab, match(StatusArchived))
	}
	if t.rejected {
		perTab = append(perTab, match(StatusRejected))
	}
	if t.ros {
		perTab = append(perTab, sqlgen.IsNotNull{Expr: sqlgen.Col{Table: aliasBase, Column: "ros_infos"}})
	}

	p.criteria = append(p.criteria, sqlgen.Or(perTab...))
}

// --- join attachment (employer / health authority) ---

// engagementWhere is the visibility scope of the engagement laterals: current
// records the caller owns or whose site the caller operates.
func engagementWhere(user User) sqlgen.Expr {
	return sqlgen.And(
		sqlgen.Eq{
			Left:  sqlgen.Col{Table: "s", Column: "participant_id"},
			Right: sqlgen.Col{Table: aliasBase, Column: "id"},
		},
		sqlgen.IsTrue{Expr: sqlgen.Col{Table: "s", Column: "current"}},
		sqlgen.Or(
			sqlgen.Eq{
				Left:  sqlgen.Col{Table: "s", Column: "employer_id"},
				Right: sqlgen.Arg{Value: user.ID},
			},
			sqlgen.EqAny{
				Expr:  sqlgen.Col{Table: "s", Column: "site_id"},
				Array: pq.Array(user.Sites),
			},
		),
	)
}

// enrichedRecordsAgg aggregates the caller-visible engagement records with
// site names folded into each record's data and a reduced employer identity
// attached, so the UI never needs a second round trip to render them.
const enrichedRecordsAgg = `jsonb_agg((to_jsonb(s) - 'data') || jsonb_build_object(` +
	`'data', coalesce(s.data, '{}'::jsonb) || CASE WHEN es.name IS NULL THEN '{}'::jsonb ELSE jsonb_build_object('siteName', es.name) END, ` +
	`'employerInfo', CASE WHEN eu.id IS NULL THEN NULL ELSE jsonb_build_object(` +
	`'id', eu.id, 'firstName', eu.body->>'firstName', 'lastName', eu.body->>'lastName') END` +
	`) ORDER BY s.id) AS records`

// plainRecordsAgg aggregates records without enrichment; used for the open
// pool where visible participants have no current records anyway.
const plainRecordsAgg = `jsonb_agg(to_jsonb(s) ORDER BY s.id) AS records`

// attachEngagementJoins registers the lateral enrichment joins for row-level
// roles. Every lateral aggregates to a single row per participant, so the
// base rowset stays one row per participant and limit/offset pagination
// counts participants, not join rows.
func attachEngagementJoins(p *queryPlan, t tabSet, siteIDDistance int64) {
	user := p.user
	enrich := !t.onlyOpen()

	// Employer-specific engagement records: always attached, enriched with
	// employer/site info except for the pure open pool.
	sub := sqlgen.SelectStmt{
		From:  statusRelation,
		Alias: "s",
		Where: engagementWhere(user),
	}
	if enrich {
		sub.Columns = []sqlgen.Expr{sqlgen.Raw(enrichedRecordsAgg)}
		sub.Joins = []sqlgen.JoinClause{
			{
				Type:  "LEFT",
				Table: sitesRelation,
				Alias: "es",
				On: sqlgen.Eq{
					Left:  sqlgen.Col{Table: "es", Column: "id"},
					Right: sqlgen.Col{Table: "s", Column: "site_id"},
				},
			},
			{
				Type:  "LEFT",
				Table: usersRelation,
				Alias: "eu",
				On: sqlgen.Eq{
					Left:  sqlgen.Col{Table: "eu", Column: "id"},
					Right: sqlgen.Col{Table: "s", Column: "employer_id"},
				},
			},
		}
	} else {
		sub.Columns = []sqlgen.Expr{sqlgen.Raw(plainRecordsAgg)}
	}
	p.addJoin(sqlgen.JoinClause{Type: "LEFT", Lateral: true, Sub: &sub, Alias: aliasEngagements})
	p.hasEngagements = true

	// Global hire: the current hired record regardless of employer. The open
	// pool excludes via NOT EXISTS instead; here the record feeds the
	// executor's post-retrieval ROS gate.
	if !t.onlyOpen() {
		hg := sqlgen.SelectStmt{
			Columns: []sqlgen.Expr{
				sqlgen.Alias{Expr: sqlgen.Raw("to_jsonb(s)"), Name: "record"},
				sqlgen.Col{Table: "s", Column: "site_id"},
			},
			From:  statusRelation,
			Alias: "s",
			Where: sqlgen.And(
				sqlgen.Eq{
					Left:  sqlgen.Col{Table: "s", Column: "participant_id"},
					Right: sqlgen.Col{Table: aliasBase, Column: "id"},
				},
				sqlgen.IsTrue{Expr: sqlgen.Col{Table: "s", Column: "current"}},
				statusIs(StatusHired),
			),
			OrderBy: []sqlgen.OrderKey{{Expr: sqlgen.Col{Table: "s", Column: "id"}}},
			Limit:   1,
		}
		p.addJoin(sqlgen.JoinClause{Type: "LEFT", Lateral: true, Sub: &hg, Alias: aliasHiredGlobal})
		p.hasHiredGlobal = true
	}

	// Return-of-service milestones, newest first, with site names resolved
	// and the current milestone's sort keys exposed as scalar columns.
	if !t.onlyOpen() {
		ros := sqlgen.SelectStmt{
			Columns: []sqlgen.Expr{
				sqlgen.Raw(`jsonb_agg(to_jsonb(r) || jsonb_build_object('siteName', es.name) ORDER BY r.id DESC) AS records`),
				sqlgen.Raw(`max(r.data->>'date') FILTER (WHERE (r.is_current) IS TRUE) AS start_date`),
				sqlgen.Raw(`max(es.name) FILTER (WHERE (r.is_current) IS TRUE) AS site_name`),
			},
			From:  rosRelation,
			Alias: "r",
			Joins: []sqlgen.JoinClause{
				{
					Type:  "LEFT",
					Table: sitesRelation,
					Alias: "es",
					On: sqlgen.Eq{
						Left:  sqlgen.Col{Table: "es", Column: "id"},
						Right: sqlgen.Col{Table: "r", Column: "site_id"},
					},
				},
			},
			Where: sqlgen.Eq{
				Left:  sqlgen.Col{Table: "r", Column: "participant_id"},
				Right: sqlgen.Col{Table: aliasBase, Column: "id"},
			},
		}
		p.addJoin(sqlgen.JoinClause{Type: "LEFT", Lateral: true, Sub: &ros, Alias: aliasRos})
		p.hasRos = true
	}

	// Site distance from the reference site, only when one was supplied.
	if siteIDDistance != 0 {
		p.addJoin(sqlgen.JoinClause{
			Type:  "LEFT",
			Table: distanceRelation,
			Alias: aliasDistance,
			On: sqlgen.And(
				sqlgen.Eq{
					Left:  sqlgen.Col{Table: aliasDistance, Column: "participant_id"},
					Right: sqlgen.Col{Table: aliasBase, Column: "id"},
				},
				sqlgen.Eq{
					Left:  sqlgen.Col{Table: aliasDistance, Column: "site_id"},
					Right: sqlgen.Arg{Value: siteIDDistance},
				},
			),
		})
		p.hasDistance = true
	}
}
