package participants_test

import (
	"strings"
	"testing"

	participants "github.com/careaccess/participants"
)

func employerUser() participants.User {
	return participants.User{
		ID:       "employer-1",
		Employer: true,
		Regions:  []string{"Fraser", "Interior"},
		Sites:    []int64{11, 12},
	}
}

func mohUser() participants.User {
	return participants.User{
		ID:               "moh-1",
		MinistryOfHealth: true,
	}
}

// compose runs the full stage chain and renders the statement build-only.
func compose(user participants.User, q participants.Query) (string, []any) {
	f := participants.NewFinder(nil)
	return f.For(user).
		FilterRegion(q.Region).
		FilterProgram(q.Program).
		FilterParticipantFields(q.Fields).
		FilterExternalFields(q.StatusTabs, q.SiteIDDistance).
		Paginate(q.Pagination, q.SortField).
		SQL()
}

func TestPrivilegedReadsAggregateView(t *testing.T) {
	sql, _ := compose(mohUser(), participants.Query{})
	if !strings.Contains(sql, "FROM participants_status_infos AS p") {
		t.Errorf("privileged query should read the aggregate view:\n%s", sql)
	}
	if strings.Contains(sql, "JOIN") {
		t.Errorf("privileged query should attach no joins:\n%s", sql)
	}
}

func TestEmployerReadsRawRelation(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{})
	if !strings.Contains(sql, "FROM participants AS p") {
		t.Errorf("employer query should read the raw relation:\n%s", sql)
	}
}

func TestRegionFilterPrivileged(t *testing.T) {
	sql, vals := compose(mohUser(), participants.Query{Region: "Fraser"})
	if !strings.Contains(sql, "p.body->'preferredRegions' ? $") {
		t.Errorf("expected preferred-region containment predicate:\n%s", sql)
	}
	if !containsValue(vals, "Fraser") {
		t.Errorf("region not bound: %v", vals)
	}
}

func TestRegionFilterUnentitledIsDropped(t *testing.T) {
	// Supplying a region outside the entitlement set must not widen
	// visibility: the filter is replaced by the entitled-regions predicate.
	sql, vals := compose(employerUser(), participants.Query{Region: "Northern"})
	if !strings.Contains(sql, "p.body->'preferredRegions' ?| $") {
		t.Errorf("expected entitled-regions predicate:\n%s", sql)
	}
	if containsValue(vals, "Northern") {
		t.Errorf("unentitled region must not be bound: %v", vals)
	}
}

func TestRegionFilterEntitledIsHonored(t *testing.T) {
	sql, vals := compose(employerUser(), participants.Query{Region: "Interior"})
	if !strings.Contains(sql, "p.body->'preferredRegions' ? $") {
		t.Errorf("expected single-region predicate:\n%s", sql)
	}
	if !containsValue(vals, "Interior") {
		t.Errorf("entitled region not bound: %v", vals)
	}
}

func TestProgramPinningOverridesCallerInput(t *testing.T) {
	user := employerUser()
	user.MHSUEmployer = true
	_, vals := compose(user, participants.Query{Program: "HCA"})
	if !containsValue(vals, "MHAW") {
		t.Errorf("MHSU employer must be pinned to MHAW: %v", vals)
	}
	if containsValue(vals, "HCA") {
		t.Errorf("caller-supplied program must be overridden: %v", vals)
	}
}

func TestProgramPinningStandardEmployer(t *testing.T) {
	_, vals := compose(employerUser(), participants.Query{Program: "MHAW"})
	if !containsValue(vals, "HCA") {
		t.Errorf("standard employer must be pinned to HCA: %v", vals)
	}
}

func TestProgramFreeForPrivileged(t *testing.T) {
	_, vals := compose(mohUser(), participants.Query{Program: "MHAW"})
	if !containsValue(vals, "MHAW") {
		t.Errorf("privileged program filter not bound: %v", vals)
	}
}

func TestFieldFiltersPrefixMatch(t *testing.T) {
	sql, vals := compose(mohUser(), participants.Query{
		Fields: participants.FieldFilters{LastNamePrefix: "Sm", EmailPrefix: "sam@"},
	})
	if strings.Count(sql, "ILIKE") != 2 {
		t.Errorf("expected two prefix predicates:\n%s", sql)
	}
	if !containsValue(vals, "Sm%") || !containsValue(vals, "sam@%") {
		t.Errorf("prefix patterns not bound: %v", vals)
	}
}

func TestFieldFiltersAbsentContributeNothing(t *testing.T) {
	withEmpty, _ := compose(mohUser(), participants.Query{})
	withZero, _ := compose(mohUser(), participants.Query{Fields: participants.FieldFilters{}})
	if withEmpty != withZero {
		t.Errorf("zero-valued field filters must be a no-op")
	}
}

func TestOpenTabExcludesAllClaims(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusOpen},
	})
	// No global hire, no site-sharing org claim, no own record.
	if got := strings.Count(sql, "NOT EXISTS"); got != 3 {
		t.Errorf("open pool should carry three exclusion subqueries, got %d:\n%s", got, sql)
	}
}

func TestArchivedTabIsOwnOrgOnly(t *testing.T) {
	sql, vals := compose(employerUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusArchived},
	})
	if !strings.Contains(sql, "EXISTS") {
		t.Fatalf("expected EXISTS predicate:\n%s", sql)
	}
	// Ownership is enforced inside the subquery; the caller's sites play no
	// part in archived/rejected visibility. Site sharing appears exactly once,
	// in the enrichment lateral, never in the visibility predicate.
	if !strings.Contains(sql, "s.employer_id = $") {
		t.Errorf("archived visibility must be pinned to the caller:\n%s", sql)
	}
	if got := strings.Count(sql, "s.site_id = ANY"); got != 1 {
		t.Errorf("archived visibility must never be site-shared, got %d occurrences:\n%s", got, sql)
	}
	if !containsValue(vals, "archived") {
		t.Errorf("archived status not bound: %v", vals)
	}
}

func TestInProgressTabComposition(t *testing.T) {
	sql, vals := compose(employerUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusProspecting},
	})
	for _, status := range []string{"prospecting", "interviewing", "offer_made", "reject_acknowledgement"} {
		if !containsValue(vals, status) {
			t.Errorf("in-progress set missing %s: %v", status, vals)
		}
	}
	// Already-rejected and ROS-then-archived participants drop out of the
	// working queue.
	if got := strings.Count(sql, "NOT EXISTS"); got != 3 {
		t.Errorf("expected three exclusion subqueries, got %d:\n%s", got, sql)
	}
}

func TestMultipleTabsUnion(t *testing.T) {
	single, _ := compose(employerUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusHired},
	})
	both, _ := compose(employerUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusHired, participants.StatusArchived},
	})
	if single == both {
		t.Errorf("second tab should contribute an additional predicate")
	}
	if !strings.Contains(both, " OR ") {
		t.Errorf("tabs must combine by OR:\n%s", both)
	}
}

func TestEmptyTabsIsNoOp(t *testing.T) {
	sql, _ := compose(mohUser(), participants.Query{})
	if strings.Contains(sql, "status_infos::text LIKE") {
		t.Errorf("no tab predicate expected for empty tab list:\n%s", sql)
	}
}

func TestPrivilegedTabMatchesSerializedCollection(t *testing.T) {
	sql, vals := compose(mohUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusHired},
	})
	if !strings.Contains(sql, "p.status_infos::text LIKE $") {
		t.Errorf("expected serialized substring match:\n%s", sql)
	}
	if !containsValue(vals, `%"status": "hired"%`) {
		t.Errorf("needle not bound: %v", vals)
	}
}

func TestPrivilegedOpenIsNullCheck(t *testing.T) {
	sql, _ := compose(mohUser(), participants.Query{
		StatusTabs: []participants.Status{participants.StatusOpen},
	})
	if !strings.Contains(sql, "p.status_infos IS NULL") {
		t.Errorf("open pool for privileged roles is the absence of statuses:\n%s", sql)
	}
}

func TestSortFallbackUnknownField(t *testing.T) {
	unknown, _ := compose(employerUser(), participants.Query{SortField: "not_a_real_field"})
	none, _ := compose(employerUser(), participants.Query{})
	if unknown != none {
		t.Errorf("unknown sort field must fall back to identifier ordering")
	}
}

func TestSortDistanceRequiresReferenceSite(t *testing.T) {
	without, _ := compose(employerUser(), participants.Query{SortField: "distance"})
	if strings.Contains(without, "dist.distance") {
		t.Errorf("distance sort without a reference site must be ignored:\n%s", without)
	}

	with, _ := compose(employerUser(), participants.Query{SortField: "distance", SiteIDDistance: 11})
	if !strings.Contains(with, "ORDER BY dist.distance NULLS LAST, p.id") {
		t.Errorf("distance key must be prepended with nulls last:\n%s", with)
	}
}

func TestSortEmployerNameIsTwoKeyComposite(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{SortField: "employerName"})
	first := strings.Index(sql, "enguser.body->>'firstName'")
	last := strings.Index(sql, "enguser.body->>'lastName'")
	id := strings.LastIndex(sql, "p.id")
	if first == -1 || last == -1 {
		t.Fatalf("employer name keys missing:\n%s", sql)
	}
	if !(first < last && last < id) {
		t.Errorf("keys must order firstName, lastName, then the id tie-break:\n%s", sql)
	}
}

func TestSortStatusIsRoleDependent(t *testing.T) {
	emp, _ := compose(employerUser(), participants.Query{SortField: "status"})
	if !strings.Contains(emp, "engp.status") {
		t.Errorf("employer status sort resolves to the engagement join:\n%s", emp)
	}
	priv, _ := compose(mohUser(), participants.Query{SortField: "status"})
	if !strings.Contains(priv, "p.status_infos::text") {
		t.Errorf("privileged status sort resolves to the aggregated column:\n%s", priv)
	}
}

func TestSortDirectionAppliesToTieBreak(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{
		Pagination: participants.Pagination{Direction: "desc"},
	})
	if !strings.Contains(sql, "ORDER BY p.id DESC") {
		t.Errorf("baseline order must follow the requested direction:\n%s", sql)
	}
}

func TestPaginationAppliedVerbatim(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{
		Pagination: participants.Pagination{Offset: 50, PageSize: 25},
	})
	if !strings.Contains(sql, "LIMIT 25") || !strings.Contains(sql, "OFFSET 50") {
		t.Errorf("limit/offset missing:\n%s", sql)
	}
}

func TestTotalRidesAlong(t *testing.T) {
	sql, _ := compose(employerUser(), participants.Query{})
	if !strings.Contains(sql, "count(*) OVER () AS total") {
		t.Errorf("window total missing:\n%s", sql)
	}
}

func TestStageBranchingDoesNotAlias(t *testing.T) {
	// A stage value can seed two divergent chains; later stages must not
	// observe each other's criteria.
	f := participants.NewFinder(nil)
	base := f.For(employerUser()).FilterRegion("").FilterProgram("").
		FilterParticipantFields(participants.FieldFilters{})

	hired, _ := base.FilterExternalFields([]participants.Status{participants.StatusHired}, 0).
		Paginate(participants.Pagination{}, "").SQL()
	open, _ := base.FilterExternalFields([]participants.Status{participants.StatusOpen}, 0).
		Paginate(participants.Pagination{}, "").SQL()

	if hired == open {
		t.Errorf("branches should produce different statements")
	}
	hiredAgain, _ := base.FilterExternalFields([]participants.Status{participants.StatusHired}, 0).
		Paginate(participants.Pagination{}, "").SQL()
	if hired != hiredAgain {
		t.Errorf("rebuilding the same branch must be deterministic")
	}
}

func containsValue(vals []any, want any) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
