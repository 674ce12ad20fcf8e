package participants_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	participants "github.com/careaccess/participants"
	"github.com/careaccess/participants/internal/testutil"
)

// portalFixture is one database seeded with two regions of sites and a small
// set of employers. Tests seed their own participants on top.
type portalFixture struct {
	db   *sql.DB
	seed *testutil.Seeder
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	seed := testutil.NewSeeder(t, db)

	seed.Site(11, "Clinic A", "Fraser")
	seed.Site(12, "Clinic A2", "Fraser")
	seed.Site(22, "Clinic B", "Interior")

	seed.User("e1", map[string]any{"firstName": "Pat", "lastName": "Ng"}, []int64{11})
	seed.User("e2", map[string]any{"firstName": "Lee", "lastName": "Roy"}, []int64{22})
	seed.User("e3", map[string]any{"firstName": "Kim", "lastName": "Das"}, []int64{11, 12})

	return &portalFixture{db: db, seed: seed}
}

// participant seeds a participant in the Fraser region with the given extra
// attributes.
func (fx *portalFixture) participant(extra map[string]any) int64 {
	body := map[string]any{
		"preferredRegions": []any{"Fraser"},
		"program":          "HCA",
	}
	for k, v := range extra {
		body[k] = v
	}
	return fx.seed.Participant(body)
}

func employer(id string, sites ...int64) participants.User {
	return participants.User{
		ID:       id,
		Employer: true,
		Regions:  []string{"Fraser"},
		Sites:    sites,
	}
}

var moh = participants.User{ID: "moh", MinistryOfHealth: true}

func find(t *testing.T, db *sql.DB, user participants.User, q participants.Query) *participants.Result {
	t.Helper()
	res, err := participants.NewFinder(db).FindParticipants(context.Background(), user, q)
	require.NoError(t, err)
	return res
}

func rowIDs(res *participants.Result) []int64 {
	ids := make([]int64, 0, len(res.Rows))
	for _, r := range res.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func tabs(statuses ...participants.Status) participants.Query {
	return participants.Query{StatusTabs: statuses}
}

func TestInProgressVisibilityIsSiteScoped(t *testing.T) {
	fx := newPortalFixture(t)

	// Claimed by e2 at a site nobody else operates.
	foreign := fx.participant(map[string]any{"lastName": "Far"})
	fx.seed.Status(foreign, "e2", "prospecting", true, 22, nil)

	// Claimed by e3 at a site e1 also operates.
	shared := fx.participant(map[string]any{"lastName": "Near"})
	fx.seed.Status(shared, "e3", "prospecting", true, 11, nil)

	res := find(t, fx.db, employer("e1", 11), tabs(participants.StatusProspecting))
	assert.Equal(t, []int64{shared}, rowIDs(res))

	// The record's owner sees it regardless of sites.
	res = find(t, fx.db, employer("e2", 22), tabs(participants.StatusProspecting))
	assert.Equal(t, []int64{foreign}, rowIDs(res))
}

func TestOpenPoolExclusions(t *testing.T) {
	fx := newPortalFixture(t)

	unclaimed := fx.participant(nil)

	// Hired anywhere leaves the open pool for everyone.
	hired := fx.participant(nil)
	fx.seed.Status(hired, "e2", "hired", true, 22, nil)

	// Claimed by a site-sharing organization (e3 shares site 11 with e1).
	claimedNearby := fx.participant(nil)
	fx.seed.Status(claimedNearby, "e3", "prospecting", true, 11, nil)

	// Claimed by an unrelated organization: invisible claim, still open to e1.
	claimedFar := fx.participant(nil)
	fx.seed.Status(claimedFar, "e2", "prospecting", true, 22, nil)

	res := find(t, fx.db, employer("e1", 11), tabs(participants.StatusOpen))
	assert.ElementsMatch(t, []int64{unclaimed, claimedFar}, rowIDs(res))

	// Privileged open pool is stricter: any current status leaves it.
	res = find(t, fx.db, moh, tabs(participants.StatusOpen))
	assert.Equal(t, []int64{unclaimed}, rowIDs(res))
}

func TestArchivedAndRejectedAreOwnOrgOnly(t *testing.T) {
	fx := newPortalFixture(t)

	archived := fx.participant(nil)
	fx.seed.Status(archived, "e1", "archived", true, 11, nil)

	rejected := fx.participant(nil)
	fx.seed.Status(rejected, "e1", "rejected", true, 11, nil)

	res := find(t, fx.db, employer("e1", 11), tabs(participants.StatusArchived))
	assert.Equal(t, []int64{archived}, rowIDs(res))

	res = find(t, fx.db, employer("e1", 11), tabs(participants.StatusRejected))
	assert.Equal(t, []int64{rejected}, rowIDs(res))

	// e3 operates the same site but owns neither record.
	res = find(t, fx.db, employer("e3", 11, 12), tabs(participants.StatusArchived))
	assert.Empty(t, res.Rows)
	res = find(t, fx.db, employer("e3", 11, 12), tabs(participants.StatusRejected))
	assert.Empty(t, res.Rows)
}

func TestHiredEnrichmentAndRosGate(t *testing.T) {
	fx := newPortalFixture(t)

	p := fx.participant(map[string]any{"lastName": "Singh"})
	fx.seed.Status(p, "e2", "hired", true, 22, nil)
	first := fx.seed.Ros(p, 22, false, map[string]any{"date": "2023-01-01"})
	latest := fx.seed.Ros(p, 22, true, map[string]any{"date": "2024-06-01"})

	// The hiring organization sees the record enriched and the milestones
	// newest first.
	res := find(t, fx.db, participants.User{
		ID: "e2", Employer: true, Regions: []string{"Fraser"}, Sites: []int64{22},
	}, tabs(participants.StatusHired))
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]

	require.Len(t, row.StatusInfos, 1)
	assert.Equal(t, participants.StatusHired, row.StatusInfos[0].Status)
	assert.Equal(t, "e2", row.StatusInfos[0].EmployerID)
	assert.Equal(t, "Clinic B", row.StatusInfos[0].Data["siteName"])
	require.NotNil(t, row.StatusInfos[0].EmployerInfo)
	assert.Equal(t, "Lee", row.StatusInfos[0].EmployerInfo.FirstName)

	require.Len(t, row.RosStatuses, 2)
	assert.Equal(t, latest, row.RosStatuses[0].ID)
	assert.Equal(t, first, row.RosStatuses[1].ID)
	assert.Equal(t, "Clinic B", row.RosStatuses[0].Data["siteName"])

	// An organization without the hiring site sees neither the row nor the
	// milestones.
	res = find(t, fx.db, employer("e1", 11), tabs(participants.StatusHired))
	assert.Empty(t, res.Rows)
}

func TestMultiOrgEngagementSplitsRows(t *testing.T) {
	fx := newPortalFixture(t)

	p := fx.participant(nil)
	fx.seed.Status(p, "e1", "prospecting", true, 11, nil)
	fx.seed.Status(p, "e3", "interviewing", true, 11, nil)

	res := find(t, fx.db, employer("e1", 11), tabs(participants.StatusProspecting))

	// One matching participant, split into one row per visible engagement.
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Rows, 2)
	for _, row := range res.Rows {
		assert.Equal(t, p, row.ID)
		assert.Len(t, row.StatusInfos, 1)
	}
	employers := []string{res.Rows[0].StatusInfos[0].EmployerID, res.Rows[1].StatusInfos[0].EmployerID}
	assert.ElementsMatch(t, []string{"e1", "e3"}, employers)
}

func TestPrivilegedViewCarriesAllStatuses(t *testing.T) {
	fx := newPortalFixture(t)

	p := fx.participant(nil)
	fx.seed.Status(p, "e1", "prospecting", true, 11, nil)
	fx.seed.Status(p, "e2", "hired", true, 22, nil)
	fx.seed.Ros(p, 22, true, map[string]any{"date": "2024-06-01"})

	res := find(t, fx.db, moh, tabs(participants.StatusHired))
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]

	// No splitting for privileged roles: both engagements on one row, and the
	// milestones pass through without the site gate.
	assert.Len(t, row.StatusInfos, 2)
	require.Len(t, row.RosStatuses, 1)
	assert.True(t, row.RosStatuses[0].IsCurrent)
}

func TestProgramPinningForMHSUEmployer(t *testing.T) {
	fx := newPortalFixture(t)

	mhaw := fx.seed.Participant(map[string]any{
		"preferredRegions": []any{"Fraser"},
		"program":          "MHAW",
	})
	fx.seed.Status(mhaw, "e1", "prospecting", true, 11, nil)

	hca := fx.participant(nil)
	fx.seed.Status(hca, "e1", "prospecting", true, 11, nil)

	mhsu := employer("e1", 11)
	mhsu.MHSUEmployer = true

	// The caller asks for HCA; the pinned program wins.
	q := tabs(participants.StatusProspecting)
	q.Program = "HCA"
	res := find(t, fx.db, mhsu, q)
	assert.Equal(t, []int64{mhaw}, rowIDs(res))

	// A standard employer is pinned the other way.
	res = find(t, fx.db, employer("e1", 11), tabs(participants.StatusProspecting))
	assert.Equal(t, []int64{hca}, rowIDs(res))
}

func TestRegionTamperingNarrowsInsteadOfWidening(t *testing.T) {
	fx := newPortalFixture(t)

	northern := fx.seed.Participant(map[string]any{
		"preferredRegions": []any{"Northern"},
		"program":          "HCA",
	})
	fx.seed.Status(northern, "e1", "prospecting", true, 11, nil)

	q := tabs(participants.StatusProspecting)
	q.Region = "Northern"
	res := find(t, fx.db, employer("e1", 11), q)
	assert.Empty(t, res.Rows)

	// Privileged roles filter by any region.
	res = find(t, fx.db, moh, participants.Query{Region: "Northern"})
	assert.Equal(t, []int64{northern}, rowIDs(res))
}

func TestPaginationIsDeterministic(t *testing.T) {
	fx := newPortalFixture(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, fx.participant(nil))
	}

	var paged []int64
	for offset := 0; offset < 5; offset += 2 {
		res := find(t, fx.db, moh, participants.Query{
			Pagination: participants.Pagination{Offset: offset, PageSize: 2},
		})
		assert.Equal(t, int64(5), res.Total)
		paged = append(paged, rowIDs(res)...)
	}

	// Every participant appears exactly once, in identifier order.
	assert.Equal(t, ids, paged)
}

func TestAttributeSortAndFallback(t *testing.T) {
	fx := newPortalFixture(t)

	z := fx.participant(map[string]any{"lastName": "Zhou"})
	a := fx.participant(map[string]any{"lastName": "Abe"})
	m := fx.participant(map[string]any{"lastName": "Mori"})

	res := find(t, fx.db, moh, participants.Query{SortField: "lastName"})
	assert.Equal(t, []int64{a, m, z}, rowIDs(res))

	// Unknown sort fields fall back to identifier order.
	res = find(t, fx.db, moh, participants.Query{SortField: "not_a_field"})
	assert.Equal(t, []int64{z, a, m}, rowIDs(res))

	res = find(t, fx.db, moh, participants.Query{
		SortField:  "lastName",
		Pagination: participants.Pagination{Direction: "desc"},
	})
	assert.Equal(t, []int64{z, m, a}, rowIDs(res))
}

func TestDistanceSortPutsUnknownLast(t *testing.T) {
	fx := newPortalFixture(t)

	far := fx.participant(nil)
	fx.seed.Distance(far, 11, 500)
	near := fx.participant(nil)
	fx.seed.Distance(near, 11, 200)
	unknown := fx.participant(nil)

	res := find(t, fx.db, employer("e1", 11), participants.Query{
		SiteIDDistance: 11,
		SortField:      "distance",
	})
	require.Equal(t, []int64{near, far, unknown}, rowIDs(res))

	require.NotNil(t, res.Rows[0].Distance)
	assert.Equal(t, 200.0, *res.Rows[0].Distance)
	assert.Nil(t, res.Rows[2].Distance)
}

func TestMissingInfrastructureErrors(t *testing.T) {
	fx := newPortalFixture(t)

	_, err := fx.db.Exec("DROP VIEW participants_status_infos")
	require.NoError(t, err)

	_, err = participants.NewFinder(fx.db).FindParticipants(context.Background(), moh, participants.Query{})
	require.Error(t, err)
	assert.True(t, participants.IsMissingViewErr(err), "expected missing-view error, got %v", err)

	empty := testutil.EmptyDB(t)
	_, err = participants.NewFinder(empty).FindParticipants(context.Background(), employer("e1", 11), participants.Query{})
	require.Error(t, err)
	assert.True(t, participants.IsMissingRelationErr(err), "expected missing-relation error, got %v", err)
}

func TestRunInsideTransaction(t *testing.T) {
	fx := newPortalFixture(t)

	tx, err := fx.db.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO participants (body) VALUES ('{"preferredRegions": ["Fraser"], "program": "HCA"}')`)
	require.NoError(t, err)

	// A finder over the transaction observes its uncommitted writes.
	res, err := participants.NewFinder(tx).FindParticipants(context.Background(), moh, participants.Query{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}
