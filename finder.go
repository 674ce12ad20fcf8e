package participants

import (
	"context"
	"slices"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/careaccess/participants/sqlgen"
)

// Relations touched by the pipeline (read-only).
const (
	participantsRelation = "participants"
	statusRelation       = "participants_status"
	rosRelation          = "ros_status"
	sitesRelation        = "employer_sites"
	usersRelation        = "users"
	distanceRelation     = "participants_distance"
	statusInfosView      = "participants_status_infos"
)

// Join aliases registered on the composed statement. Names are unique per
// query context; ordering keys may only reference aliases registered before
// the sort plan is built.
const (
	aliasBase        = "p"
	aliasEngagements = "eng"
	aliasPrimaryEng  = "engp"
	aliasPrimarySite = "engsite"
	aliasPrimaryUser = "enguser"
	aliasHiredGlobal = "hg"
	aliasRos         = "ros"
	aliasDistance    = "dist"
)

// Finder is the entry point for participant queries. Finders are lightweight
// and safe to share across goroutines: they hold only the database handle,
// the logger, and the environment flag. Each query builds its own plan value,
// so concurrent requests never share mutable state.
type Finder struct {
	q          Querier
	log        *zap.Logger
	production bool
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the structured logger used for diagnostic output.
// By default a nop logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		f.log = l
	}
}

// WithProduction marks the finder as running in production. In production
// the build-only diagnostic re-render of a failed query is skipped; the
// error is still wrapped and returned either way.
func WithProduction() Option {
	return func(f *Finder) {
		f.production = true
	}
}

// NewFinder creates a finder over a database handle. The Querier interface
// is satisfied by *sql.DB, *sql.Tx, and *sql.Conn, so a finder can run
// inside an open transaction and observe its uncommitted writes.
func NewFinder(q Querier, opts ...Option) *Finder {
	f := &Finder{
		q:   q,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// For binds the base relation for the given user and returns the first
// pipeline stage. Privileged users read the precomputed status-infos view;
// everyone else reads the raw participants relation, because their
// visibility rules require row-level predicates unavailable in the view.
func (f *Finder) For(user User) ParticipantsFinder {
	return ParticipantsFinder{
		f: f,
		plan: queryPlan{
			user:       user,
			privileged: user.Privileged(),
		},
	}
}

// FindParticipants runs the full pipeline for one request bundle. It is the
// single entry point exposed to the transport layer; the staged methods
// remain available for callers composing queries incrementally.
func (f *Finder) FindParticipants(ctx context.Context, user User, q Query) (*Result, error) {
	return f.For(user).
		FilterRegion(q.Region).
		FilterProgram(q.Program).
		FilterParticipantFields(q.Fields).
		FilterExternalFields(q.StatusTabs, q.SiteIDDistance).
		Paginate(q.Pagination, q.SortField).
		Run(ctx)
}

// ParticipantsFinder is the pipeline entry stage: base relation bound,
// no criteria applied yet.
type ParticipantsFinder struct {
	f    *Finder
	plan queryPlan
}

// bodyText returns the text extraction p.body->>'field'.
func bodyText(field string) sqlgen.Expr {
	return sqlgen.JSONText{Doc: sqlgen.Col{Table: aliasBase, Column: "body"}, Field: field}
}

// bodyField returns the jsonb access p.body->'field'.
func bodyField(field string) sqlgen.Expr {
	return sqlgen.JSONField{Doc: sqlgen.Col{Table: aliasBase, Column: "body"}, Field: field}
}

// FilterRegion applies the coarse region gate.
//
// Platform-wide roles may filter by any region (or none). For everyone else
// a supplied region that is not among the user's entitled regions is
// silently dropped in favour of a must-match-entitled-regions predicate:
// a caller cannot widen their own visibility by supplying an arbitrary
// region string.
func (pf ParticipantsFinder) FilterRegion(region string) RegionsFilteredFinder {
	p := pf.plan.clone()
	preferred := bodyField("preferredRegions")

	switch {
	case p.user.Privileged():
		if region != "" {
			p.criteria = append(p.criteria, sqlgen.JSONBHas{Doc: preferred, Value: region})
		}
	case region != "" && slices.Contains(p.user.Regions, region):
		p.criteria = append(p.criteria, sqlgen.JSONBHas{Doc: preferred, Value: region})
	default:
		// Unentitled or absent filter: pin to the entitled set. An empty
		// entitlement list yields an empty result set, never an error.
		p.criteria = append(p.criteria, sqlgen.JSONBHasAny{
			Doc:   preferred,
			Array: pq.Array(p.user.Regions),
		})
	}

	return RegionsFilteredFinder{f: pf.f, plan: p}
}

// RegionsFilteredFinder has the region gate applied and accepts the program
// gate and leaf field filters.
type RegionsFilteredFinder struct {
	f    *Finder
	plan queryPlan
}

// FilterProgram applies the program-variant gate. The stage is optional:
// skipping it (or passing an empty filter as a privileged user) leaves the
// criteria unchanged.
//
// A standard employer is hard-pinned to program HCA and an MHSU-specialized
// employer to MHAW regardless of caller input; this is an authorization rule,
// not a UI default. Privileged roles and health authorities filter freely.
func (rf RegionsFilteredFinder) FilterProgram(program string) RegionsFilteredFinder {
	p := rf.plan.clone()
	programField := bodyText("program")

	switch {
	case p.user.MHSUEmployer:
		p.criteria = append(p.criteria, sqlgen.Eq{Left: programField, Right: sqlgen.Arg{Value: "MHAW"}})
	case p.user.Employer:
		p.criteria = append(p.criteria, sqlgen.Eq{Left: programField, Right: sqlgen.Arg{Value: "HCA"}})
	case program != "":
		p.criteria = append(p.criteria, sqlgen.Eq{Left: programField, Right: sqlgen.Arg{Value: program}})
	}

	return RegionsFilteredFinder{f: rf.f, plan: p}
}

// FilterParticipantFields ANDs one predicate per present leaf filter.
// Absent filters contribute nothing, so an empty FieldFilters is a no-op.
func (rf RegionsFilteredFinder) FilterParticipantFields(filters FieldFilters) FieldsFilteredFinder {
	p := rf.plan.clone()

	if filters.ID != 0 {
		p.criteria = append(p.criteria, sqlgen.Eq{
			Left:  sqlgen.Col{Table: aliasBase, Column: "id"},
			Right: sqlgen.Arg{Value: filters.ID},
		})
	}
	if filters.PostalCodePrefix != "" {
		p.criteria = append(p.criteria, sqlgen.PrefixILike{Expr: bodyText("postalCode"), Prefix: filters.PostalCodePrefix})
	}
	if filters.LastNamePrefix != "" {
		p.criteria = append(p.criteria, sqlgen.PrefixILike{Expr: bodyText("lastName"), Prefix: filters.LastNamePrefix})
	}
	if filters.EmailPrefix != "" {
		p.criteria = append(p.criteria, sqlgen.PrefixILike{Expr: bodyText("emailAddress"), Prefix: filters.EmailPrefix})
	}
	if filters.InterestedOnly {
		interested := bodyText("interested")
		p.criteria = append(p.criteria, sqlgen.Or(
			sqlgen.IsNull{Expr: interested},
			sqlgen.Not(sqlgen.In{Expr: interested, Values: []string{"no", "withdrawn"}}),
		))
	}
	if filters.IndigenousOnly {
		// Older records carry a boolean flag; newer ones a text identity
		// field. Either representation satisfies the filter.
		p.criteria = append(p.criteria, sqlgen.Or(
			sqlgen.IsTrue{Expr: sqlgen.Raw("(" + aliasBase + ".body->'isIndigenous')::boolean")},
			sqlgen.Eq{Left: bodyText("indigenousIdentity"), Right: sqlgen.Arg{Value: "yes"}},
		))
	}
	if filters.LivedExperienceOnly {
		p.criteria = append(p.criteria, sqlgen.IsTrue{
			Expr: sqlgen.Raw("(" + aliasBase + ".body->'livedExperience')::boolean"),
		})
	}
	if filters.WithdrawnOnly {
		p.criteria = append(p.criteria, sqlgen.Eq{Left: bodyText("interested"), Right: sqlgen.Arg{Value: "withdrawn"}})
	}

	return FieldsFilteredFinder{f: rf.f, plan: p}
}
