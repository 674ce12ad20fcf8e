// Package participants implements the participant query-composition and
// access-control pipeline for the hiring portal.
//
// A single request flows through a linear chain of finder stages. Each stage
// consumes the previous stage's value and returns the next stage's type, so
// illegal orderings (paginating before authorization filters, for example)
// cannot be expressed:
//
//	finder := participants.NewFinder(db)
//	res, err := finder.For(user).
//		FilterRegion("Fraser").
//		FilterProgram("").
//		FilterParticipantFields(participants.FieldFilters{LastNamePrefix: "Sm"}).
//		FilterExternalFields([]participants.Status{participants.StatusHired}, 0).
//		Paginate(participants.Pagination{PageSize: 25}, "lastName").
//		Run(ctx)
//
// The stages build an intermediate representation (package sqlgen) of one
// composed SELECT: a boolean criteria tree enforcing row-level, role-dependent
// visibility, a set of LEFT LATERAL enrichment joins, and a deterministic
// sort/pagination plan. Run executes the statement and reshapes the joined
// rows into one normalized record per visible participant-engagement.
//
// The criteria tree is the only enforcement of who may see which engagement.
// Privileged roles (superuser, ministry of health) read a precomputed
// aggregate view; employer and health-authority roles read the raw relations
// with per-row visibility predicates.
//
// # Convenience entry point
//
// Callers that hold the full request bundle can use FindParticipants, which
// runs the stages in the fixed internal order:
//
//	res, err := finder.FindParticipants(ctx, user, participants.Query{...})
package participants

import (
	"context"
	"database/sql"
)

// Status is a participant engagement status. For a given participant and
// employer at most one status record is current.
type Status string

// The closed status enumeration.
const (
	StatusOpen                   Status = "open"
	StatusProspecting            Status = "prospecting"
	StatusInterviewing           Status = "interviewing"
	StatusOfferMade              Status = "offer_made"
	StatusHired                  Status = "hired"
	StatusRejected               Status = "rejected"
	StatusArchived               Status = "archived"
	StatusPendingAcknowledgement Status = "pending_acknowledgement"
	StatusROS                    Status = "ros"
	StatusRejectAcknowledgement  Status = "reject_acknowledgement"
)

// String returns the status as stored in participants_status.status.
func (s Status) String() string {
	return string(s)
}

// inProgressStatuses is the "in progress" tab grouping.
var inProgressStatuses = []Status{StatusProspecting, StatusInterviewing, StatusOfferMade}

// User is the resolved identity a query runs as. It is produced by the
// authentication collaborator and is immutable for the duration of one query.
//
// The role flags are mutually informative rather than exclusive: an MHSU
// employer also carries Employer semantics, and a superuser subsumes
// ministry-of-health visibility.
type User struct {
	ID string

	Superuser        bool
	MinistryOfHealth bool
	HealthAuthority  bool
	Employer         bool
	MHSUEmployer     bool

	// Regions the user is entitled to see participants for.
	Regions []string
	// Sites the user operates, as employer_sites ids.
	Sites []int64
}

// Privileged reports whether the user has platform-wide visibility and
// therefore queries the precomputed aggregate view instead of the raw
// relations.
func (u User) Privileged() bool {
	return u.Superuser || u.MinistryOfHealth
}

// FieldFilters enumerates the leaf participant-attribute filters. Absent
// filters (zero values) contribute nothing; each present filter ANDs one
// predicate onto the criteria tree.
type FieldFilters struct {
	// ID restricts to a single participant when non-zero.
	ID int64
	// PostalCodePrefix, LastNamePrefix and EmailPrefix match
	// case-insensitively against the start of the stored value.
	PostalCodePrefix string
	LastNamePrefix   string
	EmailPrefix      string
	// InterestedOnly excludes participants who declined or withdrew interest.
	InterestedOnly bool
	// IndigenousOnly matches either the legacy boolean flag or the current
	// identity field, for compatibility with older records.
	IndigenousOnly bool
	// LivedExperienceOnly restricts to participants with lived experience.
	LivedExperienceOnly bool
	// WithdrawnOnly restricts to participants who withdrew interest.
	WithdrawnOnly bool
}

// Pagination is the limit/offset plan for one page of results.
// Limit/offset pagination degrades on very large result sets, but most
// sortable columns have no natural cursor ordering.
type Pagination struct {
	Offset   int
	PageSize int
	// Direction is "asc" or "desc"; anything else means ascending.
	Direction string
}

// Query is the full request bundle accepted by FindParticipants. The HTTP
// layer is responsible for parsing query-string scalars and arrays into this
// structure.
type Query struct {
	Region         string
	Program        string
	Fields         FieldFilters
	StatusTabs     []Status
	SiteIDDistance int64
	Pagination     Pagination
	SortField      string
}

// EmployerInfo is the reduced employer identity attached to a status record.
type EmployerInfo struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// StatusInfo is one normalized engagement status entry in a result row.
type StatusInfo struct {
	ID           int64          `json:"id"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	EmployerID   string         `json:"employerId,omitempty"`
	SiteID       int64          `json:"siteId,omitempty"`
	Status       Status         `json:"status"`
	Data         map[string]any `json:"data,omitempty"`
	EmployerInfo *EmployerInfo  `json:"employerInfo,omitempty"`
}

// RosStatus is one return-of-service milestone entry in a result row.
type RosStatus struct {
	ID        int64          `json:"id"`
	SiteID    int64          `json:"siteId,omitempty"`
	IsCurrent bool           `json:"isCurrent"`
	CreatedAt string         `json:"createdAt,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Row is one visible participant-engagement. A participant with concurrent
// engagements under several employers appears as several rows, each exposing
// only its own engagement record.
type Row struct {
	ID int64
	// Attributes is the participant's attribute document.
	Attributes map[string]any
	// StatusInfos are the engagement records visible to the caller.
	StatusInfos []StatusInfo
	// RosStatuses are return-of-service milestones, newest first. Suppressed
	// for employer roles without a relationship to the hiring site.
	RosStatuses []RosStatus
	// Distance from the reference site, present only when a site-distance
	// join was requested and a distance row exists.
	Distance *float64
}

// Result is a page of rows plus the total matching count before pagination.
type Result struct {
	Rows  []Row
	Total int64
}

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
//
// The minimal interface lets the finder run inside transaction contexts
// without requiring a full database connection: a finder built over *sql.Tx
// observes uncommitted writes in the same transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
