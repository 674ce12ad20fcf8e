package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	participants "github.com/careaccess/participants"
	"github.com/careaccess/participants/internal/cli"
)

var (
	queryDB string

	// Caller identity
	queryAsRole  string
	queryUserID  string
	queryRegions []string
	querySites   []int64

	// Filters
	queryRegion         string
	queryProgram        string
	queryTabs           []string
	queryParticipantID  int64
	queryPostalPrefix   string
	queryLastNamePrefix string
	queryEmailPrefix    string
	queryInterested     bool
	queryIndigenous     bool
	queryLived          bool
	queryWithdrawn      bool

	// Sort and pagination
	querySortField    string
	queryDirection    string
	queryOffset       int
	queryPageSize     int
	querySiteDistance int64

	queryExplain bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a participant query",
	Long: `Run a participant query as a given user and print the result page as JSON.

The caller identity is assembled from --as, --user, --regions, and --sites.
Visibility follows the role: superuser and moh read the aggregate view,
employer roles read the raw relations with per-row criteria.`,
	Example: `  # Hired participants visible to an employer
  participants query --as employer --user u1 --sites 11,12 --tabs hired

  # Ministry-of-health view of the open pool, sorted by last name
  participants query --as moh --tabs open --sort lastName

  # Print the composed SQL without executing it
  participants query --as employer --user u1 --sites 11 --tabs hired --explain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := buildUser()
		if err != nil {
			return err
		}
		query := buildQuery()

		if queryExplain {
			return explainQuery(user, query)
		}

		dsn, err := resolveDSN(queryDB)
		if err != nil {
			return err
		}
		return runQuery(dsn, user, query)
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryDB, "db", "", "database URL")

	f.StringVar(&queryAsRole, "as", "", "caller role: superuser, moh, health-authority, employer, mhsu-employer")
	f.StringVar(&queryUserID, "user", "", "caller user id")
	f.StringSliceVar(&queryRegions, "regions", nil, "regions the caller is entitled to")
	f.Int64SliceVar(&querySites, "sites", nil, "site ids the caller operates")

	f.StringVar(&queryRegion, "region", "", "filter by preferred region")
	f.StringVar(&queryProgram, "program", "", "filter by program")
	f.StringSliceVar(&queryTabs, "tabs", nil, "status tabs (open, prospecting, hired, archived, rejected, ros, ...)")
	f.Int64Var(&queryParticipantID, "id", 0, "filter to a single participant id")
	f.StringVar(&queryPostalPrefix, "postal-code", "", "postal code prefix filter")
	f.StringVar(&queryLastNamePrefix, "last-name", "", "last name prefix filter")
	f.StringVar(&queryEmailPrefix, "email", "", "email prefix filter")
	f.BoolVar(&queryInterested, "interested", false, "only participants who have not declined or withdrawn")
	f.BoolVar(&queryIndigenous, "indigenous", false, "only participants identifying as Indigenous")
	f.BoolVar(&queryLived, "lived-experience", false, "only participants with lived experience")
	f.BoolVar(&queryWithdrawn, "withdrawn", false, "only participants who withdrew interest")

	f.StringVar(&querySortField, "sort", "", "sort field (unknown fields fall back to id)")
	f.StringVar(&queryDirection, "direction", "asc", "sort direction: asc or desc")
	f.IntVar(&queryOffset, "offset", 0, "pagination offset")
	f.IntVar(&queryPageSize, "page-size", 0, "page size (default from config)")
	f.Int64Var(&querySiteDistance, "site-distance", 0, "site id to compute distance from")

	f.BoolVar(&queryExplain, "explain", false, "print the composed SQL and binds without executing")

	_ = queryCmd.MarkFlagRequired("as")
}

func buildUser() (participants.User, error) {
	user := participants.User{
		ID:      queryUserID,
		Regions: queryRegions,
		Sites:   querySites,
	}
	switch queryAsRole {
	case "superuser":
		user.Superuser = true
	case "moh":
		user.MinistryOfHealth = true
	case "health-authority":
		user.HealthAuthority = true
	case "employer":
		user.Employer = true
	case "mhsu-employer":
		user.Employer = true
		user.MHSUEmployer = true
	default:
		return participants.User{}, cli.QueryError(fmt.Sprintf("unknown role %q", queryAsRole), nil)
	}
	if !user.Privileged() && user.ID == "" {
		return participants.User{}, cli.QueryError("--user is required for employer and health-authority roles", nil)
	}
	return user, nil
}

func buildQuery() participants.Query {
	tabs := make([]participants.Status, 0, len(queryTabs))
	for _, t := range queryTabs {
		tabs = append(tabs, participants.Status(t))
	}

	pageSize := queryPageSize
	if pageSize == 0 {
		pageSize = cfg.Query.PageSize
	}

	return participants.Query{
		Region:  queryRegion,
		Program: queryProgram,
		Fields: participants.FieldFilters{
			ID:                  queryParticipantID,
			PostalCodePrefix:    queryPostalPrefix,
			LastNamePrefix:      queryLastNamePrefix,
			EmailPrefix:         queryEmailPrefix,
			InterestedOnly:      queryInterested,
			IndigenousOnly:      queryIndigenous,
			LivedExperienceOnly: queryLived,
			WithdrawnOnly:       queryWithdrawn,
		},
		StatusTabs:     tabs,
		SiteIDDistance: querySiteDistance,
		Pagination: participants.Pagination{
			Offset:    queryOffset,
			PageSize:  pageSize,
			Direction: queryDirection,
		},
		SortField: querySortField,
	}
}

// explainQuery renders the composed statement without touching the database.
func explainQuery(user participants.User, query participants.Query) error {
	finder := participants.NewFinder(nil)
	sqlText, binds := finder.For(user).
		FilterRegion(query.Region).
		FilterProgram(query.Program).
		FilterParticipantFields(query.Fields).
		FilterExternalFields(query.StatusTabs, query.SiteIDDistance).
		Paginate(query.Pagination, query.SortField).
		SQL()

	fmt.Println(sqlText)
	for i, v := range binds {
		fmt.Printf("-- $%d = %v\n", i+1, v)
	}
	return nil
}

func runQuery(dsn string, user participants.User, query participants.Query) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	logger, err := buildLogger()
	if err != nil {
		return cli.GeneralError("building logger", err)
	}
	defer func() { _ = logger.Sync() }()

	opts := []participants.Option{participants.WithLogger(logger)}
	if cfg.Production {
		opts = append(opts, participants.WithProduction())
	}
	finder := participants.NewFinder(db, opts...)

	res, err := finder.FindParticipants(context.Background(), user, query)
	if err != nil {
		return cli.QueryError("running query", err)
	}

	out := struct {
		Total int64              `json:"total"`
		Rows  []participants.Row `json:"rows"`
	}{Total: res.Total, Rows: res.Rows}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func buildLogger() (*zap.Logger, error) {
	if cfg.Production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
