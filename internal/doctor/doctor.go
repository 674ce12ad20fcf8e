// Package doctor provides health checks for the participant query
// infrastructure.
//
// The doctor command validates that the database carries everything the
// finder depends on: the raw relations, the aggregate view read by
// privileged roles, and the uniqueness guarantee for current status records.
//
// Example usage:
//
//	d := doctor.New(db)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Relations", "Aggregate View").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	// Print each category
	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				// Indent details
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	// Print summary
	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// relationColumns is the column contract the finder's statements depend on.
var relationColumns = map[string][]string{
	"participants":          {"id", "body"},
	"participants_status":   {"id", "participant_id", "employer_id", "status", "current", "site_id", "data", "created_at"},
	"ros_status":            {"id", "participant_id", "site_id", "is_current", "data", "created_at"},
	"employer_sites":        {"id", "name"},
	"users":                 {"id", "body", "sites"},
	"participants_distance": {"participant_id", "site_id", "distance"},
}

// viewName is the aggregate view read by privileged roles.
const viewName = "participants_status_infos"

// Doctor performs health checks on the participant query infrastructure.
type Doctor struct {
	db *sql.DB
}

// New creates a new Doctor instance.
func New(db *sql.DB) *Doctor {
	return &Doctor{db: db}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	allPresent, err := d.checkRelations(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("checking relations: %w", err)
	}
	if err := d.checkView(ctx, report); err != nil {
		return nil, fmt.Errorf("checking aggregate view: %w", err)
	}
	if allPresent {
		if err := d.checkCurrentUniqueness(ctx, report); err != nil {
			return nil, fmt.Errorf("checking current-status uniqueness: %w", err)
		}
		if err := d.checkDataHealth(ctx, report); err != nil {
			return nil, fmt.Errorf("checking data health: %w", err)
		}
	}

	return report, nil
}

// checkRelations validates that each relation exists with the expected
// columns. Returns whether every relation is present.
func (d *Doctor) checkRelations(ctx context.Context, report *Report) (bool, error) {
	allPresent := true
	for _, name := range []string{
		"participants", "participants_status", "ros_status",
		"employer_sites", "users", "participants_distance",
	} {
		cols, exists, err := d.relationInfo(ctx, name)
		if err != nil {
			return false, err
		}
		if !exists {
			allPresent = false
			report.AddCheck(CheckResult{
				Category: "Relations",
				Name:     name,
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s does not exist", name),
				FixHint:  "Run 'participants migrate' to create the schema",
			})
			continue
		}

		colSet := make(map[string]bool)
		for _, c := range cols {
			colSet[c] = true
		}
		var missing []string
		for _, want := range relationColumns[name] {
			if !colSet[want] {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			report.AddCheck(CheckResult{
				Category: "Relations",
				Name:     name,
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s is missing columns: %s", name, strings.Join(missing, ", ")),
				Details:  fmt.Sprintf("Found columns: %s", strings.Join(cols, ", ")),
				FixHint:  "Run 'participants migrate' to update the schema",
			})
			continue
		}

		report.AddCheck(CheckResult{
			Category: "Relations",
			Name:     name,
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s exists with required columns", name),
		})
	}
	return allPresent, nil
}

// checkView validates the aggregate view privileged queries read.
func (d *Doctor) checkView(ctx context.Context, report *Report) error {
	var relKind string
	err := d.db.QueryRowContext(ctx, `
		SELECT c.relkind
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1
		AND n.nspname = current_schema()
		AND c.relkind IN ('v', 'm')
	`, viewName).Scan(&relKind)

	if err == sql.ErrNoRows {
		report.AddCheck(CheckResult{
			Category: "Aggregate View",
			Name:     "exists",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%s does not exist", viewName),
			Details:  "Superuser and ministry-of-health queries read this view",
			FixHint:  "Run 'participants migrate' to create it",
		})
		return nil
	}
	if err != nil {
		return err
	}

	kind := "view"
	if relKind == "m" {
		kind = "materialized view"
	}
	report.AddCheck(CheckResult{
		Category: "Aggregate View",
		Name:     "exists",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%s exists (%s)", viewName, kind),
	})

	// Materialized views go stale between refreshes.
	if relKind == "m" {
		report.AddCheck(CheckResult{
			Category: "Aggregate View",
			Name:     "refresh",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%s is a materialized view", viewName),
			Details:  "Materialized views require manual refresh to see data changes",
			FixHint:  "Ensure you have a refresh strategy (e.g., REFRESH MATERIALIZED VIEW CONCURRENTLY)",
		})
	}

	return nil
}

// checkCurrentUniqueness verifies that no participant/employer pair carries
// more than one current status record. The partial unique index enforces
// this, but the check catches databases created before the index existed.
func (d *Doctor) checkCurrentUniqueness(ctx context.Context, report *Report) error {
	var violations int64
	err := d.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM (
			SELECT participant_id, employer_id
			FROM participants_status
			WHERE current
			GROUP BY participant_id, employer_id
			HAVING count(*) > 1
		) dup
	`).Scan(&violations)
	if err != nil {
		return err
	}

	if violations > 0 {
		report.AddCheck(CheckResult{
			Category: "Status Records",
			Name:     "current_unique",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d participant/employer pairs carry multiple current statuses", violations),
			Details:  "Queries assume at most one current status per participant and employer",
			FixHint:  "Clear stale current flags, then apply the participants_status_current_uq index",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Status Records",
			Name:     "current_unique",
			Status:   StatusPass,
			Message:  "At most one current status per participant/employer pair",
		})
	}

	return nil
}

// checkDataHealth reports row counts and dangling references.
func (d *Doctor) checkDataHealth(ctx context.Context, report *Report) error {
	var participants, statuses int64
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM participants`).Scan(&participants); err != nil {
		return err
	}
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM participants_status`).Scan(&statuses); err != nil {
		return err
	}

	if participants == 0 {
		report.AddCheck(CheckResult{
			Category: "Data Health",
			Name:     "data",
			Status:   StatusWarn,
			Message:  "participants is empty",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Data Health",
			Name:     "data",
			Status:   StatusPass,
			Message:  fmt.Sprintf("%d participants, %d status records", participants, statuses),
		})
	}

	// Status records whose employer has no users row lose their employerInfo
	// enrichment.
	var orphanEmployers int64
	err := d.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT s.employer_id)
		FROM participants_status s
		LEFT JOIN users u ON u.id = s.employer_id
		WHERE s.current AND u.id IS NULL
	`).Scan(&orphanEmployers)
	if err != nil {
		return err
	}
	if orphanEmployers > 0 {
		report.AddCheck(CheckResult{
			Category: "Data Health",
			Name:     "employers",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d employer ids on current statuses have no users row", orphanEmployers),
			Details:  "Affected status records carry no employer enrichment",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Data Health",
			Name:     "employers",
			Status:   StatusPass,
			Message:  "All current statuses reference known employers",
		})
	}

	return nil
}

// relationInfo returns the columns of a table or view, and whether it exists.
func (d *Doctor) relationInfo(ctx context.Context, name string) ([]string, bool, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE c.relname = $1
		AND n.nspname = current_schema()
		AND a.attnum > 0
		AND NOT a.attisdropped
		ORDER BY a.attnum
	`, name)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, false, err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return cols, len(cols) > 0, nil
}
