package participants

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/careaccess/participants/sqlgen"
)

// statement assembles the one composed SELECT the plan describes. The total
// matching count rides along as a window aggregate, so pagination never needs
// a second counting query.
func (p queryPlan) statement() sqlgen.SelectStmt {
	cols := []sqlgen.Expr{
		sqlgen.Col{Table: aliasBase, Column: "id"},
		sqlgen.Col{Table: aliasBase, Column: "body"},
		sqlgen.Raw("count(*) OVER () AS total"),
	}
	if p.privileged {
		cols = append(cols,
			sqlgen.Col{Table: aliasBase, Column: "status_infos"},
			sqlgen.Col{Table: aliasBase, Column: "ros_infos"},
		)
	} else {
		if p.hasEngagements {
			cols = append(cols, sqlgen.Col{Table: aliasEngagements, Column: "records"})
		}
		if p.hasHiredGlobal {
			cols = append(cols,
				sqlgen.Col{Table: aliasHiredGlobal, Column: "record"},
				sqlgen.Alias{Expr: sqlgen.Col{Table: aliasHiredGlobal, Column: "site_id"}, Name: "hired_site_id"},
			)
		}
		if p.hasRos {
			cols = append(cols, sqlgen.Col{Table: aliasRos, Column: "records"})
		}
		if p.hasDistance {
			cols = append(cols, sqlgen.Col{Table: aliasDistance, Column: "distance"})
		}
	}

	var where sqlgen.Expr
	if len(p.criteria) > 0 {
		where = sqlgen.And(p.criteria...)
	}

	return sqlgen.SelectStmt{
		Columns: cols,
		From:    p.baseRelation(),
		Alias:   aliasBase,
		Joins:   p.joins,
		Where:   where,
		OrderBy: p.order,
		Limit:   p.limit,
		Offset:  p.offset,
	}
}

// storeRow is one scanned result row before reshaping.
type storeRow struct {
	id          int64
	body        []byte
	engRecords  []byte
	hiredRecord []byte
	hiredSiteID sql.NullInt64
	rosRecords  []byte
	distance    sql.NullFloat64
	statusInfos []byte
	rosInfos    []byte
}

// SQL renders the composed statement without executing it, returning the
// query text and its bind values. Used by diagnostics and the CLI's explain
// mode; Run performs the same rendering internally.
func (pf PaginatedFinder) SQL() (string, []any) {
	return pf.plan.statement().Build()
}

// Run executes the composed query, then flattens, enriches, and normalizes
// the joined rows into the public participant view.
//
// Cancellation follows ctx: the store call is issued with the caller's
// context, so a disconnecting client aborts the in-flight query. No partial
// results are returned on failure.
func (pf PaginatedFinder) Run(ctx context.Context) (*Result, error) {
	stmt := pf.plan.statement()
	sqlText, args := stmt.Build()

	rows, err := pf.f.q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, pf.f.fail("execute", pf.plan, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		scanned []storeRow
		total   int64
	)
	for rows.Next() {
		var r storeRow
		targets := []any{&r.id, &r.body, &total}
		if pf.plan.privileged {
			targets = append(targets, &r.statusInfos, &r.rosInfos)
		} else {
			if pf.plan.hasEngagements {
				targets = append(targets, &r.engRecords)
			}
			if pf.plan.hasHiredGlobal {
				targets = append(targets, &r.hiredRecord, &r.hiredSiteID)
			}
			if pf.plan.hasRos {
				targets = append(targets, &r.rosRecords)
			}
			if pf.plan.hasDistance {
				targets = append(targets, &r.distance)
			}
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, pf.f.fail("scan", pf.plan, err)
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pf.f.fail("iterate", pf.plan, err)
	}

	out := make([]Row, 0, len(scanned))
	for _, r := range scanned {
		reshaped, err := reshapeRow(r, pf.plan.user, pf.plan.privileged)
		if err != nil {
			return nil, pf.f.fail("reshape", pf.plan, err)
		}
		out = append(out, reshaped...)
	}

	return &Result{Rows: out, Total: total}, nil
}

// fail wraps a store failure with a stage-identifying message and maps
// missing-relation errors to sentinels. Outside production the composed
// statement is re-rendered build-only and logged for diagnosis; the query is
// not re-executed.
func (f *Finder) fail(stage string, p queryPlan, err error) error {
	if !f.production {
		sqlText, args := p.statement().Build()
		f.log.Error("participant query failed",
			zap.String("query_id", ksuid.New().String()),
			zap.String("stage", stage),
			zap.String("sql", sqlText),
			zap.Int("bind_count", len(args)),
			zap.Error(err),
		)
	}

	if sqlState(err) == pgUndefinedTable {
		if strings.Contains(err.Error(), statusInfosView) {
			return fmt.Errorf("%w: %v", ErrMissingView, err)
		}
		return fmt.Errorf("%w: %v", ErrMissingRelation, err)
	}
	return fmt.Errorf("participants %s: %w", stage, err)
}
