package postgres

import (
	"context"
	"fmt"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/page"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/model"
)

var executionSpec = page.Spec{
	Table: "executions", IDColumn: "id", NaturalOrder: "triggered_on",
	SortableCols: map[string]bool{"triggered_on": true, "name": true, "id": true},
	FilterCols:   map[string]bool{"name": true, "triggered_by": true},
	LikeCols:     map[string]bool{"name": true},
	DefaultLen:   20, MaxLen: 200,
}

// ListExecutions runs the cursor-paginated query directly over the pgx
// pool, the hot read path the teacher reserves raw SQL for.
func (c *Catalog) ListExecutions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Execution], error) {
	built, err := page.Build(executionSpec, cur, filters)
	if err != nil {
		return catalog.Page[*model.Execution]{}, catalogerr.Invalid("%v", err)
	}
	sql := "SELECT id, name, trigger_function_version_id, triggered_by, triggered_on, created_on, created_by, modified_on, modified_by FROM executions"
	if built.Where != "" {
		sql += " WHERE " + built.Where
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", built.OrderBy, built.Limit)

	rows, err := c.pool.Query(ctx, sql, built.Args...)
	if err != nil {
		return catalog.Page[*model.Execution]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "list executions")
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		var e model.Execution
		if err := rows.Scan(&e.ID, &e.Name, &e.TriggerFunctionVersionID, &e.TriggeredBy, &e.TriggeredOn,
			&e.CreatedOn, &e.CreatedBy, &e.ModifiedOn, &e.ModifiedBy); err != nil {
			return catalog.Page[*model.Execution]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "scan execution row")
		}
		out = append(out, &e)
	}
	return finishPage(out, built.Limit-1)
}

var transactionSpec = page.Spec{
	Table: "transactions", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true, "execution_id": true},
	FilterCols:   map[string]bool{"execution_id": true},
	DefaultLen:   20, MaxLen: 200,
}

func (c *Catalog) ListTransactions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Transaction], error) {
	built, err := page.Build(transactionSpec, cur, filters)
	if err != nil {
		return catalog.Page[*model.Transaction]{}, catalogerr.Invalid("%v", err)
	}
	sql := "SELECT id, execution_id, transaction_by, transaction_key, commited_on, created_on, created_by, modified_on, modified_by FROM transactions"
	if built.Where != "" {
		sql += " WHERE " + built.Where
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", built.OrderBy, built.Limit)

	rows, err := c.pool.Query(ctx, sql, built.Args...)
	if err != nil {
		return catalog.Page[*model.Transaction]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "list transactions")
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var tr model.Transaction
		if err := rows.Scan(&tr.ID, &tr.ExecutionID, &tr.TransactionBy, &tr.TransactionKey, &tr.CommitedOn,
			&tr.CreatedOn, &tr.CreatedBy, &tr.ModifiedOn, &tr.ModifiedBy); err != nil {
			return catalog.Page[*model.Transaction]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "scan transaction row")
		}
		out = append(out, &tr)
	}
	return finishPage(out, built.Limit-1)
}

var runSpec = page.Spec{
	Table: "function_runs", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true, "status": true},
	FilterCols:   map[string]bool{"execution_id": true, "transaction_id": true, "status": true},
	DefaultLen:   20, MaxLen: 200,
}

func (c *Catalog) ListFunctionRuns(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.FunctionRun], error) {
	built, err := page.Build(runSpec, cur, filters)
	if err != nil {
		return catalog.Page[*model.FunctionRun]{}, catalogerr.Invalid("%v", err)
	}
	sql := `SELECT id, execution_id, transaction_id, function_version_id, trigger, status, retry_count,
	        started_on, ended_on, error, created_on, created_by, modified_on, modified_by FROM function_runs`
	if built.Where != "" {
		sql += " WHERE " + built.Where
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", built.OrderBy, built.Limit)

	rows, err := c.pool.Query(ctx, sql, built.Args...)
	if err != nil {
		return catalog.Page[*model.FunctionRun]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "list function runs")
	}
	defer rows.Close()

	var out []*model.FunctionRun
	for rows.Next() {
		var r model.FunctionRun
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.TransactionID, &r.FunctionVersionID, &r.Trigger, &r.Status, &r.RetryCount,
			&r.StartedOn, &r.EndedOn, &r.Error, &r.CreatedOn, &r.CreatedBy, &r.ModifiedOn, &r.ModifiedBy); err != nil {
			return catalog.Page[*model.FunctionRun]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "scan function run row")
		}
		out = append(out, &r)
	}
	return finishPage(out, built.Limit-1)
}

var tableSpec = page.Spec{
	Table: "tables", IDColumn: "id", NaturalOrder: "name",
	SortableCols: map[string]bool{"name": true, "id": true},
	FilterCols:   map[string]bool{"collection_id": true, "name": true},
	LikeCols:     map[string]bool{"name": true},
	DefaultLen:   20, MaxLen: 200,
}

func (c *Catalog) ListTables(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Table], error) {
	built, err := page.Build(tableSpec, cur, filters)
	if err != nil {
		return catalog.Page[*model.Table]{}, catalogerr.Invalid("%v", err)
	}
	sql := `SELECT id, collection_id, name, function_param_pos, private, partitioned, name_when_deleted,
	        current_table_version_id, created_on, created_by, modified_on, modified_by FROM tables`
	if built.Where != "" {
		sql += " WHERE " + built.Where
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", built.OrderBy, built.Limit)

	rows, err := c.pool.Query(ctx, sql, built.Args...)
	if err != nil {
		return catalog.Page[*model.Table]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "list tables")
	}
	defer rows.Close()

	var out []*model.Table
	for rows.Next() {
		var tb model.Table
		if err := rows.Scan(&tb.ID, &tb.CollectionID, &tb.Name, &tb.FunctionParamPos, &tb.Private, &tb.Partitioned,
			&tb.NameWhenDeleted, &tb.CurrentTableVersionID, &tb.CreatedOn, &tb.CreatedBy, &tb.ModifiedOn, &tb.ModifiedBy); err != nil {
			return catalog.Page[*model.Table]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "scan table row")
		}
		out = append(out, &tb)
	}
	return finishPage(out, built.Limit-1)
}

var tdvSpec = page.Spec{
	Table: "table_data_versions", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true},
	FilterCols:   map[string]bool{"table_id": true, "function_run_id": true},
	DefaultLen:   20, MaxLen: 200,
}

func (c *Catalog) ListTableDataVersions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.TableDataVersion], error) {
	built, err := page.Build(tdvSpec, cur, filters)
	if err != nil {
		return catalog.Page[*model.TableDataVersion]{}, catalogerr.Invalid("%v", err)
	}
	sql := `SELECT id, table_id, table_version_id, execution_id, transaction_id, function_run_id, table_pos,
	        uri, has_data, created_on, created_by, modified_on, modified_by FROM table_data_versions`
	if built.Where != "" {
		sql += " WHERE " + built.Where
	}
	sql += fmt.Sprintf(" ORDER BY %s LIMIT %d", built.OrderBy, built.Limit)

	rows, err := c.pool.Query(ctx, sql, built.Args...)
	if err != nil {
		return catalog.Page[*model.TableDataVersion]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "list table data versions")
	}
	defer rows.Close()

	var out []*model.TableDataVersion
	for rows.Next() {
		var v model.TableDataVersion
		if err := rows.Scan(&v.ID, &v.TableID, &v.TableVersionID, &v.ExecutionID, &v.TransactionID, &v.FunctionRunID,
			&v.TablePos, &v.URI, &v.HasData, &v.CreatedOn, &v.CreatedBy, &v.ModifiedOn, &v.ModifiedBy); err != nil {
			return catalog.Page[*model.TableDataVersion]{}, catalogerr.Wrap(catalogerr.KindTransient, err, "scan table data version row")
		}
		out = append(out, &v)
	}
	return finishPage(out, built.Limit-1)
}

// finishPage trims the lookahead row Build's Limit+1 fetched and
// reports whether more rows follow.
func finishPage[T any](items []T, wantLen int) (catalog.Page[T], error) {
	hasMore := len(items) > wantLen
	if hasMore {
		items = items[:wantLen]
	}
	return catalog.Page[T]{Items: items, HasMore: hasMore}, nil
}
