package memory

import (
	"context"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/page"
	"tabsdata.io/execcore/internal/model"
)

var executionSpec = page.Spec{
	Table: "executions", IDColumn: "id", NaturalOrder: "triggered_on",
	SortableCols: map[string]bool{"triggered_on": true, "name": true, "id": true},
	FilterCols:   map[string]bool{"name": true, "triggered_by": true},
	LikeCols:     map[string]bool{"name": true},
	DefaultLen:   20, MaxLen: 200,
}

var transactionSpec = page.Spec{
	Table: "transactions", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true, "execution_id": true},
	FilterCols:   map[string]bool{"execution_id": true},
	LikeCols:     map[string]bool{},
	DefaultLen:   20, MaxLen: 200,
}

var runSpec = page.Spec{
	Table: "function_runs", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true, "status": true},
	FilterCols:   map[string]bool{"execution_id": true, "transaction_id": true, "status": true},
	LikeCols:     map[string]bool{},
	DefaultLen:   20, MaxLen: 200,
}

var tableSpec = page.Spec{
	Table: "tables", IDColumn: "id", NaturalOrder: "name",
	SortableCols: map[string]bool{"name": true, "id": true},
	FilterCols:   map[string]bool{"collection_id": true, "name": true},
	LikeCols:     map[string]bool{"name": true},
	DefaultLen:   20, MaxLen: 200,
}

var tdvSpec = page.Spec{
	Table: "table_data_versions", IDColumn: "id", NaturalOrder: "id",
	SortableCols: map[string]bool{"id": true},
	FilterCols:   map[string]bool{"table_id": true, "function_run_id": true},
	LikeCols:     map[string]bool{},
	DefaultLen:   20, MaxLen: 200,
}

func getExecution(item any, col string) string {
	e := item.(*model.Execution)
	switch col {
	case "id":
		return e.ID
	case "name":
		return e.Name
	case "triggered_by":
		return e.TriggeredBy
	case "triggered_on":
		return e.TriggeredOn.UTC().Format("20060102150405.000000000")
	}
	return ""
}

func (c *Catalog) ListExecutions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Execution], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]any, 0, len(c.s.executions))
	for _, v := range c.s.executions {
		items = append(items, v)
	}
	paged, more, err := page.Slice(executionSpec, cur, filters, items, getExecution)
	if err != nil {
		return catalog.Page[*model.Execution]{}, err
	}
	out := make([]*model.Execution, len(paged))
	for i, v := range paged {
		cp := *v.(*model.Execution)
		out[i] = &cp
	}
	return catalog.Page[*model.Execution]{Items: out, HasMore: more}, nil
}

func getTransaction(item any, col string) string {
	tr := item.(*model.Transaction)
	switch col {
	case "id":
		return tr.ID
	case "execution_id":
		return tr.ExecutionID
	}
	return ""
}

func (c *Catalog) ListTransactions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Transaction], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]any, 0, len(c.s.transactions))
	for _, v := range c.s.transactions {
		items = append(items, v)
	}
	paged, more, err := page.Slice(transactionSpec, cur, filters, items, getTransaction)
	if err != nil {
		return catalog.Page[*model.Transaction]{}, err
	}
	out := make([]*model.Transaction, len(paged))
	for i, v := range paged {
		cp := *v.(*model.Transaction)
		out[i] = &cp
	}
	return catalog.Page[*model.Transaction]{Items: out, HasMore: more}, nil
}

func getRun(item any, col string) string {
	r := item.(*model.FunctionRun)
	switch col {
	case "id":
		return r.ID
	case "execution_id":
		return r.ExecutionID
	case "transaction_id":
		return r.TransactionID
	case "status":
		return string(r.Status)
	}
	return ""
}

func (c *Catalog) ListFunctionRuns(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.FunctionRun], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]any, 0, len(c.s.runs))
	for _, v := range c.s.runs {
		items = append(items, v)
	}
	paged, more, err := page.Slice(runSpec, cur, filters, items, getRun)
	if err != nil {
		return catalog.Page[*model.FunctionRun]{}, err
	}
	out := make([]*model.FunctionRun, len(paged))
	for i, v := range paged {
		cp := *v.(*model.FunctionRun)
		out[i] = &cp
	}
	return catalog.Page[*model.FunctionRun]{Items: out, HasMore: more}, nil
}

func getTable(item any, col string) string {
	t := item.(*model.Table)
	switch col {
	case "id":
		return t.ID
	case "name":
		return t.Name
	case "collection_id":
		return t.CollectionID
	}
	return ""
}

func (c *Catalog) ListTables(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Table], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]any, 0, len(c.s.tables))
	for _, v := range c.s.tables {
		items = append(items, v)
	}
	paged, more, err := page.Slice(tableSpec, cur, filters, items, getTable)
	if err != nil {
		return catalog.Page[*model.Table]{}, err
	}
	out := make([]*model.Table, len(paged))
	for i, v := range paged {
		cp := *v.(*model.Table)
		out[i] = &cp
	}
	return catalog.Page[*model.Table]{Items: out, HasMore: more}, nil
}

func getTDV(item any, col string) string {
	v := item.(*model.TableDataVersion)
	switch col {
	case "id":
		return v.ID
	case "table_id":
		return v.TableID
	case "function_run_id":
		return v.FunctionRunID
	}
	return ""
}

func (c *Catalog) ListTableDataVersions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.TableDataVersion], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]any, 0, len(c.s.tdvs))
	for _, v := range c.s.tdvs {
		items = append(items, v)
	}
	paged, more, err := page.Slice(tdvSpec, cur, filters, items, getTDV)
	if err != nil {
		return catalog.Page[*model.TableDataVersion]{}, err
	}
	out := make([]*model.TableDataVersion, len(paged))
	for i, v := range paged {
		cp := *v.(*model.TableDataVersion)
		out[i] = &cp
	}
	return catalog.Page[*model.TableDataVersion]{Items: out, HasMore: more}, nil
}
