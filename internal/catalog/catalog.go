// Package catalog is the typed façade over persistent relational
// storage described in section 4.1: entity lookups plus atomic
// multi-row mutations behind short transactions.
package catalog

import (
	"context"

	"tabsdata.io/execcore/internal/model"
)

// Filter is one `filter=<col><op><value>` clause from section 6.2.
// Same-column filters OR together; different columns AND; OR binds
// tighter than AND.
type Filter struct {
	Column string
	Op     Operator
	Value  string
}

// Operator is one of the seven comparison operators section 6.2 defines.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
	OpGt Operator = "gt"
	OpGe Operator = "ge"
	OpLt Operator = "lt"
	OpLe Operator = "le"
	OpLike Operator = "lk"
)

// Cursor is the pagination position of section 6.2: an opaque
// (order-by value, id) pair plus direction.
type Cursor struct {
	OrderBy    string
	Descending bool
	Next       string // exclusive lower/upper bound on OrderBy, "" = from start
	NextID     string
	Previous   string
	PreviousID string
	Len        int
}

// Page is a single page of T plus whether more rows follow.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// Tx is the set of mutating operations available inside one Atomic
// closure. All writes performed through a Tx are durable only if the
// closure returns nil; any returned error rolls the whole transaction
// back, so Registry/Planner/Commit Engine compose several Tx calls
// into one all-or-nothing unit exactly as section 4.1 requires.
type Tx interface {
	// Collections
	InsertCollection(ctx context.Context, c *model.Collection) error
	GetCollection(ctx context.Context, id string) (*model.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*model.Collection, error)
	SoftDeleteCollection(ctx context.Context, id string) error

	// Functions
	InsertFunction(ctx context.Context, f *model.Function) error
	UpdateFunction(ctx context.Context, f *model.Function) error
	DeleteFunction(ctx context.Context, id string) error
	GetFunction(ctx context.Context, id string) (*model.Function, error)
	GetFunctionByName(ctx context.Context, collectionID, name string) (*model.Function, error)

	// FunctionVersions
	InsertFunctionVersion(ctx context.Context, v *model.FunctionVersion) error
	UpdateFunctionVersionStatus(ctx context.Context, id string, status model.VersionStatus) error
	GetFunctionVersion(ctx context.Context, id string) (*model.FunctionVersion, error)
	GetActiveFunctionVersion(ctx context.Context, functionID string) (*model.FunctionVersion, error)

	// Bundles
	InsertBundle(ctx context.Context, b *model.Bundle) error
	GetBundle(ctx context.Context, id string) (*model.Bundle, error)

	// Tables
	InsertTable(ctx context.Context, t *model.Table) error
	UpdateTable(ctx context.Context, t *model.Table) error
	DeleteTable(ctx context.Context, id string) error
	GetTable(ctx context.Context, id string) (*model.Table, error)
	GetTableByName(ctx context.Context, collectionID, name string) (*model.Table, error)
	GetFrozenTableByName(ctx context.Context, collectionID, name string) (*model.Table, error)

	// TableVersions
	InsertTableVersion(ctx context.Context, v *model.TableVersion) error
	UpdateTableVersionStatus(ctx context.Context, id string, status model.VersionStatus) error
	GetTableVersion(ctx context.Context, id string) (*model.TableVersion, error)
	GetActiveTableVersion(ctx context.Context, tableID string) (*model.TableVersion, error)
	ListTableVersionsByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.TableVersion, error)

	// Dependencies
	InsertDependency(ctx context.Context, d *model.Dependency) error
	UpdateDependencyStatus(ctx context.Context, id string, status model.VersionStatus) error
	GetDependency(ctx context.Context, id string) (*model.Dependency, error)
	ListDependenciesByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.Dependency, error)
	ListActiveDependenciesByTable(ctx context.Context, tableID string) ([]*model.Dependency, error)

	// Triggers
	InsertTrigger(ctx context.Context, t *model.Trigger) error
	UpdateTriggerStatus(ctx context.Context, id string, status model.VersionStatus) error
	ListTriggersByTable(ctx context.Context, tableID string) ([]*model.Trigger, error)
	ListActiveTriggersByConsumer(ctx context.Context, functionVersionID string) ([]*model.Trigger, error)

	// Executions / transactions / runs
	InsertExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	UpdateTransactionCommittedOn(ctx context.Context, id string) error
	ListTransactionsByExecution(ctx context.Context, executionID string) ([]*model.Transaction, error)

	InsertFunctionRun(ctx context.Context, r *model.FunctionRun) error
	UpdateFunctionRun(ctx context.Context, r *model.FunctionRun) error
	GetFunctionRun(ctx context.Context, id string) (*model.FunctionRun, error)
	ListFunctionRunsByExecution(ctx context.Context, executionID string) ([]*model.FunctionRun, error)
	ListFunctionRunsByTransaction(ctx context.Context, transactionID string) ([]*model.FunctionRun, error)
	ListDispatchableFunctionRuns(ctx context.Context, limit int) ([]*model.FunctionRun, error)

	// Table data versions / partitions
	InsertTableDataVersion(ctx context.Context, v *model.TableDataVersion) error
	UpdateTableDataVersionHasData(ctx context.Context, id string, hasData bool) error
	GetTableDataVersion(ctx context.Context, id string) (*model.TableDataVersion, error)
	ListTableDataVersionTimeline(ctx context.Context, tableID string, onlyWithData bool) ([]*model.TableDataVersion, error)
	ListTableDataVersionsByFunctionRun(ctx context.Context, functionRunID string) ([]*model.TableDataVersion, error)
	InsertTablePartition(ctx context.Context, p *model.TablePartition) error
	ListTablePartitions(ctx context.Context, tableDataVersionID string) ([]*model.TablePartition, error)

	// Function requirements
	InsertFunctionRequirement(ctx context.Context, r *model.FunctionRequirement) error
	ListFunctionRequirements(ctx context.Context, functionRunID string) ([]*model.FunctionRequirement, error)

	// Worker messages
	InsertWorkerMessage(ctx context.Context, m *model.WorkerMessage) error
	LockWorkerMessage(ctx context.Context, functionRunID, owner string, leaseTTLSeconds int) (*model.WorkerMessage, error)
	UnlockWorkerMessage(ctx context.Context, functionRunID string) error
	GetWorkerMessageByRun(ctx context.Context, functionRunID string) (*model.WorkerMessage, error)
	ListExpiredLeases(ctx context.Context) ([]*model.WorkerMessage, error)
}

// Catalog is the top-level entry point: Atomic for multi-row
// transactions, plus read/list operations that do not themselves need
// cross-call atomicity (section 6.2 pagination contract).
type Catalog interface {
	Tx // every entity getter is usable outside a transaction too

	Atomic(ctx context.Context, fn func(tx Tx) error) error

	ListExecutions(ctx context.Context, c Cursor, filters []Filter) (Page[*model.Execution], error)
	ListTransactions(ctx context.Context, c Cursor, filters []Filter) (Page[*model.Transaction], error)
	ListFunctionRuns(ctx context.Context, c Cursor, filters []Filter) (Page[*model.FunctionRun], error)
	ListTables(ctx context.Context, c Cursor, filters []Filter) (Page[*model.Table], error)
	ListTableDataVersions(ctx context.Context, c Cursor, filters []Filter) (Page[*model.TableDataVersion], error)
}
