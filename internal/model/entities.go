// Package model defines the Execution Core's entity types: the
// catalog-persisted shapes described in section 3 of the core
// specification, plus the status enums in status.go.
package model

import (
	"encoding/json"
	"time"
)

// Audit carries the creation/modification bookkeeping every
// catalog-persisted entity shares.
type Audit struct {
	CreatedOn  time.Time `json:"created_on" gorm:"autoCreateTime"`
	CreatedBy  string    `json:"created_by"`
	ModifiedOn time.Time `json:"modified_on" gorm:"autoUpdateTime"`
	ModifiedBy string    `json:"modified_by"`
}

// Collection is a namespace of functions and tables. Soft-deleted by a
// non-null NameWhenDeleted; active rows have it null/empty.
type Collection struct {
	ID               string  `json:"id" gorm:"primaryKey"`
	Name             string  `json:"name" gorm:"uniqueIndex:idx_collection_name_active,where:name_when_deleted IS NULL"`
	Description      string  `json:"description"`
	NameWhenDeleted  *string `json:"name_when_deleted,omitempty"`
	Audit
}

// Active reports whether the collection has not been soft-deleted.
func (c *Collection) Active() bool { return c.NameWhenDeleted == nil }

// Function is a logical, versioned program in a collection.
type Function struct {
	ID                   string `json:"id" gorm:"primaryKey"`
	CollectionID         string `json:"collection_id" gorm:"index"`
	Name                 string `json:"name"`
	CurrentFunctionVersionID string `json:"current_function_version_id"`
	Audit
}

// Bundle is a content-addressed code archive of a function version.
type Bundle struct {
	ID           string `json:"id" gorm:"primaryKey"`
	CollectionID string `json:"collection_id" gorm:"index"`
	Hash         string `json:"hash"`
	URI          string `json:"uri"`
	EnvPrefix    string `json:"env_prefix"`
	Audit
}

// FunctionVersion is an immutable snapshot of a function.
type FunctionVersion struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	FunctionID     string          `json:"function_id" gorm:"index"`
	CollectionID   string          `json:"collection_id" gorm:"index"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	RuntimeValues  json.RawMessage `json:"runtime_values" gorm:"type:jsonb"`
	DataLocation   string          `json:"data_location"`
	StorageVersion string          `json:"storage_version"`
	BundleID       string          `json:"bundle_id"`
	Snippet        string          `json:"snippet"`
	Status         VersionStatus   `json:"status"`
	TransactionBy  string          `json:"transaction_by"`
	// InitialValuesTableID is the state table this version carries
	// forward across runs, empty when the function declares none. Set,
	// the Planner always resolves a system-input requirement against
	// its last committed version and a system-output slot for the new
	// one (state carryover, section 4.4).
	InitialValuesTableID string `json:"initial_values_table_id,omitempty"`
	Audit
}

// Table is a logical, versioned output of a function.
type Table struct {
	ID               string `json:"id" gorm:"primaryKey"`
	CollectionID     string `json:"collection_id" gorm:"index"`
	Name             string `json:"name"`
	FunctionParamPos int    `json:"function_param_pos"`
	Private          bool   `json:"private"`
	Partitioned      bool   `json:"partitioned"`
	NameWhenDeleted  *string `json:"name_when_deleted,omitempty"`
	CurrentTableVersionID string `json:"current_table_version_id"`
	Audit
}

// SystemTable reports whether the table is a system input/output
// invisible to users (function_param_pos < 0).
func (t *Table) SystemTable() bool { return t.FunctionParamPos < 0 }

// TableVersion is an immutable, schema-bearing snapshot of a table.
type TableVersion struct {
	ID                string          `json:"id" gorm:"primaryKey"`
	TableID           string          `json:"table_id" gorm:"index"`
	FunctionVersionID string          `json:"function_version_id" gorm:"index"`
	Schema            json.RawMessage `json:"schema" gorm:"type:jsonb"`
	Status            VersionStatus   `json:"status"`
	Audit
}

// Dependency is an edge from a consumer FunctionVersion to a producer
// Table, carrying the input position and a table_versions expression.
type Dependency struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	FunctionVersionID string        `json:"function_version_id" gorm:"index"`
	TableID           string        `json:"table_id" gorm:"index"`
	DepPos            int           `json:"dep_pos"`
	TableVersions     string        `json:"table_versions"`
	Status            VersionStatus `json:"status"`
	Audit
}

// Trigger means "when the given table produces a new data version,
// schedule the consumer function version".
type Trigger struct {
	ID                  string        `json:"id" gorm:"primaryKey"`
	TableID             string        `json:"table_id" gorm:"index"`
	ConsumerFunctionVersionID string  `json:"consumer_function_version_id" gorm:"index"`
	Status              VersionStatus `json:"status"`
	Audit
}

// Execution is a top-level unit of work keyed to one triggering
// function version.
type Execution struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	Name              string    `json:"name"`
	TriggerFunctionVersionID string `json:"trigger_function_version_id"`
	TriggeredBy       string    `json:"triggered_by"`
	TriggeredOn       time.Time `json:"triggered_on"`
	Audit
}

// Transaction is a commit-scoped group of function runs inside an
// execution.
type Transaction struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	ExecutionID   string     `json:"execution_id" gorm:"index"`
	TransactionBy string     `json:"transaction_by"`
	TransactionKey string    `json:"transaction_key"`
	CommitedOn    *time.Time `json:"commited_on,omitempty"`
	Audit
}

// FunctionRun is one prospective invocation of a function version.
type FunctionRun struct {
	ID                string      `json:"id" gorm:"primaryKey"`
	ExecutionID       string      `json:"execution_id" gorm:"index"`
	TransactionID     string      `json:"transaction_id" gorm:"index"`
	FunctionVersionID string      `json:"function_version_id" gorm:"index"`
	Trigger           TriggerKind `json:"trigger"`
	Status            RunStatus   `json:"status"`
	RetryCount        int         `json:"retry_count"`
	StartedOn         *time.Time  `json:"started_on,omitempty"`
	EndedOn           *time.Time  `json:"ended_on,omitempty"`
	Error             string      `json:"error,omitempty"`
	Audit
}

// TableDataVersion is the output slot for one of a run's produced
// tables. HasData is nil until the run terminates.
type TableDataVersion struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	TableID           string    `json:"table_id" gorm:"index"`
	TableVersionID    string    `json:"table_version_id"`
	ExecutionID       string    `json:"execution_id" gorm:"index"`
	TransactionID     string    `json:"transaction_id" gorm:"index"`
	FunctionRunID     string    `json:"function_run_id" gorm:"index"`
	TablePos          int       `json:"table_pos"`
	URI               string    `json:"uri"`
	HasData           *bool     `json:"has_data,omitempty"`
	Audit
}

// TablePartition is zero-or-more rows per TableDataVersion for
// partitioned tables.
type TablePartition struct {
	ID                 string `json:"id" gorm:"primaryKey"`
	TableDataVersionID string `json:"table_data_version_id" gorm:"index"`
	PartitionKey       string `json:"partition_key"`
	URI                string `json:"uri"`
	Audit
}

// FunctionRequirement is a resolved input binding: one row per selected
// (dependency_position, version_position) pair for one FunctionRun.
type FunctionRequirement struct {
	ID                     string  `json:"id" gorm:"primaryKey"`
	FunctionRunID          string  `json:"function_run_id" gorm:"index"`
	DependencyID           string  `json:"dependency_id" gorm:"index"`
	DepPos                 int     `json:"dep_pos"`
	VersionPos             int     `json:"version_pos"`
	TableDataVersionID     *string `json:"table_data_version_id,omitempty"`
	Audit
}

// Satisfied reports whether the requirement resolved to a concrete
// TableDataVersion (as opposed to a legitimate null input).
func (r *FunctionRequirement) Satisfied() bool { return r.TableDataVersionID != nil }

// WorkerMessage is the mailbox entry handed to the worker pool, with
// MessageStatus controlling at-most-one delivery.
type WorkerMessage struct {
	ID            string              `json:"id" gorm:"primaryKey"`
	FunctionRunID string              `json:"function_run_id" gorm:"uniqueIndex"`
	MessageStatus WorkerMessageStatus `json:"message_status"`
	LockedBy      string              `json:"locked_by,omitempty"`
	LeaseExpiresOn *time.Time         `json:"lease_expires_on,omitempty"`
	Manifest      json.RawMessage     `json:"manifest" gorm:"type:jsonb"`
	Audit
}
