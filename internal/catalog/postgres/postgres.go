// Package postgres is the production Catalog: GORM over *gorm.DB for
// entity CRUD (mirroring the teacher's db/postgres.go use of GORM for
// mutation) plus a raw *pgxpool.Pool for the cursor-paginated list
// queries (mirroring db/postgres_pgx.go's direct pgx access for hot
// read paths).
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/model"
)

// Catalog is the Postgres-backed Catalog implementation.
type Catalog struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// Config configures the connection pool sizing, following the
// teacher's PGInfo SetMaxOpenConns/SetMaxIdleConns/SetConnMaxLifetime
// pattern.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects both the GORM handle and the pgx pool to the same DSN
// and runs AutoMigrate for every entity model.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindTransient, err, "open catalog database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindFatal, err, "obtain sql.DB handle")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&model.Collection{}, &model.Function{}, &model.FunctionVersion{}, &model.Bundle{},
		&model.Table{}, &model.TableVersion{}, &model.Dependency{}, &model.Trigger{},
		&model.Execution{}, &model.Transaction{}, &model.FunctionRun{},
		&model.TableDataVersion{}, &model.TablePartition{}, &model.FunctionRequirement{},
		&model.WorkerMessage{},
	); err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindFatal, err, "auto-migrate catalog schema")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindTransient, err, "open catalog pgx pool")
	}

	return &Catalog{db: db, pool: pool}, nil
}

// Close releases both the GORM connection and the pgx pool.
func (c *Catalog) Close() {
	c.pool.Close()
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Atomic runs fn inside one GORM transaction, the direct analogue of
// "Mutations occur inside short transactions" (section 4.1).
func (c *Catalog) Atomic(ctx context.Context, fn func(tx catalog.Tx) error) error {
	err := c.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&txView{db: gtx})
	})
	if err != nil {
		var perr *catalogerr.Error
		if errors.As(err, &perr) {
			return err
		}
		return catalogerr.Wrap(catalogerr.KindTransient, err, "catalog transaction")
	}
	return nil
}

// Non-transactional mutating entry points each wrap a single-statement
// Atomic call; getters and lists run directly on the plain handle tx()
// returns. Follows the teacher's PG*New/PG*List free-function style
// generalized to methods on Catalog.
func (c *Catalog) tx() *txView { return &txView{db: c.db} }

func (c *Catalog) InsertCollection(ctx context.Context, v *model.Collection) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertCollection(ctx, v) })
}
func (c *Catalog) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	return c.tx().GetCollection(ctx, id)
}
func (c *Catalog) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	return c.tx().GetCollectionByName(ctx, name)
}
func (c *Catalog) SoftDeleteCollection(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.SoftDeleteCollection(ctx, id) })
}
func (c *Catalog) InsertFunction(ctx context.Context, v *model.Function) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunction(ctx, v) })
}
func (c *Catalog) UpdateFunction(ctx context.Context, v *model.Function) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunction(ctx, v) })
}
func (c *Catalog) DeleteFunction(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.DeleteFunction(ctx, id) })
}
func (c *Catalog) GetFunction(ctx context.Context, id string) (*model.Function, error) {
	return c.tx().GetFunction(ctx, id)
}
func (c *Catalog) GetFunctionByName(ctx context.Context, collectionID, name string) (*model.Function, error) {
	return c.tx().GetFunctionByName(ctx, collectionID, name)
}
func (c *Catalog) InsertFunctionVersion(ctx context.Context, v *model.FunctionVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionVersion(ctx, v) })
}
func (c *Catalog) UpdateFunctionVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunctionVersionStatus(ctx, id, status) })
}
func (c *Catalog) GetFunctionVersion(ctx context.Context, id string) (*model.FunctionVersion, error) {
	return c.tx().GetFunctionVersion(ctx, id)
}
func (c *Catalog) GetActiveFunctionVersion(ctx context.Context, functionID string) (*model.FunctionVersion, error) {
	return c.tx().GetActiveFunctionVersion(ctx, functionID)
}
func (c *Catalog) InsertBundle(ctx context.Context, v *model.Bundle) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertBundle(ctx, v) })
}
func (c *Catalog) GetBundle(ctx context.Context, id string) (*model.Bundle, error) {
	return c.tx().GetBundle(ctx, id)
}
func (c *Catalog) InsertTable(ctx context.Context, v *model.Table) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTable(ctx, v) })
}
func (c *Catalog) UpdateTable(ctx context.Context, v *model.Table) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTable(ctx, v) })
}
func (c *Catalog) DeleteTable(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.DeleteTable(ctx, id) })
}
func (c *Catalog) GetTable(ctx context.Context, id string) (*model.Table, error) {
	return c.tx().GetTable(ctx, id)
}
func (c *Catalog) GetTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	return c.tx().GetTableByName(ctx, collectionID, name)
}
func (c *Catalog) GetFrozenTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	return c.tx().GetFrozenTableByName(ctx, collectionID, name)
}
func (c *Catalog) InsertTableVersion(ctx context.Context, v *model.TableVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTableVersion(ctx, v) })
}
func (c *Catalog) UpdateTableVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTableVersionStatus(ctx, id, status) })
}
func (c *Catalog) GetTableVersion(ctx context.Context, id string) (*model.TableVersion, error) {
	return c.tx().GetTableVersion(ctx, id)
}
func (c *Catalog) GetActiveTableVersion(ctx context.Context, tableID string) (*model.TableVersion, error) {
	return c.tx().GetActiveTableVersion(ctx, tableID)
}
func (c *Catalog) ListTableVersionsByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.TableVersion, error) {
	return c.tx().ListTableVersionsByFunctionVersion(ctx, functionVersionID)
}
func (c *Catalog) InsertDependency(ctx context.Context, v *model.Dependency) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertDependency(ctx, v) })
}
func (c *Catalog) UpdateDependencyStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateDependencyStatus(ctx, id, status) })
}
func (c *Catalog) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	return c.tx().GetDependency(ctx, id)
}
func (c *Catalog) ListDependenciesByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.Dependency, error) {
	return c.tx().ListDependenciesByFunctionVersion(ctx, functionVersionID)
}
func (c *Catalog) ListActiveDependenciesByTable(ctx context.Context, tableID string) ([]*model.Dependency, error) {
	return c.tx().ListActiveDependenciesByTable(ctx, tableID)
}
func (c *Catalog) InsertTrigger(ctx context.Context, v *model.Trigger) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTrigger(ctx, v) })
}
func (c *Catalog) UpdateTriggerStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTriggerStatus(ctx, id, status) })
}
func (c *Catalog) ListTriggersByTable(ctx context.Context, tableID string) ([]*model.Trigger, error) {
	return c.tx().ListTriggersByTable(ctx, tableID)
}
func (c *Catalog) ListActiveTriggersByConsumer(ctx context.Context, functionVersionID string) ([]*model.Trigger, error) {
	return c.tx().ListActiveTriggersByConsumer(ctx, functionVersionID)
}
func (c *Catalog) InsertExecution(ctx context.Context, v *model.Execution) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertExecution(ctx, v) })
}
func (c *Catalog) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	return c.tx().GetExecution(ctx, id)
}
func (c *Catalog) InsertTransaction(ctx context.Context, v *model.Transaction) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTransaction(ctx, v) })
}
func (c *Catalog) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return c.tx().GetTransaction(ctx, id)
}
func (c *Catalog) UpdateTransactionCommittedOn(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTransactionCommittedOn(ctx, id) })
}
func (c *Catalog) ListTransactionsByExecution(ctx context.Context, executionID string) ([]*model.Transaction, error) {
	return c.tx().ListTransactionsByExecution(ctx, executionID)
}
func (c *Catalog) InsertFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionRun(ctx, v) })
}
func (c *Catalog) UpdateFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunctionRun(ctx, v) })
}
func (c *Catalog) GetFunctionRun(ctx context.Context, id string) (*model.FunctionRun, error) {
	return c.tx().GetFunctionRun(ctx, id)
}
func (c *Catalog) ListFunctionRunsByExecution(ctx context.Context, executionID string) ([]*model.FunctionRun, error) {
	return c.tx().ListFunctionRunsByExecution(ctx, executionID)
}
func (c *Catalog) ListFunctionRunsByTransaction(ctx context.Context, transactionID string) ([]*model.FunctionRun, error) {
	return c.tx().ListFunctionRunsByTransaction(ctx, transactionID)
}
func (c *Catalog) ListDispatchableFunctionRuns(ctx context.Context, limit int) ([]*model.FunctionRun, error) {
	return c.tx().ListDispatchableFunctionRuns(ctx, limit)
}
func (c *Catalog) InsertTableDataVersion(ctx context.Context, v *model.TableDataVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTableDataVersion(ctx, v) })
}
func (c *Catalog) UpdateTableDataVersionHasData(ctx context.Context, id string, hasData bool) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTableDataVersionHasData(ctx, id, hasData) })
}
func (c *Catalog) GetTableDataVersion(ctx context.Context, id string) (*model.TableDataVersion, error) {
	return c.tx().GetTableDataVersion(ctx, id)
}
func (c *Catalog) ListTableDataVersionTimeline(ctx context.Context, tableID string, onlyWithData bool) ([]*model.TableDataVersion, error) {
	return c.tx().ListTableDataVersionTimeline(ctx, tableID, onlyWithData)
}
func (c *Catalog) ListTableDataVersionsByFunctionRun(ctx context.Context, functionRunID string) ([]*model.TableDataVersion, error) {
	return c.tx().ListTableDataVersionsByFunctionRun(ctx, functionRunID)
}
func (c *Catalog) InsertTablePartition(ctx context.Context, v *model.TablePartition) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTablePartition(ctx, v) })
}
func (c *Catalog) ListTablePartitions(ctx context.Context, tableDataVersionID string) ([]*model.TablePartition, error) {
	return c.tx().ListTablePartitions(ctx, tableDataVersionID)
}
func (c *Catalog) InsertFunctionRequirement(ctx context.Context, v *model.FunctionRequirement) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionRequirement(ctx, v) })
}
func (c *Catalog) ListFunctionRequirements(ctx context.Context, functionRunID string) ([]*model.FunctionRequirement, error) {
	return c.tx().ListFunctionRequirements(ctx, functionRunID)
}
func (c *Catalog) InsertWorkerMessage(ctx context.Context, v *model.WorkerMessage) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertWorkerMessage(ctx, v) })
}
func (c *Catalog) LockWorkerMessage(ctx context.Context, functionRunID, owner string, leaseTTLSeconds int) (*model.WorkerMessage, error) {
	var out *model.WorkerMessage
	err := c.Atomic(ctx, func(tx catalog.Tx) error {
		m, err := tx.LockWorkerMessage(ctx, functionRunID, owner, leaseTTLSeconds)
		out = m
		return err
	})
	return out, err
}
func (c *Catalog) UnlockWorkerMessage(ctx context.Context, functionRunID string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UnlockWorkerMessage(ctx, functionRunID) })
}
func (c *Catalog) GetWorkerMessageByRun(ctx context.Context, functionRunID string) (*model.WorkerMessage, error) {
	return c.tx().GetWorkerMessageByRun(ctx, functionRunID)
}
func (c *Catalog) ListExpiredLeases(ctx context.Context) ([]*model.WorkerMessage, error) {
	return c.tx().ListExpiredLeases(ctx)
}

var _ catalog.Catalog = (*Catalog)(nil)

func wrapGormErr(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalogerr.NotFound("%s", notFoundMsg)
	}
	return catalogerr.Wrap(catalogerr.KindTransient, err, "catalog operation")
}
