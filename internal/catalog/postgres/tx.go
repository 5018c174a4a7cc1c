package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/model"
)

// txView implements catalog.Tx over a *gorm.DB, which is either the
// top-level handle (for one-shot reads) or a transaction handle
// (inside Atomic).
type txView struct {
	db *gorm.DB
}

func (t *txView) gdb(ctx context.Context) *gorm.DB { return t.db.WithContext(ctx) }

func (t *txView) InsertCollection(ctx context.Context, v *model.Collection) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	var v model.Collection
	err := t.gdb(ctx).First(&v, "id = ?", id).Error
	if err != nil {
		return nil, wrapGormErr(err, "collection "+id)
	}
	return &v, nil
}
func (t *txView) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	var v model.Collection
	err := t.gdb(ctx).First(&v, "name = ? AND name_when_deleted IS NULL", name).Error
	if err != nil {
		return nil, wrapGormErr(err, "collection "+name)
	}
	return &v, nil
}
func (t *txView) SoftDeleteCollection(ctx context.Context, id string) error {
	res := t.gdb(ctx).Model(&model.Collection{}).Where("id = ?", id).
		Update("name_when_deleted", gorm.Expr("name"))
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("collection %s", id)
	}
	return nil
}

func (t *txView) InsertFunction(ctx context.Context, v *model.Function) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateFunction(ctx context.Context, v *model.Function) error {
	return wrapGormErr(t.gdb(ctx).Save(v).Error, "")
}
func (t *txView) DeleteFunction(ctx context.Context, id string) error {
	res := t.gdb(ctx).Delete(&model.Function{}, "id = ?", id)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("function %s", id)
	}
	return nil
}
func (t *txView) GetFunction(ctx context.Context, id string) (*model.Function, error) {
	var v model.Function
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "function "+id)
	}
	return &v, nil
}
func (t *txView) GetFunctionByName(ctx context.Context, collectionID, name string) (*model.Function, error) {
	var v model.Function
	err := t.gdb(ctx).First(&v, "collection_id = ? AND name = ?", collectionID, name).Error
	if err != nil {
		return nil, wrapGormErr(err, "function "+name)
	}
	return &v, nil
}

func (t *txView) InsertFunctionVersion(ctx context.Context, v *model.FunctionVersion) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateFunctionVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	res := t.gdb(ctx).Model(&model.FunctionVersion{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("function version %s", id)
	}
	return nil
}
func (t *txView) GetFunctionVersion(ctx context.Context, id string) (*model.FunctionVersion, error) {
	var v model.FunctionVersion
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "function version "+id)
	}
	return &v, nil
}
func (t *txView) GetActiveFunctionVersion(ctx context.Context, functionID string) (*model.FunctionVersion, error) {
	var v model.FunctionVersion
	err := t.gdb(ctx).First(&v, "function_id = ? AND status = ?", functionID, model.VersionActive).Error
	if err != nil {
		return nil, wrapGormErr(err, "active function version for "+functionID)
	}
	return &v, nil
}

func (t *txView) InsertBundle(ctx context.Context, v *model.Bundle) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) GetBundle(ctx context.Context, id string) (*model.Bundle, error) {
	var v model.Bundle
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "bundle "+id)
	}
	return &v, nil
}

func (t *txView) InsertTable(ctx context.Context, v *model.Table) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateTable(ctx context.Context, v *model.Table) error {
	return wrapGormErr(t.gdb(ctx).Save(v).Error, "")
}
func (t *txView) DeleteTable(ctx context.Context, id string) error {
	res := t.gdb(ctx).Delete(&model.Table{}, "id = ?", id)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("table %s", id)
	}
	return nil
}
func (t *txView) GetTable(ctx context.Context, id string) (*model.Table, error) {
	var v model.Table
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "table "+id)
	}
	return &v, nil
}
func (t *txView) GetTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	var v model.Table
	err := t.gdb(ctx).First(&v, "collection_id = ? AND name = ? AND name_when_deleted IS NULL", collectionID, name).Error
	if err != nil {
		return nil, wrapGormErr(err, "table "+name)
	}
	return &v, nil
}
func (t *txView) GetFrozenTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	var v model.Table
	err := t.gdb(ctx).Joins("JOIN table_versions tv ON tv.id = tables.current_table_version_id").
		Where("tables.collection_id = ? AND tables.name = ? AND tv.status = ?", collectionID, name, model.VersionFrozen).
		First(&v).Error
	if err != nil {
		return nil, wrapGormErr(err, "frozen table "+name)
	}
	return &v, nil
}

func (t *txView) InsertTableVersion(ctx context.Context, v *model.TableVersion) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateTableVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	res := t.gdb(ctx).Model(&model.TableVersion{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("table version %s", id)
	}
	return nil
}
func (t *txView) GetTableVersion(ctx context.Context, id string) (*model.TableVersion, error) {
	var v model.TableVersion
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "table version "+id)
	}
	return &v, nil
}
func (t *txView) GetActiveTableVersion(ctx context.Context, tableID string) (*model.TableVersion, error) {
	var v model.TableVersion
	err := t.gdb(ctx).Where("table_id = ? AND status IN ?", tableID, []model.VersionStatus{model.VersionActive, model.VersionFrozen}).
		Order("id DESC").First(&v).Error
	if err != nil {
		return nil, wrapGormErr(err, "active table version for "+tableID)
	}
	return &v, nil
}

func (t *txView) ListTableVersionsByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.TableVersion, error) {
	var out []*model.TableVersion
	err := t.gdb(ctx).Where("function_version_id = ?", functionVersionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertDependency(ctx context.Context, v *model.Dependency) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateDependencyStatus(ctx context.Context, id string, status model.VersionStatus) error {
	res := t.gdb(ctx).Model(&model.Dependency{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("dependency %s", id)
	}
	return nil
}
func (t *txView) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	var v model.Dependency
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "dependency "+id)
	}
	return &v, nil
}
func (t *txView) ListDependenciesByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.Dependency, error) {
	var out []*model.Dependency
	err := t.gdb(ctx).Where("function_version_id = ?", functionVersionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}
func (t *txView) ListActiveDependenciesByTable(ctx context.Context, tableID string) ([]*model.Dependency, error) {
	var out []*model.Dependency
	err := t.gdb(ctx).Where("table_id = ? AND status = ?", tableID, model.VersionActive).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertTrigger(ctx context.Context, v *model.Trigger) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateTriggerStatus(ctx context.Context, id string, status model.VersionStatus) error {
	res := t.gdb(ctx).Model(&model.Trigger{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("trigger %s", id)
	}
	return nil
}
func (t *txView) ListTriggersByTable(ctx context.Context, tableID string) ([]*model.Trigger, error) {
	var out []*model.Trigger
	err := t.gdb(ctx).Where("table_id = ?", tableID).Find(&out).Error
	return out, wrapGormErr(err, "")
}
func (t *txView) ListActiveTriggersByConsumer(ctx context.Context, functionVersionID string) ([]*model.Trigger, error) {
	var out []*model.Trigger
	err := t.gdb(ctx).Where("consumer_function_version_id = ? AND status = ?", functionVersionID, model.VersionActive).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertExecution(ctx context.Context, v *model.Execution) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	var v model.Execution
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "execution "+id)
	}
	return &v, nil
}

func (t *txView) InsertTransaction(ctx context.Context, v *model.Transaction) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	var v model.Transaction
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "transaction "+id)
	}
	return &v, nil
}
func (t *txView) UpdateTransactionCommittedOn(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := t.gdb(ctx).Model(&model.Transaction{}).Where("id = ?", id).Update("commited_on", now)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("transaction %s", id)
	}
	return nil
}
func (t *txView) ListTransactionsByExecution(ctx context.Context, executionID string) ([]*model.Transaction, error) {
	var out []*model.Transaction
	err := t.gdb(ctx).Where("execution_id = ?", executionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return wrapGormErr(t.gdb(ctx).Save(v).Error, "")
}
func (t *txView) GetFunctionRun(ctx context.Context, id string) (*model.FunctionRun, error) {
	var v model.FunctionRun
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "function run "+id)
	}
	return &v, nil
}
func (t *txView) ListFunctionRunsByExecution(ctx context.Context, executionID string) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	err := t.gdb(ctx).Where("execution_id = ?", executionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}
func (t *txView) ListFunctionRunsByTransaction(ctx context.Context, transactionID string) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	err := t.gdb(ctx).Where("transaction_id = ?", transactionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}
func (t *txView) ListDispatchableFunctionRuns(ctx context.Context, limit int) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	q := t.gdb(ctx).Where("status IN ?", []model.RunStatus{model.StatusScheduled, model.StatusReScheduled})
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertTableDataVersion(ctx context.Context, v *model.TableDataVersion) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) UpdateTableDataVersionHasData(ctx context.Context, id string, hasData bool) error {
	res := t.gdb(ctx).Model(&model.TableDataVersion{}).Where("id = ?", id).Update("has_data", hasData)
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("table data version %s", id)
	}
	return nil
}
func (t *txView) GetTableDataVersion(ctx context.Context, id string) (*model.TableDataVersion, error) {
	var v model.TableDataVersion
	if err := t.gdb(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr(err, "table data version "+id)
	}
	return &v, nil
}
func (t *txView) ListTableDataVersionTimeline(ctx context.Context, tableID string, onlyWithData bool) ([]*model.TableDataVersion, error) {
	var out []*model.TableDataVersion
	q := t.gdb(ctx).Where("table_id = ?", tableID)
	if onlyWithData {
		q = q.Where("has_data = ?", true)
	}
	err := q.Order("created_on DESC").Find(&out).Error
	return out, wrapGormErr(err, "")
}
func (t *txView) ListTableDataVersionsByFunctionRun(ctx context.Context, functionRunID string) ([]*model.TableDataVersion, error) {
	var out []*model.TableDataVersion
	err := t.gdb(ctx).Where("function_run_id = ?", functionRunID).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertTablePartition(ctx context.Context, v *model.TablePartition) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) ListTablePartitions(ctx context.Context, tableDataVersionID string) ([]*model.TablePartition, error) {
	var out []*model.TablePartition
	err := t.gdb(ctx).Where("table_data_version_id = ?", tableDataVersionID).Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertFunctionRequirement(ctx context.Context, v *model.FunctionRequirement) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) ListFunctionRequirements(ctx context.Context, functionRunID string) ([]*model.FunctionRequirement, error) {
	var out []*model.FunctionRequirement
	err := t.gdb(ctx).Where("function_run_id = ?", functionRunID).Order("dep_pos ASC, version_pos ASC").Find(&out).Error
	return out, wrapGormErr(err, "")
}

func (t *txView) InsertWorkerMessage(ctx context.Context, v *model.WorkerMessage) error {
	return wrapGormErr(t.gdb(ctx).Create(v).Error, "")
}
func (t *txView) LockWorkerMessage(ctx context.Context, functionRunID, owner string, leaseTTLSeconds int) (*model.WorkerMessage, error) {
	expires := time.Now().UTC().Add(time.Duration(leaseTTLSeconds) * time.Second)
	res := t.gdb(ctx).Model(&model.WorkerMessage{}).
		Where("function_run_id = ? AND message_status = ?", functionRunID, model.MessageUnlocked).
		Updates(map[string]any{"message_status": model.MessageLocked, "locked_by": owner, "lease_expires_on": expires})
	if res.Error != nil {
		return nil, wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return nil, catalogerr.Conflict("worker message for run %s unavailable to lock", functionRunID)
	}
	return t.GetWorkerMessageByRun(ctx, functionRunID)
}
func (t *txView) UnlockWorkerMessage(ctx context.Context, functionRunID string) error {
	res := t.gdb(ctx).Model(&model.WorkerMessage{}).Where("function_run_id = ?", functionRunID).
		Updates(map[string]any{"message_status": model.MessageUnlocked, "locked_by": "", "lease_expires_on": nil})
	if res.Error != nil {
		return wrapGormErr(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return catalogerr.NotFound("worker message for run %s", functionRunID)
	}
	return nil
}
func (t *txView) GetWorkerMessageByRun(ctx context.Context, functionRunID string) (*model.WorkerMessage, error) {
	var v model.WorkerMessage
	if err := t.gdb(ctx).First(&v, "function_run_id = ?", functionRunID).Error; err != nil {
		return nil, wrapGormErr(err, "worker message for run "+functionRunID)
	}
	return &v, nil
}
func (t *txView) ListExpiredLeases(ctx context.Context) ([]*model.WorkerMessage, error) {
	var out []*model.WorkerMessage
	err := t.gdb(ctx).Where("message_status = ? AND lease_expires_on < ?", model.MessageLocked, time.Now().UTC()).Find(&out).Error
	return out, wrapGormErr(err, "")
}

var _ catalog.Tx = (*txView)(nil)
