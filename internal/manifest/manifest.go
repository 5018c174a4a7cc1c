// Package manifest defines the worker request/response envelope of
// section 6.1: the document the Scheduler hands a worker and the
// document a worker hands back through the Dispatcher's callback.
// The shape follows the teacher's discriminated-envelope style in
// semantic/types.go (a flat struct per concept, `@type`-equivalent
// discriminators, `omitempty` throughout), generalized from Schema.org
// actions to function-run requests.
package manifest

import (
	"encoding/json"

	"tabsdata.io/execcore/internal/model"
)

// Version distinguishes the V1 and V2 request envelope shapes; V2 is
// authoritative and the only one this Core ever emits, but V1 is kept
// decodable for workers still speaking the older dialect.
type Version string

const (
	V1 Version = "v1"
	V2 Version = "v2"
)

// BundleRef locates a function's code archive.
type BundleRef struct {
	URI       string `json:"uri"`
	EnvPrefix string `json:"env_prefix,omitempty"`
}

// Callback tells the worker where and how to report back.
type Callback struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Info is the fixed descriptive block of the request context.
type Info struct {
	CollectionID      string `json:"collection_id"`
	Collection        string `json:"collection"`
	FunctionID        string `json:"function_id"`
	FunctionVersionID string `json:"function_version_id"`
	Function          string `json:"function"`
	FunctionRunID     string `json:"function_run_id"`
	FunctionBundle    BundleRef `json:"function_bundle"`
	TransactionID     string `json:"transaction_id"`
	ExecutionID       string `json:"execution_id"`
	ExecutionName     string `json:"execution_name"`
	TriggeredOn       int64  `json:"triggered_on"` // UTC epoch millis, per section 6.3
	ScheduledOn       int64  `json:"scheduled_on"`
}

// Location is an allocated or resolved storage slot. Nil when a
// requirement resolved to a legitimate null input.
type Location struct {
	URI       string `json:"uri"`
	EnvPrefix string `json:"env_prefix,omitempty"`
}

// TableSlot is one entry of system_input/input/system_output/output:
// a "Table" typed slot carrying identity, position, and location.
type TableSlot struct {
	Type               string    `json:"type"` // always "Table"
	Name               string    `json:"name"`
	CollectionID       string    `json:"collection_id"`
	Collection         string    `json:"collection"`
	TableID            string    `json:"table_id"`
	TableVersionID     string    `json:"table_version_id"`
	TableDataVersionID string    `json:"table_data_version_id,omitempty"`
	FunctionRunID      string    `json:"function_run_id,omitempty"`
	Location           *Location `json:"location"`
	TablePos           int       `json:"table_pos"`
	VersionPos         int       `json:"version_pos"`
	InputIdx           int       `json:"input_idx"` // global sequential input id, section 6.1
}

// Request is the V2 envelope handed to a worker at dispatch time.
type Request struct {
	Version      Version     `json:"version"`
	Class        string      `json:"class"`  // "ephemeral"
	Worker       string      `json:"worker"` // "function"
	Action       string      `json:"action"` // "start"
	Callback     Callback    `json:"callback"`
	Context      RequestContext `json:"context"`
}

// RequestContext is the per-run payload of a Request.
type RequestContext struct {
	Info          Info        `json:"info"`
	SystemInput   []TableSlot `json:"system_input,omitempty"`
	Input         []TableSlot `json:"input,omitempty"`
	SystemOutput  []TableSlot `json:"system_output,omitempty"`
	Output        []TableSlot `json:"output,omitempty"`
}

// OutputReport is one entry of a Response's context.output[], a
// discriminated union over whether the run wrote, skipped, or
// partitioned a given table.
type OutputReport struct {
	Kind       OutputKind            `json:"kind"`
	Table      TableSlot              `json:"table"`
	Partitions map[string]string      `json:"partitions,omitempty"` // partition key -> uri, Kind == OutputPartitions only
}

// OutputKind discriminates OutputReport's three shapes.
type OutputKind string

const (
	OutputData       OutputKind = "Data"
	OutputNoData     OutputKind = "NoData"
	OutputPartitions OutputKind = "Partitions"
)

// Response is the callback envelope a worker posts back for one run.
type Response struct {
	ID     string         `json:"id"`
	Class  string         `json:"class"`
	Worker string         `json:"worker"`
	Action string         `json:"action"` // "Notify"
	Start  int64               `json:"start"`
	End    int64               `json:"end"`
	Status model.ResponseStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
	Context ResponseContext `json:"context"`
}

// ResponseContext carries the reported outputs of a Response.
type ResponseContext struct {
	Output []OutputReport `json:"output,omitempty"`
}

// DecodeRequest parses raw into a Request, defaulting Version to V2
// when the field is absent; a V1 document is recognized only by an
// explicit "v1" version field.
func DecodeRequest(raw []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	if r.Version == "" {
		r.Version = V2
	}
	return &r, nil
}

// EncodeRequest serializes r as the wire document handed to a worker.
func EncodeRequest(r *Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse parses raw into a Response posted back by a worker.
func DecodeResponse(raw []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeResponse serializes r, used by tests and by workers exercising
// the callback contract.
func EncodeResponse(r *Response) ([]byte, error) {
	return json.Marshal(r)
}
