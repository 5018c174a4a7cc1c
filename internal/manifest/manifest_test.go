package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/model"
)

func TestDecodeRequestDefaultsVersionToV2(t *testing.T) {
	raw := []byte(`{"class":"ephemeral","worker":"function","action":"start","callback":{"url":"http://cb","method":"POST"},"context":{"info":{"function_run_id":"run_1"}}}`)
	req, err := DecodeRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, V2, req.Version)
	assert.Equal(t, "run_1", req.Context.Info.FunctionRunID)
}

func TestRequestRoundTripsThroughEncodeDecode(t *testing.T) {
	req := &Request{
		Version: V2, Class: "ephemeral", Worker: "function", Action: "start",
		Callback: Callback{URL: "http://cb/run_1", Method: "POST"},
		Context: RequestContext{
			Info: Info{FunctionRunID: "run_1", ExecutionID: "exec_1"},
			Input: []TableSlot{
				{Type: "Table", Name: "t1", TablePos: 0, VersionPos: 0, InputIdx: 0,
					Location: &Location{URI: "s3://bucket/t1/v1"}},
			},
		},
	}
	raw, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, req.Context.Info.FunctionRunID, decoded.Context.Info.FunctionRunID)
	require.Len(t, decoded.Context.Input, 1)
	assert.Equal(t, "s3://bucket/t1/v1", decoded.Context.Input[0].Location.URI)
}

func TestResponseRoundTripsWithPartitionedOutput(t *testing.T) {
	resp := &Response{
		ID: "resp_1", Class: "ephemeral", Worker: "function", Action: "Notify",
		Status: model.ResponseDone,
		Context: ResponseContext{
			Output: []OutputReport{
				{Kind: OutputPartitions, Table: TableSlot{Name: "out1"}, Partitions: map[string]string{"2024-01-01": "s3://bucket/out1/p1"}},
			},
		},
	}
	raw, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseDone, decoded.Status)
	require.Len(t, decoded.Context.Output, 1)
	assert.Equal(t, OutputPartitions, decoded.Context.Output[0].Kind)
	assert.Equal(t, "s3://bucket/out1/p1", decoded.Context.Output[0].Partitions["2024-01-01"])
}

func TestDecodeRequestRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeRequest([]byte(`{not json`))
	require.Error(t, err)
}
