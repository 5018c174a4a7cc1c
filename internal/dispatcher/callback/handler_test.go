package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
)

func newTestServer(t *testing.T, on OnCallback) (*echo.Echo, *TokenSigner) {
	t.Helper()
	e := echo.New()
	signer := NewTokenSigner([]byte("test-secret"), time.Minute)
	NewHandler(signer, on).Register(e.Group(""))
	return e, signer
}

func doCallback(e *echo.Echo, runID, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback/"+runID, strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAcceptsAValidCallback(t *testing.T) {
	var gotRun string
	var gotResp *manifest.Response
	e, signer := newTestServer(t, func(ctx context.Context, functionRunID string, resp *manifest.Response) error {
		gotRun = functionRunID
		gotResp = resp
		return nil
	})
	token, err := signer.Mint("run-1")
	require.NoError(t, err)
	body, err := manifest.EncodeResponse(&manifest.Response{Status: model.ResponseDone})
	require.NoError(t, err)

	rec := doCallback(e, "run-1", token, body)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "run-1", gotRun)
	require.NotNil(t, gotResp)
	assert.Equal(t, model.ResponseDone, gotResp.Status)
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	e, _ := newTestServer(t, func(ctx context.Context, functionRunID string, resp *manifest.Response) error {
		t.Fatal("on-callback must not run without a valid token")
		return nil
	})
	rec := doCallback(e, "run-1", "", []byte(`{}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsTokenScopedToADifferentRun(t *testing.T) {
	e, signer := newTestServer(t, func(ctx context.Context, functionRunID string, resp *manifest.Response) error {
		t.Fatal("on-callback must not run for a mismatched run id")
		return nil
	})
	token, err := signer.Mint("run-1")
	require.NoError(t, err)
	rec := doCallback(e, "run-2", token, []byte(`{}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerMapsConflictErrorToHTTPConflict(t *testing.T) {
	e, signer := newTestServer(t, func(ctx context.Context, functionRunID string, resp *manifest.Response) error {
		return catalogerr.Conflict("response body disagrees with the already-recorded outcome")
	})
	token, err := signer.Mint("run-1")
	require.NoError(t, err)
	body, err := manifest.EncodeResponse(&manifest.Response{Status: model.ResponseDone})
	require.NoError(t, err)

	rec := doCallback(e, "run-1", token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	e, signer := newTestServer(t, func(ctx context.Context, functionRunID string, resp *manifest.Response) error {
		t.Fatal("on-callback must not run for an undecodable body")
		return nil
	})
	token, err := signer.Mint("run-1")
	require.NoError(t, err)
	rec := doCallback(e, "run-1", token, []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
