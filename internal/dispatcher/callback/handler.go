package callback

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/manifest"
)

// OnCallback applies one decoded worker response to the run it reports
// on. Implemented by *dispatcher.Dispatcher; kept as a function type
// here so this package never imports dispatcher (it would be a cycle:
// dispatcher mints the tokens this package verifies).
type OnCallback func(ctx context.Context, functionRunID string, resp *manifest.Response) error

// Handler serves the worker_callback endpoint of section 4.7, mirroring
// the teacher's api.Handlers method style (bind/validate/call/c.JSON),
// but with the bearer token's subject scoped to the path's run id
// instead of a single Echo-JWT middleware signing key for every route.
type Handler struct {
	signer *TokenSigner
	on     OnCallback
}

// NewHandler returns a Handler verifying tokens with signer and
// applying accepted callbacks via on.
func NewHandler(signer *TokenSigner, on OnCallback) *Handler {
	return &Handler{signer: signer, on: on}
}

// Register wires POST /callback/:run_id onto g.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/callback/:run_id", h.handle)
}

func (h *Handler) handle(c echo.Context) error {
	runID := c.Param("run_id")
	if runID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "run_id is required"})
	}

	token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if token == "" || h.signer.Verify(token, runID) != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid callback token"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
	}
	resp, err := manifest.DecodeResponse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed response envelope"})
	}

	if err := h.on(c.Request().Context(), runID, resp); err != nil {
		return c.JSON(statusForKind(catalogerr.KindOf(err)), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func statusForKind(k catalogerr.Kind) int {
	switch k {
	case catalogerr.KindInvalid:
		return http.StatusBadRequest
	case catalogerr.KindNotFound:
		return http.StatusNotFound
	case catalogerr.KindConflict:
		return http.StatusConflict
	case catalogerr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case catalogerr.KindAuthFailed:
		return http.StatusUnauthorized
	case catalogerr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
