package service

import (
	"io"
	"net/http"
	"strconv"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/golang-jwt/jwt/v5"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
)

// RegisterRoutes wires every section 4.7 operation onto an Echo group,
// following the teacher's api.StartWithApiKey shape (plain handler
// funcs bound per-route) generalized from a single "X-API-Key" check
// to echo-jwt's bearer-token middleware, since operator routes here
// need a subject (the "actor" audit field) rather than a single shared
// key. jwtSecret signs/verifies that bearer token; it is unrelated to
// the Dispatcher's per-run callback tokens in internal/dispatcher/callback.
func (c *Core) RegisterRoutes(g *echo.Group, jwtSecret []byte) {
	g.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: jwtSecret,
		NewClaimsFunc: func(ctx echo.Context) jwt.Claims {
			return &jwt.RegisteredClaims{}
		},
	}))

	g.POST("/collections", c.handleCreateCollection)
	g.DELETE("/collections/:collection_id", c.handleDeleteCollection)
	g.POST("/collections/:collection_id/functions", c.handleRegisterFunction)
	g.PUT("/collections/:collection_id/functions/:name", c.handleUpdateFunction)
	g.DELETE("/collections/:collection_id/functions/:name", c.handleDeleteFunction)
	g.DELETE("/collections/:collection_id/tables/:name", c.handleDeleteTable)
	g.POST("/collections/:collection_id/functions/:name/trigger", c.handleTrigger)

	g.GET("/executions", c.handleListExecutions)
	g.GET("/executions/:id/status", c.handleExecutionStatus)
	g.POST("/executions/:id/cancel", c.handleCancelExecution)
	g.GET("/transactions", c.handleListTransactions)
	g.GET("/transactions/:id/status", c.handleTransactionStatus)
	g.GET("/function-runs", c.handleListFunctionRuns)
	g.POST("/function-runs/:id/hold", c.handleHoldRun)
	g.POST("/function-runs/:id/resume", c.handleResumeRun)
	g.GET("/tables", c.handleListTables)
	g.GET("/table-data-versions", c.handleListTableDataVersions)
}

func (c *Core) actor(e echo.Context) string {
	if tok, ok := e.Get("user").(*jwt.Token); ok {
		if claims, ok := tok.Claims.(*jwt.RegisteredClaims); ok {
			return claims.Subject
		}
	}
	return ""
}

func (c *Core) fail(e echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch catalogerr.KindOf(err) {
	case catalogerr.KindInvalid:
		status = http.StatusBadRequest
	case catalogerr.KindNotFound:
		status = http.StatusNotFound
	case catalogerr.KindConflict:
		status = http.StatusConflict
	case catalogerr.KindPreconditionFailed:
		status = http.StatusPreconditionFailed
	case catalogerr.KindAuthFailed:
		status = http.StatusUnauthorized
	case catalogerr.KindTransient:
		status = http.StatusServiceUnavailable
	}
	return e.JSON(status, map[string]string{"error": err.Error()})
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

func (c *Core) handleCreateCollection(e echo.Context) error {
	var req createCollectionRequest
	if err := e.Bind(&req); err != nil {
		return c.fail(e, catalogerr.Invalid("malformed request body"))
	}
	id, err := c.CreateCollection(e.Request().Context(), req.Name, c.actor(e))
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (c *Core) handleDeleteCollection(e echo.Context) error {
	var req struct {
		FunctionNames []string `json:"function_names"`
		TableNames    []string `json:"table_names"`
	}
	if err := e.Bind(&req); err != nil {
		return c.fail(e, catalogerr.Invalid("malformed request body"))
	}
	if err := c.DeleteCollection(e.Request().Context(), e.Param("collection_id"), req.FunctionNames, req.TableNames); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleRegisterFunction(e echo.Context) error {
	body, err := readBody(e)
	if err != nil {
		return c.fail(e, err)
	}
	functionID, functionVersionID, err := c.RegisterFunction(e.Request().Context(), e.Param("collection_id"), body, c.actor(e))
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]string{"function_id": functionID, "function_version_id": functionVersionID})
}

func (c *Core) handleUpdateFunction(e echo.Context) error {
	body, err := readBody(e)
	if err != nil {
		return c.fail(e, err)
	}
	functionVersionID, err := c.UpdateFunction(e.Request().Context(), e.Param("collection_id"), e.Param("name"), body, c.actor(e))
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"function_version_id": functionVersionID})
}

func (c *Core) handleDeleteFunction(e echo.Context) error {
	if err := c.DeleteFunction(e.Request().Context(), e.Param("collection_id"), e.Param("name")); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleDeleteTable(e echo.Context) error {
	if err := c.DeleteTable(e.Request().Context(), e.Param("collection_id"), e.Param("name")); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleTrigger(e echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	_ = e.Bind(&req)
	execID, err := c.Trigger(e.Request().Context(), e.Param("collection_id"), e.Param("name"), c.actor(e), req.Name)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusAccepted, map[string]string{"execution_id": execID})
}

func (c *Core) handleListExecutions(e echo.Context) error {
	cur, filters := parseListParams(e)
	page, err := c.ListExecutions(e.Request().Context(), cur, filters)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

func (c *Core) handleExecutionStatus(e echo.Context) error {
	status, err := c.ExecutionStatus(e.Request().Context(), e.Param("id"))
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"status": string(status)})
}

func (c *Core) handleCancelExecution(e echo.Context) error {
	if err := c.CancelExecution(e.Request().Context(), e.Param("id")); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleListTransactions(e echo.Context) error {
	cur, filters := parseListParams(e)
	page, err := c.ListTransactions(e.Request().Context(), cur, filters)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

func (c *Core) handleTransactionStatus(e echo.Context) error {
	status, err := c.TransactionStatus(e.Request().Context(), e.Param("id"))
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"status": string(status)})
}

func (c *Core) handleListFunctionRuns(e echo.Context) error {
	cur, filters := parseListParams(e)
	page, err := c.ListFunctionRuns(e.Request().Context(), cur, filters)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

func (c *Core) handleHoldRun(e echo.Context) error {
	if err := c.HoldRun(e.Request().Context(), e.Param("id")); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleResumeRun(e echo.Context) error {
	if err := c.ResumeRun(e.Request().Context(), e.Param("id")); err != nil {
		return c.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (c *Core) handleListTables(e echo.Context) error {
	cur, filters := parseListParams(e)
	page, err := c.ListTables(e.Request().Context(), cur, filters)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

func (c *Core) handleListTableDataVersions(e echo.Context) error {
	cur, filters := parseListParams(e)
	page, err := c.ListTableDataVersions(e.Request().Context(), cur, filters)
	if err != nil {
		return c.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

// parseListParams decodes section 6.2's query-string contract:
// order_by, desc, next/next_id, previous/previous_id, len, and
// repeatable filter=<col><op><value> parameters.
func parseListParams(e echo.Context) (catalog.Cursor, []catalog.Filter) {
	q := e.QueryParams()
	cur := catalog.Cursor{
		OrderBy:    q.Get("order_by"),
		Descending: q.Get("desc") == "true",
		Next:       q.Get("next"),
		NextID:     q.Get("next_id"),
		Previous:   q.Get("previous"),
		PreviousID: q.Get("previous_id"),
	}
	if l, err := strconv.Atoi(q.Get("len")); err == nil {
		cur.Len = l
	}

	var filters []catalog.Filter
	for _, raw := range q["filter"] {
		if f, ok := parseFilter(raw); ok {
			filters = append(filters, f)
		}
	}
	return cur, filters
}

// parseFilter splits "<col><op><value>" on the first recognized two-
// or three-character operator token, per section 6.2's grammar.
func parseFilter(raw string) (catalog.Filter, bool) {
	ops := []catalog.Operator{catalog.OpEq, catalog.OpNe, catalog.OpGe, catalog.OpLe, catalog.OpGt, catalog.OpLt, catalog.OpLike}
	for _, op := range ops {
		token := ":" + string(op) + ":"
		if idx := indexOf(raw, token); idx >= 0 {
			return catalog.Filter{Column: raw[:idx], Op: op, Value: raw[idx+len(token):]}, true
		}
	}
	return catalog.Filter{}, false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func readBody(e echo.Context) ([]byte, error) {
	body, err := io.ReadAll(e.Request().Body)
	if err != nil {
		return nil, catalogerr.Invalid("failed to read request body: %v", err)
	}
	if len(body) == 0 {
		return nil, catalogerr.Invalid("request body is required")
	}
	return body, nil
}
