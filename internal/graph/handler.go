package graph

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/congo-pay/authgraph/internal/autherr"
	"github.com/congo-pay/authgraph/internal/authz"
)

// Handler serves GraphQL over HTTP.
type Handler struct {
	schema graphql.Schema
	gate   *authz.Gate
	logger *slog.Logger
}

// NewHandler creates the GraphQL HTTP handler.
func NewHandler(schema graphql.Schema, gate *authz.Gate, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{schema: schema, gate: gate, logger: logger}
}

type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Serve handles GET and POST requests to the GraphQL endpoint.
func (h *Handler) Serve(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error(), autherr.CodeBadUserInput)
	}
	if req.Query == "" {
		return writeError(c, http.StatusBadRequest, "Must provide query string.", autherr.CodeBadUserInput)
	}

	op, err := authz.Parse(req.Query, req.OperationName)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error(), "GRAPHQL_PARSE_FAILED")
	}
	if c.Method() == fiber.MethodGet && op.Kind != authz.KindQuery {
		c.Set(fiber.HeaderAllow, "POST")
		return writeError(c, http.StatusMethodNotAllowed, "Only queries can be sent over GET", autherr.CodeBadUserInput)
	}

	ctx := c.UserContext()
	if err := h.gate.Authorize(ctx, op); err != nil {
		h.logger.DebugContext(ctx, "operation rejected",
			slog.String("operation", op.Name),
			slog.Any("fields", op.RootFields),
		)
		var ae *autherr.Error
		if errors.As(err, &ae) {
			return writeError(c, http.StatusOK, ae.Message, ae.Code)
		}
		return writeError(c, http.StatusOK, err.Error(), autherr.CodeAuthenticationRequired)
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	return c.Status(http.StatusOK).JSON(result)
}

func parseRequest(c *fiber.Ctx) (request, error) {
	var req request
	if c.Method() == fiber.MethodGet {
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
		if vars := c.Query("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				return request{}, errors.New("variables must be a JSON object")
			}
		}
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return request{}, errors.New("request body must be a JSON object")
	}
	return req, nil
}

func writeError(c *fiber.Ctx, status int, message string, code autherr.Code) error {
	return c.Status(status).JSON(graphql.Result{
		Errors: []gqlerrors.FormattedError{{
			Message:    message,
			Extensions: map[string]interface{}{"code": string(code)},
		}},
	})
}
