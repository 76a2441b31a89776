package graph_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/authgraph/internal/auth"
	"github.com/congo-pay/authgraph/internal/authz"
	"github.com/congo-pay/authgraph/internal/graph"
	"github.com/congo-pay/authgraph/internal/identity"
	"github.com/congo-pay/authgraph/internal/logging"
	"github.com/congo-pay/authgraph/internal/mfa"
	"github.com/congo-pay/authgraph/internal/middleware"
	"github.com/congo-pay/authgraph/internal/password"
)

const (
	registerMutation = `mutation($email: String!, $password: String!) {
		register(firstName: "Ada", lastName: "Lovelace", email: $email, password: $password) {
			token
			user { id email firstName mfaEnabled }
		}
	}`
	loginMutation = `mutation($email: String!, $password: String!) {
		login(email: $email, password: $password) { token user { id } }
	}`
	loginWithMFAMutation = `mutation($email: String!, $password: String!, $token: String!) {
		loginWithMfa(email: $email, password: $password, token: $token) { token user { mfaEnabled } }
	}`
	meQuery = `{ me { id email mfaEnabled } }`
)

type gqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

func (r gqlResponse) code() string {
	if len(r.Errors) == 0 {
		return ""
	}
	code, _ := r.Errors[0].Extensions["code"].(string)
	return code
}

type authPayload struct {
	Token string `json:"token"`
	User  struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		FirstName  string `json:"firstName"`
		MFAEnabled bool   `json:"mfaEnabled"`
	} `json:"user"`
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	repo := identity.NewMemoryRepository()
	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	mfaManager := mfa.NewManager(repo, "authgraph", logger)
	users := identity.NewService(repo, password.NewHasher(bcrypt.MinCost), mfaManager, identity.DefaultPolicy(), logger)

	schema, err := graph.NewSchema(graph.NewResolver(users, mfaManager, tokens, logger))
	require.NoError(t, err)
	h := graph.NewHandler(schema, authz.NewGate(nil), logger)

	app := fiber.New()
	app.Use(middleware.Identity(tokens, users, logger))
	app.Get("/graphql", h.Serve)
	app.Post("/graphql", h.Serve)
	return app
}

func post(t *testing.T, app *fiber.App, token, query string, vars map[string]any) (int, gqlResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, gqlResponse) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func payload(t *testing.T, r gqlResponse, field string) authPayload {
	t.Helper()
	require.Empty(t, r.Errors)
	var p authPayload
	require.NoError(t, json.Unmarshal(r.Data[field], &p))
	return p
}

func register(t *testing.T, app *fiber.App, email string) authPayload {
	t.Helper()
	_, resp := post(t, app, "", registerMutation, map[string]any{"email": email, "password": "Str0ng!Pass"})
	return payload(t, resp, "register")
}

func TestRegisterLoginAndMe(t *testing.T) {
	app := newTestApp(t)

	reg := register(t, app, "ada@example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, "Ada", reg.User.FirstName)
	assert.False(t, reg.User.MFAEnabled)

	_, resp := post(t, app, "", loginMutation, map[string]any{"email": "ada@example.com", "password": "Str0ng!Pass"})
	login := payload(t, resp, "login")
	assert.Equal(t, reg.User.ID, login.User.ID)

	status, resp := post(t, app, login.Token, meQuery, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data["me"]), `"email":"ada@example.com"`)

	_, resp = post(t, app, "", meQuery, nil)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, "null", string(resp.Data["me"]))
}

func TestRegisterErrors(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "ada@example.com")

	_, resp := post(t, app, "", registerMutation, map[string]any{"email": "ada@example.com", "password": "Str0ng!Pass"})
	assert.Equal(t, "DUPLICATE_EMAIL", resp.code())

	_, resp = post(t, app, "", registerMutation, map[string]any{"email": "bob@example.com", "password": "weakpass"})
	assert.Equal(t, "BAD_USER_INPUT", resp.code())
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "Invalid password: ")
}

func TestProtectedOperationsRequireToken(t *testing.T) {
	app := newTestApp(t)

	for _, q := range []string{
		`mutation { enableMfa { secret } }`,
		`mutation { disableMFA }`,
		`mutation { verifyMfa(token: "123456") }`,
	} {
		status, resp := post(t, app, "", q, nil)
		assert.Equal(t, http.StatusOK, status, q)
		assert.Equal(t, "UNAUTHENTICATED", resp.code(), q)
		assert.Equal(t, "Authentication required. Please provide a valid token.", resp.Errors[0].Message)
	}

	_, resp := post(t, app, "not-a-token", `mutation { enableMfa { secret } }`, nil)
	assert.Equal(t, "UNAUTHENTICATED", resp.code())
}

func TestMFAFlow(t *testing.T) {
	app := newTestApp(t)
	reg := register(t, app, "ada@example.com")
	creds := map[string]any{"email": "ada@example.com", "password": "Str0ng!Pass"}

	_, resp := post(t, app, reg.Token, `mutation { enableMfa { secret otpauthUrl qrCode } }`, nil)
	require.Empty(t, resp.Errors)
	var setup struct {
		Secret     string `json:"secret"`
		OtpauthURL string `json:"otpauthUrl"`
		QRCode     string `json:"qrCode"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["enableMfa"], &setup))
	assert.Len(t, setup.Secret, 32)
	assert.Contains(t, setup.OtpauthURL, "otpauth://totp/")
	assert.Contains(t, setup.QRCode, "data:image/png;base64,")

	_, resp = post(t, app, "", loginMutation, creds)
	assert.Equal(t, "MFA_REQUIRED", resp.code())

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	withCode := map[string]any{"email": "ada@example.com", "password": "Str0ng!Pass", "token": code}
	_, resp = post(t, app, "", loginWithMFAMutation, withCode)
	login := payload(t, resp, "loginWithMfa")
	assert.NotEmpty(t, login.Token)
	assert.True(t, login.User.MFAEnabled)

	stale, err := totp.GenerateCode(setup.Secret, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	withCode["token"] = stale
	_, resp = post(t, app, "", loginWithMFAMutation, withCode)
	assert.Equal(t, "INVALID_MFA_TOKEN", resp.code())

	_, resp = post(t, app, login.Token, `mutation($t: String!) { verifyMfa(token: $t) }`, map[string]any{"t": code})
	require.Empty(t, resp.Errors)
	assert.Equal(t, "true", string(resp.Data["verifyMfa"]))

	_, resp = post(t, app, login.Token, `mutation { disableMfa }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "true", string(resp.Data["disableMfa"]))

	_, resp = post(t, app, "", loginMutation, creds)
	payload(t, resp, "login")

	withCode["token"] = code
	_, resp = post(t, app, "", loginWithMFAMutation, withCode)
	assert.Equal(t, "MFA_NOT_ENABLED", resp.code())
}

func TestLockoutOverGraphQL(t *testing.T) {
	app := newTestApp(t)
	register(t, app, "ada@example.com")
	wrong := map[string]any{"email": "ada@example.com", "password": "Wr0ng!Pass"}

	for i := 0; i < 4; i++ {
		_, resp := post(t, app, "", loginMutation, wrong)
		assert.Equal(t, "INVALID_CREDENTIALS", resp.code())
	}
	_, resp := post(t, app, "", loginMutation, wrong)
	assert.Equal(t, "ACCOUNT_LOCKED", resp.code())

	_, resp = post(t, app, "", loginMutation, map[string]any{"email": "ada@example.com", "password": "Str0ng!Pass"})
	assert.Equal(t, "ACCOUNT_LOCKED", resp.code())
	assert.Contains(t, resp.Errors[0].Message, "Account is locked. Please try again in 15 minutes.")
}

func TestTransportErrors(t *testing.T) {
	app := newTestApp(t)

	status, resp := post(t, app, "", `{ me {`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GRAPHQL_PARSE_FAILED", resp.code())

	status, resp = post(t, app, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, resp.Errors)

	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(meQuery), nil)
	status, resp = send(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", string(resp.Data["me"]))

	req = httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(`mutation { disableMfa }`), nil)
	status, _ = send(t, app, req)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}
