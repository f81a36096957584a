package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/chat"
	"github.com/kanbanx/kanbanx/internal/db"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Agent{}, &models.Task{}, &models.AgentLease{}, &models.AuditEntry{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}

	tokens, err := auth.NewTokens(auth.TokensOpts{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	recorder := audit.NewRecorder(nil)

	router := gin.New()
	registerRoutes(router, deps{
		db:         db,
		tokens:     tokens,
		recorder:   recorder,
		classifier: chat.NewComposite(nil),
		dispatcher: &chat.Dispatcher{DB: db, Recorder: recorder},
	})
	return &testEnv{router: router, db: db, tokens: tokens}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func (e *testEnv) humanToken(t *testing.T, username, role string) string {
	t.Helper()
	hash, _ := auth.HashPassword("password123")
	user := models.User{ID: "user-" + username, Username: username, PasswordHash: hash, Role: role}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := e.tokens.IssueHuman(&user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) agentToken(t *testing.T, id, role string, caps []string) string {
	t.Helper()
	agent := models.Agent{ID: id, Name: "bot-" + id, Role: role, IsActive: true}
	if err := agent.SetCapabilities(caps); err != nil {
		t.Fatalf("set capabilities: %v", err)
	}
	if err := e.db.Create(&agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}
	token, err := e.tokens.IssueAgent(&agent)
	if err != nil {
		t.Fatalf("issue agent token: %v", err)
	}
	return token
}

func (e *testEnv) seedTask(t *testing.T, id, title, status string, eligible bool) {
	t.Helper()
	task := models.Task{ID: id, Title: title, Status: status, ServiceClass: models.ClassLinear, AIEligible: eligible, CreatedBy: "tester"}
	if err := e.db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.humanToken(t, "root", models.RoleAdmin)

	w := env.request(t, http.MethodPost, "/api/auth/register", admin, map[string]string{
		"username": "alice", "password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)["data"].(map[string]interface{})
	if created["display_name"] != "alice" {
		t.Errorf("display_name = %v, want username fallback", created["display_name"])
	}

	w = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	data := decode(t, w)["data"].(map[string]interface{})
	if data["token"] == "" {
		t.Error("login returned no token")
	}
	user := data["user"].(map[string]interface{})
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash leaked in response")
	}
}

func TestRegister_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	plain := env.humanToken(t, "bob", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "eve", "password": "password123",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous register = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/auth/register", plain, map[string]string{
		"username": "eve", "password": "password123",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin register = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	admin := env.humanToken(t, "root", models.RoleAdmin)
	env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/auth/register", admin, map[string]string{
		"username": "alice", "password": "password123",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	env := newTestEnv(t)
	admin := env.humanToken(t, "root", models.RoleAdmin)

	w := env.request(t, http.MethodPost, "/api/auth/register", admin, map[string]string{
		"username": "eve", "password": "password123", "role": "superuser",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestTasks_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/tasks", "/api/auth/profile"} {
		w := env.request(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, w.Code)
		}
	}
}

func TestTask_CreateMoveBoard(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/tasks", token, map[string]interface{}{
		"title":       "Fix login bug",
		"ai_eligible": true,
		"tags":        []string{"auth"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)["data"].(map[string]interface{})
	id := created["id"].(string)
	if created["status"] != models.StatusBacklog {
		t.Errorf("status = %v, want backlog", created["status"])
	}

	w = env.request(t, http.MethodPatch, "/api/tasks/"+id+"/move", token, map[string]string{
		"status": models.StatusTodo,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/tasks", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("board status = %d", w.Code)
	}
	board := decode(t, w)["data"].(map[string]interface{})
	todo := board["todo"].([]interface{})
	if len(todo) != 1 {
		t.Errorf("todo column = %v", todo)
	}
}

func TestTask_MoveInvalidStatus(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)
	env.seedTask(t, "t1", "x", models.StatusBacklog, false)

	w := env.request(t, http.MethodPatch, "/api/tasks/t1/move", token, map[string]string{"status": "archived"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestTask_GetWithHistory(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/tasks", token, map[string]string{"title": "With history"})
	id := decode(t, w)["data"].(map[string]interface{})["id"].(string)

	w = env.request(t, http.MethodGet, "/api/tasks/"+id, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	data := decode(t, w)["data"].(map[string]interface{})
	history := data["history"].([]interface{})
	if len(history) != 1 {
		t.Errorf("history = %v", history)
	}
}

func TestMCP_ClaimFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)
	env.seedTask(t, "t1", "Claimable", models.StatusTodo, true)

	w := env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("available status = %d: %s", w.Code, w.Body.String())
	}
	available := decode(t, w)["data"].([]interface{})
	if len(available) != 1 {
		t.Fatalf("available = %v", available)
	}

	w = env.request(t, http.MethodPost, "/api/mcp/tasks/t1/claim", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %s", w.Code, w.Body.String())
	}

	// Claimed task disappears from the available list.
	w = env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)
	if got := decode(t, w)["data"].([]interface{}); len(got) != 0 {
		t.Errorf("available after claim = %v", got)
	}

	w = env.request(t, http.MethodPatch, "/api/mcp/tasks/t1/status", token, map[string]string{"status": models.StatusInProgress})
	if w.Code != http.StatusOK {
		t.Fatalf("status update = %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodPost, "/api/mcp/tasks/t1/release", token, map[string]string{"reason": "out of time"})
	if w.Code != http.StatusOK {
		t.Fatalf("release status = %d: %s", w.Code, w.Body.String())
	}
}

func TestMCP_SecondClaimConflicts(t *testing.T) {
	env := newTestEnv(t)
	first := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)
	second := env.agentToken(t, "a2", models.AgentRolePrep, models.AllCapabilities)
	env.seedTask(t, "t1", "Contested", models.StatusTodo, true)

	if w := env.request(t, http.MethodPost, "/api/mcp/tasks/t1/claim", first, nil); w.Code != http.StatusOK {
		t.Fatalf("first claim = %d", w.Code)
	}
	w := env.request(t, http.MethodPost, "/api/mcp/tasks/t1/claim", second, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second claim = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestMCP_StatusWithoutLeaseForbidden(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)
	env.seedTask(t, "t1", "Unclaimed", models.StatusTodo, true)

	w := env.request(t, http.MethodPatch, "/api/mcp/tasks/t1/status", token, map[string]string{"status": models.StatusDone})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestMCP_CapabilityGate(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, []string{models.CapQueryTasks})
	env.seedTask(t, "t1", "Guarded", models.StatusTodo, true)

	w := env.request(t, http.MethodPost, "/api/mcp/tasks/t1/claim", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("claim status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestMCP_HumanTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMCP_InactiveAgentRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)
	env.db.Model(&models.Agent{}).Where("id = ?", "a1").Update("is_active", false)

	w := env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", w.Code, w.Body.String())
	}
}

func TestChat_RuleBasedClaim(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)
	env.seedTask(t, "3f9a2b1c-aaaa", "Chatted", models.StatusTodo, true)

	w := env.request(t, http.MethodPost, "/api/agent/chat", token, map[string]interface{}{
		"message": "claim task: 3f9a2b1c-aaaa",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", w.Code, w.Body.String())
	}
	data := decode(t, w)["data"].(map[string]interface{})
	if data["role"] != "agent" {
		t.Errorf("role = %v", data["role"])
	}
	content := data["content"].(string)
	if !strings.Contains(content, "3f9a2b1c") {
		t.Errorf("content = %q", content)
	}

	actions := data["actions"].([]interface{})
	if len(actions) != 1 {
		t.Fatalf("actions = %v", actions)
	}
	action := actions[0].(map[string]interface{})
	if action["type"] != "claim" {
		t.Errorf("action type = %v", action["type"])
	}

	// The lease belongs to the built-in chat agent, not the caller.
	var lease models.AgentLease
	if err := env.db.First(&lease).Error; err != nil {
		t.Fatalf("lease not created: %v", err)
	}
	var agent models.Agent
	if err := env.db.First(&agent, "id = ?", lease.AgentID).Error; err != nil {
		t.Fatalf("lease agent: %v", err)
	}
	if agent.Name != db.ChatAgentName {
		t.Errorf("lease held by %q, want chat agent", agent.Name)
	}
}

func TestChat_UnrecognizedGetsHelp(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/agent/chat", token, map[string]string{"message": "good morning"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d", w.Code)
	}
	content := decode(t, w)["data"].(map[string]interface{})["content"].(string)
	if !strings.Contains(content, "claim task:") {
		t.Errorf("content = %q", content)
	}
}

func TestEnvelope_ErrorShape(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodGet, "/api/tasks/missing", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "missing") {
		t.Errorf("error = %v", body["error"])
	}
}

func TestProfile_PasswordChange(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	// Changing the password without proving the current one fails.
	w := env.request(t, http.MethodPut, "/api/auth/profile", token, map[string]string{
		"new_password": "newpassword9",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("change without current password = %d, want 400: %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodPut, "/api/auth/profile", token, map[string]string{
		"current_password": "wrong", "new_password": "newpassword9",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("change with wrong current password = %d, want 401", w.Code)
	}

	w = env.request(t, http.MethodPut, "/api/auth/profile", token, map[string]string{
		"current_password": "password123", "new_password": "newpassword9",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "newpassword9",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login with new password = %d", w.Code)
	}
}

func TestProfile_DisplayNameUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := env.humanToken(t, "alice", models.RoleUser)

	w := env.request(t, http.MethodPut, "/api/auth/profile", token, map[string]string{
		"display_name": "Alice L.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/auth/profile", token, nil)
	profile := decode(t, w)["data"].(map[string]interface{})
	if profile["display_name"] != "Alice L." {
		t.Errorf("display_name = %v", profile["display_name"])
	}
}

func TestAgent_LastActiveTouched(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)

	env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)

	var agent models.Agent
	env.db.First(&agent, "id = ?", "a1")
	if agent.LastActive == nil {
		t.Error("last_active not touched")
	}
}

func TestAvailable_ServiceClassOrdering(t *testing.T) {
	env := newTestEnv(t)
	token := env.agentToken(t, "a1", models.AgentRolePrep, models.AllCapabilities)

	env.seedTask(t, "later", "Linear work", models.StatusTodo, true)
	env.db.Model(&models.Task{}).Where("id = ?", "later").Update("service_class", models.ClassLinear)
	env.seedTask(t, "first", "Urgent work", models.StatusTodo, true)
	env.db.Model(&models.Task{}).Where("id = ?", "first").Update("service_class", models.ClassMustDoNow)

	w := env.request(t, http.MethodGet, "/api/mcp/tasks/available", token, nil)
	got := decode(t, w)["data"].([]interface{})
	if len(got) != 2 {
		t.Fatalf("available = %d tasks", len(got))
	}
	ids := []string{
		got[0].(map[string]interface{})["id"].(string),
		got[1].(map[string]interface{})["id"].(string),
	}
	if ids[0] != "first" || ids[1] != "later" {
		t.Errorf("order = %v, want [first later]", ids)
	}
}
