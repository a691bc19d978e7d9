package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitystory/humanstudy/internal/config"
	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/relay"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/internal/store"
	ws "github.com/infinitystory/humanstudy/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

func studyConfig() *model.EvaluationConfig {
	return &model.EvaluationConfig{
		Papers: []model.Method{
			{ID: "infinitystory", Name: "InfinityStory", Directory: "infinitystory"},
			{ID: "movieagent", Name: "MovieAgent", Directory: "movieagent"},
			{ID: "animdirector", Name: "AnimDirector", Directory: "anim"},
		},
		EvaluationClips: []string{"ep1.mp4", "ep2.mp4"},
		EvaluationSections: []model.Section{
			{ID: "motion", Name: "Motion Smoothness", Order: 1},
		},
		ClipsPerSection: 1,
		WholisticCriteria: []model.Criterion{
			{ID: "narrative", Name: "Narrative"},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		JWT:       config.JWTConfig{Secret: testJWTSecret, Expiration: 1},
		RateLimit: config.RateLimitConfig{SubmitPerMin: 10000, ExportPerHour: 10000},
		Metrics:   config.MetricsConfig{Path: "/metrics"},
	}
}

// setupApp builds the app the way main does, with an in-memory store and
// no external integrations.
func setupApp(t *testing.T, evalCfg *model.EvaluationConfig, cfgErr error) *fiber.App {
	t.Helper()

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	sessions := service.NewSessionService(evalCfg, cfgErr, store.NewMemoryStore(), relay.Forwarders{}, hub, nil, service.SessionSettings{
		ReferenceMethod: "infinitystory",
		Comparisons:     4,
		ClipBase:        "clips",
	})

	return New(Deps{
		Config:      testConfig(),
		Sessions:    sessions,
		Exports:     service.NewExportService(sessions, nil, nil),
		Hub:         hub,
		RateLimiter: middleware.NewRateLimiter(nil),
		Validate:    validator.New(),
		Services:    fiber.Map{"r2": false},
	})
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// deviceToken registers a new device and returns its bearer header.
func deviceToken(t *testing.T, app *fiber.App) map[string]string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/auth/device", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := parseJSON(t, resp)
	token, _ := result["token"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, result["deviceId"])
	return map[string]string{"Authorization": "Bearer " + token}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &result), "body: %s", body)
	return result
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	detail, _ := result["error"].(map[string]interface{})
	code, _ := detail["code"].(string)
	return code
}

func allSlotsBody(slot string) string {
	return `{"answers": {
		"bgConsistency": "` + slot + `",
		"transitions": "` + slot + `",
		"characters": "` + slot + `",
		"motion": "` + slot + `",
		"aesthetic": "` + slot + `"
	}}`
}

func TestHealth(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)

	resp, err := doRequest(app, http.MethodGet, "/health", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result := parseJSON(t, resp)
	assert.Equal(t, "ok", result["status"])
	services := result["services"].(map[string]interface{})
	assert.Equal(t, true, services["config"])
	assert.Equal(t, false, services["r2"])
}

func TestAPIRequiresToken(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)

	resp, err := doRequest(app, http.MethodPost, "/api/comparison/start", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = doRequest(app, http.MethodGet, "/api/config", "", map[string]string{"Authorization": "Bearer nope"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestComparisonEndpoints(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)
	auth := deviceToken(t, app)

	resp, err := doRequest(app, http.MethodGet, "/api/comparison", "", auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/comparison/start", "", auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	started := parseJSON(t, resp)
	assert.Equal(t, false, started["resumed"])

	// Four of five criteria is rejected and changes nothing
	resp, err = doRequest(app, http.MethodPost, "/api/comparison/submit", `{"answers": {
		"bgConsistency": "A", "transitions": "B", "characters": "C", "motion": "A"
	}}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INCOMPLETE_ANSWER", errorCode(t, resp))

	resp, err = doRequest(app, http.MethodPost, "/api/comparison/submit", allSlotsBody("A"), auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := parseJSON(t, resp)
	progress := view["progress"].(map[string]interface{})
	assert.Equal(t, "Comparison 2 of 2", progress["text"])

	resp, err = doRequest(app, http.MethodGet, "/api/comparison/progress", "", auth)
	require.NoError(t, err)
	saved := parseJSON(t, resp)
	assert.Equal(t, true, saved["exists"])

	resp, err = doRequest(app, http.MethodPost, "/api/comparison/submit", allSlotsBody("C"), auth)
	require.NoError(t, err)
	view = parseJSON(t, resp)
	assert.Equal(t, "complete", view["phase"])

	resp, err = doRequest(app, http.MethodPost, "/api/comparison/submit", allSlotsBody("C"), auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/export", `{"flow": "comparison", "format": "csv"}`, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "comparison_results_EVAL_")
	body := readBody(t, resp)
	assert.True(t, strings.HasPrefix(body, "Comparison,Episode,Episode Index,Video A"))
	assert.Len(t, strings.Split(strings.TrimSpace(body), "\n"), 3)
}

func TestReviewEndpoints(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)
	auth := deviceToken(t, app)

	resp, err := doRequest(app, http.MethodPost, "/api/review/start", `{"resume": true}`, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/review/rating", `{"rating": 6}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))

	resp, err = doRequest(app, http.MethodPost, "/api/review/wholistic", `{"ratings": {"narrative": 4}}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/review/rating", `{"rating": 4, "comments": "ok"}`, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = doRequest(app, http.MethodPost, "/api/review/skip", "", auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = doRequest(app, http.MethodPost, "/api/review/rating", `{"rating": 3}`, auth)
	require.NoError(t, err)
	view := parseJSON(t, resp)
	assert.Equal(t, "wholistic", view["phase"])

	resp, err = doRequest(app, http.MethodPost, "/api/review/wholistic", `{"ratings": {}}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/review/video/next", "", auth)
	require.NoError(t, err)
	view = parseJSON(t, resp)
	wholistic := view["wholistic"].(map[string]interface{})
	assert.Equal(t, "Video 2 of 2", wholistic["videoCounter"])

	resp, err = doRequest(app, http.MethodPost, "/api/review/wholistic", `{"ratings": {"narrative": 5}}`, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = doRequest(app, http.MethodPost, "/api/review/wholistic/skip", "", auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = doRequest(app, http.MethodPost, "/api/review/wholistic", `{"ratings": {"narrative": 2}, "comments": "meh"}`, auth)
	require.NoError(t, err)
	view = parseJSON(t, resp)
	assert.Equal(t, "complete", view["phase"])
	summary := view["reviewSummary"].(map[string]interface{})
	assert.Equal(t, float64(67), summary["completionRate"])

	resp, err = doRequest(app, http.MethodPost, "/api/export", `{"flow": "review", "format": "json"}`, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseJSON(t, resp)
	assert.Len(t, data["segmentEvaluations"], 3)
	assert.Len(t, data["wholisticEvaluations"], 3)
}

func TestExportValidation(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)
	auth := deviceToken(t, app)

	resp, err := doRequest(app, http.MethodPost, "/api/export", `{"flow": "review", "format": "pdf"}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/export", `{"flow": "review", "format": "json"}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = doRequest(app, http.MethodPost, "/api/export", `{"flow": "review", "format": "json", "upload": true}`, auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConfigErrorBlocksSessions(t *testing.T) {
	app := setupApp(t, nil, assert.AnError)
	auth := deviceToken(t, app)

	for _, path := range []string{"/api/comparison/start", "/api/review/start"} {
		resp, err := doRequest(app, http.MethodPost, path, "", auth)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		assert.Equal(t, "CONFIG_ERROR", errorCode(t, resp))
	}

	resp, err := doRequest(app, http.MethodGet, "/api/config", "", auth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = doRequest(app, http.MethodGet, "/health", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "degraded", parseJSON(t, resp)["status"])
}

func TestTokenRefreshKeepsDevice(t *testing.T) {
	app := setupApp(t, studyConfig(), nil)

	resp, err := doRequest(app, http.MethodPost, "/auth/device", "", nil)
	require.NoError(t, err)
	issued := parseJSON(t, resp)

	resp, err = doRequest(app, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"Authorization": "Bearer " + issued["token"].(string),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := parseJSON(t, resp)
	assert.Equal(t, issued["deviceId"], refreshed["deviceId"])
}
