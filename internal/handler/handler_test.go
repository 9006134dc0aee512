package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	return c, w
}

func TestReadBodyRejectsEmpty(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "")
	_, ok := readBody(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadBodyAcceptsNonEmpty(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, `{"model":"x"}`)
	body, ok := readBody(c)
	require.True(t, ok)
	assert.Equal(t, `{"model":"x"}`, string(body))
}

func TestSessionHashDeterministic(t *testing.T) {
	a := sessionHash([]byte("same body"))
	b := sessionHash([]byte("same body"))
	c := sessionHash([]byte("different body"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestWriteOpenAIErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "bad input")

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, "bad input", decoded["error"]["message"])
	assert.Equal(t, "invalid_request_error", decoded["error"]["type"])
}

func TestWriteAnthropicErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "bad input")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, "error", decoded["type"])
}

func TestWriteGeminiErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeGeminiError(c, http.StatusNotFound, "NOT_FOUND", "unsupported model action")

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, float64(http.StatusNotFound), decoded["error"]["code"])
	assert.Equal(t, "NOT_FOUND", decoded["error"]["status"])
}

func TestMaxInt(t *testing.T) {
	assert.Equal(t, 5, maxInt(5, 3))
	assert.Equal(t, 5, maxInt(3, 5))
}

func TestRouteModelActionRejectsUnknownSuffix(t *testing.T) {
	h := &Handlers{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-pro:countTokens", nil)
	c.Params = gin.Params{{Key: "modelAction", Value: "/gemini-2.5-pro:countTokens"}}

	h.RouteModelAction(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, "NOT_FOUND", decoded["error"]["status"])
}

func TestModelParamFromTrimsSlashAndAction(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "modelAction", Value: "/gemini-2.5-pro:streamGenerateContent"}}

	assert.Equal(t, "gemini-2.5-pro", modelParamFrom(c))
}
