package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

const contractURL = "https://scorestream.local/docs/api/challenges.json"

type openAPISpec struct {
	Paths map[string]map[string]json.RawMessage `json:"paths"`
}

func loadContract(t *testing.T) []byte {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(filename), "..", "..", "docs", "api", "challenges.json"))
	require.NoError(t, err)
	return raw
}

func compileContract(t *testing.T, raw []byte, component string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource(contractURL, bytes.NewReader(raw)))
	schema, err := compiler.Compile(contractURL + "#/components/schemas/" + component)
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var doc interface{}
	require.NoError(t, decoder.Decode(&doc))
	require.NoError(t, schema.Validate(doc))
}

func TestContractListsChallengeEndpoints(t *testing.T) {
	var spec openAPISpec
	require.NoError(t, json.Unmarshal(loadContract(t), &spec))

	for _, path := range []string{
		"/api/v1/health",
		"/api/v2/challenges/exercises",
		"/api/v2/challenges/exercises/{id}",
		"/api/v2/challenges/submissions",
		"/api/v2/challenges/hints",
		"/api/v2/challenges/attempts",
		"/api/v2/challenges/attempts/class/{period}",
		"/api/v2/challenges/feed/ws",
	} {
		require.Contains(t, spec.Paths, path)
	}
}

func TestContractResponsesMatchSchemas(t *testing.T) {
	raw := loadContract(t)
	app := setupChallengeApp(t, appOptions{})

	resp := doRequest(t, app, http.MethodGet, "/api/v2/challenges/exercises", nil, "5", "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, compileContract(t, raw, "ExerciseListEnvelope"), resp)

	resp = doRequest(t, app, http.MethodGet, "/api/v2/challenges/exercises/5", nil, "5", "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, compileContract(t, raw, "ExerciseEnvelope"), resp)

	result := compileContract(t, raw, "ChallengeResultEnvelope")
	for _, code := range []string{sumSolution, "numbers = [1, 2]\n", "def broken(:\n"} {
		resp = doRequest(t, app, http.MethodPost, "/api/v2/challenges/submissions", submissionBody(1, code), "5", "student")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		validateBody(t, result, resp)
	}

	resp = doRequest(t, app, http.MethodGet, "/api/v2/challenges/attempts", nil, "5", "student")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, compileContract(t, raw, "AttemptListEnvelope"), resp)

	resp = doRequest(t, app, http.MethodGet, "/api/v2/challenges/attempts/class/3", nil, "t1", "teacher")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, compileContract(t, raw, "AttemptListEnvelope"), resp)
}
