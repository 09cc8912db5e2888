package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"qualflat/internal/components/chrono"
	"qualflat/internal/flatten"
	"qualflat/internal/store"
	configlibsql "qualflat/lib/configutil/libsql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testDefinition = `{
	"SurveyID": "SV_1",
	"Questions": {
		"QID1": {
			"QuestionText": "<p>Favourite colour?</p>",
			"QuestionType": "MC",
			"Selector": "SAVR",
			"DataExportTag": "Q1",
			"Choices": {"1": {"Display": "red"}, "2": {"Display": "blue"}},
			"ChoiceOrder": ["2", "1"]
		}
	},
	"SurveyFlow": {"Flow": [{"Type": "Block", "ID": "BL_1", "FlowID": "FL_2"}]},
	"Blocks": {
		"BL_1": {
			"Type": "Default",
			"Description": "Default Question Block",
			"ID": "BL_1",
			"BlockElements": [{"Type": "Question", "QuestionID": "QID1"}]
		}
	}
}`

func newTestAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /API/v3/surveys", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-token") != "test-token" {
			t.Errorf("unexpected token %q", r.Header.Get("x-api-token"))
		}
		w.Header().Set("content-type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"elements": []map[string]any{{
					"id":           "SV_1",
					"name":         "Colours",
					"isActive":     true,
					"creationDate": "2024-01-01",
					"lastModified": "2024-01-02",
				}},
				"nextPage": nil,
			},
		})
		if err != nil {
			t.Error(err)
		}
	})
	mux.HandleFunc("GET /API/v3/survey-definitions/SV_1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, err := io.WriteString(w, `{"result": `+testDefinition+`}`)
		if err != nil {
			t.Error(err)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeTestConfig(t *testing.T, baseUrl string) string {
	t.Setenv(tokenEnv, "test-token")
	path := filepath.Join(t.TempDir(), "qualflat.json5")
	writeFile(t, path, `{api: {base_url: "`+baseUrl+`/API/v3/"}}`)
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, formatName, outPath, verbose, dumpHttp = "qualflat.json5", string(formatPretty), "", false, ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := bytes.NewBuffer(nil)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	// cobra only hands the root context to subcommands without one
	for _, sub := range rootCmd.Commands() {
		sub.SetContext(ctx)
	}
	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

func TestSurveysCSV(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)

	out, err := runCLI(t, "surveys", "--config", config, "--format", "csv")
	require.NoError(t, err)
	require.Equal(t, "SurveyID,Survey_Name,IsActive,Created,LastModified\nSV_1,Colours,true,2024-01-01,2024-01-02\n", out)
}

func TestDefinitionPretty(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)

	out, err := runCLI(t, "definition", "SV_1", "--config", config)
	require.NoError(t, err)
	require.True(t, strings.Contains(out, "QID1-2"), out)
	require.True(t, strings.Contains(out, "Favourite colour?"), out)
}

func TestDefinitionXLSX(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)
	out := filepath.Join(t.TempDir(), "definition.xlsx")

	_, err := runCLI(t, "definition", "SV_1", "--config", config, "--format", "xlsx", "--out", out)
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"definition", "flow", "blocks", "answers", "questions"}, f.GetSheetList())

	_, err = runCLI(t, "definition", "SV_1", "--config", config, "--format", "xlsx")
	require.ErrorContains(t, err, "--out")
}

func TestDefinitionSQLiteAndPulls(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)
	dbPath := filepath.Join(t.TempDir(), "pulls.db")

	out, err := runCLI(t, "definition", "SV_1", "--config", config, "--format", "sqlite", "--out", dbPath)
	require.NoError(t, err)
	pullID := strings.TrimSpace(out)
	require.NotEmpty(t, pullID)

	db, err := configlibsql.Struct{File: dbPath}.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	rows, err := store.NewStore(db, chrono.NewStandardImpl()).DefinitionRows(context.Background(), pullID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "QID1-2", rows[0].CQID)
	require.Equal(t, "QID1-1", rows[1].CQID)

	out, err = runCLI(t, "pulls", "--config", config, "--out", dbPath)
	require.NoError(t, err)
	require.True(t, strings.Contains(out, pullID), out)
}

func TestRepeatedRunsGetFreshContext(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)

	for i := 0; i < 3; i++ {
		out, err := runCLI(t, "definition", "SV_1", "--config", config, "--format", "csv")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(out, strings.Join(flatten.Columns, ",")+"\n"), out)
	}
}

func TestCSVOutFile(t *testing.T) {
	server := newTestAPI(t)
	config := writeTestConfig(t, server.URL)
	out := filepath.Join(t.TempDir(), "surveys.csv")

	stdout, err := runCLI(t, "surveys", "--config", config, "--format", "csv", "--out", out)
	require.NoError(t, err)
	require.Empty(t, stdout)

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "SurveyID,Survey_Name,IsActive,Created,LastModified\nSV_1,Colours,true,2024-01-01,2024-01-02\n", string(contents))
}

func TestUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "surveys", "--format", "json")
	require.Error(t, err)
}

func TestMissingToken(t *testing.T) {
	t.Setenv(tokenEnv, "")
	path := filepath.Join(t.TempDir(), "qualflat.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{api: {base_url: "http://localhost/"}}`), 0600))

	_, err := runCLI(t, "surveys", "--config", path)
	require.ErrorContains(t, err, tokenEnv)
}
