package qualtrics

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"qualflat/internal/components/chrono"
	"qualflat/internal/components/telemetry"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 3, 9, 14, 30, 5, 123, time.UTC)

type testEnv struct {
	server *httptest.Server
	client *Client
	clock  *chrono.FakeImpl
	tel    *telemetry.RecordingAPI
}

func newTestEnv(t testing.TB, mux *http.ServeMux) testEnv {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	clock := chrono.NewFakeImpl(testStart)
	tel := telemetry.NewRecordingAPI()
	client, err := NewClient(ClientOptions{
		BaseUrl: server.URL + "/API/v3/",
		Token:   "secret-token",
		Clock:   clock,
	}, tel)
	require.NoError(t, err)

	return testEnv{server: server, client: client, clock: clock, tel: tel}
}

func writeJSON(t testing.TB, w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		t.Error(err)
	}
}

func result(value any) map[string]any {
	return map[string]any{
		"result": value,
		"meta":   map[string]any{"httpStatus": "200 - OK"},
	}
}

func zipOf(t testing.TB, files map[string]string) []byte {
	buf := bytes.NewBuffer(nil)
	w := zip.NewWriter(buf)
	for name, contents := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestNewClientValidation(t *testing.T) {
	tel := telemetry.NewRecordingAPI()
	_, err := NewClient(ClientOptions{Token: "x"}, tel)
	require.Error(t, err)
	_, err = NewClient(ClientOptions{BaseUrl: "http://localhost/"}, tel)
	require.Error(t, err)
}

func TestListSurveysFollowsNextPage(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	var tokens []string
	mux.HandleFunc("GET /API/v3/surveys", func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("x-api-token"))
		switch r.URL.Query().Get("offset") {
		case "":
			writeJSON(t, w, http.StatusOK, result(map[string]any{
				"elements": []map[string]any{
					{"id": "SV_1", "name": "First", "isActive": true, "creationDate": "2024-01-01T00:00:00Z", "lastModified": "2024-01-02T00:00:00Z"},
					{"id": "SV_2", "name": "Second", "isActive": false, "creationDate": "2024-02-01T00:00:00Z", "lastModified": "2024-02-02T00:00:00Z"},
				},
				"nextPage": serverURL + "/API/v3/surveys?offset=2",
			}))
		case "2":
			writeJSON(t, w, http.StatusOK, result(map[string]any{
				"elements": []map[string]any{
					{"id": "SV_3", "name": "Third", "isActive": true, "creationDate": "2024-03-01T00:00:00Z", "lastModified": "2024-03-02T00:00:00Z"},
				},
				"nextPage": nil,
			}))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})
	env := newTestEnv(t, mux)
	serverURL = env.server.URL

	surveys, err := env.client.ListSurveys(context.Background())
	require.NoError(t, err)

	expected := []Survey{
		{ID: "SV_1", Name: "First", IsActive: true, Created: "2024-01-01T00:00:00Z", LastModified: "2024-01-02T00:00:00Z"},
		{ID: "SV_2", Name: "Second", IsActive: false, Created: "2024-02-01T00:00:00Z", LastModified: "2024-02-02T00:00:00Z"},
		{ID: "SV_3", Name: "Third", IsActive: true, Created: "2024-03-01T00:00:00Z", LastModified: "2024-03-02T00:00:00Z"},
	}
	if diff := cmp.Diff(expected, surveys); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"secret-token", "secret-token"}, tokens)
}

func TestSurveyPagesStopsEarly(t *testing.T) {
	mux := http.NewServeMux()
	calls := 0
	mux.HandleFunc("GET /API/v3/surveys", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, http.StatusOK, result(map[string]any{
			"elements": []map[string]any{{"id": "SV_1"}},
			"nextPage": "http://" + r.Host + "/API/v3/surveys?offset=1",
		}))
	})
	env := newTestEnv(t, mux)

	for page, err := range env.client.SurveyPages(context.Background()) {
		require.NoError(t, err)
		require.Len(t, page, 1)
		break
	}
	require.Equal(t, 1, calls)
}

func TestListSurveysTransportError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /API/v3/surveys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{
			"meta": map[string]any{
				"httpStatus": "401 - Unauthorized",
				"error":      map[string]any{"errorMessage": "invalid token", "errorCode": "AUTH"},
			},
		})
	})
	env := newTestEnv(t, mux)

	_, err := env.client.ListSurveys(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	require.Equal(t, "invalid token", transportErr.Message)
	require.NotEmpty(t, env.tel.Broken)
}

func TestFetchDefinition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /API/v3/survey-definitions/SV_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, result(map[string]any{"SurveyID": "SV_1"}))
	})
	mux.HandleFunc("GET /API/v3/survey-definitions/SV_missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{
			"meta": map[string]any{
				"error": map[string]any{"errorMessage": "Invalid survey id"},
			},
		})
	})
	mux.HandleFunc("GET /API/v3/survey-definitions/SV_empty", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"result": nil,
			"meta": map[string]any{
				"error": map[string]any{"errorMessage": "no such survey"},
			},
		})
	})
	env := newTestEnv(t, mux)

	definition, err := env.client.FetchDefinition(context.Background(), "SV_1")
	require.NoError(t, err)
	require.JSONEq(t, `{"SurveyID": "SV_1"}`, string(definition))

	testCases := []struct {
		surveyID string
		message  string
	}{
		{surveyID: "SV_missing", message: "Invalid survey id"},
		{surveyID: "SV_empty", message: "no such survey"},
	}
	for _, tc := range testCases {
		t.Run(tc.surveyID, func(t *testing.T) {
			_, err := env.client.FetchDefinition(context.Background(), tc.surveyID)
			var notFound *NotFoundError
			require.ErrorAs(t, err, &notFound)
			require.Equal(t, tc.surveyID, notFound.SurveyID)
			require.Equal(t, tc.message, notFound.Message)
		})
	}
}

func TestFetchDefinitionNetworkFailure(t *testing.T) {
	env := newTestEnv(t, http.NewServeMux())
	env.server.Close()

	_, err := env.client.FetchDefinition(context.Background(), "SV_1")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Zero(t, transportErr.StatusCode)
	require.NotNil(t, transportErr.Unwrap())
	require.Equal(t, []string{"qualtrics: resty.response"}, env.tel.Broken)
}

func TestExportStatusWithoutStatus(t *testing.T) {
	mux := http.NewServeMux()
	hits := 0
	mux.HandleFunc("GET /API/v3/responseexports/ES_1", func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(t, w, http.StatusOK, result(nil))
	})
	env := newTestEnv(t, mux)

	_, err := env.client.WaitForExport(context.Background(), "SV_1", "ES_1", DefaultPollPolicy())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 1, hits)
	require.Empty(t, env.clock.Sleeps)
}

type exportServer struct {
	t        testing.TB
	statuses []string
	archive  []byte

	posts     []exportBody
	statusHit int
	downloads int
}

func (s *exportServer) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /API/v3/responseexports", func(w http.ResponseWriter, r *http.Request) {
		var body exportBody
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		s.posts = append(s.posts, body)
		writeJSON(s.t, w, http.StatusOK, result(map[string]any{"id": "ES_1"}))
	})
	mux.HandleFunc("GET /API/v3/responseexports/ES_1", func(w http.ResponseWriter, r *http.Request) {
		status := s.statuses[min(s.statusHit, len(s.statuses)-1)]
		s.statusHit++
		writeJSON(s.t, w, http.StatusOK, result(map[string]any{
			"id":              "ES_1",
			"status":          status,
			"percentComplete": float64(s.statusHit) * 10,
			"file":            "http://" + r.Host + "/API/v3/responseexports/ES_1/file",
		}))
	})
	mux.HandleFunc("GET /API/v3/responseexports/ES_1/file", func(w http.ResponseWriter, r *http.Request) {
		s.downloads++
		w.Header().Set("content-type", "application/octet-stream")
		_, err := w.Write(s.archive)
		if err != nil {
			s.t.Error(err)
		}
	})
}

func TestRequestExportPollSequence(t *testing.T) {
	csv := "ResponseId,Q1\nResponse ID,Colour\n{\"ImportId\":\"_recordId\"},{\"ImportId\":\"QID1\"}\nR_1,Red\n"
	srv := &exportServer{
		t:        t,
		statuses: []string{"in progress", "in progress", "complete"},
		archive:  zipOf(t, map[string]string{"survey.csv": csv}),
	}
	mux := http.NewServeMux()
	srv.register(mux)
	env := newTestEnv(t, mux)

	contents, err := env.client.RequestExport(context.Background(), ExportRequest{
		SurveyID:  "SV_1",
		UseLabels: true,
		Poll:      DefaultPollPolicy(),
	})
	require.NoError(t, err)
	require.Equal(t, csv, string(contents))

	require.Equal(t, 3, srv.statusHit)
	require.Equal(t, 1, srv.downloads)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, env.clock.Sleeps)

	expected := []exportBody{{
		Format:    "csv",
		UseLabels: true,
		SurveyID:  "SV_1",
		EndDate:   "2024-03-09T14:30:05Z",
	}}
	if diff := cmp.Diff(expected, srv.posts); diff != "" {
		t.Fatal(diff)
	}
}

func TestRequestExportTerminalFailure(t *testing.T) {
	for _, status := range []string{"failed", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			srv := &exportServer{
				t:        t,
				statuses: []string{"in progress", status},
			}
			mux := http.NewServeMux()
			srv.register(mux)
			env := newTestEnv(t, mux)

			_, err := env.client.RequestExport(context.Background(), ExportRequest{SurveyID: "SV_1"})
			var failed *ExportFailedError
			require.ErrorAs(t, err, &failed)
			require.Equal(t, status, failed.Status)
			require.Equal(t, "ES_1", failed.JobID)
			require.False(t, failed.TimedOut)
			require.Zero(t, srv.downloads)
			require.Equal(t, 2, srv.statusHit)
		})
	}
}

func TestWaitForExportBounds(t *testing.T) {
	testCases := []struct {
		name       string
		policy     PollPolicy
		statusHits int
		sleeps     int
	}{
		{
			name:       "max attempts",
			policy:     PollPolicy{Interval: time.Second, MaxAttempts: 3},
			statusHits: 3,
			sleeps:     2,
		},
		{
			name:       "max wait",
			policy:     PollPolicy{Interval: 5 * time.Second, MaxWait: 12 * time.Second},
			statusHits: 3,
			sleeps:     2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &exportServer{t: t, statuses: []string{"queued"}}
			mux := http.NewServeMux()
			srv.register(mux)
			env := newTestEnv(t, mux)

			_, err := env.client.WaitForExport(context.Background(), "SV_1", "ES_1", tc.policy)
			var failed *ExportFailedError
			require.ErrorAs(t, err, &failed)
			require.True(t, failed.TimedOut)
			require.Equal(t, "queued", failed.Status)
			require.Equal(t, tc.statusHits, srv.statusHit)
			require.Len(t, env.clock.Sleeps, tc.sleeps)
		})
	}
}

func TestWaitForExportCancelled(t *testing.T) {
	srv := &exportServer{t: t, statuses: []string{"in progress"}}
	mux := http.NewServeMux()
	srv.register(mux)
	env := newTestEnv(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.client.WaitForExport(ctx, "SV_1", "ES_1", DefaultPollPolicy())
	require.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestStartExportWithoutJobID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /API/v3/responseexports", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, result(map[string]any{"id": nil}))
	})
	env := newTestEnv(t, mux)

	_, err := env.client.RequestExport(context.Background(), ExportRequest{SurveyID: "SV_bad"})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "SV_bad", notFound.SurveyID)
}

func TestExtractSingleCSV(t *testing.T) {
	contents, err := ExtractSingleCSV(zipOf(t, map[string]string{"a.csv": "a,b\n"}))
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(contents))

	testCases := []struct {
		name    string
		archive []byte
	}{
		{name: "empty archive", archive: zipOf(t, map[string]string{})},
		{name: "multiple members", archive: zipOf(t, map[string]string{"a.csv": "", "b.csv": ""})},
		{name: "not a zip", archive: []byte("ResponseId,Q1\n")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractSingleCSV(tc.archive)
			var malformed *MalformedExportError
			require.ErrorAs(t, err, &malformed, fmt.Sprintf("archive: %q", tc.archive))
		})
	}
}
