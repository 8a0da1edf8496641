package forecast

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AzeemWaqarr/wattwise/internal/dataset"
)

func newTestForecastMux(t *testing.T, runner *fakeRunner, datasets *fakeDatasets) (*http.ServeMux, string) {
	t.Helper()
	svc, workDir := newTestForecastService(t, runner, datasets)
	mux := http.NewServeMux()
	NewHandler(svc, nil).RegisterHandlers(mux)
	return mux, workDir
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestAnalysisRoutePassesJSONThrough(t *testing.T) {
	runner := &fakeRunner{stdout: `{"Monday":120.5,"Tuesday":118}`}
	mux, _ := newTestForecastMux(t, runner, &fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weekday-demand/EL%20PASO", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"Monday":120.5,"Tuesday":118}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if runner.calls[0].args[0] != "EL PASO" {
		t.Fatalf("unexpected city argument %q", runner.calls[0].args[0])
	}
}

func TestAnalysisRouteErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		path   string
		status int
		want   string
	}{
		{"script failure", &fakeRunner{err: ErrScriptFailed}, "/api/tolerance-test/Lahore", http.StatusBadGateway, "Tolerance script failed"},
		{"timeout", &fakeRunner{err: ErrScriptTimeout}, "/api/seasonal-trends/Lahore", http.StatusBadGateway, "Failed to generate seasonal trends"},
		{"bad output", &fakeRunner{stdout: "Traceback"}, "/api/holiday-demand/Lahore", http.StatusBadGateway, "Failed to parse script output"},
		{"bad city", &fakeRunner{}, "/api/consumption-summary/a;b", http.StatusBadRequest, ErrInvalidCity.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := newTestForecastMux(t, tt.runner, &fakeDatasets{})
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if got := errorBody(t, rec); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPredictRoute(t *testing.T) {
	runner := &fakeRunner{stdout: `{"rows":10}`}
	mux, _ := newTestForecastMux(t, runner, &fakeDatasets{})

	body := `{"cityName":"Lahore","startDate":"2024-01-01","endDate":"2024-01-07","modelType":"fast"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["message"] != "Prediction complete using fast model" || resp["output"] != `{"rows":10}` {
		t.Fatalf("unexpected response %v", resp)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"cityName":"Lahore"}`)))
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != ErrMissingField.Error() {
		t.Fatalf("expected missing field error, got %d", rec.Code)
	}
}

func TestTrainModelRouteMissingFile(t *testing.T) {
	mux, _ := newTestForecastMux(t, &fakeRunner{}, &fakeDatasets{})

	rec := httptest.NewRecorder()
	body := `{"modelType":"ANN","cityName":"Lahore"}`
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/train-model", strings.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := errorBody(t, rec); got != "Training file for Lahore_TrainingData.csv not found." {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestTrainModelRouteSuccess(t *testing.T) {
	datasets := &fakeDatasets{files: map[string]dataset.Download{
		"trainingdata/Lahore_TrainingData.csv": {Filename: "Lahore_TrainingData.csv", Content: []byte("x")},
	}}
	mux, _ := newTestForecastMux(t, &fakeRunner{}, datasets)

	rec := httptest.NewRecorder()
	body := `{"modelType":"ANN","cityName":"Lahore"}`
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/train-model", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProcessCityRoute(t *testing.T) {
	mux, _ := newTestForecastMux(t, &fakeRunner{}, &fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process-city", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "City name is required" {
		t.Fatalf("expected 400 for missing city, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process-city", strings.NewReader(`{"city":"Lahore"}`)))
	if rec.Code != http.StatusNotFound || errorBody(t, rec) != "City dataset not found in database" {
		t.Fatalf("expected 404 for unknown city, got %d", rec.Code)
	}
}

func TestPredictionResultRoutes(t *testing.T) {
	mux, workDir := newTestForecastMux(t, &fakeRunner{}, &fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prediction-result/Lahore", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	dir := filepath.Join(workDir, resultDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, resultFile), []byte("DATE,Predicted\n2024-01-01,99\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prediction-result/Lahore", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `[{"DATE":"2024-01-01","Predicted":"99"}]` {
		t.Fatalf("unexpected body %s", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/specific-result-csv", nil))
	if rec.Header().Get("Content-Type") != "text/csv" || !strings.HasPrefix(rec.Body.String(), "DATE,Predicted") {
		t.Fatalf("unexpected csv response %q", rec.Body.String())
	}
}

func TestModelSpecsRoute(t *testing.T) {
	mux, _ := newTestForecastMux(t, &fakeRunner{}, &fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/model-specs/Lahore", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/model-specs/Quetta", nil))
	if rec.Code != http.StatusNotFound || errorBody(t, rec) != "No specs found for this city" {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWriteScriptErrorDefault(t *testing.T) {
	h := NewHandler(&Service{runner: &fakeRunner{}}, nil)

	rec := httptest.NewRecorder()
	h.writeScriptError(rec, errors.New("disk full"), "Failed to process city data")
	if rec.Code != http.StatusInternalServerError || errorBody(t, rec) != "Failed to process city data" {
		t.Fatalf("unexpected response %d", rec.Code)
	}
}

func TestGenerateChartImageRoute(t *testing.T) {
	mux, _ := newTestForecastMux(t, &fakeRunner{}, &fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate-chart-image/Lahore", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Chart image generated successfully") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	mux, _ = newTestForecastMux(t, &fakeRunner{err: ErrScriptFailed}, &fakeDatasets{})
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate-chart-image/Lahore", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if got := errorBody(t, rec); got != "Chart generation failed" {
		t.Fatalf("unexpected error %q", got)
	}
}
