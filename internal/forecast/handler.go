package forecast

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/dataset"
	"github.com/AzeemWaqarr/wattwise/internal/dto"
	"github.com/AzeemWaqarr/wattwise/internal/httpx"
	"go.uber.org/zap"
)

const writeDeadlineSlack = 30 * time.Second

type Handler struct {
	service *Service
	runner  ScriptRunner
	log     *zap.SugaredLogger
}

func NewHandler(service *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{service: service, runner: service.runner, log: logger}
}

type analysisRoute struct {
	pattern string
	script  string
	failure string
}

var analysisRoutes = []analysisRoute{
	{"GET /api/consumption-summary/{city}", ScriptConsumptionSummary, "Script execution failed"},
	{"GET /api/consumption-summary_dashboard/{city}", ScriptConsumptionSummaryDashboard, "Script execution failed"},
	{"GET /api/weekday-demand/{city}", ScriptWeekdayDemand, "Script error"},
	{"GET /api/holiday-demand/{city}", ScriptHolidayDemand, "Script execution failed"},
	{"GET /api/seasonal-trends/{city}", ScriptSeasonalTrends, "Failed to generate seasonal trends"},
	{"GET /api/seasonal-trends_dashboard/{city}", ScriptSeasonalTrendsDashboard, "Failed to generate seasonal trends"},
	{"GET /api/tolerance-test/{city}", ScriptToleranceTest, "Tolerance script failed"},
	{"GET /api/actual-vs-predicted/{city}", ScriptActualVsPredicted, "Script execution failed"},
	{"GET /api/actual-vs-predicted_dashboard/{city}", ScriptActualVsPredictedDashboard, "Script execution failed"},
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	for _, route := range analysisRoutes {
		mux.HandleFunc(route.pattern, h.analysis(route.script, route.failure))
	}
	mux.HandleFunc("GET /api/chartdata/{city}", h.handleChartData)
	mux.HandleFunc("GET /api/generate-chart-image/{city}", h.handleGenerateChartImage)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("POST /api/train-model", h.handleTrainModel)
	mux.HandleFunc("POST /api/process-city", h.handleProcessCity)
	mux.HandleFunc("GET /api/download-training-file/{city}", h.handleDownloadTrainingFile)
	mux.HandleFunc("GET /api/prediction-result/{city}", h.handlePredictionResult)
	mux.HandleFunc("GET /api/specific-result-csv", h.handleSpecificResultCSV)
	mux.HandleFunc("GET /api/model-specs/{city}", h.handleModelSpecs)
}

func (h *Handler) analysis(script, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.service.Analysis(r.Context(), script, r.PathValue("city"))
		if err != nil {
			h.writeScriptError(w, err, failure)
			return
		}
		writeRawJSON(w, out)
	}
}

func (h *Handler) handleChartData(w http.ResponseWriter, r *http.Request) {
	city := r.PathValue("city")
	out, err := h.service.Analysis(r.Context(), ScriptActualVsPredictedDashboard, city, city)
	if err != nil {
		h.writeScriptError(w, err, "Failed to generate chart data")
		return
	}
	writeRawJSON(w, out)
}

func (h *Handler) handleGenerateChartImage(w http.ResponseWriter, r *http.Request) {
	h.extendDeadline(w, ScriptActualVsPredictedDashboard)
	if err := h.service.GenerateChart(r.Context(), r.PathValue("city")); err != nil {
		h.writeScriptError(w, err, "Chart generation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Message: "Chart image generated successfully"})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req dto.PredictRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, ErrMissingField.Error())
		return
	}

	h.extendDeadline(w, ScriptPredictHybrid)
	out, err := h.service.Predict(r.Context(), PredictInput{
		City:      req.CityName,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		ModelType: req.ModelType,
	})
	if err != nil {
		h.writeScriptError(w, err, "Prediction failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, dto.PredictResponse{
		Message: fmt.Sprintf("Prediction complete using %s model", req.ModelType),
		Output:  out,
	})
}

func (h *Handler) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	var req dto.TrainModelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Model type and city name are required")
		return
	}

	h.extendDeadline(w, ScriptTrainANN)
	err := h.service.TrainModel(r.Context(), req.ModelType, req.CityName)
	if err != nil {
		if errors.Is(err, ErrMissingField) {
			httpx.WriteError(w, http.StatusBadRequest, "Model type and city name are required")
			return
		}
		if errors.Is(err, dataset.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, fmt.Sprintf("Training file for %s not found.", trainingFilename(req.CityName)))
			return
		}
		h.writeScriptError(w, err, "Model training failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: fmt.Sprintf("Model training for %s on %s completed.", req.ModelType, req.CityName),
	})
}

func (h *Handler) handleProcessCity(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessCityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "City name is required")
		return
	}

	h.extendDeadline(w, ScriptNOAADownloader)
	uploaded, err := h.service.ProcessCity(r.Context(), req.City)
	if err != nil {
		if errors.Is(err, ErrMissingField) {
			httpx.WriteError(w, http.StatusBadRequest, "City name is required")
			return
		}
		if errors.Is(err, dataset.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "City dataset not found in database")
			return
		}
		h.writeScriptError(w, err, "Failed to process city data")
		return
	}
	if uploaded == nil {
		uploaded = []string{}
	}

	httpx.WriteJSON(w, http.StatusOK, dto.ProcessCityResponse{
		Message:  fmt.Sprintf("City %s processed & files uploaded.", req.City),
		Uploaded: uploaded,
	})
}

func (h *Handler) handleDownloadTrainingFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.StageTrainingFile(r.Context(), r.PathValue("city"))
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "City training file not found")
			return
		}
		h.writeScriptError(w, err, "Failed to download training file")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Content); err != nil {
		h.log.Warnw("write training file failed", "error", err)
	}
}

func (h *Handler) handlePredictionResult(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.PredictionResult()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "Prediction result not found")
			return
		}
		h.log.Errorw("read prediction result failed", "city", r.PathValue("city"), "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to parse prediction result")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleSpecificResultCSV(w http.ResponseWriter, _ *http.Request) {
	content, err := h.service.PredictionResultCSV()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "SpecificResult.csv not found")
			return
		}
		h.log.Errorw("read prediction csv failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to read prediction result")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		h.log.Warnw("write prediction csv failed", "error", err)
	}
}

func (h *Handler) handleModelSpecs(w http.ResponseWriter, r *http.Request) {
	specs, err := h.service.ModelSpecs(r.Context(), r.PathValue("city"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "No specs found for this city")
		case errors.Is(err, ErrInvalidCity):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Errorw("fetch model specs failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch model specs")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, specs)
}

// extendDeadline lets long-running scripts outlive the server write timeout.
func (h *Handler) extendDeadline(w http.ResponseWriter, script string) {
	timeout := h.runner.Timeout(script)
	if timeout <= 0 {
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(timeout + writeDeadlineSlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Debugw("extend write deadline failed", "error", err)
	}
}

func (h *Handler) writeScriptError(w http.ResponseWriter, err error, failure string) {
	switch {
	case errors.Is(err, ErrInvalidCity), errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidModel), errors.Is(err, ErrMissingField),
		errors.Is(err, dataset.ErrBadRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dataset.ErrNotFound), errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidOutput):
		h.log.Warnw("script output rejected", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "Failed to parse script output")
	case errors.Is(err, ErrScriptFailed), errors.Is(err, ErrScriptTimeout):
		h.log.Warnw("script error", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, failure)
	default:
		h.log.Errorw("forecast request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, failure)
	}
}

func writeRawJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
