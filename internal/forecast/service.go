package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/dataset"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	trainingDir      = "trainingData"
	cityDir          = "city"
	resultDir        = "Result"
	resultFile       = "SpecificResult.csv"
	defaultOpTimeout = 10 * time.Second
)

// Datasets is the part of the dataset store that forecasting needs.
type Datasets interface {
	Download(ctx context.Context, filename, category string) (dataset.Download, error)
	Upload(ctx context.Context, input dataset.UploadInput) (dataset.Metadata, error)
}

type PredictInput struct {
	City      string
	StartDate string
	EndDate   string
	ModelType string
}

type Service struct {
	runner    ScriptRunner
	datasets  Datasets
	specs     ModelSpecs
	workDir   string
	opTimeout time.Duration
	log       *zap.SugaredLogger
}

type ServiceConfig struct {
	Runner    ScriptRunner
	Datasets  Datasets
	Specs     ModelSpecs
	WorkDir   string
	OpTimeout time.Duration
	Logger    *zap.SugaredLogger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Runner == nil || cfg.Datasets == nil {
		return nil, errors.New("script runner and dataset store are required")
	}
	s := &Service{
		runner:    cfg.Runner,
		datasets:  cfg.Datasets,
		specs:     cfg.Specs,
		workDir:   cfg.WorkDir,
		opTimeout: cfg.OpTimeout,
		log:       cfg.Logger,
	}
	if s.workDir == "" {
		s.workDir = "."
	}
	if s.opTimeout <= 0 {
		s.opTimeout = defaultOpTimeout
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	return s, nil
}

// Analysis runs one of the per-city analysis scripts and returns its JSON output.
func (s *Service) Analysis(ctx context.Context, script, city string, extra ...string) (json.RawMessage, error) {
	city, err := ValidateCity(city)
	if err != nil {
		return nil, err
	}
	return s.runner.RunJSON(ctx, script, append([]string{city}, extra...)...)
}

// GenerateChart renders the actual-versus-predicted dashboard image for a city.
func (s *Service) GenerateChart(ctx context.Context, city string) error {
	city, err := ValidateCity(city)
	if err != nil {
		return err
	}
	_, err = s.runner.Run(ctx, ScriptActualVsPredictedDashboard, city)
	return err
}

func predictScript(modelType string) (string, error) {
	switch modelType {
	case "fast":
		return ScriptPredictFast, nil
	case "hybrid":
		return ScriptPredictHybrid, nil
	}
	return "", ErrInvalidModel
}

func trainScript(modelType string) (string, error) {
	switch modelType {
	case "ANN":
		return ScriptTrainANN, nil
	case "LightGBM":
		return ScriptTrainLightGBM, nil
	}
	return "", ErrInvalidModel
}

// Predict runs the selected prediction model and returns its raw stdout.
func (s *Service) Predict(ctx context.Context, input PredictInput) (string, error) {
	if input.City == "" || input.StartDate == "" || input.EndDate == "" || input.ModelType == "" {
		return "", ErrMissingField
	}
	script, err := predictScript(input.ModelType)
	if err != nil {
		return "", err
	}
	city, err := ValidateCity(input.City)
	if err != nil {
		return "", err
	}
	if err := ValidateDate(input.StartDate); err != nil {
		return "", err
	}
	if err := ValidateDate(input.EndDate); err != nil {
		return "", err
	}

	result, err := s.runner.Run(ctx, script, city, input.StartDate, input.EndDate)
	if err != nil {
		return "", err
	}
	return string(result.Stdout), nil
}

func trainingFilename(city string) string {
	return city + "_TrainingData.csv"
}

// StageTrainingFile copies the city's training data from the store into the
// work directory, where the training scripts expect it.
func (s *Service) StageTrainingFile(ctx context.Context, city string) (dataset.Download, error) {
	city, err := ValidateCity(city)
	if err != nil {
		return dataset.Download{}, err
	}
	file, err := s.datasets.Download(ctx, trainingFilename(city), "trainingdata")
	if err != nil {
		return dataset.Download{}, err
	}
	if _, err := s.stage(trainingDir, file.Filename, file.Content); err != nil {
		return dataset.Download{}, err
	}
	return file, nil
}

func (s *Service) TrainModel(ctx context.Context, modelType, city string) error {
	if modelType == "" || city == "" {
		return ErrMissingField
	}
	script, err := trainScript(modelType)
	if err != nil {
		return err
	}
	city, err = ValidateCity(city)
	if err != nil {
		return err
	}

	if _, err := s.StageTrainingFile(ctx, city); err != nil {
		return err
	}

	_, err = s.runner.Run(ctx, script, city)
	return err
}

// ProcessCity stages the city's source file, runs the weather downloader and
// uploads every CSV it produced for that city as training data.
func (s *Service) ProcessCity(ctx context.Context, city string) ([]string, error) {
	if strings.TrimSpace(city) == "" {
		return nil, ErrMissingField
	}
	city, err := ValidateCity(city)
	if err != nil {
		return nil, err
	}

	source := city + ".csv"
	file, err := s.datasets.Download(ctx, source, dataset.CitiesCategory)
	if err != nil {
		return nil, err
	}
	if _, err := s.stage(cityDir, source, file.Content); err != nil {
		return nil, err
	}

	if _, err := s.runner.Run(ctx, ScriptNOAADownloader, city); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.workDir, cityDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	prefix := strings.ToUpper(city)
	var uploaded []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == source {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ".csv") || !strings.HasPrefix(strings.ToUpper(name), prefix) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return uploaded, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := s.datasets.Upload(ctx, dataset.UploadInput{
			Filename:    name,
			Category:    "trainingdata",
			ContentType: "text/csv",
			Content:     content,
		}); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, name)
	}

	sort.Strings(uploaded)
	s.log.Infow("city processed", "city", city, "uploaded", uploaded)
	return uploaded, nil
}

func (s *Service) resultPath() string {
	return filepath.Join(s.workDir, resultDir, resultFile)
}

// PredictionResult parses the CSV the prediction scripts leave behind.
func (s *Service) PredictionResult() ([]dataset.Row, error) {
	f, err := os.Open(s.resultPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	return dataset.ParseCSV(f, 0)
}

// PredictionResultCSV returns the raw prediction result file.
func (s *Service) PredictionResultCSV() ([]byte, error) {
	content, err := os.ReadFile(s.resultPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return content, err
}

func (s *Service) ModelSpecs(ctx context.Context, city string) (bson.M, error) {
	if s.specs == nil {
		return nil, ErrNotFound
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrInvalidCity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.specs.FindByCity(ctx, city)
}

func (s *Service) stage(dir, name string, content []byte) (string, error) {
	target := filepath.Join(s.workDir, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	path := filepath.Join(target, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	s.log.Debugw("staged file", "path", path, "bytes", len(content))
	return path, nil
}
