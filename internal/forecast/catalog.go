package forecast

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Logical script names. The HTTP layer only ever refers to these.
const (
	ScriptConsumptionSummary          = "consumption_summary"
	ScriptConsumptionSummaryDashboard = "consumption_summary_dashboard"
	ScriptWeekdayDemand               = "weekday_demand"
	ScriptHolidayDemand               = "holiday_demand"
	ScriptSeasonalTrends              = "seasonal_trends"
	ScriptSeasonalTrendsDashboard     = "seasonal_trends_dashboard"
	ScriptToleranceTest               = "tolerance_test"
	ScriptActualVsPredicted           = "actual_vs_predicted"
	ScriptActualVsPredictedDashboard  = "actual_vs_predicted_dashboard"
	ScriptPredictFast                 = "predict_fast"
	ScriptPredictHybrid               = "predict_hybrid"
	ScriptTrainANN                    = "train_ann"
	ScriptTrainLightGBM               = "train_lightgbm"
	ScriptNOAADownloader              = "noaa_downloader"
)

const longRunningTimeout = 30 * time.Minute

type Script struct {
	File    string
	Timeout time.Duration
}

// Catalog maps logical script names to files under the scripts directory.
type Catalog struct {
	scripts map[string]Script
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type catalogEntry struct {
	File    string   `toml:"file"`
	Timeout duration `toml:"timeout"`
}

type catalogFile struct {
	Scripts map[string]catalogEntry `toml:"scripts"`
}

// DefaultCatalog returns the built-in script table. Entries without an explicit
// timeout use defaultTimeout.
func DefaultCatalog(defaultTimeout time.Duration) Catalog {
	short := func(file string) Script { return Script{File: file, Timeout: defaultTimeout} }
	long := func(file string) Script { return Script{File: file, Timeout: longRunningTimeout} }

	return Catalog{scripts: map[string]Script{
		ScriptConsumptionSummary:          short("consumption_stats_calc.py"),
		ScriptConsumptionSummaryDashboard: short("dashboard_stats_calc.py"),
		ScriptWeekdayDemand:               short("weekday_demand.py"),
		ScriptHolidayDemand:               short("holiday_analysis.py"),
		ScriptSeasonalTrends:              short("seasonal_trends.py"),
		ScriptSeasonalTrendsDashboard:     short("seasonal_dashboard.py"),
		ScriptToleranceTest:               short("tolerance_test.py"),
		ScriptActualVsPredicted:           short("consumption_plot.py"),
		ScriptActualVsPredictedDashboard:  short("dashboard_plot.py"),
		ScriptPredictFast:                 short("predict_fast.py"),
		ScriptPredictHybrid:               short("predict_hybrid.py"),
		ScriptTrainANN:                    long("train_ann.py"),
		ScriptTrainLightGBM:               long("train_lightgbm.py"),
		ScriptNOAADownloader:              long("noaa_downloader.py"),
	}}
}

// LoadCatalog starts from the defaults and applies overrides from a TOML file:
//
//	[scripts.predict_fast]
//	file = "predict_fast_v2.py"
//	timeout = "5m"
func LoadCatalog(path string, defaultTimeout time.Duration) (Catalog, error) {
	catalog := DefaultCatalog(defaultTimeout)
	if path == "" {
		return catalog, nil
	}

	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Catalog{}, fmt.Errorf("decode script catalog %s: %w", path, err)
	}

	for name, entry := range file.Scripts {
		script, known := catalog.scripts[name]
		if !known {
			script.Timeout = defaultTimeout
		}
		if entry.File != "" {
			script.File = entry.File
		}
		if entry.Timeout.Duration > 0 {
			script.Timeout = entry.Timeout.Duration
		}
		if script.File == "" {
			return Catalog{}, fmt.Errorf("script %q in %s has no file", name, path)
		}
		catalog.scripts[name] = script
	}
	return catalog, nil
}

func (c Catalog) Lookup(name string) (Script, error) {
	script, ok := c.scripts[name]
	if !ok {
		return Script{}, fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}
	return script, nil
}
