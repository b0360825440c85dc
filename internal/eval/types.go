package eval

// #region eval-config
// EvalConfig holds thresholds for judging a trained reward predictor.
type EvalConfig struct {
	MinRankCorrelation    float64 // fail below this Spearman correlation
	MinPreferenceAccuracy float64 // fail below this labeled-pair agreement
}

// DefaultEvalConfig returns the acceptance thresholds for a converged
// predictor on an easy synthetic task.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinRankCorrelation:    0.9,
		MinPreferenceAccuracy: 0.9,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of predictor validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
