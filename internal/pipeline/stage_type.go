package pipeline

import "fmt"

// StageType identifies the kind of work a stage performs. The set is fixed;
// executors are looked up by this value in the stage registry.
type StageType string

const (
	StageDataPreprocessing  StageType = "data_preprocessing"
	StageFeatureEngineering StageType = "feature_engineering"
	StageDataValidation     StageType = "data_validation"
	StageModelTraining      StageType = "model_training"
	StageModelEvaluation    StageType = "model_evaluation"
	StageModelValidation    StageType = "model_validation"
	StageModelDeployment    StageType = "model_deployment"
	StageDataDriftDetection StageType = "data_drift_detection"
	StageModelMonitoring    StageType = "model_monitoring"
	StageABTesting          StageType = "ab_testing"
	StageCustomScript       StageType = "custom_script"
)

// KnownStageTypes returns every stage type the engine understands, in a
// stable order.
func KnownStageTypes() []StageType {
	return []StageType{
		StageDataPreprocessing,
		StageFeatureEngineering,
		StageDataValidation,
		StageModelTraining,
		StageModelEvaluation,
		StageModelValidation,
		StageModelDeployment,
		StageDataDriftDetection,
		StageModelMonitoring,
		StageABTesting,
		StageCustomScript,
	}
}

// ParseStageType validates a raw stage-type string from configuration.
func ParseStageType(raw string) (StageType, error) {
	for _, t := range KnownStageTypes() {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown stage type %q", raw)
}
