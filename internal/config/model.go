package config

// Pipeline is the complete declarative description of one pipeline.
type Pipeline struct {
	Name string
	// Type classifies the pipeline (training, inference, batch_prediction,
	// data_processing). Required for dry-run validation.
	Type string
	// Mode selects the execution strategy: sequential (default), parallel,
	// conditional, or dag.
	Mode   string
	Stages []*Stage

	Data       *Data
	Deployment *Deployment
	Monitoring *Monitoring
	Experiment *Experiment
}

// Stage describes one unit of work before it is instantiated for a run.
type Stage struct {
	Name   string
	Type   string
	Config map[string]any
	// DependsOn names other stages in the same pipeline.
	DependsOn []string
	Retry     *Retry
	// TimeoutMinutes bounds one execution attempt. Zero disables.
	TimeoutMinutes float64
	// Condition gates the stage in conditional mode.
	Condition string
}

// Retry is the per-stage retry configuration.
type Retry struct {
	MaxRetries         int
	DelaySeconds       float64
	ExponentialBackoff bool
}

// Data describes where the pipeline's initial dataset comes from.
type Data struct {
	// SourceType is one of workflow_input, s3, database, local_file.
	SourceType string
	Location   string
	Format     string
}

// Deployment configures the optional post-run deployment side effect.
type Deployment struct {
	AutoDeploy  bool
	Target      string
	Environment string
}

// Monitoring configures the optional post-run monitoring setup.
type Monitoring struct {
	Enabled        bool
	DriftDetection bool
}

// Experiment configures the optional experiment-tracking collaborator.
type Experiment struct {
	Enabled     bool
	TrackingURI string
	Name        string
}

// DataSourceTypes lists the accepted Data.SourceType values.
func DataSourceTypes() []string {
	return []string{"workflow_input", "s3", "database", "local_file"}
}

// PipelineTypes lists the accepted Pipeline.Type values.
func PipelineTypes() []string {
	return []string{"training", "inference", "batch_prediction", "data_processing"}
}
