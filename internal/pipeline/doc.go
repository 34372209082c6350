// Package pipeline defines the core data model for a pipeline run: the
// Stage (one typed unit of work with its retry policy and status state
// machine) and the Execution (the record tracking one end-to-end run of a
// stage set). All mutation of a running pipeline flows through this package.
package pipeline
