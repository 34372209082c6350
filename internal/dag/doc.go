// Package dag implements the dependency resolver for pipeline stages: a
// directed acyclic graph keyed by stage name, with cycle detection, a
// stable topological order for DAG-mode execution, and level grouping for
// parallel-mode execution.
package dag
