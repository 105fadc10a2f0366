/*
Package domain contains the types shared by the persistence and observability
layers of strata.

# Key Entities

  - Snapshot: the persisted filter stack of a session.
  - StageEvent and PipelineHooks: per-stage notifications from the pipeline.
*/
package domain
