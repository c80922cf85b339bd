// Package preflight provides readiness checks for the external services,
// tools and filesystem paths docarchive depends on.
//
// The CLI "docarchive status" command runs RunAll and CheckSystemDeps to
// display health. None of the checks gate ingestion: every collaborator they
// check has a fallback in the pipeline, so a failed check explains degraded
// output rather than blocking work.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
