/*
Package observability provides monitoring for the AutoFlow engine.

It turns engine lifecycle hooks into Prometheus metrics and structured log lines,
so operators can follow runs per workflow, per capability and per outcome.
*/
package observability
