/*
Package scheduler owns the activation registry: the process-wide table that maps a
workflow id to at most one recurring timer.

Activate and Deactivate are serialized per workflow id, so "stop the old timer,
install the new one" is a single step and no two timers ever coexist for the same
workflow. Every tick reloads the current stored workflow before starting a run.

Activations live in memory only; they are not restored after a restart.
*/
package scheduler
