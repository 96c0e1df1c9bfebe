/*
Package domain contains the core domain models of the AutoFlow engine.

It defines the workflow graph, the per-run execution context and the structured
outcomes a run produces. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Workflow: A stored definition made of Nodes and directed Edges.
  - Graph: An immutable, indexed view over a Workflow snapshot used by one run.
  - ExecutionContext: The shared, mutable slot map threaded through a single run.
  - Outcome / RunReport: What happened at each node and in the run as a whole.
*/
package domain
