/*
Package autoflow is a workflow automation engine: users describe a directed graph of
typed capability nodes (trigger, fetch, transform, notify, webhook) and AutoFlow runs
it manually, on a schedule, or in response to inbound events.

# Concept

A workflow is a graph of nodes connected by edges. A run starts at the trigger node and
walks every outgoing edge concurrently, dispatching each reachable node at most once.
Nodes share a per-run execution context: a fetch writes externalData, a transform reads
it and writes aiResponse, and notification nodes deliver that text. A failing node never
aborts its siblings; its outcome is simply recorded in the run report.

The Engine is the host-facing API. Storage, text generation, messaging and email are
ports, so the same engine can be embedded in the CLI, the HTTP server or an MCP agent.

# Key Features

  - At-most-once traversal with concurrent fan-out and failure isolation per branch.
  - Recurring activations driven by cron specs, with per-workflow schedule overrides.
  - Pluggable storage (memory, Redis, a directory of JSON files) with optimistic versioning.
  - Run log, lifecycle hooks and Prometheus metrics.

# Usage

	repo := memory.NewRepository()
	eng, err := autoflow.New(repo,
		autoflow.WithProviders(ports.Providers{Text: gemini.New(apiKey)}),
		autoflow.WithRunLog(memory.NewRunLog(0)),
	)
	if err != nil {
		log.Fatal(err)
	}

	b := dsl.New("digest", "Daily digest")
	b.Trigger("start").To("ai")
	b.Transform("ai").Instruction("Summarize: {{input}}").To("mail")
	b.Email("mail").ToEmail("me@example.com")

	stored, err := eng.Create(ctx, b.MustBuild())
	if err != nil {
		log.Fatal(err)
	}

	eng.Start()
	defer eng.Shutdown(ctx)

	if _, err := eng.Activate(ctx, stored.ID); err != nil {
		log.Fatal(err)
	}
*/
package autoflow
