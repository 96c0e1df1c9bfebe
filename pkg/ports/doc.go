/*
Package ports defines the driven ports (interfaces) for the AutoFlow engine.

These interfaces decouple the execution core from storage backends and from the
external services nodes talk to, so the engine can be exercised with fakes in tests
and wired to real providers in production.

# Key Interfaces

  - WorkflowRepository: Loads and persists workflow definitions.
  - RunLog: Records the summary of finished runs.
  - TextGenerator, MessageSender, MailSender, HTTPDoer: Provider clients used by node handlers.
*/
package ports
