/*
Package log provides structured logging for the fork runner using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component- and task-specific child loggers, configurable levels, and a
small set of helpers for the common logging patterns used throughout
the runner.

# Usage

Initializing the logger:

	import "github.com/ingestrun/forkrunner/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component and task loggers:

	superLog := log.WithComponent("supervisor")
	superLog.Info().Str("task_id", taskID).Msg("preparing attempt")

	taskLog := log.WithTaskID(taskID)
	taskLog.Error().Err(err).Msg("child exited non-zero")

# Design Patterns

Global Logger Pattern:
  - A single package-level Logger instance, initialized once via Init,
    accessible from every package without being threaded through calls.

Context Logger Pattern:
  - WithComponent/WithTaskID/WithNodeID return child loggers carrying
    fixed fields, so call sites don't repeat Str("task_id", ...) at
    every log line.

Do:
  - Use structured fields (.Str, .Int, .Err) instead of string
    concatenation.
  - Attach task_id to every log line inside a supervisor activation.

Don't:
  - Log task context values verbatim; they may carry operator-supplied
    strings that belong in a field, not interpolated into the message.
*/
package log
