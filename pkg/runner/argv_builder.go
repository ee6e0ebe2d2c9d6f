package runner

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ingestrun/forkrunner/pkg/argv"
	"github.com/ingestrun/forkrunner/pkg/types"
)

func tokenizeOpts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return argv.Tokenize(s)
}

// forkPropertyPrefix marks a global or task-context property as one to
// re-emit with the prefix stripped.
const forkPropertyPrefix = "druid.indexer.fork.property."

// javaOptsPropertyKey is excluded from the allowed-prefix pass since it
// is consumed directly as a javaOpts fragment in step 4, not as a -D.
const javaOptsPropertyKey = "druid.indexer.runner.javaOpts"

// metricDimensionPrefix namespaces the two metric-dimension properties
// every child is tagged with (step 8).
const metricDimensionPrefix = "druid.indexer.task."

// chatHandlerServiceName is the fixed service name advertised in the
// chat-handler properties when a separate ingestion endpoint is used
// (step 10). It identifies the runner's own announce entry, not the
// task's.
const chatHandlerServiceName = "placeholder/serviceName"

// buildArgvParams collects everything buildArgv needs beyond the task
// itself, so the function signature stays readable.
type buildArgvParams struct {
	task           *types.Task
	runnerConfig   types.ForkingTaskRunnerConfig
	properties     types.Properties
	nodeHost       string
	childPort      int
	chatPort       int
	hasChatPort    bool
	taskJSONPath   string
	statusJSONPath string
}

// buildArgv assembles the child process's argv in the fixed order
// described by the steps below. Duplicate -D names may appear; the
// JVM resolves them last-wins, so later steps intentionally override
// earlier ones rather than being deduplicated here.
func buildArgv(p buildArgvParams) []string {
	var argv []string

	// 1. java command.
	argv = append(argv, p.runnerConfig.JavaCommand())

	// 2. classpath, optionally prefixed by the task's classpathPrefix.
	cp := p.runnerConfig.Classpath()
	if p.task.ClasspathPrefix != "" {
		cp = p.task.ClasspathPrefix + string(os.PathListSeparator) + cp
	}
	argv = append(argv, "-cp", cp)

	// 3. global javaOpts, tokenized.
	argv = append(argv, tokenizeOpts(p.runnerConfig.JavaOpts())...)

	// 4. task-context javaOpts override, tokenized.
	if v, ok := p.task.ContextString(javaOptsPropertyKey); ok {
		argv = append(argv, tokenizeOpts(v)...)
	}

	// 5. every global property under an allowed prefix becomes -D.
	for _, name := range sortedKeys(p.properties) {
		if name == javaOptsPropertyKey {
			continue
		}
		if hasAllowedPrefix(name, p.runnerConfig.AllowedPrefixes()) {
			argv = append(argv, dProperty(name, p.properties[name]))
		}
	}

	// 6. global fork.property.* properties, prefix stripped.
	for _, name := range sortedKeys(p.properties) {
		if strings.HasPrefix(name, forkPropertyPrefix) {
			stripped := strings.TrimPrefix(name, forkPropertyPrefix)
			argv = append(argv, dProperty(stripped, p.properties[name]))
		}
	}

	// 7. task-context fork.property.* entries, prefix stripped.
	for _, name := range sortedContextKeys(p.task) {
		if strings.HasPrefix(name, forkPropertyPrefix) {
			v, ok := p.task.ContextString(name)
			if !ok {
				continue
			}
			stripped := strings.TrimPrefix(name, forkPropertyPrefix)
			argv = append(argv, dProperty(stripped, v))
		}
	}

	// 8. metric-dimension properties.
	argv = append(argv,
		dProperty(metricDimensionPrefix+"dataSource", p.task.DataSource),
		dProperty(metricDimensionPrefix+"taskId", p.task.ID),
	)

	// 9. this node's announce address.
	argv = append(argv,
		dProperty("druid.host", p.nodeHost),
		dProperty("druid.port", strconv.Itoa(p.childPort)),
	)

	// 10. optional chat-handler properties.
	if p.hasChatPort {
		argv = append(argv,
			dProperty("druid.indexer.task.chathandler.service", chatHandlerServiceName),
			dProperty("druid.indexer.task.chathandler.host", p.nodeHost),
			dProperty("druid.indexer.task.chathandler.port", strconv.Itoa(p.chatPort)),
		)
	}

	// 11. fixed entrypoint.
	argv = append(argv, "io.druid.cli.Main", "internal", "peon")

	// 12. positional task/status file paths.
	argv = append(argv, p.taskJSONPath, p.statusJSONPath)

	// 13. optional node type override.
	if p.task.NodeType != "" {
		argv = append(argv, "--nodeType", p.task.NodeType)
	}

	return argv
}

func dProperty(name, value string) string {
	return "-D" + name + "=" + value
}

func hasAllowedPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func sortedKeys(props types.Properties) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedContextKeys(t *types.Task) []string {
	keys := make([]string, 0, len(t.Context))
	for k := range t.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
