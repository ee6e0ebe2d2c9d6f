// Package config loads the fork runner's process-wide configuration
// from a YAML file, the same format and library (gopkg.in/yaml.v3)
// the rest of the ambient stack uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/types"
)

// Config is the on-disk shape of a forkrunner configuration file.
type Config struct {
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Runner struct {
		JavaCommand               string   `yaml:"javaCommand"`
		JavaOpts                  string   `yaml:"javaOpts"`
		Classpath                 string   `yaml:"classpath"`
		StartPort                 int      `yaml:"startPort"`
		AllowedPrefixes           []string `yaml:"allowedPrefixes"`
		SeparateIngestionEndpoint bool     `yaml:"separateIngestionEndpoint"`
	} `yaml:"runner"`

	Worker struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"worker"`

	Task struct {
		BaseTaskDir                    string `yaml:"baseTaskDir"`
		RestoreTasksOnRestart          bool   `yaml:"restoreTasksOnRestart"`
		GracefulShutdownTimeoutSeconds int    `yaml:"gracefulShutdownTimeoutSeconds"`
	} `yaml:"task"`

	NodeSection struct {
		Host string `yaml:"host"`
	} `yaml:"node"`

	Properties map[string]string `yaml:"properties"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Runner.JavaCommand == "" {
		c.Runner.JavaCommand = "java"
	}
	if c.Runner.StartPort == 0 {
		c.Runner.StartPort = 8100
	}
	if c.Worker.Capacity == 0 {
		c.Worker.Capacity = 1
	}
	if c.Task.BaseTaskDir == "" {
		c.Task.BaseTaskDir = "./var/tasks"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9090"
	}
}

// LogConfig converts the log section into a log.Config.
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}

// TaskConfig returns a types.TaskConfig built from the task section.
func (c *Config) TaskConfig() types.TaskConfig {
	return &types.FileTaskConfig{
		BaseDir:          c.Task.BaseTaskDir,
		RestoreOnRestart: c.Task.RestoreTasksOnRestart,
		ShutdownTimeout:  time.Duration(c.Task.GracefulShutdownTimeoutSeconds) * time.Second,
	}
}

// RunnerConfig returns a types.ForkingTaskRunnerConfig built from the
// runner section.
func (c *Config) RunnerConfig() types.ForkingTaskRunnerConfig {
	return &types.StaticRunnerConfig{
		Command:          c.Runner.JavaCommand,
		Opts:             c.Runner.JavaOpts,
		CP:               c.Runner.Classpath,
		Port:             c.Runner.StartPort,
		Prefixes:         c.Runner.AllowedPrefixes,
		SeparateEndpoint: c.Runner.SeparateIngestionEndpoint,
	}
}

// WorkerConfig returns a types.WorkerConfig built from the worker
// section.
func (c *Config) WorkerConfig() types.WorkerConfig {
	return types.StaticWorkerConfig(c.Worker.Capacity)
}

// Node returns a types.Node built from the node section.
func (c *Config) Node() types.Node {
	return types.StaticNode(c.NodeSection.Host)
}

// PropertiesMap returns the process-wide properties as a types.Properties.
func (c *Config) PropertiesMap() types.Properties {
	if c.Properties == nil {
		return types.Properties{}
	}
	return types.Properties(c.Properties)
}
