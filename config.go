package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"aot-callgraph-neo4j/callgraph"
)

// Config holds optional settings read from a YAML config file. Flag values
// take precedence over file values.
type Config struct {
	Neo4j struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"neo4j"`

	// Granularity is the default collapse granularity for reports and
	// loads: function, class, library, or package.
	Granularity string `yaml:"granularity"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Neo4j.URI = "bolt://localhost:7687"
	cfg.Neo4j.User = "neo4j"
	cfg.Granularity = "function"
	return cfg
}

// loadConfig reads the config file at path, overlaying its values onto the
// defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// parseGranularity maps a granularity name onto a collapse target kind.
// "function" (the trace's native granularity) means no collapsing.
func parseGranularity(s string) (callgraph.NodeKind, bool, error) {
	switch s {
	case "", "function":
		return callgraph.KindFunction, false, nil
	case "class":
		return callgraph.KindClass, true, nil
	case "library":
		return callgraph.KindLibrary, true, nil
	case "package":
		return callgraph.KindPackage, true, nil
	}
	return 0, false, fmt.Errorf("unknown granularity %q (want function, class, library, or package)", s)
}
