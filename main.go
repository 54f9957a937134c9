package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"aot-callgraph-neo4j/callgraph"
)

var (
	configPath  string
	verbose     bool
	granularity string
	dropCalls   bool

	showDominators bool
	maxDepth       int
	topRetained    int

	neo4jURI  string
	neo4jUser string
	neo4jPass string
	clean     bool

	rootCmd = &cobra.Command{
		Use:   "aotcg",
		Short: "Analyze AOT precompiler traces as whole-program call graphs",
		Long: `aotcg reconstructs a whole-program call graph from the trace emitted by
the Dart AOT precompiler (--trace-precompiler-to), resolves dynamic dispatch
heuristically, and computes dominators for binary-size attribution and
reachability analysis ("what exists only because entry point X needs it").`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze <trace.json>",
		Short: "Summarize a trace and optionally print the dominator tree",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}

	loadCmd = &cobra.Command{
		Use:   "load <trace.json>",
		Short: "Load the call graph and its dominator tree into Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&granularity, "granularity", "",
		"Graph granularity: function, class, library, or package")
	rootCmd.PersistentFlags().BoolVar(&dropCalls, "drop-call-nodes", false,
		"Omit unresolved dispatch-selector nodes when collapsing")

	analyzeCmd.Flags().BoolVar(&showDominators, "dominators", false,
		"Print the dominator tree with retained node counts")
	analyzeCmd.Flags().IntVar(&maxDepth, "depth", 3, "Maximum dominator-tree depth to print")
	analyzeCmd.Flags().IntVar(&topRetained, "top", 20, "Number of top retainers to list")

	loadCmd.Flags().StringVar(&neo4jURI, "neo4j-uri", "", "Neo4j bolt URI")
	loadCmd.Flags().StringVar(&neo4jUser, "neo4j-user", "", "Neo4j username")
	loadCmd.Flags().StringVar(&neo4jPass, "neo4j-pass", "", "Neo4j password")
	loadCmd.Flags().BoolVar(&clean, "clean", false,
		"Clean existing graph data before loading")

	rootCmd.AddCommand(analyzeCmd, loadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadGraph runs the shared front half of every command: load the trace,
// collapse to the requested granularity, and compute dominators.
func loadGraph(cmd *cobra.Command, path string, cfg Config) (*callgraph.CallGraph, error) {
	kind, collapse, err := parseGranularity(orElse(granularity, cfg.Granularity))
	if err != nil {
		return nil, err
	}
	g, err := callgraph.LoadTraceFile(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	if collapse {
		g = g.Collapse(kind, dropCalls)
		slog.Info("collapsed call graph",
			"granularity", kind.String(), "nodes", len(g.Nodes), "edges", g.EdgeCount())
	}
	g.ComputeDominators()
	return g, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	g, err := loadGraph(cmd, args[0], cfg)
	if err != nil {
		return err
	}
	writeSummary(os.Stdout, g)
	if showDominators {
		writeDominatorTree(os.Stdout, g, maxDepth)
		writeTopRetainers(os.Stdout, g, topRetained)
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	uri := orElse(neo4jURI, cfg.Neo4j.URI)
	user := orElse(neo4jUser, cfg.Neo4j.User)
	pass := orElse(neo4jPass, cfg.Neo4j.Password)
	if pass == "" {
		return fmt.Errorf("a Neo4j password is required (--neo4j-pass or config file)")
	}

	g, err := loadGraph(cmd, args[0], cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	loader, err := NewNeo4jLoader(ctx, uri, user, pass)
	if err != nil {
		return err
	}
	defer loader.Close()

	if clean {
		if err := loader.CleanGraph(); err != nil {
			return err
		}
	}
	if err := loader.CreateIndexes(); err != nil {
		return err
	}
	entities, calls := graphRows(g)
	if err := loader.LoadEntities(entities); err != nil {
		return err
	}
	if err := loader.LoadCalls(calls); err != nil {
		return err
	}
	if err := loader.LoadDominators(dominatorRows(g)); err != nil {
		return err
	}

	slog.Info("graph loaded into neo4j", "entities", len(entities), "calls", len(calls))
	fmt.Println("Useful Cypher queries:")
	fmt.Println("  // Biggest retainers (largest dominated subtrees)")
	fmt.Println("  MATCH (d:Entity)-[:DOMINATES*0..]->(n) RETURN d.name, count(n) AS retained ORDER BY retained DESC LIMIT 20")
	fmt.Println("")
	fmt.Println("  // What exists only because of a given function")
	fmt.Println("  MATCH (d:Entity {name: 'main'})-[:DOMINATES*]->(n) RETURN n.key, n.kind")
	fmt.Println("")
	fmt.Println("  // Unresolved dispatch selectors with the most callers")
	fmt.Println("  MATCH (f)-[:CALLS]->(s:Entity {kind: 'selector'}) RETURN s.name, count(f) AS callers ORDER BY callers DESC LIMIT 20")
	return nil
}

// orElse returns a if non-empty, b otherwise.
func orElse(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
