package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder builds a directed acyclic graph (DAG) from command steps.
// Edges are derived from artifacts: a step depends on every earlier step
// whose output it consumes.
type DAGBuilder struct {
	// steps maps step IDs to their steps
	steps map[string]*CommandStep

	// order preserves emission order for deterministic levels
	order []string

	// adjacencyList maps step IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps step IDs to their dependencies
	reverseAdjacencyList map[string][]string

	// edgeArtifacts maps "from->to" to the linking artifact
	edgeArtifacts map[string]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels maps execution level to step IDs at that level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		steps:                make(map[string]*CommandStep),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		edgeArtifacts:        make(map[string]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs an execution graph from command steps.
// It links producers to consumers, detects cycles, and computes execution levels.
func (b *DAGBuilder) BuildGraph(steps []CommandStep) (*ExecutionGraph, error) {
	if len(steps) == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(steps); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// initialize indexes steps and derives artifact edges.
func (b *DAGBuilder) initialize(steps []CommandStep) error {
	producers := make(map[string]string)
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return NewConfigurationError("command step has empty ID", nil).
				WithCode(ErrCodeInvalidPath)
		}
		if _, exists := b.steps[step.ID]; exists {
			return NewConfigurationError(fmt.Sprintf("duplicate command step ID: %s", step.ID), nil).
				WithResource(step.ID)
		}

		b.steps[step.ID] = step
		b.order = append(b.order, step.ID)
		b.adjacencyList[step.ID] = make([]string, 0)
		b.reverseAdjacencyList[step.ID] = make([]string, 0)
		b.inDegree[step.ID] = 0

		if step.Output != "" {
			producers[step.Output] = step.ID
		}
	}

	for _, id := range b.order {
		step := b.steps[id]
		seen := make(map[string]bool)
		for _, input := range step.Inputs {
			from, ok := producers[input]
			if !ok || from == id || seen[from] {
				continue
			}
			seen[from] = true

			// Producer must complete before the consumer can start
			b.adjacencyList[from] = append(b.adjacencyList[from], id)
			b.reverseAdjacencyList[id] = append(b.reverseAdjacencyList[id], from)
			b.edgeArtifacts[from+"->"+id] = input
			b.inDegree[id]++
		}
		step.Dependencies = b.reverseAdjacencyList[id]
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	for _, id := range b.order {
		if !visited[id] {
			if cycle, err := b.detectCyclesUtil(id, visited, recStack, path); err != nil {
				return NewConfigurationError(
					fmt.Sprintf("circular artifact dependency detected: %s", formatCycle(cycle)),
					err,
				).WithCode(ErrCodeCycle)
			}
		}
	}

	return nil
}

// detectCyclesUtil performs DFS to detect cycles in the dependency graph.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) ([]string, error) {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle, err := b.detectCyclesUtil(dependent, visited, recStack, path); err != nil {
				return cycle, err
			}
		} else if recStack[dependent] {
			cycleStart := -1
			for i, id := range path {
				if id == dependent {
					cycleStart = i
					break
				}
			}
			if cycleStart >= 0 {
				return append(path[cycleStart:], dependent), fmt.Errorf("cycle detected")
			}
		}
	}

	recStack[nodeID] = false
	return nil, nil
}

// computeLevels assigns execution levels to each step using Kahn's algorithm.
// Within a level steps keep their emission order.
func (b *DAGBuilder) computeLevels() error {
	position := make(map[string]int, len(b.order))
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	for i, id := range b.order {
		position[id] = i
		inDegreeCopy[id] = b.inDegree[id]
	}

	currentLevel := make([]string, 0)
	for _, id := range b.order {
		if inDegreeCopy[id] == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	if len(currentLevel) == 0 {
		return NewConfigurationError("no root steps found - all steps have dependencies", nil).
			WithCode(ErrCodeCycle)
	}

	processedCount := 0
	for len(currentLevel) > 0 {
		sort.Slice(currentLevel, func(i, j int) bool {
			return position[currentLevel[i]] < position[currentLevel[j]]
		})
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegreeCopy[dependent]--
				if inDegreeCopy[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}

		currentLevel = nextLevel
	}

	if processedCount != len(b.steps) {
		return NewConfigurationError("failed to process all steps - possible cycle", nil).
			WithCode(ErrCodeCycle)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, stepIDs := range b.levels {
		for _, stepID := range stepIDs {
			graph.Nodes[stepID] = &GraphNode{
				ID:           stepID,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[stepID],
				Dependents:   b.adjacencyList[stepID],
			}
			b.steps[stepID].ExecutionOrder = level

			if level == 0 {
				graph.Roots = append(graph.Roots, stepID)
			}
		}
	}

	for _, id := range b.order {
		for _, from := range b.reverseAdjacencyList[id] {
			graph.Edges = append(graph.Edges, GraphEdge{
				From:     from,
				To:       id,
				Artifact: b.edgeArtifacts[from+"->"+id],
			})
		}
	}

	return graph
}

// GetLevels returns the computed execution levels.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// Ordered returns step IDs level by level, emission order within a level.
func (b *DAGBuilder) Ordered() []string {
	ids := make([]string, 0, len(b.steps))
	for _, level := range b.levels {
		ids = append(ids, level...)
	}
	return ids
}

// ToDOT generates a DOT format representation of the DAG for visualization.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph RecipeGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, stepIDs := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, stepID := range stepIDs {
			step := b.steps[stepID]
			label := fmt.Sprintf("%s\\n%s", step.Program, step.Output)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				stepID, label, getStageColor(step.Stage)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range b.order {
		for _, from := range b.reverseAdjacencyList[id] {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\"];\n",
				from, id, b.edgeArtifacts[from+"->"+id]))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// getStageColor returns a color for visualizing pipeline stages.
func getStageColor(stage Stage) string {
	switch stage {
	case StageSky:
		return "lightyellow"
	case StageOctree:
		return "lightgray"
	case StageMatrix, StageRaytrace:
		return "lightcoral"
	case StageCombine:
		return "lightblue"
	case StageConvert:
		return "lightgreen"
	default:
		return "white"
	}
}

// ValidateGraph performs additional validation on the built graph.
func (b *DAGBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.steps) {
		return NewConfigurationError("graph node count mismatch", nil)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewConfigurationError(fmt.Sprintf("edge references non-existent step: %s", edge.From), nil)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewConfigurationError(fmt.Sprintf("edge references non-existent step: %s", edge.To), nil)
		}
	}

	for _, rootID := range graph.Roots {
		if len(graph.Nodes[rootID].Dependencies) > 0 {
			return NewConfigurationError(fmt.Sprintf("root step %s has dependencies", rootID), nil)
		}
	}

	return nil
}
