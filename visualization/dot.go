package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/anggasct/exflow"
)

// DOTGenerator generates Graphviz DOT format representations of approval machines
type DOTGenerator struct {
	machine *exflow.Machine
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowGuardConditions bool
	ShowActions         bool
	CompactMode         bool
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	SelfLoopStyle       string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowGuardConditions: true,
		ShowActions:         true,
		CompactMode:         false,
		RankDirection:       "LR",
		NodeShape:           "box",
		SelfLoopStyle:       "dashed",
	}
}

// NewDOTGenerator creates a new DOT generator for the given machine
func NewDOTGenerator(machine *exflow.Machine, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		machine: machine,
		options: opts,
	}
}

// Generate creates a DOT representation of the approval machine
func (g *DOTGenerator) Generate() (string, error) {
	if g.machine == nil {
		return "", fmt.Errorf("no machine to render")
	}

	var dot strings.Builder

	dot.WriteString("digraph ApprovalWorkflow {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generatePhases(&dot)
	g.generateTransitions(&dot)

	dot.WriteString("}\n")

	return dot.String(), nil
}

// generatePhases generates DOT nodes for all phases
func (g *DOTGenerator) generatePhases(dot *strings.Builder) {
	dot.WriteString("  // Phases\n")

	initial := g.machine.InitialPhase()
	for _, phase := range g.machine.Phases() {
		shape := g.options.NodeShape
		fillColor := "lightblue"
		label := string(phase)

		if phase == initial {
			fillColor = "lightgreen"
			label += "\\n(initial)"
		}
		if g.machine.IsFinal(phase) {
			shape = "doublecircle"
			fillColor = "lightcoral"
		}

		dot.WriteString(fmt.Sprintf("  \"%s\" [shape=%s style=\"filled\" fillcolor=%s label=\"%s\"];\n",
			phase, shape, fillColor, label))
	}
	dot.WriteString("\n")
}

// generateTransitions generates DOT edges in definition order
func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")

	for _, t := range g.machine.Transitions() {
		attrs := []string{fmt.Sprintf("label=\"%s\"", g.edgeLabel(t))}
		if t.IsSelf() && g.options.SelfLoopStyle != "" {
			attrs = append(attrs, fmt.Sprintf("style=%s", g.options.SelfLoopStyle))
		}
		dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
			t.SourcePhase, t.TargetPhase, strings.Join(attrs, " ")))
	}
}

// edgeLabel renders "event [guard, guard] / action"
func (g *DOTGenerator) edgeLabel(t *exflow.Transition) string {
	label := t.EventName
	if g.options.CompactMode {
		return label
	}

	if g.options.ShowGuardConditions && len(t.Guards) > 0 {
		names := make([]string, 0, len(t.Guards))
		for _, guard := range t.Guards {
			names = append(names, guard.Name)
		}
		label += "\\n[" + strings.Join(names, ", ") + "]"
	}
	if g.options.ShowActions && t.ActionName != "" {
		label += "\\n/ " + t.ActionName
	}
	return escapeLabel(label)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(machine *exflow.Machine, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(machine, options...),
	}
}

// Generate creates an SVG representation of the approval machine
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}

// GenerateSVG creates an SVG representation of the approval machine
func (g *DOTGenerator) GenerateSVG() (string, error) {
	svgGen := &SVGGenerator{dotGenerator: g}
	return svgGen.Generate()
}
