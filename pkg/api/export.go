package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Document is the serialisable form of a Definition. It carries structure
// only: invocation targets stay opaque names and no collaborator code is
// included.
type Document struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	StartAt     string         `json:"startAt" yaml:"startAt"`
	Inputs      []string       `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Nodes       []NodeDocument `json:"nodes" yaml:"nodes"`
}

// NodeDocument is the serialisable form of a Node.
type NodeDocument struct {
	Name string   `json:"name" yaml:"name"`
	Kind StepKind `json:"kind" yaml:"kind"`
	Next string   `json:"next,omitempty" yaml:"next,omitempty"`
	End  bool     `json:"end,omitempty" yaml:"end,omitempty"`

	// Task
	Target     string         `json:"target,omitempty" yaml:"target,omitempty"`
	InputPath  string         `json:"inputPath,omitempty" yaml:"inputPath,omitempty"`
	ResultPath string         `json:"resultPath,omitempty" yaml:"resultPath,omitempty"`
	Reads      []string       `json:"reads,omitempty" yaml:"reads,omitempty"`
	Retry      *RetryDocument `json:"retry,omitempty" yaml:"retry,omitempty"`
	Catch      string         `json:"catch,omitempty" yaml:"catch,omitempty"`

	// Wait
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
	MaxVisits int    `json:"maxVisits,omitempty" yaml:"maxVisits,omitempty"`

	// Choice
	Choices    []ChoiceDocument `json:"choices,omitempty" yaml:"choices,omitempty"`
	Default    string           `json:"default,omitempty" yaml:"default,omitempty"`
	SwitchPath string           `json:"switchPath,omitempty" yaml:"switchPath,omitempty"`
	Variants   []string         `json:"variants,omitempty" yaml:"variants,omitempty"`

	// Map and Parallel
	ItemsPath      string     `json:"itemsPath,omitempty" yaml:"itemsPath,omitempty"`
	ItemField      string     `json:"itemField,omitempty" yaml:"itemField,omitempty"`
	Carry          []string   `json:"carry,omitempty" yaml:"carry,omitempty"`
	MaxConcurrency int        `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	Failure        string     `json:"failure,omitempty" yaml:"failure,omitempty"`
	Iterator       *Document  `json:"iterator,omitempty" yaml:"iterator,omitempty"`
	Branches       []Document `json:"branches,omitempty" yaml:"branches,omitempty"`

	// Fail
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	Cause string `json:"cause,omitempty" yaml:"cause,omitempty"`
}

// RetryDocument is the serialisable form of a RetryPolicy.
type RetryDocument struct {
	MaxAttempts int     `json:"maxAttempts" yaml:"maxAttempts"`
	Interval    string  `json:"interval,omitempty" yaml:"interval,omitempty"`
	BackoffRate float64 `json:"backoffRate,omitempty" yaml:"backoffRate,omitempty"`
	MaxDelay    string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// ChoiceDocument is one exported Choice rule.
type ChoiceDocument struct {
	Condition Condition `json:"condition" yaml:"condition"`
	Next      string    `json:"next" yaml:"next"`
}

// Export converts def into a Document. Nodes appear in declaration order.
func Export(def *Definition) Document {
	doc := exportScope(def)
	doc.Version = def.Version
	doc.Inputs = append([]string(nil), def.Inputs...)
	doc.Fingerprint = def.Fingerprint
	return doc
}

func exportScope(def *Definition) Document {
	doc := Document{
		Name:    def.Name,
		StartAt: def.StartAt,
		Nodes:   make([]NodeDocument, 0, len(def.Order)),
	}
	for _, name := range def.Order {
		doc.Nodes = append(doc.Nodes, exportNode(def.Nodes[name]))
	}
	return doc
}

func exportNode(n *Node) NodeDocument {
	s := n.Step
	nd := NodeDocument{
		Name:    s.Name,
		Kind:    s.Kind,
		Next:    n.Next,
		Catch:   n.Catch,
		Default: n.Default,
		Failure: n.Failure,
	}
	switch s.Kind {
	case KindTask:
		nd.Target = s.Task.Target
		nd.InputPath = s.Task.InputPath
		nd.ResultPath = s.Task.ResultPath
		nd.Reads = append([]string(nil), s.Task.Reads...)
		if r := s.Task.Retry; r != nil {
			nd.Retry = &RetryDocument{
				MaxAttempts: r.MaxAttempts,
				Interval:    durationString(r.Interval),
				BackoffRate: r.BackoffRate,
				MaxDelay:    durationString(r.MaxDelay),
			}
		}
	case KindWait:
		nd.Duration = s.Wait.Duration.String()
		nd.MaxVisits = s.Wait.MaxVisits
	case KindChoice:
		for _, b := range n.Choices {
			nd.Choices = append(nd.Choices, ChoiceDocument{Condition: b.Condition, Next: b.Next})
		}
		nd.SwitchPath = s.Choice.Path
		nd.Variants = append([]string(nil), s.Choice.Variants...)
	case KindMap:
		nd.ItemsPath = s.Map.ItemsPath
		nd.ItemField = s.Map.ItemField
		nd.Carry = append([]string(nil), s.Map.Carry...)
		nd.MaxConcurrency = s.Map.MaxConcurrency
		nd.ResultPath = s.Map.ResultPath
		if n.Iterator != nil {
			it := exportScope(n.Iterator)
			nd.Iterator = &it
		}
	case KindParallel:
		nd.ResultPath = s.Parallel.ResultPath
		for _, b := range n.Branches {
			nd.Branches = append(nd.Branches, exportScope(b))
		}
	case KindFail:
		nd.Error = s.Fail.Error
		nd.Cause = s.Fail.Cause
	}
	nd.End = n.Next == "" && s.Kind != KindChoice && !s.Kind.Terminal()
	return nd
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// ComputeFingerprint returns a stable hash of the structure of def. Two
// definitions with the same nodes, edges and parameters share a fingerprint
// regardless of the collaborators bound to their targets.
func ComputeFingerprint(def *Definition) string {
	doc := Export(def)
	doc.Fingerprint = ""
	b, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
