package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Limits bound the shape of a config document. Alias expansion counts
// towards every limit, which stops billion-laughs style documents.
type Limits struct {
	MaxDepth     int
	MaxNodes     int
	MaxKeyLength int
	MaxValueSize int
}

// DefaultLimits are far above what a real config needs.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     12,
		MaxNodes:     4096,
		MaxKeyLength: 128,
		MaxValueSize: 64 * 1024,
	}
}

// decodeYAML checks data against limits before decoding it into v.
func decodeYAML(data []byte, v any, limits Limits) error {
	if int64(len(data)) > MaxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse config: %w", err)
	}

	w := &nodeWalker{limits: limits}
	if err := w.walk(&root, 0); err != nil {
		return fmt.Errorf("config rejected: %w", err)
	}

	if err := root.Decode(v); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

type nodeWalker struct {
	limits Limits
	nodes  int
}

func (w *nodeWalker) walk(n *yaml.Node, depth int) error {
	if depth > w.limits.MaxDepth {
		return fmt.Errorf("nesting depth exceeds %d", w.limits.MaxDepth)
	}
	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		return fmt.Errorf("more than %d nodes", w.limits.MaxNodes)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := w.walk(c, depth); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if len(key.Value) > w.limits.MaxKeyLength {
				return fmt.Errorf("key %.20q... longer than %d bytes", key.Value, w.limits.MaxKeyLength)
			}
			if err := w.walk(n.Content[i+1], depth+1); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := w.walk(c, depth+1); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if len(n.Value) > w.limits.MaxValueSize {
			return fmt.Errorf("value at line %d longer than %d bytes", n.Line, w.limits.MaxValueSize)
		}
	case yaml.AliasNode:
		if n.Alias != nil {
			return w.walk(n.Alias, depth+1)
		}
	}
	return nil
}
