package utils

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// droppedWhenEmpty are keys whose empty mapping value only adds noise.
var droppedWhenEmpty = map[string]bool{"resources": true, "strategy": true}

// MarshalManifests serialises Kubernetes objects into one multi-document YAML
// string. Output is deterministic: keys are sorted, server-populated fields
// are removed, and any string containing a newline is written as a block
// literal so it can never break the surrounding structure.
//
// Block literals are written here rather than by the encoder, which falls
// back to a double-quoted string for lines ending in whitespace.
func MarshalManifests(objects ...interface{}) (string, error) {
	var docs []string
	for _, obj := range objects {
		doc, err := marshalManifest(obj)
		if err != nil {
			return "", err
		}
		docs = append(docs, doc)
	}
	return strings.Join(docs, "---\n"), nil
}

func marshalManifest(obj interface{}) (string, error) {
	raw, err := sigsyaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse manifest: %w", err)
	}
	if len(doc.Content) == 1 {
		removeKey(doc.Content[0], "status")
	}
	blocks := &blockScalars{prefix: "deploykit-block-"}
	for strings.Contains(string(raw), blocks.prefix) {
		blocks.prefix = "x" + blocks.prefix
	}
	tidy(&doc, blocks)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return blocks.expand(buf.String())
}

func tidy(node *yaml.Node, blocks *blockScalars) {
	switch node.Kind {
	case yaml.MappingNode:
		kept := node.Content[:0]
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Value == "creationTimestamp" && value.Tag == "!!null" {
				continue
			}
			if droppedWhenEmpty[key.Value] && value.Kind == yaml.MappingNode && len(value.Content) == 0 {
				continue
			}
			tidy(value, blocks)
			kept = append(kept, key, value)
		}
		node.Content = kept
	case yaml.ScalarNode:
		if node.Tag == "!!str" && strings.Contains(node.Value, "\n") {
			blocks.replace(node)
		}
	default:
		for _, child := range node.Content {
			tidy(child, blocks)
		}
	}
}

// blockScalars swaps multi-line strings for plain placeholder tokens before
// encoding and writes them back as block literals afterwards.
type blockScalars struct {
	prefix string
	values []string
}

func (b *blockScalars) replace(node *yaml.Node) {
	// A carriage return or a whitespace-only value can not be kept exact in a
	// block literal; the encoder's quoting handles those.
	if strings.ContainsRune(node.Value, '\r') || strings.TrimSpace(node.Value) == "" {
		node.Style = yaml.DoubleQuotedStyle
		return
	}
	orig := node.Value
	node.Value = b.prefix + strconv.Itoa(len(b.values))
	node.Style = 0
	b.values = append(b.values, orig)
}

func (b *blockScalars) expand(doc string) (string, error) {
	if len(b.values) == 0 {
		return doc, nil
	}
	lines := strings.SplitAfter(doc, "\n")
	var out strings.Builder
	replaced := 0
	for _, line := range lines {
		body := strings.TrimSuffix(line, "\n")
		at := strings.LastIndex(body, b.prefix)
		if at < 0 {
			out.WriteString(line)
			continue
		}
		n, err := strconv.Atoi(body[at+len(b.prefix):])
		if err != nil || n < 0 || n >= len(b.values) {
			return "", fmt.Errorf("encode manifest: unexpected block placeholder in %q", body)
		}
		head := body[:at]
		out.WriteString(head)
		writeBlockLiteral(&out, b.values[n], blockIndent(head))
		replaced++
	}
	if replaced != len(b.values) {
		return "", fmt.Errorf("encode manifest: %d of %d block literals written", replaced, len(b.values))
	}
	return out.String(), nil
}

// blockIndent returns the indentation for the content of a block scalar
// that follows head, which is either "<indent>[- ...]key: " or "<indent>- ".
func blockIndent(head string) int {
	col := len(head) - len(strings.TrimLeft(head, " "))
	rest := head[col:]
	for strings.HasPrefix(rest, "- ") {
		if rest == "- " {
			// Bare sequence item: indent past the dash.
			return col + 2
		}
		col += 2
		rest = rest[2:]
	}
	return col + 2
}

// writeBlockLiteral writes the header and content of a literal block
// scalar. Content lines are written verbatim after the indentation, so
// trailing spaces and tabs survive.
func writeBlockLiteral(out *strings.Builder, value string, indent int) {
	body := strings.TrimRight(value, "\n")
	trailing := len(value) - len(body)

	out.WriteString("|")
	if strings.HasPrefix(strings.TrimLeft(body, "\n"), " ") {
		out.WriteString("2")
	}
	switch {
	case trailing == 0:
		out.WriteString("-")
	case trailing > 1:
		out.WriteString("+")
	}
	out.WriteString("\n")

	pad := strings.Repeat(" ", indent)
	for _, l := range strings.Split(body, "\n") {
		if l != "" {
			out.WriteString(pad)
			out.WriteString(l)
		}
		out.WriteString("\n")
	}
	for i := 1; i < trailing; i++ {
		out.WriteString("\n")
	}
}

func removeKey(mapping *yaml.Node, key string) {
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}
