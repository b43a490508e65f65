package compose

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Version is the compose file format version stamped on fresh documents.
const Version = "3.8"

// Document is an in-memory compose file. It is held as a yaml node tree so
// map insertion order survives a load, merge and store round trip, and
// pre-existing service entries are carried through untouched.
type Document struct {
	root *yaml.Node
}

// NewDocument returns a document with the version header and an empty
// services map.
func NewDocument() *Document {
	mapping := &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			strScalar("version"), strScalar(Version),
			strScalar("services"), {Kind: yaml.MappingNode, Tag: "!!map"},
		},
	}
	return &Document{root: &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{mapping},
	}}
}

// Load reads an existing compose file into a Document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("compose file %s not found", path)
		}
		return nil, fmt.Errorf("read compose file %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", path, err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty file: start from an empty mapping.
		return &Document{root: &yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}}, nil
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse compose file %s: top level is not a mapping", path)
	}
	return &Document{root: &root}, nil
}

// Set inserts a service, replacing any same-named entry. This is the
// fresh-document path, where the last container with a given name wins.
func (d *Document) Set(name string, svc Service) error {
	node, err := serviceNode(svc)
	if err != nil {
		return err
	}

	m := d.services()
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			m.Content[i+1] = node
			return nil
		}
	}
	m.Content = append(m.Content, strScalar(name), node)
	return nil
}

// Add inserts a service unless the name is already taken. Existing entries
// always win, so hand-edited definitions survive a merge untouched.
func (d *Document) Add(name string, svc Service) error {
	if d.Has(name) {
		return nil
	}
	return d.Set(name, svc)
}

// Has reports whether a service with the given name exists.
func (d *Document) Has(name string) bool {
	m := d.services()
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return true
		}
	}
	return false
}

// ServiceNames returns the service names in document order.
func (d *Document) ServiceNames() []string {
	m := d.services()
	names := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		names = append(names, m.Content[i].Value)
	}
	return names
}

// Encode writes the document as block-style YAML with two-space indent.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return fmt.Errorf("encode compose document: %w", err)
	}
	return enc.Close()
}

// Write serializes the document to path, or to stdout when path is "-".
func (d *Document) Write(path string) error {
	if path == "-" {
		return d.Encode(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := d.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// services returns the services mapping node, creating it when the loaded
// document has none. An explicit "services:" key with a null value is
// normalized to an empty mapping.
func (d *Document) services() *yaml.Node {
	m := d.mapping()
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == "services" {
			s := m.Content[i+1]
			if s.Kind != yaml.MappingNode {
				*s = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			return s
		}
	}
	s := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, strScalar("services"), s)
	return s
}

func (d *Document) mapping() *yaml.Node {
	if d.root.Kind == yaml.DocumentNode && len(d.root.Content) > 0 {
		return d.root.Content[0]
	}
	return d.root
}

func serviceNode(svc Service) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(svc); err != nil {
		return nil, fmt.Errorf("encode service: %w", err)
	}
	return node, nil
}

func strScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
