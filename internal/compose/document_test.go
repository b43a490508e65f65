package compose

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

func encode(t *testing.T, doc *Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return buf.String()
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp compose file: %v", err)
	}
	return path
}

// decodeServices parses encoded YAML back into a generic tree for value
// comparisons that should not depend on node styling.
func decodeServices(t *testing.T, data string) map[string]any {
	t.Helper()
	var doc struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("reparse encoded document: %v", err)
	}
	return doc.Services
}

func TestNewDocument(t *testing.T) {
	got := encode(t, NewDocument())
	want := "version: \"3.8\"\nservices: {}\n"
	if got != want {
		t.Fatalf("empty document = %q, want %q", got, want)
	}
}

func TestSetLaterWins(t *testing.T) {
	doc := NewDocument()
	if err := doc.Set("web", Service{Image: "nginx:1.19", ContainerName: "web"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := doc.Set("web", Service{Image: "nginx:latest", ContainerName: "web"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if names := doc.ServiceNames(); !reflect.DeepEqual(names, []string{"web"}) {
		t.Fatalf("service names = %v, want [web]", names)
	}
	services := decodeServices(t, encode(t, doc))
	web := services["web"].(map[string]any)
	if web["image"] != "nginx:latest" {
		t.Fatalf("image = %v, want nginx:latest", web["image"])
	}
}

func TestAddPreservesExisting(t *testing.T) {
	existing := "version: \"3.8\"\n" +
		"services:\n" +
		"  web:\n" +
		"    image: nginx:1.19\n" +
		"    container_name: web\n" +
		"    ports:\n" +
		"      - 80:80\n"
	doc, err := Load(writeTemp(t, existing))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := doc.Add("web", Service{Image: "nginx:latest", ContainerName: "web"}); err != nil {
		t.Fatalf("Add(web) error = %v", err)
	}
	if err := doc.Add("db", Service{Image: "postgres:16", ContainerName: "db"}); err != nil {
		t.Fatalf("Add(db) error = %v", err)
	}

	if names := doc.ServiceNames(); !reflect.DeepEqual(names, []string{"web", "db"}) {
		t.Fatalf("service names = %v, want [web db]", names)
	}

	out := encode(t, doc)
	services := decodeServices(t, out)
	web := services["web"].(map[string]any)
	if web["image"] != "nginx:1.19" {
		t.Fatalf("existing web overwritten: image = %v", web["image"])
	}
	if strings.Contains(out, "nginx:latest") {
		t.Fatalf("discarded service leaked into output:\n%s", out)
	}
	if db := services["db"].(map[string]any); db["image"] != "postgres:16" {
		t.Fatalf("db image = %v, want postgres:16", db["image"])
	}
}

func TestAddCreatesMissingServicesMap(t *testing.T) {
	doc, err := Load(writeTemp(t, "version: \"3.8\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := doc.Add("db", Service{Image: "postgres:16", ContainerName: "db"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if names := doc.ServiceNames(); !reflect.DeepEqual(names, []string{"db"}) {
		t.Fatalf("service names = %v, want [db]", names)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Fatalf("Load() error = %v, want not-found diagnostic", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeTemp(t, "services: [unclosed"))
		if err == nil || !strings.Contains(err.Error(), "parse compose file") {
			t.Fatalf("Load() error = %v, want parse diagnostic", err)
		}
	})

	t.Run("top level not a mapping", func(t *testing.T) {
		_, err := Load(writeTemp(t, "- a\n- b\n"))
		if err == nil || !strings.Contains(err.Error(), "not a mapping") {
			t.Fatalf("Load() error = %v, want mapping diagnostic", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		doc, err := Load(writeTemp(t, ""))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if names := doc.ServiceNames(); len(names) != 0 {
			t.Fatalf("service names = %v, want none", names)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	doc := NewDocument()
	svc := Service{
		Image:         "redis:7",
		ContainerName: "cache",
		Ports:         []string{"6379:6379"},
		Volumes:       []string{},
		Environment:   []string{"MAXMEMORY=100mb"},
		Networks:      []string{"backend"},
	}
	if err := doc.Set("cache", svc); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.yml")
	if err := doc.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if names := reloaded.ServiceNames(); !reflect.DeepEqual(names, []string{"cache"}) {
		t.Fatalf("service names = %v, want [cache]", names)
	}
	before := decodeServices(t, encode(t, doc))
	after := decodeServices(t, encode(t, reloaded))
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip changed services:\nbefore: %#v\nafter:  %#v", before, after)
	}
}

// TestEndToEnd covers the whole translation for one container: inspect
// record in, ordered sparse compose document out.
func TestEndToEnd(t *testing.T) {
	rec := testRecord()
	rec.NetworkSettings.Ports = nat.PortMap{
		"80/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "8080"}},
	}
	rec.Mounts = []container.MountPoint{{Source: "/data", Destination: "/data"}}

	name, svc, err := FromInspect(rec, false)
	if err != nil {
		t.Fatalf("FromInspect() error = %v", err)
	}
	doc := NewDocument()
	if err := doc.Set(name, svc); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	out := encode(t, doc)

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(out), &root); err != nil {
		t.Fatalf("reparse encoded document: %v", err)
	}
	top := root.Content[0]
	if got := mapKeys(top); !reflect.DeepEqual(got, []string{"version", "services"}) {
		t.Fatalf("top-level keys = %v, want [version services]", got)
	}
	servicesNode := mapValue(t, top, "services")
	if got := mapKeys(servicesNode); !reflect.DeepEqual(got, []string{"web1"}) {
		t.Fatalf("services = %v, want [web1]", got)
	}

	web1 := mapValue(t, servicesNode, "web1")
	wantOrder := []string{"image", "container_name", "ports", "volumes", "environment"}
	if got := mapKeys(web1); !reflect.DeepEqual(got, wantOrder) {
		t.Fatalf("field order = %v, want %v", got, wantOrder)
	}

	if got := mapValue(t, web1, "image").Value; got != "nginx:latest" {
		t.Fatalf("image = %q, want nginx:latest", got)
	}
	if got := mapValue(t, web1, "container_name").Value; got != "web1" {
		t.Fatalf("container_name = %q, want web1", got)
	}
	if got := sequenceValues(mapValue(t, web1, "ports")); !reflect.DeepEqual(got, []string{"8080:80"}) {
		t.Fatalf("ports = %v, want [8080:80]", got)
	}
	if got := sequenceValues(mapValue(t, web1, "volumes")); !reflect.DeepEqual(got, []string{"/data:/data"}) {
		t.Fatalf("volumes = %v, want [/data:/data]", got)
	}
	if got := sequenceValues(mapValue(t, web1, "environment")); !reflect.DeepEqual(got, []string{"FOO=bar"}) {
		t.Fatalf("environment = %v, want [FOO=bar]", got)
	}
}

func mapKeys(n *yaml.Node) []string {
	keys := []string{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

func mapValue(t *testing.T, n *yaml.Node, key string) *yaml.Node {
	t.Helper()
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	t.Fatalf("key %q not found in mapping", key)
	return nil
}

func sequenceValues(n *yaml.Node) []string {
	vals := []string{}
	for _, c := range n.Content {
		vals = append(vals, c.Value)
	}
	return vals
}
