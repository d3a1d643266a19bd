package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/vault"
)

// Manifest is a declarative service binding file under services/. It lets
// operators describe the credentials a service should receive without
// touching the metadata document directly; drop-in generation and migration
// can work from a manifest before anything is committed.
//
// Format:
//
//	# services/auth.conf
//	bindings:
//	  - credential: db_password
//	    env_var: DB_PASSWORD_FILE
//	  - credential: tls_key
type Manifest struct {
	// Service is the normalized service name, taken from the filename.
	Service string

	// Bindings lists the credential exposures in file order.
	Bindings []ManifestBinding
}

// ManifestBinding is one credential exposure in a manifest.
type ManifestBinding struct {
	// Credential names the credential.
	Credential string

	// EnvVar is the optional exposure environment variable.
	EnvVar string
}

// Entries converts the manifest bindings to store binding entries.
func (m *Manifest) Entries() []vault.BindingEntry {
	out := make([]vault.BindingEntry, len(m.Bindings))
	for i, b := range m.Bindings {
		out[i] = vault.BindingEntry{Credential: b.Credential, EnvVar: b.EnvVar}
	}
	return out
}

// LoadManifest reads and parses the manifest for one service. The service
// name is derived from the filename with the .conf extension stripped.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service manifest: %w", err)
	}
	service := vault.NormalizeServiceName(strings.TrimSuffix(filepath.Base(path), ".conf"))
	m, err := ParseManifest(service, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses manifest content. Errors carry the line number of the
// offending element so an operator can fix the file directly.
func ParseManifest(service string, data []byte) (*Manifest, error) {
	if err := vault.ValidateServiceName(service); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("manifest does not parse: %w", err)
	}

	m := &Manifest{Service: service}
	if root.Kind == 0 || len(root.Content) == 0 {
		// An empty manifest binds nothing.
		return m, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: manifest must be a mapping with a bindings list", doc.Line)
	}

	var bindingsNode *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		switch key.Value {
		case "bindings":
			bindingsNode = value
		default:
			return nil, fmt.Errorf("line %d: unknown manifest key %q", key.Line, key.Value)
		}
	}
	if bindingsNode == nil || bindingsNode.Kind == yaml.ScalarNode && bindingsNode.Value == "" {
		return m, nil
	}
	if bindingsNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: bindings must be a list", bindingsNode.Line)
	}

	seenCredential := map[string]int{}
	seenEnvVar := map[string]int{}
	for _, item := range bindingsNode.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: binding must be a mapping", item.Line)
		}
		var b ManifestBinding
		for i := 0; i+1 < len(item.Content); i += 2 {
			key, value := item.Content[i], item.Content[i+1]
			switch key.Value {
			case "credential":
				b.Credential = value.Value
			case "env_var":
				b.EnvVar = value.Value
			default:
				return nil, fmt.Errorf("line %d: unknown binding key %q", key.Line, key.Value)
			}
		}
		if b.Credential == "" {
			return nil, fmt.Errorf("line %d: binding has no credential", item.Line)
		}
		if err := vault.ValidateCredentialName(b.Credential); err != nil {
			return nil, fmt.Errorf("line %d: %v", item.Line, err)
		}
		if prev, dup := seenCredential[b.Credential]; dup {
			return nil, fmt.Errorf("line %d: credential %q already bound at line %d", item.Line, b.Credential, prev)
		}
		seenCredential[b.Credential] = item.Line
		if b.EnvVar != "" {
			if err := vault.ValidateEnvVar(b.EnvVar); err != nil {
				return nil, fmt.Errorf("line %d: %v", item.Line, err)
			}
			if prev, dup := seenEnvVar[b.EnvVar]; dup {
				return nil, fmt.Errorf("line %d: env var %s already used at line %d", item.Line, b.EnvVar, prev)
			}
			seenEnvVar[b.EnvVar] = item.Line
		}
		m.Bindings = append(m.Bindings, b)
	}
	return m, nil
}

// WriteManifest renders and writes a manifest for the service's entries,
// used by migration to record what it imported.
func WriteManifest(path string, entries []vault.BindingEntry) error {
	type yamlBinding struct {
		Credential string `yaml:"credential"`
		EnvVar     string `yaml:"env_var,omitempty"`
	}
	doc := struct {
		Bindings []yamlBinding `yaml:"bindings"`
	}{}
	for _, e := range entries {
		doc.Bindings = append(doc.Bindings, yamlBinding{Credential: e.Credential, EnvVar: e.EnvVar})
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to render service manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create services directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write service manifest: %w", err)
	}
	return nil
}
