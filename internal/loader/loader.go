// Package loader resolves a workflow definition file (YAML or JSON, format
// auto-detected by extension, per spec.md §4.4) into a validated
// *models.WorkflowDefinition. It implements nodes.WorkflowLoader so
// internal/engine can hand it to SubflowNode without internal/nodes ever
// depending on a file format.
//
// Grounded on the teacher's internal/application/importer.YAMLImporter,
// which unmarshals into an intermediate YAML-tagged DTO and converts to
// domain models by hand. That indirection existed because the teacher's
// domain models (models.Workflow/Node/Edge) differ structurally from its
// wire format. Here pkg/models.WorkflowDefinition already carries both
// `json` and `yaml` struct tags, so the intermediate DTO is unnecessary:
// this loader unmarshals straight into the domain type and keeps the
// teacher's two conventions it still needs — path-driven format detection
// and running the domain Validate() after unmarshaling.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Loader reads workflow definitions from disk.
type Loader struct {
	// BaseDir, if set, resolves relative paths (e.g. a Subflow node's
	// WorkflowFilePath) against a fixed directory instead of the process's
	// working directory.
	BaseDir string
}

// New returns a Loader rooted at baseDir. An empty baseDir resolves
// relative paths against the process's working directory.
func New(baseDir string) *Loader {
	return &Loader{BaseDir: baseDir}
}

// Load reads, parses, and validates the workflow definition at path. The
// format is chosen by file extension: .yaml/.yml uses YAML, anything else
// (including .json) uses JSON.
func (l *Loader) Load(path string) (*models.WorkflowDefinition, error) {
	resolved := path
	if l.BaseDir != "" && !filepath.IsAbs(path) {
		resolved = filepath.Join(l.BaseDir, path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("loading workflow definition %q: %w", path, err)
	}

	def, err := Parse(data, path)
	if err != nil {
		return nil, fmt.Errorf("loading workflow definition %q: %w", path, err)
	}
	return def, nil
}

// Parse unmarshals raw workflow definition bytes, choosing YAML or JSON by
// the extension of hint (typically the source path; pass an explicit
// ".yaml"/".json" string when parsing bytes that did not come from a file,
// e.g. an upload). It validates the result before returning.
func Parse(data []byte, hint string) (*models.WorkflowDefinition, error) {
	data = trimBOM(data)

	var def models.WorkflowDefinition
	isYAML := false
	switch strings.ToLower(filepath.Ext(hint)) {
	case ".yaml", ".yml":
		isYAML = true
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}

	if err := defaultOmittedEnabled(&def, data, isYAML); err != nil {
		return nil, fmt.Errorf("parsing connections: %w", err)
	}

	if errs := def.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidWorkflow, errs.Error())
	}

	return &def, nil
}

// defaultOmittedEnabled defaults NodeConnection.Enabled to true for any
// connection whose source document omits the "enabled" key entirely, at any
// nesting level (top-level connections, a Container node's childConnections,
// and a Subflow node's inline child workflow). NodeConnection.Enabled is a
// plain bool, so a document that simply leaves the key out unmarshals to
// the zero value (false), silently disabling the edge (and, per
// WorkflowDefinition.EntryPoints, turning its target into an unintended
// entry point). A document that writes "enabled: false" explicitly is left
// alone. Re-decodes the document into a generic map so presence, not value,
// of the key can be checked.
func defaultOmittedEnabled(def *models.WorkflowDefinition, data []byte, isYAML bool) error {
	var raw map[string]interface{}
	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return err
	}

	applyEnabledDefaults(def.Connections, raw["connections"])
	applyNestedEnabledDefaults(def.Nodes, raw["nodes"])
	return nil
}

func applyEnabledDefaults(conns []*models.NodeConnection, rawConns interface{}) {
	list, ok := rawConns.([]interface{})
	if !ok {
		return
	}
	for i, item := range list {
		if i >= len(conns) {
			break
		}
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if _, present := m["enabled"]; !present {
			conns[i].Enabled = true
		}
	}
}

func applyNestedEnabledDefaults(nodes []*models.NodeDefinition, rawNodes interface{}) {
	list, ok := rawNodes.([]interface{})
	if !ok {
		return
	}
	for i, item := range list {
		if i >= len(nodes) {
			break
		}
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		applyEnabledDefaults(nodes[i].ChildConnections, m["childConnections"])
		applyNestedEnabledDefaults(nodes[i].ChildNodes, m["childNodes"])

		if inline, ok := m["inlineWorkflow"].(map[string]interface{}); ok && nodes[i].InlineWorkflow != nil {
			applyEnabledDefaults(nodes[i].InlineWorkflow.Connections, inline["connections"])
			applyNestedEnabledDefaults(nodes[i].InlineWorkflow.Nodes, inline["nodes"])
		}
	}
}

func trimBOM(data []byte) []byte {
	const bom = "\xef\xbb\xbf"
	if len(data) >= len(bom) && string(data[:len(bom)]) == bom {
		return data[len(bom):]
	}
	return data
}
