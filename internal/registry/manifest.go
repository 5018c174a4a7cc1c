// Package registry implements the five catalog mutation flows of
// section 4.2: register/update/delete function, delete table, delete
// collection.
package registry

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"tabsdata.io/execcore/internal/catalogerr"
)

// FunctionManifest is the submitted description of a function's
// outputs, dependencies, and triggers (step 2 of Register). It sniffs
// a `kind: function-manifest` discriminator before decoding the rest,
// the same two-phase approach the teacher's workflow parser uses to
// sniff `@type` before unmarshalling a concrete shape.
type FunctionManifest struct {
	Kind           string            `yaml:"kind"`
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	RuntimeValues  json.RawMessage   `yaml:"runtime_values"`
	DataLocation   string            `yaml:"data_location"`
	StorageVersion string            `yaml:"storage_version"`
	TransactionBy  string            `yaml:"transaction_by"`
	Snippet        string            `yaml:"snippet"`
	Bundle         ManifestBundle    `yaml:"bundle"`
	Outputs        []ManifestOutput  `yaml:"outputs"`
	Dependencies   []ManifestDependency `yaml:"dependencies"`
	Triggers       []ManifestTrigger `yaml:"triggers"`
	// InitialValues names the state table this function carries across
	// runs. The Registry auto-manages its Table/TableVersion/Dependency
	// rows; it must not also appear in Outputs or Dependencies.
	InitialValues string `yaml:"initial_values"`
}

// ManifestBundle describes the code archive backing the function version.
type ManifestBundle struct {
	Hash      string `yaml:"hash"`
	URI       string `yaml:"uri"`
	EnvPrefix string `yaml:"env_prefix"`
}

// ManifestOutput declares one table the function produces.
type ManifestOutput struct {
	Table            string `yaml:"table"`
	FunctionParamPos int    `yaml:"function_param_pos"`
	Private          bool   `yaml:"private"`
	Partitioned      bool   `yaml:"partitioned"`
}

// ManifestDependency declares one input the function reads.
type ManifestDependency struct {
	Table         string `yaml:"table"`
	DepPos        int    `yaml:"dep_pos"`
	TableVersions string `yaml:"table_versions"`
}

// ManifestTrigger declares "run this function when Table produces a
// new data version".
type ManifestTrigger struct {
	Table string `yaml:"table"`
}

type kindSniff struct {
	Kind string `yaml:"kind"`
}

// ParseFunctionManifest sniffs the kind discriminator, rejects
// anything but "function-manifest", then decodes the full document.
func ParseFunctionManifest(doc []byte) (*FunctionManifest, error) {
	var sniff kindSniff
	if err := yaml.Unmarshal(doc, &sniff); err != nil {
		return nil, catalogerr.Invalid("detect manifest kind: %v", err)
	}
	if sniff.Kind != "function-manifest" {
		return nil, catalogerr.Invalid("unsupported manifest kind %q", sniff.Kind)
	}

	var m FunctionManifest
	if err := yaml.Unmarshal(doc, &m); err != nil {
		return nil, catalogerr.Invalid("parse function manifest: %v", err)
	}
	if m.Name == "" {
		return nil, catalogerr.Invalid("function manifest missing name")
	}
	if m.Bundle.Hash == "" || m.Bundle.URI == "" {
		return nil, catalogerr.Invalid("function manifest missing bundle hash/uri")
	}
	for _, dep := range m.Dependencies {
		if dep.Table == "" {
			return nil, catalogerr.Invalid("dependency missing table reference")
		}
	}
	for _, out := range m.Outputs {
		if out.Table == "" {
			return nil, catalogerr.Invalid("output missing table name")
		}
	}
	return &m, nil
}

func (m *FunctionManifest) String() string {
	return fmt.Sprintf("FunctionManifest{name=%s, outputs=%d, deps=%d, triggers=%d}",
		m.Name, len(m.Outputs), len(m.Dependencies), len(m.Triggers))
}
