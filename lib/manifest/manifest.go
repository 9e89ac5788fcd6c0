// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Manifest is the decoded form of a package manifest. Exactly one of the
// type-specific sections (Agent, Tool, Chain, Prompt, Dataset) must be set,
// and it must match the package type declared at publish time.
type Manifest struct {
	// Name is the package name. Lowercase alphanumerics and hyphens,
	// no leading or trailing hyphen.
	Name string `yaml:"name"`

	// Version is the strict semantic version being published.
	Version string `yaml:"version"`

	// Description is a short human-readable summary.
	Description string `yaml:"description"`

	// Author identifies the publisher in free-form text.
	Author string `yaml:"author"`

	// Keywords are free-text search terms.
	Keywords []string `yaml:"keywords,omitempty"`

	// License is an SPDX identifier or free-form license name.
	License string `yaml:"license,omitempty"`

	// Homepage and Repository are informational URLs.
	Homepage   string `yaml:"homepage,omitempty"`
	Repository string `yaml:"repository,omitempty"`

	// Dependencies maps package names to version constraints. Both sides
	// are validated syntactically; whether the referenced package exists
	// is an advisory check made at publish time, not here.
	Dependencies map[string]string `yaml:"dependencies,omitempty"`

	Agent   *AgentSpec   `yaml:"agent,omitempty"`
	Tool    *ToolSpec    `yaml:"tool,omitempty"`
	Chain   *ChainSpec   `yaml:"chain,omitempty"`
	Prompt  *PromptSpec  `yaml:"prompt,omitempty"`
	Dataset *DatasetSpec `yaml:"dataset,omitempty"`
}

// AgentSpec describes an executable agent.
type AgentSpec struct {
	// Entrypoint is the command or module that starts the agent.
	Entrypoint string `yaml:"entrypoint"`

	// Runtime names the execution environment (for example "python3.12").
	Runtime string `yaml:"runtime"`

	// Model optionally pins the language model the agent targets.
	Model string `yaml:"model,omitempty"`

	// Capabilities lists the permissions the agent requests.
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	// Entrypoint is the command or module that implements the tool.
	Entrypoint string `yaml:"entrypoint"`

	// Arguments declares the tool's typed parameters.
	Arguments []ToolArgument `yaml:"arguments,omitempty"`
}

// ToolArgument is one declared tool parameter.
type ToolArgument struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// ChainSpec describes an ordered composition of other packages.
type ChainSpec struct {
	// Inputs declares the names the chain accepts from its caller. Step
	// input bindings may reference these by name.
	Inputs []string `yaml:"inputs,omitempty"`

	// Steps run in order. Each step may only consume chain inputs or
	// outputs produced by an earlier step.
	Steps []ChainStep `yaml:"steps"`
}

// ChainStep is one stage of a chain.
type ChainStep struct {
	// Name is unique within the chain and qualifies the step's outputs.
	Name string `yaml:"name"`

	// Uses references the component package this step runs.
	Uses ComponentRef `yaml:"uses"`

	// Inputs binds the component's input names to sources. A source is
	// either a declared chain input ("query") or an earlier step's
	// output ("fetch.body").
	Inputs map[string]string `yaml:"inputs,omitempty"`

	// Outputs names the values this step produces, unique within the step.
	Outputs []string `yaml:"outputs,omitempty"`
}

// ComponentRef identifies a package plus the version constraint a chain
// step accepts.
type ComponentRef struct {
	Package    string `yaml:"package"`
	Constraint string `yaml:"constraint"`
}

// PromptSpec describes a parameterized prompt template.
type PromptSpec struct {
	// Template is the prompt text with variable placeholders.
	Template string `yaml:"template"`

	// Variables declares the template's substitution variables.
	Variables []PromptVariable `yaml:"variables,omitempty"`
}

// PromptVariable is one declared template variable. Type and Required are
// optional in the document; Parse fills their defaults (type "string";
// required when no default value is given).
type PromptVariable struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Required    *bool   `yaml:"required,omitempty"`
	Default     *string `yaml:"default,omitempty"`
}

// IsRequired reports whether the variable must be supplied by the caller.
// Parse resolves the field, so a nil Required only occurs on documents
// that bypassed Parse.
func (v *PromptVariable) IsRequired() bool {
	if v.Required == nil {
		return v.Default == nil
	}
	return *v.Required
}

// DatasetSpec describes a static data package.
type DatasetSpec struct {
	// Format names the dataset encoding (for example "jsonl", "parquet").
	Format string `yaml:"format"`

	// Files lists the dataset's contents. At least one entry is required.
	Files []DatasetFile `yaml:"files"`
}

// DatasetFile is one file within a dataset.
type DatasetFile struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
}

// Parse decodes a YAML (or JSON) manifest document and applies schema
// defaults. It does not validate; call Validate on the result. A document
// that is not well-formed YAML is a validation error in its own right.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &registry.ValidationError{Violations: []registry.Violation{
			{Field: "manifest", Reason: fmt.Sprintf("not a well-formed document: %v", err)},
		}}
	}
	m.applyDefaults()
	return &m, nil
}

// Type returns the package type whose section the manifest carries,
// or "" when none is present. A manifest that passed Validate has
// exactly one.
func (m *Manifest) Type() registry.PackageType {
	switch {
	case m.Agent != nil:
		return registry.TypeAgent
	case m.Tool != nil:
		return registry.TypeTool
	case m.Chain != nil:
		return registry.TypeChain
	case m.Prompt != nil:
		return registry.TypePrompt
	case m.Dataset != nil:
		return registry.TypeDataset
	}
	return ""
}

// applyDefaults fills optional fields the schema defines defaults for.
// Only prompt variables carry defaults today.
func (m *Manifest) applyDefaults() {
	if m.Prompt == nil {
		return
	}
	for i := range m.Prompt.Variables {
		v := &m.Prompt.Variables[i]
		if v.Type == "" {
			v.Type = "string"
		}
		if v.Required == nil {
			required := v.Default == nil
			v.Required = &required
		}
	}
}
