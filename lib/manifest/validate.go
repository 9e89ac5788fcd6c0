// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthub-foundation/agenthub/lib/registry"
	"github.com/agenthub-foundation/agenthub/lib/semver"
)

// Validate checks the manifest against the schema for the declared package
// type. It is pure: it reads the manifest, never mutates it, and can be
// re-run with identical results. Every violation found is accumulated; the
// returned error is a *registry.ValidationError carrying the full list, or
// nil when the manifest is valid.
func Validate(m *Manifest, kind registry.PackageType) error {
	var violations []registry.Violation
	add := func(field, reason string) {
		violations = append(violations, registry.Violation{Field: field, Reason: reason})
	}

	if m.Name == "" {
		add("name", "required")
	} else if err := registry.ValidateName(m.Name); err != nil {
		add("name", violationReason(err))
	}
	if m.Version == "" {
		add("version", "required")
	} else if _, err := semver.Parse(m.Version); err != nil {
		add("version", fmt.Sprintf("not a valid semantic version: %q", m.Version))
	}
	if m.Description == "" {
		add("description", "required")
	}
	if m.Author == "" {
		add("author", "required")
	}

	validateDependencies(m.Dependencies, add)

	section, sectionName := m.sectionFor(kind)
	if section == nil {
		add(string(kind), fmt.Sprintf("manifest for a %s package must carry a %q section", kind, sectionName))
	}
	for _, extra := range m.extraSections(kind) {
		add(extra, fmt.Sprintf("section does not belong in a %s manifest", kind))
	}

	switch kind {
	case registry.TypeAgent:
		if m.Agent != nil {
			validateAgent(m.Agent, add)
		}
	case registry.TypeTool:
		if m.Tool != nil {
			validateTool(m.Tool, add)
		}
	case registry.TypeChain:
		if m.Chain != nil {
			validateChain(m.Chain, add)
		}
	case registry.TypePrompt:
		if m.Prompt != nil {
			validatePrompt(m.Prompt, add)
		}
	case registry.TypeDataset:
		if m.Dataset != nil {
			validateDataset(m.Dataset, add)
		}
	default:
		add("type", fmt.Sprintf("unknown package type %q", kind))
	}

	if len(violations) > 0 {
		return &registry.ValidationError{Violations: violations}
	}
	return nil
}

// violationReason flattens a registry.ValidationError from a field-level
// check into the reason text of its first violation.
func violationReason(err error) string {
	var validationErr *registry.ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Violations) > 0 {
		return validationErr.Violations[0].Reason
	}
	return err.Error()
}

// sectionFor returns the type-specific section matching the declared kind,
// or nil when absent, plus the section's document key.
func (m *Manifest) sectionFor(kind registry.PackageType) (any, string) {
	switch kind {
	case registry.TypeAgent:
		if m.Agent == nil {
			return nil, "agent"
		}
		return m.Agent, "agent"
	case registry.TypeTool:
		if m.Tool == nil {
			return nil, "tool"
		}
		return m.Tool, "tool"
	case registry.TypeChain:
		if m.Chain == nil {
			return nil, "chain"
		}
		return m.Chain, "chain"
	case registry.TypePrompt:
		if m.Prompt == nil {
			return nil, "prompt"
		}
		return m.Prompt, "prompt"
	case registry.TypeDataset:
		if m.Dataset == nil {
			return nil, "dataset"
		}
		return m.Dataset, "dataset"
	}
	return nil, string(kind)
}

// extraSections lists the type-specific sections present in the document
// that do not match the declared kind.
func (m *Manifest) extraSections(kind registry.PackageType) []string {
	var extras []string
	if m.Agent != nil && kind != registry.TypeAgent {
		extras = append(extras, "agent")
	}
	if m.Tool != nil && kind != registry.TypeTool {
		extras = append(extras, "tool")
	}
	if m.Chain != nil && kind != registry.TypeChain {
		extras = append(extras, "chain")
	}
	if m.Prompt != nil && kind != registry.TypePrompt {
		extras = append(extras, "prompt")
	}
	if m.Dataset != nil && kind != registry.TypeDataset {
		extras = append(extras, "dataset")
	}
	return extras
}

func validateDependencies(deps map[string]string, add func(field, reason string)) {
	// Deterministic violation order for stable error output.
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := "dependencies." + name
		if err := registry.ValidateName(name); err != nil {
			add(field, "invalid dependency name: "+violationReason(err))
		}
		constraint := deps[name]
		if constraint == "" {
			add(field, "constraint required")
			continue
		}
		if _, err := semver.ParseConstraint(constraint); err != nil {
			add(field, fmt.Sprintf("invalid constraint %q", constraint))
		}
	}
}

func validateAgent(a *AgentSpec, add func(field, reason string)) {
	if a.Entrypoint == "" {
		add("agent.entrypoint", "required")
	}
	if a.Runtime == "" {
		add("agent.runtime", "required")
	}
}

func validateTool(t *ToolSpec, add func(field, reason string)) {
	if t.Entrypoint == "" {
		add("tool.entrypoint", "required")
	}
	seen := make(map[string]bool, len(t.Arguments))
	for i, arg := range t.Arguments {
		field := fmt.Sprintf("tool.arguments[%d]", i)
		if arg.Name == "" {
			add(field+".name", "required")
			continue
		}
		if seen[arg.Name] {
			add(field+".name", fmt.Sprintf("duplicate argument %q", arg.Name))
		}
		seen[arg.Name] = true
		if arg.Type == "" {
			add(field+".type", "required")
		}
	}
}

// validateChain enforces the chain's dataflow rules: steps run in order,
// step names are unique, each step references a syntactically valid
// component, input bindings resolve to declared chain inputs or outputs of
// strictly earlier steps, and outputs are unique within a step.
func validateChain(c *ChainSpec, add func(field, reason string)) {
	if len(c.Steps) == 0 {
		add("chain.steps", "at least one step required")
		return
	}

	chainInputs := make(map[string]bool, len(c.Inputs))
	for i, name := range c.Inputs {
		if name == "" {
			add(fmt.Sprintf("chain.inputs[%d]", i), "empty input name")
			continue
		}
		if chainInputs[name] {
			add(fmt.Sprintf("chain.inputs[%d]", i), fmt.Sprintf("duplicate chain input %q", name))
		}
		chainInputs[name] = true
	}

	stepNames := make(map[string]bool, len(c.Steps))
	// produced maps "step.output" refs to availability as steps are walked
	// in order, so a binding can only see outputs from earlier positions.
	produced := make(map[string]bool)

	for i, step := range c.Steps {
		field := fmt.Sprintf("chain.steps[%d]", i)
		if step.Name == "" {
			add(field+".name", "required")
		} else if stepNames[step.Name] {
			add(field+".name", fmt.Sprintf("duplicate step name %q", step.Name))
		}
		stepNames[step.Name] = true

		if step.Uses.Package == "" {
			add(field+".uses.package", "required")
		} else if err := registry.ValidateName(step.Uses.Package); err != nil {
			add(field+".uses.package", violationReason(err))
		}
		if step.Uses.Constraint == "" {
			add(field+".uses.constraint", "required")
		} else if _, err := semver.ParseConstraint(step.Uses.Constraint); err != nil {
			add(field+".uses.constraint", fmt.Sprintf("invalid constraint %q", step.Uses.Constraint))
		}

		bindings := make([]string, 0, len(step.Inputs))
		for binding := range step.Inputs {
			bindings = append(bindings, binding)
		}
		sort.Strings(bindings)
		for _, binding := range bindings {
			source := step.Inputs[binding]
			bindField := fmt.Sprintf("%s.inputs.%s", field, binding)
			switch {
			case source == "":
				add(bindField, "empty binding source")
			case strings.Contains(source, "."):
				if !produced[source] {
					add(bindField, fmt.Sprintf("%q is not an output of an earlier step", source))
				}
			default:
				if !chainInputs[source] {
					add(bindField, fmt.Sprintf("%q is not a declared chain input", source))
				}
			}
		}

		stepOutputs := make(map[string]bool, len(step.Outputs))
		for j, out := range step.Outputs {
			outField := fmt.Sprintf("%s.outputs[%d]", field, j)
			if out == "" {
				add(outField, "empty output name")
				continue
			}
			if strings.Contains(out, ".") {
				add(outField, fmt.Sprintf("output name %q may not contain %q", out, "."))
				continue
			}
			if stepOutputs[out] {
				add(outField, fmt.Sprintf("duplicate output %q", out))
			}
			stepOutputs[out] = true
			if step.Name != "" {
				produced[step.Name+"."+out] = true
			}
		}
	}
}

func validatePrompt(p *PromptSpec, add func(field, reason string)) {
	if p.Template == "" {
		add("prompt.template", "required")
	}
	seen := make(map[string]bool, len(p.Variables))
	for i, v := range p.Variables {
		field := fmt.Sprintf("prompt.variables[%d]", i)
		if v.Name == "" {
			add(field+".name", "required")
			continue
		}
		if seen[v.Name] {
			add(field+".name", fmt.Sprintf("duplicate variable %q", v.Name))
		}
		seen[v.Name] = true
	}
}

func validateDataset(d *DatasetSpec, add func(field, reason string)) {
	if d.Format == "" {
		add("dataset.format", "required")
	}
	if len(d.Files) == 0 {
		add("dataset.files", "at least one file required")
		return
	}
	for i, f := range d.Files {
		field := fmt.Sprintf("dataset.files[%d]", i)
		if f.Path == "" {
			add(field+".path", "required")
		}
		if f.Size <= 0 {
			add(field+".size", "must be positive")
		}
	}
}
