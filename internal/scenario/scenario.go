// Package scenario loads scripted prompt sequences from YAML files and
// validates them against a JSON Schema before a run.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/promptproof/promptproof/pkg/types"
)

// Prompt is one scripted step as written in a scenario file.
// validate_response defaults to true when omitted.
type Prompt struct {
	Text             string   `yaml:"text"`
	ExpectedTools    []string `yaml:"expected_tools"`
	ValidateResponse *bool    `yaml:"validate_response"`
}

// Scenario is one scripted prompt sequence bound to a target under test.
type Scenario struct {
	Name      string   `yaml:"name"`
	TargetURL string   `yaml:"target_url"`
	Prompts   []Prompt `yaml:"prompts"`
}

// PromptSpecs converts the file representation into the runner's model,
// applying the validate_response default.
func (s *Scenario) PromptSpecs() []types.PromptSpec {
	specs := make([]types.PromptSpec, len(s.Prompts))
	for i, p := range s.Prompts {
		validate := true
		if p.ValidateResponse != nil {
			validate = *p.ValidateResponse
		}
		specs[i] = types.PromptSpec{
			Text:             p.Text,
			ExpectedTools:    p.ExpectedTools,
			ValidateResponse: validate,
		}
	}
	return specs
}

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse validates data against the scenario schema and decodes it.
func Parse(data []byte) (*Scenario, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// validateSchema checks the YAML document shape before decoding into structs,
// so a misspelled field fails loudly instead of silently zeroing.
func validateSchema(data []byte) error {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(scenarioSchema)))
		if err != nil {
			schemaErr = fmt.Errorf("parse scenario schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("scenario.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add scenario schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("scenario.schema.json")
	})
	if schemaErr != nil {
		return schemaErr
	}

	// Round-trip through JSON so number and map types match what the schema
	// validator expects.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode scenario: %w", err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("normalize scenario: %w", err)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("normalize scenario: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("scenario does not match schema: %w", err)
	}
	return nil
}

const scenarioSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "prompts"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "target_url": {"type": "string"},
    "prompts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string", "minLength": 1},
          "expected_tools": {"type": "array", "items": {"type": "string"}},
          "validate_response": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
