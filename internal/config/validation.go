package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Prajjawalk/ipc/internal/recommend"
	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add config schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Schema returns the JSON schema configuration documents are checked against.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// ValidateDocument checks a YAML document against the config schema.
func ValidateDocument(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if err := s.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return formatSchemaValidationError(validationErr)
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Validate checks what the schema cannot: formulas compile, the base fee
// parses, and a remote payload is either pinned or explicitly allowed to be
// non-deterministic.
func Validate(cfg *Config) error {
	var errors []string

	if _, err := cfg.PriceList(); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := cfg.Network(); err != nil {
		errors = append(errors, err.Error())
	}
	if len(cfg.Kernel.AllowedCallers) == 0 {
		errors = append(errors, "kernel.allowed_callers must not be empty")
	}

	p := cfg.Kernel.Payload
	if _, err := recommend.ParseCommitments(p.Commitments); err != nil {
		errors = append(errors, fmt.Sprintf("kernel.payload.commitments: %s", err))
	}
	switch p.Kind {
	case PayloadLocal:
	case PayloadEthereum:
		if p.Endpoint == "" || p.Contract == "" {
			errors = append(errors, "kernel.payload: ethereum payload needs endpoint and contract")
		}
		if len(p.Commitments) == 0 && !cfg.Kernel.AllowNondeterministic {
			errors = append(errors, "kernel.payload: ethereum payload must be pinned with commitments unless allow_nondeterministic is set")
		}
	default:
		errors = append(errors, fmt.Sprintf("kernel.payload.kind %q is not supported", p.Kind))
	}
	if p.Retry.MaxDelay < p.Retry.InitialDelay {
		errors = append(errors, "kernel.payload.retry: max_delay is shorter than initial_delay")
	}

	if len(errors) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// formatSchemaValidationError formats a JSON Schema validation error into a readable message.
func formatSchemaValidationError(err *jsonschema.ValidationError) error {
	var messages []string

	var collectErrors func(*jsonschema.ValidationError)
	collectErrors = func(e *jsonschema.ValidationError) {
		if e.Message != "" {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collectErrors(cause)
		}
	}
	collectErrors(err)

	if len(messages) == 0 {
		return fmt.Errorf("config validation failed")
	}
	return fmt.Errorf("config validation failed:\n    - %s", strings.Join(messages, "\n    - "))
}
