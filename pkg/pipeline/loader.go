// Package pipeline loads and validates pipeline definitions.
package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pushgate/pushgate/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads a pipeline definition from a YAML file, validates its structure
// against the pipeline schema and its fields against the model constraints.
func Load(path string) (*models.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse validates and decodes a YAML pipeline definition.
func Parse(data []byte) (*models.Pipeline, error) {
	var document map[string]any

	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	err = validateSchema(document)
	if err != nil {
		return nil, err
	}

	var pipeline models.Pipeline

	err = yaml.Unmarshal(data, &pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}

	err = validate.Struct(&pipeline)
	if err != nil {
		return nil, fmt.Errorf("pipeline validation failed: %w", err)
	}

	return &pipeline, nil
}

// validateSchema validates the raw document against the pipeline JSON schema.
func validateSchema(document map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(pipelineSchema)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate pipeline schema: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid pipeline definition: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
