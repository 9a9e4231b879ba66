package pipeline

// pipelineSchema is the structural contract for pipeline definition files.
// Field-level constraints beyond structure live on the models as validator
// tags.
const pipelineSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "name", "steps"],
	"properties": {
		"id": {
			"type": "string",
			"minLength": 3,
			"pattern": "^[a-z0-9][a-z0-9-]*$"
		},
		"name": {
			"type": "string",
			"minLength": 3
		},
		"description": {
			"type": "string"
		},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "run"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"run": {"type": "string", "minLength": 1},
					"env": {
						"type": "object",
						"additionalProperties": {"type": "string"}
					}
				},
				"additionalProperties": false
			}
		},
		"triggers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"enum": ["webhook", "schedule", "queue"]},
					"configuration": {"type": "object"}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`
