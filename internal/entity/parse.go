package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

const maxStoragePathLen = 1024

// jobPayloadSchema describes the shape producers publish. Value checks that
// JSON Schema cannot express (positive numeric strings) are done by rules.
func jobPayloadSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"candidate_id": map[string]any{"type": []string{"number", "string"}},
			"storage_path": map[string]any{"type": "string"},
		},
		"required": []string{"candidate_id", "storage_path"},
	}
}

var compiledPayloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(jobPayloadSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("cv-parse-job.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("cv-parse-job.json")
})

// ParseJob validates an untyped queue payload and converts it into a CVParseJob.
// Every failure wraps common.ErrValidation.
func ParseJob(payload map[string]any) (CVParseJob, error) {
	if payload == nil {
		return CVParseJob{}, common.NewValidationError("job payload is empty", nil)
	}

	normalized, err := normalizePayload(payload)
	if err != nil {
		return CVParseJob{}, common.NewValidationError("job payload is not JSON", err)
	}
	schema, err := compiledPayloadSchema()
	if err != nil {
		return CVParseJob{}, common.WrapError(err, "compile job schema")
	}
	if err := schema.Validate(normalized); err != nil {
		return CVParseJob{}, common.NewValidationError("job payload does not match schema", err)
	}

	rawID := normalized["candidate_id"]
	rawPath := normalized["storage_path"]
	v := common.NewValidator().
		Field("candidate_id", rawID, common.Required, common.PositiveInteger).
		Field("storage_path", rawPath, common.Required, common.String, common.MaxLength(maxStoragePathLen))
	if err := v.Err(); err != nil {
		return CVParseJob{}, err
	}

	id, _ := common.CoerceInt64(rawID)
	return CVParseJob{
		CandidateID: id,
		StoragePath: rawPath.(string),
	}, nil
}

// DecodePayload decodes raw job data into the untyped map ParseJob expects,
// keeping numbers as json.Number.
func DecodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, common.NewValidationError("decode job payload", err)
	}
	return payload, nil
}

// normalizePayload round-trips through JSON so the schema sees only JSON types.
func normalizePayload(payload map[string]any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return DecodePayload(b)
}
