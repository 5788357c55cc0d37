package creds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// serviceAccountSchema mirrors the structural validation rule as a JSON
// Schema, adding string typing for the required fields. Extra properties
// stay permitted.
const serviceAccountSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": [
    "type",
    "project_id",
    "private_key_id",
    "private_key",
    "client_email",
    "client_id",
    "auth_uri",
    "token_uri"
  ],
  "properties": {
    "type": {"const": "service_account"},
    "project_id": {"type": "string"},
    "private_key_id": {"type": "string"},
    "private_key": {"type": "string"},
    "client_email": {"type": "string"},
    "client_id": {"type": "string"},
    "auth_uri": {"type": "string"},
    "token_uri": {"type": "string"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(serviceAccountSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("service_account.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("service_account.schema.json")
	})
	return schema, schemaErr
}

// CheckFile validates an arbitrary credential file without touching any
// Manager state: first the structural rule every load and save applies,
// then the JSON Schema, which additionally requires the credential fields
// to be strings.
func CheckFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	if err := Validate(rec); err != nil {
		return err
	}

	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile service account schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%s failed schema validation: %w", path, err)
	}
	return nil
}
