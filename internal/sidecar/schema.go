package sidecar

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const manifestSchemaURL = "urn:onedrive-gateway:sidecar-manifest"

// manifestSchema restricts a manifest to the known templates, each mapping to
// an object of default data. Users.emails must be a list of strings.
const manifestSchema = `{
  "type": "object",
  "propertyNames": {"enum": ["Users", "Customer", "Category"]},
  "additionalProperties": {"type": "object"},
  "properties": {
    "Users": {
      "type": "object",
      "properties": {
        "emails": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var compileManifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(manifestSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(manifestSchemaURL)
})

func validateManifest(raw string) error {
	schema, err := compileManifestSchema()
	if err != nil {
		return fmt.Errorf("compiling manifest schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parsing sidecar manifest: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid sidecar manifest: %w", err)
	}
	return nil
}
