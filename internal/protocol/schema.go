package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema file names under schemas/.
const (
	SchemaSubscribe  = "subscribe.schema.json"
	SchemaBootstrap  = "bootstrap.schema.json"
	SchemaAddPart    = "add_part.schema.json"
	SchemaRemovePart = "remove_part.schema.json"
	SchemaUpdatePart = "update_part.schema.json"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

func CompileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c.Compile(name)
}

// ValidateJSON checks raw JSON against s.
func ValidateJSON(s *jsonschema.Schema, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
