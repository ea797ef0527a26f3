package gemini

import (
	"fmt"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// classificationSchema reflects the classifier output struct into the schema
// format the Gemini API enforces on structured responses.
func classificationSchema() *genai.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return toGenaiSchema(reflector.Reflect(&intentClassification{}))
}

func toGenaiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, value := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", value))
	}

	converted := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       toGenaiSchema(schema.Items),
		Required:    schema.Required,
	}

	if schema.Properties != nil && schema.Properties.Len() > 0 {
		converted.Properties = make(map[string]*genai.Schema, schema.Properties.Len())
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			converted.Properties[pair.Key] = toGenaiSchema(pair.Value)
		}
	}

	switch schema.Type {
	case "object":
		converted.Type = genai.TypeObject
	case "array":
		converted.Type = genai.TypeArray
	case "string":
		converted.Type = genai.TypeString
	case "number":
		converted.Type = genai.TypeNumber
	case "integer":
		converted.Type = genai.TypeInteger
	case "boolean":
		converted.Type = genai.TypeBoolean
	}
	return &converted
}
