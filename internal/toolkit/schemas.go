package toolkit

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// jsonSchema is the subset of JSON Schema that function-calling
// parameter blocks use
type jsonSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]propertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type propertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// OpenAITools converts the named tools into function-calling
// definitions. Unknown names are skipped so analysis-type tool sets
// stay valid even when a provider (and its tools) is unconfigured.
func (r *Registry) OpenAITools(names []string) []openai.Tool {
	tools := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		meta, ok := r.metadata[name]
		if !ok {
			continue
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        meta.Name,
				Description: meta.Description,
				Parameters:  buildParameters(meta.Params),
			},
		})
	}
	return tools
}

// AllOpenAITools returns definitions for every registered tool in
// registration order
func (r *Registry) AllOpenAITools() []openai.Tool {
	return r.OpenAITools(r.order)
}

func buildParameters(params []ParamSpec) json.RawMessage {
	schema := jsonSchema{
		Type:       "object",
		Properties: make(map[string]propertySchema, len(params)),
	}
	for _, p := range params {
		schema.Properties[p.Name] = propertySchema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}
