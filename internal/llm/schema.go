package llm

import (
	"github.com/joseph-ayodele/loan-docintel/constants"
)

// BuildCategoryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to OpenAI as a structured output constraint and also use it locally to validate.
// Every field is optional: an empty object means the category is absent from the document.
func BuildCategoryJSONSchema(category constants.FieldCategory) map[string]any {
	props := map[string]any{
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	switch category {
	case constants.FieldCategoryPersonal:
		props["name"] = textProp()
		props["address"] = textProp()
		props["identification_number"] = map[string]any{"type": "string", "pattern": `\d`}
		props["date_of_birth"] = map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
	case constants.FieldCategoryBusiness:
		props["business_name"] = textProp()
		props["ein"] = map[string]any{"type": "string", "pattern": `^\d{2}-?\d{7}$`}
		props["business_address"] = textProp()
	case constants.FieldCategoryFinancial:
		props["account_numbers"] = map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "pattern": `\d`},
		}
		props["amounts"] = map[string]any{
			"type":  "array",
			"items": decimalProp(),
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func textProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // allow negatives for debits
	}
}

// allowedKeys lists the properties the schema accepts for a category.
func allowedKeys(category constants.FieldCategory) map[string]struct{} {
	schema := BuildCategoryJSONSchema(category)
	props := schema["properties"].(map[string]any)
	out := make(map[string]struct{}, len(props))
	for k := range props {
		out[k] = struct{}{}
	}
	return out
}
