package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
)

// compiled category schemas, built once per process
var categorySchemas sync.Map // constants.FieldCategory -> *jsonschema.Schema

// schemaViolation is one failed keyword at a JSON pointer into the extraction output.
type schemaViolation struct {
	Path    string
	Message string
}

// CompiledCategorySchema returns the compiled output schema for category.
func CompiledCategorySchema(category constants.FieldCategory) (*jsonschema.Schema, error) {
	if s, ok := categorySchemas.Load(category); ok {
		return s.(*jsonschema.Schema), nil
	}
	b, err := json.Marshal(BuildCategoryJSONSchema(category))
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", category, err)
	}
	url := "mem://category/" + strings.ToLower(string(category)) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("load %s schema: %w", category, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", category, err)
	}
	actual, _ := categorySchemas.LoadOrStore(category, s)
	return actual.(*jsonschema.Schema), nil
}

// ValidateCategoryJSON checks a model response against the category schema.
// Mismatches wrap common.ErrValidation and list every leaf violation sorted by path.
func ValidateCategoryJSON(category constants.FieldCategory, data []byte) error {
	schema, err := CompiledCategorySchema(category)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return common.NewAppError("SCHEMA_MISMATCH", fmt.Sprintf("%s output is not JSON", category), common.ErrValidation)
	}
	vErr := schema.Validate(doc)
	if vErr == nil {
		return nil
	}
	ve, ok := vErr.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validate %s output: %w", category, vErr)
	}
	violations := sortedViolations(ve)
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Path+": "+v.Message)
	}
	return common.NewAppError("SCHEMA_MISMATCH",
		fmt.Sprintf("%s output violates schema: %s", category, strings.Join(msgs, "; ")),
		common.ErrValidation)
}

func sortedViolations(ve *jsonschema.ValidationError) []schemaViolation {
	out := leafViolations(ve, nil)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func leafViolations(ve *jsonschema.ValidationError, out []schemaViolation) []schemaViolation {
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		return append(out, schemaViolation{Path: path, Message: ve.Message})
	}
	for _, c := range ve.Causes {
		out = leafViolations(c, out)
	}
	return out
}
