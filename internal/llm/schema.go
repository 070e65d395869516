package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ReceiptJSONSchema is the shape a sanitized model answer must have.
// Only "total" is mandatory.
func ReceiptJSONSchema() map[string]any {
	number := map[string]any{"type": "number"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchant":   map[string]any{"type": "string"},
			"date":       map[string]any{"type": "string"},
			"total":      number,
			"currency":   map[string]any{"type": "string"},
			"category":   map[string]any{"type": "string"},
			"confidence": number,
			"subtotal":   number,
			"tax":        number,
			"lineItems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"quantity":    number,
						"unitPrice":   number,
						"lineTotal":   number,
					},
				},
			},
		},
		"required": []string{"total"},
	}
}

var (
	receiptSchemaOnce sync.Once
	receiptSchema     *jsonschema.Schema
	receiptSchemaErr  error
)

func compiledReceiptSchema() (*jsonschema.Schema, error) {
	receiptSchemaOnce.Do(func() {
		receiptSchema, receiptSchemaErr = compileSchema(ReceiptJSONSchema())
	})
	return receiptSchema, receiptSchemaErr
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// violation is one leaf schema failure, addressed by instance path segments.
type violation struct {
	path     []string
	required bool
}

func violations(err error) []violation {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil
	}
	var out []violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		out = append(out, violation{
			path:     splitPointer(e.InstanceLocation),
			required: strings.HasSuffix(e.KeywordLocation, "/required"),
		})
	}
	walk(ve)
	return out
}

func splitPointer(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	for i, s := range parts {
		s = strings.ReplaceAll(s, "~1", "/")
		parts[i] = strings.ReplaceAll(s, "~0", "~")
	}
	return parts
}

// dropOptionalViolations removes offending optional fields (or single line
// items) from doc. It reports whether the mandatory total was implicated.
func dropOptionalViolations(doc map[string]any, vs []violation) (dropped []string, totalBad bool) {
	badItems := map[int]bool{}
	for _, v := range vs {
		if len(v.path) == 0 {
			if v.required {
				totalBad = true
			}
			continue
		}
		key := v.path[0]
		switch {
		case key == "total":
			totalBad = true
		case key == "lineItems" && len(v.path) > 1:
			if i, err := strconv.Atoi(v.path[1]); err == nil {
				badItems[i] = true
			}
		default:
			if _, ok := doc[key]; ok {
				delete(doc, key)
				dropped = append(dropped, key)
			}
		}
	}

	if items, ok := doc["lineItems"].([]any); ok && len(badItems) > 0 {
		kept := make([]any, 0, len(items))
		for i, it := range items {
			if badItems[i] {
				dropped = append(dropped, fmt.Sprintf("lineItems[%d]", i))
				continue
			}
			kept = append(kept, it)
		}
		doc["lineItems"] = kept
	}
	return dropped, totalBad
}
