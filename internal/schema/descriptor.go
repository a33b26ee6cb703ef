// Package schema describes the JSON shapes the model is asked to produce and checks
// decoded payloads against them.
package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/dastan/internal/apperr"
)

// Kind is the primitive kind of a field.
type Kind int

const (
	KindString Kind = iota + 1
	KindStringArray
	KindObject
	KindObjectArray
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStringArray:
		return "array of strings"
	case KindObject:
		return "object"
	case KindObjectArray:
		return "array of objects"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Field is a single property of an object.
// Fields is used by KindObject and KindObjectArray, Enum by KindEnum.
type Field struct {
	Name        string
	Kind        Kind
	Fields      []Field
	Enum        []string
	Optional    bool
	Description string
}

// Descriptor is a named object schema. Undeclared properties are never allowed.
type Descriptor struct {
	Name   string
	Fields []Field
}

// MismatchError reports where and why a payload does not fit a descriptor.
type MismatchError struct {
	Path   string
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Path == "" {
		return "schema mismatch: " + e.Reason
	}
	return fmt.Sprintf("schema mismatch at %s: %s", e.Path, e.Reason)
}

func (e *MismatchError) Unwrap() error { return apperr.ErrSchemaMismatch }

// Mismatch builds a *MismatchError. Used by callers that add cross-field checks.
func Mismatch(path, format string, args ...any) error {
	return &MismatchError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// JSONSchema renders d as a JSON Schema object.
func (d Descriptor) JSONSchema() map[string]any {
	return objectSchema(d.Fields)
}

// MarshalJSON renders the descriptor as its JSON Schema.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.JSONSchema())
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f Field) map[string]any {
	var out map[string]any
	switch f.Kind {
	case KindString:
		out = map[string]any{"type": "string"}
	case KindStringArray:
		out = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case KindObject:
		out = objectSchema(f.Fields)
	case KindObjectArray:
		out = map[string]any{"type": "array", "items": objectSchema(f.Fields)}
	case KindEnum:
		out = map[string]any{"type": "string", "enum": slices.Clone(f.Enum)}
	default:
		out = map[string]any{}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	return out
}

// Validate checks a document produced by encoding/json (map[string]any, []any,
// string, ...) against d. Nothing is coerced.
func (d Descriptor) Validate(doc any) error {
	return validateObject("", doc, d.Fields)
}

func validateObject(path string, v any, fields []Field) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return &MismatchError{Path: displayPath(path), Reason: "expected object, got " + typeName(v)}
	}
	for _, f := range fields {
		val, present := obj[f.Name]
		p := join(path, f.Name)
		if !present {
			if f.Optional {
				continue
			}
			return &MismatchError{Path: p, Reason: "required field is missing"}
		}
		if err := validateField(p, val, f); err != nil {
			return err
		}
	}
	for name := range obj {
		if !declared(fields, name) {
			return &MismatchError{Path: join(path, name), Reason: "field is not allowed"}
		}
	}
	return nil
}

func validateField(path string, v any, f Field) error {
	switch f.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return &MismatchError{Path: path, Reason: "expected string, got " + typeName(v)}
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return &MismatchError{Path: path, Reason: "expected string, got " + typeName(v)}
		}
		if !slices.Contains(f.Enum, s) {
			return &MismatchError{Path: path, Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(f.Enum, ", "))}
		}
	case KindStringArray:
		arr, ok := v.([]any)
		if !ok {
			return &MismatchError{Path: path, Reason: "expected array, got " + typeName(v)}
		}
		for i, el := range arr {
			if _, ok := el.(string); !ok {
				return &MismatchError{Path: index(path, i), Reason: "expected string, got " + typeName(el)}
			}
		}
	case KindObject:
		return validateObject(path, v, f.Fields)
	case KindObjectArray:
		arr, ok := v.([]any)
		if !ok {
			return &MismatchError{Path: path, Reason: "expected array, got " + typeName(v)}
		}
		for i, el := range arr {
			if err := validateObject(index(path, i), el, f.Fields); err != nil {
				return err
			}
		}
	default:
		return &MismatchError{Path: path, Reason: "field has no kind"}
	}
	return nil
}

func declared(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
