package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
)

// maxMessageLen caps library messages copied into a ValidationError.
const maxMessageLen = 200

// SchemaValidator validates decoded JSON or YAML documents against JSON
// schemas (Draft 7). Compiled schemas are kept in an LRU cache keyed by a
// hash of the schema text.
type SchemaValidator struct {
	schemaCache *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a new validator with LRU caching for compiled schemas
func NewSchemaValidator(cacheSize int) (*SchemaValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &SchemaValidator{schemaCache: cache}, nil
}

// Validate checks doc against schemaJSON. doc must be made of the types
// encoding/json or yaml.v3 produce for untyped targets (maps, slices,
// strings, numbers, bools, nil).
//
// A document that violates the schema yields an *iamerr.ValidationError whose
// Field is the JSON path of the first failing instance location. A schema
// that does not compile is returned as a plain error.
func (v *SchemaValidator) Validate(schemaJSON string, doc any) error {
	schema, err := v.schema(schemaJSON)
	if err != nil {
		return err
	}

	if err := schema.Validate(doc); err != nil {
		return toValidationError(err)
	}
	return nil
}

func (v *SchemaValidator) schema(schemaJSON string) (*jsonschema.Schema, error) {
	sum := sha256.Sum256([]byte(schemaJSON))
	key := hex.EncodeToString(sum[:])
	if cached, ok := v.schemaCache.Get(key); ok {
		return cached, nil
	}

	schema, err := compileSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	v.schemaCache.Add(key, schema)
	return schema, nil
}

// compileSchema compiles a JSON schema string into a schema object
func compileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	const schemaURL = "schema.json"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// toValidationError turns a jsonschema error into a ValidationError rooted at
// the deepest failing location, e.g. "$.rules.2.role".
func toValidationError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &iamerr.ValidationError{Message: err.Error()}
	}

	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	path := "$"
	for _, part := range leaf.InstanceLocation {
		if part != "" {
			path += "." + part
		}
	}

	msg := leaf.Error()
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "... (truncated)"
	}
	return &iamerr.ValidationError{Field: path, Message: msg}
}

// GetCacheSize returns cache size for monitoring
func (v *SchemaValidator) GetCacheSize() int {
	return v.schemaCache.Len()
}
