package ingestion

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry compiles and holds per-event-type JSON Schemas for
// optional validation of an event's data payload on ingest, grounded on
// the teacher's pkg/firewall/firewall.go per-name compiled-schema cache.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry constructs an empty registry. With no schemas
// registered, ValidateData always passes — schema validation is opt-in.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON and associates it with eventType.
func (r *SchemaRegistry) Register(eventType, schemaJSON string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://aigos.dev/schemas/events/%s.schema.json", eventType)
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("ingestion: load schema for %q: %w", eventType, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("ingestion: compile schema for %q: %w", eventType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[eventType] = compiled
	return nil
}

// ValidateData validates data against the schema registered for
// eventType. A type with no registered schema always passes.
func (r *SchemaRegistry) ValidateData(eventType string, data map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("EVT_SCHEMA_INVALID: %w", err)
	}
	return nil
}
