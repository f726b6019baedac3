// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound indicates no tool with the requested name is registered.
var ErrNotFound = errors.New("tool not found")

// Registry is the static catalog of invocable tools.
//
// Lookup is by name; Definitions returns the catalog in registration
// order, because the reasoning service's menu must be deterministic and
// the external service can be sensitive to ordering.
//
// Thread Safety: Registry is safe for concurrent use. In practice it
// is populated once at startup and shared read-only by all sessions.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
	order  []string
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers the tool under its Name(). Re-registering an existing
//	name replaces the tool but keeps its original menu position.
//	Nil tools are ignored.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = tool
}

// Get returns a tool by name.
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found.
//	bool - True if the tool was found.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// Lookup returns a tool's definition by name.
//
// Outputs:
//
//	Definition - The tool definition.
//	error - ErrNotFound if no such tool is registered.
func (r *Registry) Lookup(name string) (Definition, error) {
	tool, ok := r.Get(name)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return tool.Definition(), nil
}

// Definitions returns all tool definitions in registration order.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// ValidateArgs checks raw arguments against a definition's schema.
//
// Description:
//
//	Verifies required arguments are present and all provided values
//	match their declared type and numeric bounds. Unknown arguments
//	are ignored; the reasoning service occasionally invents extras and
//	dropping them is cheaper than a failed round-trip. Defaults are
//	NOT applied here; bodies apply their own defaults.
//
// Outputs:
//
//	error - A *ValidationError for the first violation, or nil.
func ValidateArgs(def Definition, args map[string]any) error {
	for name, param := range def.Params {
		if param.Required {
			if _, ok := args[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range args {
		param, ok := def.Params[name]
		if !ok {
			continue
		}
		if err := validateValue(name, value, param); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{Parameter: name, Message: "required parameter is nil"}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeInt:
		// JSON unmarshals numbers as float64; accept integral floats too.
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected integer",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}
		if def.Maximum != nil && num > *def.Maximum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at most %v", *def.Maximum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeStringArray:
		switch v := value.(type) {
		case []string:
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return &ValidationError{
						Parameter: name,
						Message:   "expected array of strings",
						Actual:    fmt.Sprintf("%T", item),
					}
				}
			}
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected array of strings",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	return nil
}

// genericPreview renders "name(k=v, ...)" with deterministic key order.
func genericPreview(name string, args map[string]any) string {
	if len(args) == 0 {
		return name + "()"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
