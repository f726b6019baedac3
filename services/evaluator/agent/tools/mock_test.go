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

import "context"

// mockTool is a configurable Tool for tests.
type mockTool struct {
	definition  Definition
	ExecuteFunc func(ctx context.Context, args map[string]any) (*Result, error)
	callCount   int
}

func newMockTool(name string, category Category) *mockTool {
	return &mockTool{
		definition: Definition{
			Name:        name,
			Description: "mock tool for testing",
			Category:    category,
			Params:      map[string]ParamDef{},
		},
	}
}

func (m *mockTool) Name() string {
	return m.definition.Name
}

func (m *mockTool) Definition() Definition {
	return m.definition
}

func (m *mockTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	m.callCount++
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return &Result{Output: "mock output", Summary: "mock summary"}, nil
}
