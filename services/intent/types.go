// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent turns natural-language census questions into structured
// query intents using a local Ollama model plus deterministic normalization.
package intent

import "github.com/AleutianAI/BayouCensus/services/geo"

// Task kinds. Filter and range select tracts by threshold; top and bottom
// rank them.
const (
	TaskTop    = "top"
	TaskBottom = "bottom"
	TaskFilter = "filter"
	TaskRange  = "range"
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// defaultLimit applies to top/bottom tasks when the question names no count.
const defaultLimit = 10

// Geography scopes a query to Louisiana, optionally narrowed to one parish.
type Geography struct {
	// State is always the Louisiana FIPS code.
	State string `json:"state"`

	// CountyFIPS is the 3-digit parish code, or "" for statewide.
	CountyFIPS string `json:"county_fips,omitempty"`
}

// Intent is a parsed census question.
type Intent struct {
	// Task is one of the Task* constants.
	Task string `json:"task"`

	// Measure is the free-text measure phrase, pre-resolution.
	Measure string `json:"measure"`

	// Op is the comparison operator for filter tasks: >=, <=, >, <, =.
	Op string `json:"op,omitempty"`

	// Value is the filter threshold.
	Value *float64 `json:"value,omitempty"`

	// RangeMin and RangeMax bound range tasks.
	RangeMin *float64 `json:"range_min,omitempty"`
	RangeMax *float64 `json:"range_max,omitempty"`

	// Limit is the result count for top/bottom tasks.
	Limit int `json:"limit,omitempty"`

	// Sort is asc or desc.
	Sort string `json:"sort"`

	// Geography scopes the query.
	Geography Geography `json:"geography"`
}

// applyDefaults fills the deterministic parts of an intent the model is
// allowed to omit: sort order from task, limit for ranking tasks, and
// statewide Louisiana geography.
func (i *Intent) applyDefaults() {
	if i.Task == "" {
		i.Task = TaskFilter
	}
	if i.Sort == "" {
		switch i.Task {
		case TaskBottom:
			i.Sort = SortAsc
		default:
			i.Sort = SortDesc
		}
	}
	if (i.Task == TaskTop || i.Task == TaskBottom) && i.Limit <= 0 {
		i.Limit = defaultLimit
	}
	if i.Measure == "" {
		i.Measure = "population"
	}
	if i.Geography.State == "" {
		i.Geography.State = geo.StateFIPS
	}
}
