/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"sort"
	"strings"
)

// IndexDef describes a secondary index created after the tables exist.
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableDef binds a Bun model to the constraints that Bun tags cannot express.
// Priority orders table creation: referenced tables need lower values.
type TableDef struct {
	Name        string
	Model       interface{}
	Priority    int
	ForeignKeys []ForeignKeyConstraint
	Indexes     []IndexDef
}

// Schema is the ordered set of tables owned by the store.
type Schema struct {
	tables []TableDef
}

// NewSchema copies the definitions, fills the table name into every foreign
// key and sorts tables by ascending priority.
func NewSchema(tables ...TableDef) *Schema {
	defs := make([]TableDef, len(tables))
	copy(defs, tables)
	for i := range defs {
		fks := make([]ForeignKeyConstraint, len(defs[i].ForeignKeys))
		copy(fks, defs[i].ForeignKeys)
		for j := range fks {
			fks[j].Table = defs[i].Name
		}
		defs[i].ForeignKeys = fks
	}
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Priority < defs[j].Priority
	})
	return &Schema{tables: defs}
}

// Tables returns the definitions in creation order.
func (s *Schema) Tables() []TableDef {
	out := make([]TableDef, len(s.tables))
	copy(out, s.tables)
	return out
}

// Models returns the model instances in creation order.
func (s *Schema) Models() []interface{} {
	models := make([]interface{}, len(s.tables))
	for i, t := range s.tables {
		models[i] = t.Model
	}
	return models
}

// Table looks a definition up by table name.
func (s *Schema) Table(name string) (TableDef, bool) {
	for _, t := range s.tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableDef{}, false
}

// ForeignKeys returns every constraint across all tables.
func (s *Schema) ForeignKeys() []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, t := range s.tables {
		out = append(out, t.ForeignKeys...)
	}
	return out
}

// OverrideForeignKeys replaces the delete/update actions of constraints with
// the same generated name. Unknown names are returned untouched.
func (s *Schema) OverrideForeignKeys(overrides []ForeignKeyConstraint) []ForeignKeyConstraint {
	byName := make(map[string]ForeignKeyConstraint, len(overrides))
	for _, o := range overrides {
		byName[o.GenerateConstraintName()] = o
	}
	for i := range s.tables {
		for j := range s.tables[i].ForeignKeys {
			fk := &s.tables[i].ForeignKeys[j]
			if o, ok := byName[fk.GenerateConstraintName()]; ok {
				fk.OnDelete = o.OnDelete
				fk.OnUpdate = o.OnUpdate
				delete(byName, fk.GenerateConstraintName())
			}
		}
	}
	var unknown []ForeignKeyConstraint
	for _, o := range byName {
		unknown = append(unknown, o)
	}
	return unknown
}
