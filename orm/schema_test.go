package orm

import (
	"errors"
	"testing"
)

// schematized builds ad-hoc Schematized values for derivation tests.
type schematized struct {
	name   string
	fields []Field
}

func (s schematized) CollectionName() string { return s.name }
func (s schematized) Fields() []Field        { return s.fields }

func TestDerive(t *testing.T) {
	schema, err := Derive(&memo{})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if schema.Collection != "memos" {
		t.Errorf("collection = %q, want memos", schema.Collection)
	}
	if got := len(schema.Fields); got != 8 {
		t.Errorf("fields = %d, want 8", got)
	}
	if pk := schema.PrimaryKey(); pk.Name != "id" || pk.Kind != KindString {
		t.Errorf("primary key = %+v", pk)
	}
	vf, ok := schema.VectorField()
	if !ok || vf.Name != "embedding" || vf.Dim != 4 {
		t.Errorf("vector field = %+v, ok=%v", vf, ok)
	}
	if schema.Index.Metric != MetricCosine {
		t.Errorf("metric = %v, want cosine", schema.Index.Metric)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	a, err := Derive(&memo{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Derive(&memo{ID: "set", Hits: 42})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("two derivations of the same type are not equal")
	}
}

func TestDeriveDefaultIndex(t *testing.T) {
	schema, err := Derive(schematized{name: "plain", fields: []Field{
		{Name: "id", Kind: KindInt64, PrimaryKey: true},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if schema.Index.Metric != MetricL2 {
		t.Errorf("metric = %v, want default L2", schema.Index.Metric)
	}
}

func TestDeriveErrors(t *testing.T) {
	cases := []struct {
		name   string
		fields []Field
	}{
		{"no fields", nil},
		{"no primary key", []Field{
			{Name: "a", Kind: KindString},
		}},
		{"two primary keys", []Field{
			{Name: "a", Kind: KindString, PrimaryKey: true},
			{Name: "b", Kind: KindInt64, PrimaryKey: true},
		}},
		{"nullable primary key", []Field{
			{Name: "a", Kind: KindString, PrimaryKey: true, Nullable: true},
		}},
		{"zero-dim vector", []Field{
			{Name: "a", Kind: KindString, PrimaryKey: true},
			{Name: "v", Kind: KindFloatVector},
		}},
		{"invalid kind", []Field{
			{Name: "a", Kind: KindInvalid, PrimaryKey: true},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Derive(schematized{name: "bad", fields: tc.fields})
			if !errors.Is(err, ErrSchema) {
				t.Errorf("err = %v, want ErrSchema", err)
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Errorf("err %v is not a *SchemaError", err)
			}
		})
	}
}

func TestSchemaEqual(t *testing.T) {
	base, err := Derive(&memo{})
	if err != nil {
		t.Fatal(err)
	}

	renamed := base
	renamed.Collection = "other"
	if base.Equal(renamed) {
		t.Error("schemas with different collections compare equal")
	}

	wider := base
	wider.Fields = append(append([]Field(nil), base.Fields...), Field{Name: "extra", Kind: KindString, Nullable: true})
	if base.Equal(wider) {
		t.Error("schemas with different field counts compare equal")
	}

	redim := base
	redim.Fields = append([]Field(nil), base.Fields...)
	for i, f := range redim.Fields {
		if f.Kind == KindFloatVector {
			redim.Fields[i].Dim = 8
		}
	}
	if base.Equal(redim) {
		t.Error("schemas with different vector dims compare equal")
	}

	tuned := base
	tuned.Index.Params = map[string]any{"hnsw_ef": 256}
	if !base.Equal(tuned) {
		t.Error("index params should not participate in equality")
	}
}
