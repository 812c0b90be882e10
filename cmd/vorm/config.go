package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/vormlabs/vorm/orm"
)

// Config declares the collections this deployment expects. Example:
//
//	collections:
//	  - name: memories
//	    metric: cosine
//	    fields:
//	      - {name: id, kind: string, primary_key: true}
//	      - {name: text, kind: string}
//	      - {name: embedding, kind: vector, dim: 768}
type Config struct {
	Collections []collectionDecl `yaml:"collections"`

	// Schemas holds the validated form of Collections, populated by
	// loadConfig.
	Schemas []orm.Schema `yaml:"-"`
}

type collectionDecl struct {
	Name   string      `yaml:"name"`
	Metric string      `yaml:"metric"`
	Fields []fieldDecl `yaml:"fields"`
}

type fieldDecl struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Dim        int    `yaml:"dim"`
	PrimaryKey bool   `yaml:"primary_key"`
	Nullable   bool   `yaml:"nullable"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Collections) == 0 {
		return nil, fmt.Errorf("%s declares no collections", path)
	}

	for _, decl := range cfg.Collections {
		schema, err := decl.schema()
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", decl.Name, err)
		}
		cfg.Schemas = append(cfg.Schemas, schema)
	}
	return &cfg, nil
}

// schema validates a declaration through the same deriver the library uses,
// so the CLI rejects exactly what the library would.
func (d collectionDecl) schema() (orm.Schema, error) {
	if d.Name == "" {
		return orm.Schema{}, fmt.Errorf("missing name")
	}
	fields := make([]orm.Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		kind, err := parseKind(f.Kind)
		if err != nil {
			return orm.Schema{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields = append(fields, orm.Field{
			Name:       f.Name,
			Kind:       kind,
			Dim:        f.Dim,
			PrimaryKey: f.PrimaryKey,
			Nullable:   f.Nullable,
		})
	}

	metric, err := parseMetric(d.Metric)
	if err != nil {
		return orm.Schema{}, err
	}
	return orm.Derive(declared{name: d.Name, fields: fields, metric: metric})
}

// declared adapts a YAML declaration to the Schematized interface.
type declared struct {
	name   string
	fields []orm.Field
	metric orm.Metric
}

func (d declared) CollectionName() string { return d.name }
func (d declared) Fields() []orm.Field    { return d.fields }
func (d declared) Index() orm.IndexSpec   { return orm.IndexSpec{Metric: d.metric} }

func parseKind(s string) (orm.Kind, error) {
	switch strings.ToLower(s) {
	case "int", "int64":
		return orm.KindInt64, nil
	case "float", "float64", "double":
		return orm.KindFloat64, nil
	case "string", "varchar":
		return orm.KindString, nil
	case "bool", "boolean":
		return orm.KindBool, nil
	case "timestamp", "datetime":
		return orm.KindTimestamp, nil
	case "vector", "float_vector":
		return orm.KindFloatVector, nil
	case "json":
		return orm.KindJSON, nil
	default:
		return orm.KindInvalid, fmt.Errorf("unknown kind %q", s)
	}
}

func parseMetric(s string) (orm.Metric, error) {
	switch strings.ToLower(s) {
	case "", "l2", "euclid":
		return orm.MetricL2, nil
	case "ip", "dot":
		return orm.MetricIP, nil
	case "cosine":
		return orm.MetricCosine, nil
	default:
		return orm.MetricUnspecified, fmt.Errorf("unknown metric %q", s)
	}
}
