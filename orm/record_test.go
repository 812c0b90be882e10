package orm

import "time"

// memo is the hand-written record type the package tests exercise: one of
// every kind, a string primary key, and a nullable metadata field.
type memo struct {
	ID        string
	Text      string
	Score     float64
	Hits      int64
	Pinned    bool
	Created   time.Time
	Meta      map[string]any
	Embedding []float32
}

func (m *memo) CollectionName() string { return "memos" }

func (m *memo) Fields() []Field {
	return []Field{
		{Name: "id", Kind: KindString, PrimaryKey: true},
		{Name: "text", Kind: KindString},
		{Name: "score", Kind: KindFloat64},
		{Name: "hits", Kind: KindInt64},
		{Name: "pinned", Kind: KindBool},
		{Name: "created", Kind: KindTimestamp},
		{Name: "meta", Kind: KindJSON, Nullable: true},
		{Name: "embedding", Kind: KindFloatVector, Dim: 4},
	}
}

func (m *memo) Index() IndexSpec { return IndexSpec{Metric: MetricCosine} }

func (m *memo) Values() Row {
	row := Row{
		"id":        m.ID,
		"text":      m.Text,
		"score":     m.Score,
		"hits":      m.Hits,
		"pinned":    m.Pinned,
		"created":   m.Created,
		"embedding": m.Embedding,
	}
	if m.ID == "" {
		row["id"] = nil
	}
	if m.Embedding == nil {
		row["embedding"] = nil
	}
	if m.Meta != nil {
		row["meta"] = m.Meta
	}
	return row
}

func (m *memo) SetValues(row Row) error {
	if v, ok := row["id"].(string); ok {
		m.ID = v
	}
	if v, ok := row["text"].(string); ok {
		m.Text = v
	}
	if v, ok := row["score"].(float64); ok {
		m.Score = v
	}
	if v, ok := row["hits"].(int64); ok {
		m.Hits = v
	}
	if v, ok := row["pinned"].(bool); ok {
		m.Pinned = v
	}
	if v, ok := row["created"].(time.Time); ok {
		m.Created = v
	}
	if v, ok := row["meta"].(map[string]any); ok {
		m.Meta = v
	}
	if v, ok := row["embedding"].([]float32); ok {
		m.Embedding = v
	}
	return nil
}

func validMemo() *memo {
	return &memo{
		ID:        "m-1",
		Text:      "remember the milk",
		Score:     0.75,
		Hits:      3,
		Pinned:    true,
		Created:   time.Date(2026, 8, 29, 10, 30, 0, 123456789, time.UTC),
		Meta:      map[string]any{"source": "test"},
		Embedding: []float32{0.1, 0.2, 0.3, 0.4},
	}
}
