package qdrant

import (
	"fmt"
	"strconv"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/vormlabs/vorm/orm"
)

// CompileExpr translates a filter expression into a Qdrant filter.
//
// The grammar is a conjunction of comparisons:
//
//	age > 30 && status == "active" && tier in ["gold", "silver"]
//
// Operators: ==, !=, >, >=, <, <=, in. Clauses are joined with &&. Field
// names are validated against the schema; an unknown field or a literal that
// does not fit the field's kind fails with orm.ErrInvalidQuery. An empty
// expression compiles to a match-everything filter.
func CompileExpr(schema orm.Schema, expr string) (*pb.Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &pb.Filter{}, nil
	}

	filter := &pb.Filter{}
	for _, clause := range splitClauses(expr) {
		cond, negated, err := compileClause(schema, clause)
		if err != nil {
			return nil, err
		}
		if negated {
			filter.MustNot = append(filter.MustNot, cond)
		} else {
			filter.Must = append(filter.Must, cond)
		}
	}
	return filter, nil
}

// splitClauses splits on && outside quotes and brackets.
func splitClauses(expr string) []string {
	var (
		out     []string
		start   int
		depth   int
		quote   byte
		escaped bool
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == '&' && depth == 0 && i+1 < len(expr) && expr[i+1] == '&':
			out = append(out, strings.TrimSpace(expr[start:i]))
			i++
			start = i + 1
		}
	}
	out = append(out, strings.TrimSpace(expr[start:]))
	return out
}

func compileClause(schema orm.Schema, clause string) (*pb.Condition, bool, error) {
	name, op, rhs, err := splitComparison(clause)
	if err != nil {
		return nil, false, err
	}

	field, ok := schema.Field(name)
	if !ok {
		return nil, false, fmt.Errorf("filter: %w: unknown field %q", orm.ErrInvalidQuery, name)
	}
	if field.Kind == orm.KindFloatVector || field.Kind == orm.KindJSON {
		return nil, false, fmt.Errorf("filter: %w: field %q of kind %s is not filterable", orm.ErrInvalidQuery, name, field.Kind)
	}

	switch op {
	case "in":
		cond, err := inCondition(field, rhs)
		return cond, false, err
	case "==", "!=":
		cond, err := matchCondition(field, rhs)
		return cond, op == "!=", err
	case ">", ">=", "<", "<=":
		cond, err := rangeCondition(field, op, rhs)
		return cond, false, err
	}
	return nil, false, fmt.Errorf("filter: %w: unsupported operator %q", orm.ErrInvalidQuery, op)
}

// splitComparison tears "name op rhs" apart. "in" is detected as a word so
// field names containing "in" are unaffected.
func splitComparison(clause string) (name, op, rhs string, err error) {
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if idx := indexOutsideQuotes(clause, candidate); idx > 0 {
			return strings.TrimSpace(clause[:idx]), candidate, strings.TrimSpace(clause[idx+len(candidate):]), nil
		}
	}
	if idx := indexOutsideQuotes(clause, " in "); idx > 0 {
		return strings.TrimSpace(clause[:idx]), "in", strings.TrimSpace(clause[idx+4:]), nil
	}
	return "", "", "", fmt.Errorf("filter: %w: cannot parse clause %q", orm.ErrInvalidQuery, clause)
}

func indexOutsideQuotes(s, sub string) int {
	var quote byte
	for i := 0; i+len(sub) <= len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func matchCondition(field orm.Field, rhs string) (*pb.Condition, error) {
	switch field.Kind {
	case orm.KindString, orm.KindTimestamp:
		s, err := unquote(rhs)
		if err != nil {
			return nil, fmt.Errorf("filter: %w: field %q needs a quoted string, got %q", orm.ErrInvalidQuery, field.Name, rhs)
		}
		return fieldCondition(field.Name, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: s}}), nil
	case orm.KindInt64:
		n, err := strconv.ParseInt(rhs, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: %w: field %q needs an integer, got %q", orm.ErrInvalidQuery, field.Name, rhs)
		}
		return fieldCondition(field.Name, &pb.Match{MatchValue: &pb.Match_Integer{Integer: n}}), nil
	case orm.KindBool:
		b, err := strconv.ParseBool(rhs)
		if err != nil {
			return nil, fmt.Errorf("filter: %w: field %q needs a boolean, got %q", orm.ErrInvalidQuery, field.Name, rhs)
		}
		return fieldCondition(field.Name, &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: b}}), nil
	case orm.KindFloat64:
		f, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: %w: field %q needs a number, got %q", orm.ErrInvalidQuery, field.Name, rhs)
		}
		// Float equality as a closed single-point range.
		return &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   field.Name,
					Range: &pb.Range{Gte: &f, Lte: &f},
				},
			},
		}, nil
	}
	return nil, fmt.Errorf("filter: %w: field %q of kind %s does not support equality", orm.ErrInvalidQuery, field.Name, field.Kind)
}

func rangeCondition(field orm.Field, op, rhs string) (*pb.Condition, error) {
	if field.Kind != orm.KindInt64 && field.Kind != orm.KindFloat64 {
		return nil, fmt.Errorf("filter: %w: range operator %s needs a numeric field, %q is %s", orm.ErrInvalidQuery, op, field.Name, field.Kind)
	}
	f, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return nil, fmt.Errorf("filter: %w: field %q needs a number, got %q", orm.ErrInvalidQuery, field.Name, rhs)
	}
	r := &pb.Range{}
	switch op {
	case ">":
		r.Gt = &f
	case ">=":
		r.Gte = &f
	case "<":
		r.Lt = &f
	case "<=":
		r.Lte = &f
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: field.Name, Range: r},
		},
	}, nil
}

func inCondition(field orm.Field, rhs string) (*pb.Condition, error) {
	if !strings.HasPrefix(rhs, "[") || !strings.HasSuffix(rhs, "]") {
		return nil, fmt.Errorf("filter: %w: in needs a bracketed list, got %q", orm.ErrInvalidQuery, rhs)
	}
	items := splitList(rhs[1 : len(rhs)-1])
	switch field.Kind {
	case orm.KindString:
		keywords := make([]string, 0, len(items))
		for _, it := range items {
			s, err := unquote(it)
			if err != nil {
				return nil, fmt.Errorf("filter: %w: field %q needs quoted strings, got %q", orm.ErrInvalidQuery, field.Name, it)
			}
			keywords = append(keywords, s)
		}
		return fieldCondition(field.Name, &pb.Match{
			MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: keywords}},
		}), nil
	case orm.KindInt64:
		ints := make([]int64, 0, len(items))
		for _, it := range items {
			n, err := strconv.ParseInt(it, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("filter: %w: field %q needs integers, got %q", orm.ErrInvalidQuery, field.Name, it)
			}
			ints = append(ints, n)
		}
		return fieldCondition(field.Name, &pb.Match{
			MatchValue: &pb.Match_Integers{Integers: &pb.RepeatedIntegers{Integers: ints}},
		}), nil
	}
	return nil, fmt.Errorf("filter: %w: in is only supported on string and integer fields, %q is %s", orm.ErrInvalidQuery, field.Name, field.Kind)
}

func splitList(s string) []string {
	var (
		out   []string
		start int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case ',':
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	return strconv.Unquote(s)
}

func fieldCondition(key string, match *pb.Match) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}
