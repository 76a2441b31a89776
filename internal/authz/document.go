package authz

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

var (
	// ErrNoOperation is returned when the document has no matching operation.
	ErrNoOperation = errors.New("no operation found in document")
	// ErrAmbiguousOperation is returned when several operations exist and no name is given.
	ErrAmbiguousOperation = errors.New("operation name is required when the document has several operations")
)

// Parse parses query and selects the operation that will run.
func Parse(query, operationName string) (Operation, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return Operation{}, err
	}
	return FromDocument(doc, operationName)
}

// FromDocument selects the operation named operationName (or the only one)
// and lists its root fields, expanding fragments at the root level.
func FromDocument(doc *ast.Document, operationName string) (Operation, error) {
	var (
		selected  *ast.OperationDefinition
		count     int
		fragments = map[string]*ast.FragmentDefinition{}
	)
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			count++
			if operationName == "" || (d.Name != nil && d.Name.Value == operationName) {
				if selected == nil {
					selected = d
				}
			}
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		}
	}
	if operationName == "" && count > 1 {
		return Operation{}, ErrAmbiguousOperation
	}
	if selected == nil {
		if operationName != "" {
			return Operation{}, fmt.Errorf("unknown operation %q: %w", operationName, ErrNoOperation)
		}
		return Operation{}, ErrNoOperation
	}

	op := Operation{Kind: Kind(selected.Operation)}
	if op.Kind == "" {
		op.Kind = KindQuery
	}
	if selected.Name != nil {
		op.Name = selected.Name.Value
	}
	op.RootFields = rootFields(selected.SelectionSet, fragments, map[string]bool{}, nil)
	return op, nil
}

func rootFields(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, seen map[string]bool, out []string) []string {
	if set == nil {
		return out
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name != nil {
				out = append(out, s.Name.Value)
			}
		case *ast.InlineFragment:
			out = rootFields(s.SelectionSet, fragments, seen, out)
		case *ast.FragmentSpread:
			if s.Name == nil || seen[s.Name.Value] {
				continue
			}
			seen[s.Name.Value] = true
			if frag, ok := fragments[s.Name.Value]; ok {
				out = rootFields(frag.SelectionSet, fragments, seen, out)
			}
		}
	}
	return out
}
