// Package gqlparserengine is a reference engine.Engine backed by
// github.com/vektah/gqlparser/v2, grounded on the teacher's own schema
// loading and query parse/validate calls (internal/handler/handler.go's
// gqlparser.LoadSchema, internal/handler/wshandler.go's gqlparser.LoadQuery
// and validator.VariableValues). It dispatches top-level field selections
// to a resolver map rather than the teacher's struct-reflection engine,
// since the latter is out of this spec's scope (see DESIGN.md).
package gqlparserengine

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/riftgql/gqlws/engine"
	"github.com/riftgql/gqlws/message"
)

// Resolver produces a single field's value for a query or mutation.
type Resolver func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// SubscriptionResolver starts a subscription field and returns the channel
// its values arrive on; the channel must be closed by the producer when the
// subscription ends normally, and must stop sending once ctx is done.
type SubscriptionResolver func(ctx context.Context, args map[string]interface{}) (<-chan interface{}, error)

// Adapter is a reference engine.Engine implementation.
type Adapter struct {
	schema        *ast.Schema
	queries       map[string]Resolver
	mutations     map[string]Resolver
	subscriptions map[string]SubscriptionResolver
}

// New loads schemaSource and returns an Adapter dispatching to the given
// top-level field resolvers.
func New(schemaSource string, queries, mutations map[string]Resolver, subscriptions map[string]SubscriptionResolver) (*Adapter, error) {
	schema, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: "schema", Input: schemaSource})
	if gqlErr != nil {
		return nil, gqlErr
	}
	return &Adapter{
		schema:        schema,
		queries:       queries,
		mutations:     mutations,
		subscriptions: subscriptions,
	}, nil
}

// doc is what Parse/Validate pass between themselves and Execute/Subscribe.
type doc struct {
	operation *ast.OperationDefinition
	rawVars   map[string]interface{}
	variables map[string]interface{}
}

func toExecutionResult(errs gqlerror.List) message.ExecutionResult {
	return message.ExecutionResult{Errors: errs}
}

// Parse parses and (via gqlparser.LoadQuery) validates args.Query against
// the schema in one step, exactly as wshandler.go's start() does.
func (a *Adapter) Parse(args engine.Args) (interface{}, message.ExecutionResult, bool) {
	query, errs := gqlparser.LoadQuery(a.schema, args.Query)
	if errs != nil {
		return nil, toExecutionResult(errs), false
	}
	op := query.Operations[0]
	if args.OperationName != "" {
		if named := query.Operations.ForName(args.OperationName); named != nil {
			op = named
		}
	}
	return &doc{operation: op, rawVars: args.Variables}, message.ExecutionResult{}, true
}

// Validate resolves variable values for the operation (spec §4.1's
// implicit requirement that Subscribe.payload.variables type-check against
// the operation's declared variables), exactly as wshandler.go's
// validator.VariableValues call does.
func (a *Adapter) Validate(d interface{}) (message.ExecutionResult, bool) {
	dd := d.(*doc)
	if len(dd.operation.VariableDefinitions) == 0 {
		return message.ExecutionResult{}, true
	}
	vars, gqlErr := validator.VariableValues(a.schema, dd.operation, dd.rawVars)
	if gqlErr != nil {
		return toExecutionResult(gqlerror.List{gqlErr}), false
	}
	dd.variables = vars
	return message.ExecutionResult{}, true
}

// resolve turns d into a *doc, parsing and schema-validating args.Query via
// gqlparser.LoadQuery (but not coercing its variables against the
// operation's declarations) when d is an unparsed engine.Args — the shape
// server.Hooks.OnSubscribe hands back when it overrides the default
// parse-then-validate path (spec §4.3 step 3's "use it directly").
func (a *Adapter) resolve(d interface{}) (*doc, error) {
	if dd, ok := d.(*doc); ok {
		return dd, nil
	}
	args := d.(engine.Args)
	query, errs := gqlparser.LoadQuery(a.schema, args.Query)
	if errs != nil {
		return nil, fmt.Errorf("%v", errs)
	}
	op := query.Operations[0]
	if args.OperationName != "" {
		if named := query.Operations.ForName(args.OperationName); named != nil {
			op = named
		}
	}
	return &doc{operation: op, rawVars: args.Variables, variables: args.Variables}, nil
}

// Kind classifies the parsed operation.
func (a *Adapter) Kind(d interface{}) engine.OperationKind {
	dd, err := a.resolve(d)
	if err != nil {
		return engine.KindExecute
	}
	if dd.operation.Operation == ast.Subscription {
		return engine.KindSubscribe
	}
	return engine.KindExecute
}

func fieldArgs(field *ast.Field, vars map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(field.Arguments))
	for _, a := range field.Arguments {
		v, err := a.Value.Value(vars)
		if err == nil {
			args[a.Name] = v
		}
	}
	return args
}

// Execute resolves every top-level field of a query/mutation operation.
func (a *Adapter) Execute(ctx context.Context, d interface{}, args engine.Args) (message.ExecutionResult, error) {
	dd, err := a.resolve(d)
	if err != nil {
		return message.ExecutionResult{}, err
	}
	resolvers := a.queries
	if dd.operation.Operation == ast.Mutation {
		resolvers = a.mutations
	}

	result := message.ExecutionResult{}
	result.Data.Data = make(map[string]interface{})
	for _, sel := range dd.operation.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		resolve, ok := resolvers[field.Name]
		if !ok {
			return message.ExecutionResult{}, fmt.Errorf("no resolver registered for field %q", field.Name)
		}
		name := field.Alias
		if name == "" {
			name = field.Name
		}
		value, err := resolve(ctx, fieldArgs(field, dd.variables))
		if err != nil {
			result.Errors = append(result.Errors, &gqlerror.Error{Message: err.Error()})
			continue
		}
		result.Data.Data[name] = value
		result.Data.Order = append(result.Data.Order, name)
	}
	return result, nil
}

// Subscribe starts the (single) subscription field of the operation.
func (a *Adapter) Subscribe(ctx context.Context, d interface{}, args engine.Args) (engine.Stream, error) {
	dd, err := a.resolve(d)
	if err != nil {
		return nil, err
	}
	if len(dd.operation.SelectionSet) != 1 {
		return nil, fmt.Errorf("subscription operation must select exactly one field")
	}
	field, ok := dd.operation.SelectionSet[0].(*ast.Field)
	if !ok {
		return nil, fmt.Errorf("subscription selection must be a field")
	}
	resolve, ok := a.subscriptions[field.Name]
	if !ok {
		return nil, fmt.Errorf("no subscription resolver registered for field %q", field.Name)
	}
	ch, err := resolve(ctx, fieldArgs(field, dd.variables))
	if err != nil {
		return nil, err
	}
	name := field.Alias
	if name == "" {
		name = field.Name
	}
	return &channelStream{ch: ch, fieldName: name}, nil
}

// channelStream adapts a plain Go channel into an engine.Stream.
type channelStream struct {
	ch        <-chan interface{}
	fieldName string
}

func (s *channelStream) Next(ctx context.Context) (message.ExecutionResult, bool, error) {
	select {
	case v, ok := <-s.ch:
		if !ok {
			return message.ExecutionResult{}, false, nil
		}
		result := message.ExecutionResult{}
		result.Data.Data = map[string]interface{}{s.fieldName: v}
		result.Data.Order = []string{s.fieldName}
		return result, true, nil
	case <-ctx.Done():
		return message.ExecutionResult{}, false, nil
	}
}

func (s *channelStream) Close() error { return nil }
