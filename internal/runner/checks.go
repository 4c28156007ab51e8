package runner

import (
	"context"
	"fmt"

	"lodestone/internal/design"
	"lodestone/internal/domain"
	"lodestone/internal/loader"
)

// Evaluate runs a single fixture check against the environment's store.
// The design service shares it so applied fixtures honor their checks too.
func Evaluate(ctx context.Context, env *design.Environment, check loader.Check) error {
	switch check.Kind {
	case "model_exists":
		model, query, err := modelQuery(check.Args)
		if err != nil {
			return err
		}
		matches, err := env.Query(ctx, model, query)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no %s matching %v", model, query)
		}
		return nil

	case "count_equal":
		model, query, err := modelQuery(check.Args)
		if err != nil {
			return err
		}
		want, err := intArg(check.Args, "count")
		if err != nil {
			return err
		}
		matches, err := env.Query(ctx, model, query)
		if err != nil {
			return err
		}
		if len(matches) != want {
			return fmt.Errorf("expected %d %s matching %v, found %d", want, model, query, len(matches))
		}
		return nil

	case "equal":
		left, err := sideValue(ctx, env, check.Args["left"])
		if err != nil {
			return fmt.Errorf("left: %w", err)
		}
		right, err := sideValue(ctx, env, check.Args["right"])
		if err != nil {
			return fmt.Errorf("right: %w", err)
		}
		if !domain.ScalarEqual(left, right) {
			return fmt.Errorf("%v != %v", left, right)
		}
		return nil
	}
	return fmt.Errorf("unknown check kind %q", check.Kind)
}

func modelQuery(args map[string]any) (string, map[string]any, error) {
	model, ok := args["model"].(string)
	if !ok || model == "" {
		return "", nil, fmt.Errorf("a model is required")
	}
	query, _ := args["query"].(map[string]any)
	if query == nil {
		query = map[string]any{}
	}
	return model, query, nil
}

func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, args[key])
	}
}

// sideValue resolves one side of an equal check: either a literal under
// "value", or a single attribute of a queried record.
func sideValue(ctx context.Context, env *design.Environment, side any) (any, error) {
	spec, ok := side.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("each side of an equal check must be a mapping")
	}
	if value, ok := spec["value"]; ok {
		return value, nil
	}
	model, query, err := modelQuery(spec)
	if err != nil {
		return nil, err
	}
	attribute, _ := spec["attribute"].(string)
	if attribute == "" {
		return nil, fmt.Errorf("an attribute is required")
	}
	record, err := env.GetRecord(ctx, model, query)
	if err != nil {
		return nil, err
	}
	return record[attribute], nil
}
