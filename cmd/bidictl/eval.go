package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"mini-bidi/bidi/browsingcontext"
	"mini-bidi/bidi/script"
)

type evalCmd struct {
	gs      *globalState
	context string
	realm   string
	await   bool
}

func (c *evalCmd) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := c.gs.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = d.Stop() }()

	target := script.Target{Context: c.context, Realm: c.realm}
	if target.Context == "" && target.Realm == "" {
		tree, err := d.BrowsingContext.GetTree(ctx, browsingcontext.GetTreeParameters{})
		if err != nil {
			return err
		}
		contexts, err := tree.Unwrap()
		if err != nil {
			return err
		}
		if len(contexts.Contexts) == 0 {
			return errors.New("no browsing context to evaluate in; pass --context or --realm")
		}
		target.Context = contexts.Contexts[0].Context
	}

	res, err := d.Script.Evaluate(ctx, script.EvaluateParameters{
		Expression:   args[0],
		Target:       target,
		AwaitPromise: c.await,
	})
	if err != nil {
		return err
	}
	result, err := res.Unwrap()
	if err != nil {
		return err
	}
	switch r := result.(type) {
	case *script.EvaluateResultSuccess:
		out, err := json.Marshal(plain(r.Result))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.gs.stdout, "%s\n", out)
		return err
	case *script.EvaluateResultException:
		return r
	}
	return fmt.Errorf("unexpected result %T", result)
}

// plain turns a RemoteValue into something encoding/json can print. Values
// without a JSON form print as their type in angle brackets.
func plain(v script.RemoteValue) any {
	switch v.Type {
	case "undefined", "null":
		return nil
	case "number":
		f, _ := v.AsNumber()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case "string", "bigint", "date", "boolean":
		return v.Value
	case "array", "set", "nodelist", "htmlcollection":
		items := make([]any, 0, len(v.Items()))
		for _, item := range v.Items() {
			items = append(items, plain(item))
		}
		return items
	case "object", "map":
		obj := make(map[string]any, len(v.Properties()))
		for _, p := range v.Properties() {
			key, ok := p.Key.(string)
			if !ok {
				key = fmt.Sprint(plain(p.Key.(script.RemoteValue)))
			}
			obj[key] = plain(p.Value)
		}
		return obj
	}
	return "<" + v.Type + ">"
}

func getCmdEval(gs *globalState) *cobra.Command {
	c := &evalCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a JavaScript expression and print its value",
		Long: `Evaluate a JavaScript expression in a browsing context or realm.

Without --context or --realm the first top-level browsing context is used.
A thrown exception makes the command fail with the exception text.`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	cmd.Flags().StringVar(&c.context, "context", "", "browsing context id")
	cmd.Flags().StringVar(&c.realm, "realm", "", "realm id")
	cmd.Flags().BoolVar(&c.await, "await", true, "await the result if it is a promise")
	return cmd
}
