// cmd/actorctl is the CLI client built with Cobra.
//
// Usage:
//
//	actorctl ask worker.ping '{"n":1}'     --node http://localhost:8000
//	actorctl tell worker.log '{"msg":"hi"}' --node http://localhost:8000
//	actorctl health                         --node http://localhost:8000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/actorway/actorway/internal/client"
	"github.com/spf13/cobra"
)

var (
	nodeAddr string
	token    string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "actorctl",
		Short: "CLI client for an actor node",
	}

	root.PersistentFlags().StringVarP(&nodeAddr, "node", "n", "http://localhost:8000", "Actor node address")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("ACTORWAY_TOKEN"), "Bearer token")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP request timeout")

	root.AddCommand(askCmd(), tellCmd(), hopeCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(nodeAddr, timeout).WithToken(token)
}

func parseContent(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("content must be a JSON object: %w", err)
	}
	return content, nil
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <actor.action> [content-json]",
		Short: "Send a synchronous ask and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := parseContent(argOrEmpty(args, 1))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			result, err := newClient().Ask(ctx, args[0], content)
			if err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
}

func tellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tell <actor.action> [content-json]",
		Short: "Send a durable, retried tell",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := parseContent(argOrEmpty(args, 1))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return newClient().Tell(ctx, args[0], content)
		},
	}
}

func hopeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hope <actor.action> [content-json]",
		Short: "Send a best-effort hope with no retry guarantee",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := parseContent(argOrEmpty(args, 1))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return newClient().Hope(ctx, args[0], content)
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Fetch the node's health document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			doc, err := newClient().Health(ctx)
			if err != nil {
				return err
			}
			prettyPrint(doc)
			return nil
		},
	}
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
