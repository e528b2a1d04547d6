package main

import (
	"fmt"

	"github.com/fwojciec/egress"
)

// Run executes the ask command.
func (c *AskCmd) Run(deps *Dependencies) error {
	completion, err := deps.Completer.Complete(deps.Ctx, &egress.CompletionRequest{
		System:    c.System,
		Prompt:    c.Prompt,
		MaxTokens: c.MaxTokens,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", egress.ErrorMessage(err))
		return err
	}

	fmt.Fprintln(deps.Stdout, completion.Text)
	fmt.Fprintf(deps.Stderr, "(answered by %s)\n", completion.Provider)
	return nil
}
