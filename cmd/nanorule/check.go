package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanorule/internal/pkg/ruledsl"
	"github.com/coffersTech/nanorule/internal/ruleset"
)

var checkRulesFile string

var checkCmd = &cobra.Command{
	Use:   "check [expr]",
	Short: "Show how a rule expression or rule file is parsed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkRulesFile, "rules", "", "validate a rule file instead of one expression")
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if checkRulesFile != "" {
		rules, err := ruleset.LoadFile(checkRulesFile)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if !r.IsDSL() {
				fmt.Fprintf(out, "%s: %s patterns %q\n", r.ID, r.Operator, r.Patterns)
				continue
			}
			node, diags := ruledsl.ParseString(r.DSL)
			fmt.Fprintf(out, "%s: %s\n", r.ID, node)
			for _, d := range diags {
				fmt.Fprintf(out, "  %s\n", d)
			}
		}
		fmt.Fprintf(out, "%d rules ok\n", len(rules))
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("an expression or --rules is required")
	}

	tokens, diags := ruledsl.Tokenize(args[0])
	node, parseDiags := ruledsl.Parse(tokens)
	diags = append(diags, parseDiags...)

	names := make([]string, len(tokens))
	for i, tok := range tokens {
		names[i] = tok.String()
	}
	fmt.Fprintf(out, "tokens:  %s\n", strings.Join(names, " "))
	fmt.Fprintf(out, "ast:     %s\n", node)
	fmt.Fprintf(out, "phrases: %q\n", ruledsl.Phrases(node))
	for _, d := range diags {
		fmt.Fprintf(out, "warning: %s\n", d)
	}
	return nil
}
