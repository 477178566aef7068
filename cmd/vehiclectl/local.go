package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/veicheck/veicheck/engine/chassis"
	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/provider"
)

func validateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <chassis>",
		Short: "Check a chassis (VIN) format and check digit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			r := chassis.Inspect(args[0])
			if r.FormatErr != nil {
				return r.FormatErr
			}

			fmt.Fprintf(out, "chassis:     %s\n", r.Normalized)
			fmt.Fprintf(out, "format:      ok\n")

			var ce *chassis.ChecksumError
			if errors.As(r.ChecksumErr, &ce) {
				fmt.Fprintf(out, "check digit: mismatch (expected %c, informed %c)\n", ce.Expected, ce.Informed)
				if strict {
					return r.ChecksumErr
				}
				return nil
			}
			fmt.Fprintf(out, "check digit: ok (%c)\n", chassis.CheckDigit(r.Normalized))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on check digit mismatch")
	return cmd
}

func normalizeCmd() *cobra.Command {
	var q domain.Query
	cmd := &cobra.Command{
		Use:   "normalize <value>",
		Short: "Validate and canonicalize a lookup query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Value = args[0]
			n, err := domain.NormalizeQuery(q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(n)
		},
	}
	flagQuery(cmd, &q)
	return cmd
}

func classifyCmd() *cobra.Command {
	var errs []string
	cmd := &cobra.Command{
		Use:   "classify <code>",
		Short: "Show how a provider response code is classified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid code %q: %w", args[0], err)
			}
			cat := provider.Classify(code, errs)
			label := string(cat)
			if label == "" {
				label = "ok"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", code, label, provider.Describe(cat))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&errs, "error", "e", nil, "Provider error text (repeatable)")
	return cmd
}

func flagQuery(cmd *cobra.Command, q *domain.Query) {
	cmd.Flags().StringVarP((*string)(&q.Kind), "kind", "k", string(domain.KindPlate), "Identifier kind (chassis, plate, renavam)")
	cmd.Flags().StringVar(&q.UF, "uf", "", "Federative unit hint")
	cmd.Flags().StringVar((*string)(&q.Variant), "variant", "", "Force endpoint (state-registry, national-registry)")
}
