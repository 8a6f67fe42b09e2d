// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/icd9cms/pkg/query"
	"github.com/AleutianAI/icd9cms/pkg/validation"
)

// queryFlags are the traversal flags shared by the list commands.
type queryFlags struct {
	depth string
	limit string
}

func (f *queryFlags) register(cmd *cobra.Command, defaultDepth string, withDepth, withLimit bool) {
	if withDepth {
		cmd.Flags().StringVar(&f.depth, "depth", defaultDepth,
			"Levels to traverse: a number, or 'all'")
	}
	if withLimit {
		cmd.Flags().StringVar(&f.limit, "limit", "",
			"Maximum results (default "+strconv.Itoa(query.DefaultMaxResults)+")")
	}
}

func (f *queryFlags) options() (query.Options, error) {
	depth, err := query.ParseDepth(f.depth)
	if err != nil {
		return query.Options{}, err
	}
	limit, err := query.ParseLimit(f.limit)
	if err != nil {
		return query.Options{}, err
	}
	return query.Options{Depth: depth, Limit: limit}, nil
}

// usageArgs reports argument-count failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// codeArgs checks the argument count with fn, then the syntax of every
// code. Codes are replaced in place by their sanitized form.
func codeArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return usageArgs(func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return err
		}
		for i, arg := range args {
			code, err := validation.SanitizeCode(arg)
			if err != nil {
				return err
			}
			args[i] = code
		}
		return nil
	})
}

// =============================================================================
// Command Definitions
// =============================================================================

func (a *app) queryCommands() []*cobra.Command {
	return []*cobra.Command{
		a.newSearchCmd(),
		a.newAncestorsCmd(),
		a.newDescendantsCmd(),
		a.newLeavesCmd(),
		a.newSiblingsCmd(),
		a.newSubsumesCmd(),
		a.newTreeCmd(),
	}
}

func (a *app) newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [CODE]",
		Short: "Look up a code",
		Long: `Look up a code and show its descriptions, leaf status, and path.

Codes are accepted with or without the decimal point. Without a code the
root of the hierarchy is shown.

Examples:
  icd9 search 401.1
  icd9 search 4011 --json
  icd9 search E000.0`,
		Args: codeArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			result, err := q.Search(cmd.Context(), code)
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputNodeText(w, result) })
		},
	}
}

func (a *app) newAncestorsCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "ancestors CODE",
		Short: "List the ancestors of a code, nearest first",
		Long: `List the ancestors of a code, nearest first, ending at the root.

Examples:
  icd9 ancestors 401.1
  icd9 ancestors 401.1 --depth 1`,
		Args: codeArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			result, err := q.Ancestors(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputCodesText(w, "Ancestors", result, q.Tree()) })
		},
	}
	flags.register(cmd, "all", true, true)
	return cmd
}

func (a *app) newDescendantsCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "descendants CODE",
		Short: "List the descendants of a code, level by level",
		Long: `List the descendants of a code breadth first.

Examples:
  icd9 descendants 401-405
  icd9 descendants 390-459 --depth 1
  icd9 descendants 001-139 --limit 50 --json`,
		Args: codeArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			result, err := q.Descendants(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputCodesText(w, "Descendants", result, q.Tree()) })
		},
	}
	flags.register(cmd, "all", true, true)
	return cmd
}

func (a *app) newLeavesCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "leaves CODE",
		Short: "List the billable leaf codes under a code",
		Long: `List the leaf codes under a code. A leaf is an assignable diagnosis code.

Examples:
  icd9 leaves 401
  icd9 leaves 001-139 --limit 100`,
		Args: codeArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			result, err := q.Leaves(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputNodesText(w, "Leaves", result) })
		},
	}
	flags.register(cmd, "all", false, true)
	return cmd
}

func (a *app) newSiblingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "siblings CODE",
		Short: "List the other children of a code's parent",
		Args:  codeArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			result, err := q.Siblings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputNodesText(w, "Siblings", result) })
		},
	}
}

func (a *app) newSubsumesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subsumes A B",
		Short: "Report whether code A is B or one of its ancestors",
		Long: `Report whether code A is B or one of its ancestors.

Examples:
  icd9 subsumes 390-459 401.1
  icd9 subsumes 401 401.9 --json`,
		Args: codeArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			result, err := q.Subsumes(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputSubsumesText(w, result) })
		},
	}
}

func (a *app) newTreeCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "tree [CODE]",
		Short: "Draw the hierarchy below a code",
		Long: `Draw the hierarchy below a code, or below the root when no code is given.

Nodes whose children are hidden by --depth show the hidden child count.

Examples:
  icd9 tree 390-459
  icd9 tree 401 --depth all
  icd9 tree --depth 1`,
		Args: codeArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			q, err := a.loadQuerier(cmd.Context())
			if err != nil {
				return err
			}
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			result, err := q.Subtree(cmd.Context(), code, opts)
			if err != nil {
				return err
			}
			return a.output(result, func(w io.Writer) { outputTreeText(w, result) })
		},
	}
	flags.register(cmd, strconv.Itoa(query.DefaultTreeDepth), true, true)
	return cmd
}
