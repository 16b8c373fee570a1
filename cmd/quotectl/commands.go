package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

// errNotJSON mirrors the import picker's refusal of non-JSON files.
var errNotJSON = errors.New("Please select a .json file.") //nolint:staticcheck // user facing sentence

type rootState struct {
	open opener
	opts envOptions
}

func newRootCmd(open opener) *cobra.Command {
	state := &rootState{open: open}

	root := &cobra.Command{
		Use:           "quotectl",
		Short:         "Manage the quote book",
		Long:          "quotectl adds, picks, imports, exports and syncs quotes in the configured storage backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&state.opts.profile, "profile", "p", "local", "config profile to load from configs/")
	root.PersistentFlags().BoolVarP(&state.opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newAddCmd(state),
		newRandomCmd(state),
		newCategoriesCmd(state),
		newListCmd(state),
		newImportCmd(state),
		newExportCmd(state),
		newSyncCmd(state),
	)

	return root
}

// withEnv opens the env for cmd, runs fn and releases storage afterwards.
func (s *rootState) withEnv(cmd *cobra.Command, fn func(e *env) error) error {
	opts := s.opts
	opts.logOut = cmd.ErrOrStderr()

	e, err := s.open(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if e.close != nil {
		defer e.close()
	}

	return fn(e)
}

func newAddCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "add TEXT CATEGORY",
		Short: "Add a quote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withEnv(cmd, func(e *env) error {
				q, err := e.service.Add(cmd.Context(), args[0], args[1])

				switch {
				case errors.Is(err, domain.ErrDuplicateQuote):
					return errors.New("This exact quote already exists. Duplicate not added.") //nolint:staticcheck // user facing sentence
				case domain.IsValidation(err):
					return errors.New("Please provide both quote text and a category.") //nolint:staticcheck // user facing sentence
				case err != nil:
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), "Quote added successfully!")
				fmt.Fprintln(cmd.OutOrStdout(), domain.Render(q, true))

				return nil
			})
		},
	}
}

func newRandomCmd(state *rootState) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Show a random quote from the selected category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withEnv(cmd, func(e *env) error {
				ctx := cmd.Context()
				filter := category

				if cmd.Flags().Changed("category") {
					if err := e.service.SelectCategory(ctx, filter); err != nil {
						return err
					}
				} else {
					filter = e.service.SelectedCategory(ctx)
				}

				q, ok := e.service.Random(ctx, domain.CategoryFilter(filter))
				fmt.Fprintln(cmd.OutOrStdout(), domain.Render(q, ok))

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "pick from this category and remember it")

	return cmd
}

func newCategoriesCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories, marking the remembered one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withEnv(cmd, func(e *env) error {
				ctx := cmd.Context()
				selected := e.service.SelectedCategory(ctx)

				for _, name := range append([]string{domain.AllCategories}, e.service.Categories(ctx)...) {
					marker := " "
					if name == selected {
						marker = "*"
					}

					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
				}

				return nil
			})
		},
	}
}

func newListCmd(state *rootState) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withEnv(cmd, func(e *env) error {
				filter := domain.CategoryFilter(category)

				for _, q := range e.service.List(cmd.Context()) {
					if filter.Matches(q) {
						fmt.Fprintln(cmd.OutOrStdout(), domain.Render(q, true))
					}
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only quotes in this category")

	return cmd
}

func newImportCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import quotes from a JSON array file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.EqualFold(filepath.Ext(args[0]), ".json") {
				return errNotJSON
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			return state.withEnv(cmd, func(e *env) error {
				report, err := e.service.Import(cmd.Context(), data)
				if errors.Is(err, domain.ErrMalformedDocument) {
					return errors.New("Imported file must be a JSON array of quote objects.") //nolint:staticcheck // user facing sentence
				}

				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())

				return err
			})
		},
	}
}

func newExportCmd(state *rootState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the quote list as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withEnv(cmd, func(e *env) error {
				export, err := e.service.Export(cmd.Context())
				if err != nil {
					return err
				}

				if output == "-" {
					_, err := cmd.OutOrStdout().Write(append(export.Data, '\n'))
					return err
				}

				path := output
				if path == "" {
					path = export.Filename
				}

				if err := os.WriteFile(path, export.Data, 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", path)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `destination file, "-" for stdout (default quotes-export-<timestamp>.json)`)

	return cmd
}

func newSyncCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge the remote quote source into the local list once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.withEnv(cmd, func(e *env) error {
				if e.syncer == nil {
					return errors.New("no remote quote source configured")
				}

				report, err := e.syncer.SyncOnce(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "sync complete: %d updated, %d appended\n", report.Updated, report.Appended)

				return nil
			})
		},
	}
}
