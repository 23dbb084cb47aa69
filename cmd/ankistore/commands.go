package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/ankistore/internal/config"
	"github.com/conorfennell/ankistore/internal/domain"
	"github.com/conorfennell/ankistore/internal/importer"
	"github.com/conorfennell/ankistore/internal/storage"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg  *config.Config
	repo *storage.Repository
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ankistore",
		Short:         "Manage decks and notes in a flashcard collection file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.LogLevel))

			repo, err := storage.Open(cmd.Context(), cfg.CollectionPath, storage.Options{
				NoteTypeID:  cfg.NoteTypeID,
				OpTimeout:   cfg.OpTimeout,
				BusyTimeout: cfg.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("failed to open collection: %w", err)
			}
			slog.Debug("Collection opened", "path", repo.Path())
			a.cfg, a.repo = cfg, repo
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newDecksCmd(a),
		newCreateDeckCmd(a),
		newAddCmd(a),
		newImportCmd(a),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func newDecksCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "decks",
		Short: "List deck names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !strict {
				decks := a.repo.ListDecks(cmd.Context())
				fmt.Fprintf(out, "Available decks (%d):\n", len(decks))
				for _, name := range decks {
					fmt.Fprintf(out, "  - %s\n", name)
				}
				return nil
			}

			decks, err := a.repo.Decks(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range decks {
				fmt.Fprintf(out, "%d\t%s\n", d.ID, d.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on read errors and print deck ids")
	return cmd
}

func newCreateDeckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-deck <name>",
		Short: "Create a deck, or print the id of the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.repo.ResolveOrCreateDeck(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deck '%s' has id %d\n", args[0], id)
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var rec domain.Record
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a note with one front and back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rec.DeckName == "" {
				rec.DeckName = a.cfg.DefaultDeck
			}
			id, err := a.repo.AddNote(cmd.Context(), rec.Front, rec.Back, rec.DeckName, rec.Tags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added note %d to '%s'\n", id, rec.DeckName)
			return nil
		},
	}
	cmd.Flags().StringVar(&rec.Front, "front", "", "Question side")
	cmd.Flags().StringVar(&rec.Back, "back", "", "Answer side")
	cmd.Flags().StringVar(&rec.DeckName, "deck", "", "Target deck (created when missing)")
	cmd.Flags().StringSliceVar(&rec.Tags, "tag", nil, "Tag to attach; repeatable")
	_ = cmd.MarkFlagRequired("front")
	_ = cmd.MarkFlagRequired("back")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var render bool
	cmd := &cobra.Command{
		Use:   "import <dir|git-url>...",
		Short: "Import Q:/A: markdown and JSON record files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := importer.Run(cmd.Context(), a.repo, args, importer.Options{
				ReposDir:       a.cfg.ReposDir,
				DefaultDeck:    a.cfg.DefaultDeck,
				Progress:       cmd.ErrOrStderr(),
				RenderMarkdown: render || a.cfg.RenderMarkdown,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found %d cards in %d files: %d added, %d skipped, %d errors.\n",
				report.Parsed, report.Files, report.Added, report.Skipped, len(report.Errors))
			if len(report.Errors) > 0 {
				fmt.Fprintln(out, "\nErrors:")
				for _, e := range report.Errors {
					fmt.Fprintf(out, "- %s\n", e)
				}
				return fmt.Errorf("%d import errors", len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "Convert markdown card text to HTML")
	return cmd
}
