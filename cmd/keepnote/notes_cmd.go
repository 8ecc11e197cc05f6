package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/keepnote/internal/notes"
	"github.com/spf13/cobra"
)

func newWhoAmICommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity of the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := state.session.Claims(cmd.Context())
			if err != nil {
				return err
			}
			printIdentity(state.out, claims)
			return nil
		},
	}
}

func newLogoutCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and revoke the refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(state.out, "Logged out.")
			return nil
		},
	}
}

type noteFlags struct {
	title    string
	content  string
	color    string
	reminder string
	pinned   bool
}

func (f *noteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Note title")
	cmd.Flags().StringVar(&f.content, "content", "", "Note content")
	cmd.Flags().StringVar(&f.color, "color", "", "Note color from the palette")
	cmd.Flags().StringVar(&f.reminder, "reminder", "", "Reminder time, e.g. 2026-10-16T18:30 (local time)")
	cmd.Flags().BoolVar(&f.pinned, "pinned", false, "Pin the note")
}

// apply copies every flag the user set onto note. An empty --reminder clears it.
func (f *noteFlags) apply(cmd *cobra.Command, note notes.Note) (notes.Note, error) {
	flags := cmd.Flags()
	if flags.Changed("title") {
		note.Title = f.title
	}
	if flags.Changed("content") {
		note.Content = f.content
	}
	if flags.Changed("color") {
		note.Color = f.color
	}
	if flags.Changed("pinned") {
		note.Pinned = f.pinned
	}
	if flags.Changed("reminder") {
		reminder, err := notes.ParseReminderIn(f.reminder, time.Local)
		if err != nil {
			return notes.Note{}, err
		}
		note.Reminder = reminder
	}
	return note, nil
}

func newNotesCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage notes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active notes, pinned first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := state.api.Notes().List(cmd.Context())
			if err != nil {
				return err
			}
			printListing(state.out, notes.Group(active), time.Now())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "archived",
		Short: "List archived notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archived, err := state.api.Notes().ListArchived(cmd.Context())
			if err != nil {
				return err
			}
			if len(archived) == 0 {
				fmt.Fprintln(state.out, "No archived notes.")
				return nil
			}
			printNotes(state.out, archived, time.Now())
			return nil
		},
	})

	addFlags := &noteFlags{}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := addFlags.apply(cmd, notes.Note{})
			if err != nil {
				return err
			}
			created, err := state.api.Notes().Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(state.out, "Created note %d.\n", created.ID)
			return nil
		},
	}
	addFlags.register(addCmd)
	cmd.AddCommand(addCmd)

	updateFlags := &noteFlags{}
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the fields of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.mutateNote(cmd.Context(), args[0], func(note notes.Note) (notes.Note, error) {
				return updateFlags.apply(cmd, note)
			})
		},
	}
	updateFlags.register(updateCmd)
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := state.api.Notes().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(state.out, "Deleted note %d.\n", id)
			return nil
		},
	})

	cmd.AddCommand(
		newToggleCommand(state, "pin", "Pin a note", func(note *notes.Note) { note.Pinned = true }),
		newToggleCommand(state, "unpin", "Unpin a note", func(note *notes.Note) { note.Pinned = false }),
		newToggleCommand(state, "archive", "Archive a note", func(note *notes.Note) { note.Archived = true }),
		newToggleCommand(state, "unarchive", "Restore an archived note", func(note *notes.Note) { note.Archived = false }),
	)

	return cmd
}

func newToggleCommand(state *app, use, short string, change func(note *notes.Note)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.mutateNote(cmd.Context(), args[0], func(note notes.Note) (notes.Note, error) {
				change(&note)
				return note, nil
			})
		},
	}
}

// mutateNote loads the note, applies change and sends the full note back.
func (a *app) mutateNote(ctx context.Context, rawID string, change func(notes.Note) (notes.Note, error)) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	current, err := a.findNote(ctx, id)
	if err != nil {
		return err
	}
	next, err := change(current)
	if err != nil {
		return err
	}
	if _, err := a.api.Notes().Update(ctx, id, next); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated note %d.\n", id)
	return nil
}
