package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/writinggym/internal/dialogue"
)

type dialogueLine struct {
	Form    string `json:"form"`
	VoiceID string `json:"voice_id"`
	Text    string `json:"text"`
}

type dialogueReport struct {
	Dialogue bool           `json:"dialogue"`
	Lines    []dialogueLine `json:"lines"`
}

// NewDialogueCommand creates the dialogue command. It reads a passage from
// a file or stdin and shows how each line would be voiced.
func NewDialogueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dialogue [file]",
		Short: "Preview speaker turns for a passage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read passage: %w", err)
			}

			r := dialogue.Analyze(string(text))
			report := dialogueReport{Dialogue: dialogue.DefaultPolicy.Accept(r), Lines: []dialogueLine{}}
			for i, turn := range r.Turns {
				report.Lines = append(report.Lines, dialogueLine{Form: r.Forms[i].String(), VoiceID: turn.VoiceID, Text: turn.Text})
			}
			if done, err := rootOpts.writeJSON(cmd.OutOrStdout(), report); done || err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !report.Dialogue {
				fmt.Fprintln(out, "not dialogue: narrated by one voice")
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, l := range report.Lines {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Form, voiceName(l.VoiceID), l.Text)
			}
			return tw.Flush()
		},
	}
}

func voiceName(id string) string {
	switch id {
	case dialogue.VoicePrimary:
		return "primary"
	case dialogue.VoiceSecondary:
		return "secondary"
	case dialogue.VoiceFemale:
		return "female"
	}
	return id
}
