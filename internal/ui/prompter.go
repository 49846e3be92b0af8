// Package ui is the terminal front end of the companion: huh forms for the
// reflection prompt and the coaching reply, lipgloss for everything printed.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/benvon/mentra/internal/companion"
	"github.com/benvon/mentra/internal/models"
)

const maxFreeText = 2000

// QuickResponses are the one-tap answers offered with every question.
var QuickResponses = []string{
	"I'm tired",
	"I'm bored",
	"Just a quick visit",
	"Break needed",
	"Mindlessly drifting",
	"Checking out of curiosity",
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	suggestionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(72)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
)

// Review choices.
const (
	choiceGoBack   = "go_back"
	choiceProceed  = "proceed"
	choiceAllowPfx = "allow:"

	ratingHelpful    = "yes"
	ratingNotHelpful = "no"
	ratingSkip       = "skip"
)

// Prompter asks reflection questions in the terminal.
type Prompter struct {
	out        io.Writer
	accessible bool
}

var _ companion.Prompter = (*Prompter)(nil)

// NewPrompter writes to out. Accessible mode replaces the interactive forms
// with plain line prompts, for screen readers and non-TTY sessions.
func NewPrompter(out io.Writer, accessible bool) *Prompter {
	return &Prompter{out: out, accessible: accessible}
}

func (p *Prompter) form(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithTheme(huh.ThemeDracula()).
		WithAccessible(p.accessible)
}

// Ask shows the question for a blocked visit. Aborting the form dismisses
// the prompt.
func (p *Prompter) Ask(ctx context.Context, req companion.ShowPromptRequest) (companion.ShowPromptResponse, error) {
	_, _ = fmt.Fprintln(p.out, Header(req))

	var quick, free string
	options := make([]huh.Option[string], 0, len(QuickResponses)+1)
	for _, r := range QuickResponses {
		options = append(options, huh.NewOption(r, r))
	}
	options = append(options, huh.NewOption("Let me put it in my own words", ""))

	form := p.form(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(req.Question).
				Options(options...).
				Value(&quick),
			huh.NewText().
				Title("Anything to add?").
				Description("Optional").
				CharLimit(maxFreeText).
				Value(&free),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return companion.ShowPromptResponse{Dismissed: true}, nil
		}
		return companion.ShowPromptResponse{}, fmt.Errorf("reflection form: %w", err)
	}

	resp := companion.ShowPromptResponse{QuickResponse: quick, FreeText: strings.TrimSpace(free)}
	if resp.Text() == "" {
		resp.Dismissed = true
	}
	return resp, nil
}

// Review shows the coaching reply and asks what to do next.
func (p *Prompter) Review(ctx context.Context, r companion.Review) (companion.ReviewOutcome, error) {
	_, _ = fmt.Fprintln(p.out, suggestionStyle.Render(r.Suggestion))

	choice := choiceGoBack
	rating := ratingSkip
	form := p.form(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Still want to open %s?", r.Domain)).
				Options(
					huh.NewOption("No, take me back", choiceGoBack),
					huh.NewOption("Yes, just this once", choiceProceed),
					huh.NewOption("Allow for 10 minutes", choiceAllowPfx+string(models.OverrideTenMinutes)),
					huh.NewOption("Allow for this session", choiceAllowPfx+string(models.OverrideSession)),
					huh.NewOption("Allow until tomorrow", choiceAllowPfx+string(models.OverrideTomorrow)),
				).
				Value(&choice),
			huh.NewSelect[string]().
				Title("Was this helpful?").
				Options(
					huh.NewOption("Yes", ratingHelpful),
					huh.NewOption("No", ratingNotHelpful),
					huh.NewOption("Skip", ratingSkip),
				).
				Value(&rating),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return companion.ReviewOutcome{Action: companion.ActionGoBack}, nil
		}
		return companion.ReviewOutcome{}, fmt.Errorf("review form: %w", err)
	}
	return Outcome(choice, rating), nil
}

// Notify prints a notice.
func (p *Prompter) Notify(_ context.Context, n companion.Notice) error {
	_, err := fmt.Fprintf(p.out, "%s %s\n", noticeStyle.Render(n.Title), n.Message)
	return err
}

// Header introduces the question for a blocked visit.
func Header(req companion.ShowPromptRequest) string {
	line := titleStyle.Render("Pause for a moment")
	if req.Domain == "" {
		return line
	}
	visit := fmt.Sprintf("%s, visit %d today", req.Domain, req.Count)
	if req.Count >= 5 {
		return line + "\n" + warningStyle.Render(visit)
	}
	return line + "\n" + mutedStyle.Render(visit)
}

// Outcome converts the review form's values.
func Outcome(choice, rating string) companion.ReviewOutcome {
	var out companion.ReviewOutcome
	switch {
	case choice == choiceProceed:
		out.Action = companion.ActionProceed
	case strings.HasPrefix(choice, choiceAllowPfx):
		kind := models.OverrideKind(strings.TrimPrefix(choice, choiceAllowPfx))
		if kind.Valid() {
			out.Action = companion.ActionAllow
			out.Override = kind
		} else {
			out.Action = companion.ActionGoBack
		}
	default:
		out.Action = companion.ActionGoBack
	}

	switch rating {
	case ratingHelpful:
		helpful := true
		out.Helpful = &helpful
	case ratingNotHelpful:
		helpful := false
		out.Helpful = &helpful
	}
	return out
}
