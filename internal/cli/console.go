// Package cli implements the interactive dice console.
//
// Every line is an independent tool invocation: a formula is handed to the
// dice tool and its result string printed verbatim, exactly as an agent
// would receive it. Lines starting with "/" are console commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

const (
	// Version is the rollmate release.
	Version = "0.1.0"

	colorReset  = "\033[0m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// Roller answers a formula the way the dice tool does.
type Roller interface {
	Handle(ctx context.Context, formula string) string
}

// Asker is an optional one-shot agent behind /ask.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// CommandSuggestion is a completion entry for the console.
type CommandSuggestion struct {
	Text        string
	Description string
}

// Console reads formulas and commands and writes results to out.
type Console struct {
	roller Roller
	asker  Asker
	out    io.Writer
	ctx    context.Context
	color  bool
	done   bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithAsker enables /ask.
func WithAsker(a Asker) ConsoleOption {
	return func(c *Console) {
		c.asker = a
	}
}

// WithColor toggles ANSI colors in output.
func WithColor(on bool) ConsoleOption {
	return func(c *Console) {
		c.color = on
	}
}

// NewConsole creates a console that writes to out.
func NewConsole(ctx context.Context, roller Roller, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		roller: roller,
		out:    out,
		ctx:    ctx,
		color:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts the interactive prompt and returns after /exit or Ctrl+D.
func (c *Console) Run() {
	c.printWelcome()

	p := prompt.New(
		c.Execute,
		c.complete,
		prompt.OptionTitle("rollmate"),
		prompt.OptionPrefix("roll> "),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return c.done
		}),
	)
	p.Run()
}

// Execute handles one input line.
func (c *Console) Execute(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "/") {
		if out := c.handleCommand(input); out != "" {
			fmt.Fprintln(c.out, out)
		}
		return
	}

	fmt.Fprintln(c.out, c.roller.Handle(c.ctx, input))
}

// Done reports whether /exit was entered.
func (c *Console) Done() bool {
	return c.done
}

// handleCommand returns the text to print for a console command.
func (c *Console) handleCommand(cmd string) string {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])

	switch command {
	case "/help":
		return c.help()

	case "/exit", "/quit", "/q":
		c.done = true
		return c.paint(colorCyan, "Goodbye!")

	case "/ask":
		if c.asker == nil {
			return c.paint(colorYellow, "No model configured; set model.api_key or LLM_API_KEY to use /ask")
		}
		question := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))
		if question == "" {
			return c.paint(colorYellow, "Usage: /ask <question>")
		}
		answer, err := c.asker.Ask(c.ctx, question)
		if err != nil {
			return c.paint(colorRed, fmt.Sprintf("Error: %v", err))
		}
		return c.paint(colorBlue, answer)

	default:
		return c.paint(colorYellow, fmt.Sprintf("Unknown command: %s", cmd)) + "\nType /help for available commands"
	}
}

func (c *Console) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}

	var suggestions []prompt.Suggest
	source := FormulaSuggestions()
	if strings.HasPrefix(word, "/") {
		source = CommandSuggestions()
	}
	for _, s := range source {
		suggestions = append(suggestions, prompt.Suggest{Text: s.Text, Description: s.Description})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

// CommandSuggestions lists console commands for completion.
func CommandSuggestions() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "/help", Description: "Show help"},
		{Text: "/ask", Description: "Ask the model, which may roll dice"},
		{Text: "/exit", Description: "Exit the console"},
	}
}

// FormulaSuggestions lists common formulas for completion.
func FormulaSuggestions() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "1d20", Description: "Ability check or attack"},
		{Text: "2d20", Description: "Advantage or disadvantage"},
		{Text: "1d100", Description: "Percentile"},
		{Text: "2d6", Description: "Two six-sided dice"},
		{Text: "4d6", Description: "Ability score roll"},
		{Text: "8d6", Description: "Fireball damage"},
	}
}

func (c *Console) help() string {
	var b strings.Builder
	b.WriteString(c.paint(colorCyan, "rollmate console") + "\n\n")
	b.WriteString("Enter a dice formula NdM[+K|-K], e.g. 1d20, 2d6+3, 4d8-1.\n")
	b.WriteString("Each line is rolled independently and the tool result is printed as-is.\n\n")
	b.WriteString(c.paint(colorYellow, "Commands:") + "\n")
	for _, s := range CommandSuggestions() {
		fmt.Fprintf(&b, "  %-8s - %s\n", s.Text, s.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Console) printWelcome() {
	fmt.Fprintf(c.out, "\n%s\n", c.paint(colorCyan, "rollmate v"+Version+" - dice for agents"))
	fmt.Fprintf(c.out, "%s\n\n", c.paint(colorGray, "Type a formula like 2d6+3, /help for help, /exit to quit"))
}

func (c *Console) paint(color, text string) string {
	if !c.color {
		return text
	}
	return color + text + colorReset
}
