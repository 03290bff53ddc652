package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kjstillabower/weatherapp/internal/eventloop"
	"github.com/kjstillabower/weatherapp/internal/presenter"
)

var iconGlyphs = map[presenter.IconCategory]string{
	presenter.IconClear: "[sun]",
	presenter.IconCloud: "[cloud]",
	presenter.IconRain:  "[rain]",
	presenter.IconStorm: "[storm]",
	presenter.IconSnow:  "[snow]",
}

// Terminal renders the screen as text. Input lines go, in order of
// preference, to a pending Ask, to the open dialog, or to the command channel.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	poster   eventloop.Poster
	current  presenter.DisplayFields
	dialog   *terminalDialog
	progress *progressDialog
	asks     chan string
	envName  string
}

// NewTerminal writes to out and posts dialog button clicks through poster.
// envName is only used in settings hints.
func NewTerminal(out io.Writer, poster eventloop.Poster, envName string) *Terminal {
	if envName == "" {
		envName = "dev"
	}
	return &Terminal{out: out, poster: poster, envName: envName}
}

// Current returns the last fields passed to Show.
func (t *Terminal) Current() presenter.DisplayFields {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Terminal) Show(f presenter.DisplayFields) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = f

	icon := iconGlyphs[f.Icon]
	if icon == "" {
		icon = "[ ]"
	}
	lines := []string{
		fmt.Sprintf("==== %s, %s ====", f.Name, f.Country),
		fmt.Sprintf("%s %s - %s", icon, f.Main, f.Description),
		fmt.Sprintf("Temp      %s  (%s / %s)", f.Temperature, f.Min, f.Max),
		fmt.Sprintf("Humidity  %s", f.Humidity),
		fmt.Sprintf("Wind      %s", f.WindSpeed),
		fmt.Sprintf("Sunrise   %s   Sunset %s", f.Sunrise, f.Sunset),
	}
	fmt.Fprintln(t.out, strings.Join(lines, "\n"))
}

func (t *Terminal) Toast(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, ">> %s\n", message)
}

func (t *Terminal) OpenSettings(page SettingsPage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch page {
	case SettingsLocation:
		fmt.Fprintf(t.out, "[settings] turn location on: set location.enabled: true in config/%s.yaml\n", t.envName)
	case SettingsApplication:
		fmt.Fprintf(t.out, "[settings] allow location access: set permission.policy: granted in config/%s.yaml\n", t.envName)
	default:
		fmt.Fprintf(t.out, "[settings] %s\n", page)
	}
}

// ShowDialog prints the message and numbered buttons; the next input line
// picks one. A newly shown dialog replaces the open one.
func (t *Terminal) ShowDialog(spec DialogSpec) Dialog {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := &terminalDialog{t: t, spec: spec}
	t.dialog = d

	fmt.Fprintln(t.out, spec.Message)
	var opts []string
	if spec.Positive.Label != "" {
		opts = append(opts, "[1] "+spec.Positive.Label)
	}
	if spec.Negative.Label != "" {
		opts = append(opts, "[2] "+spec.Negative.Label)
	}
	if len(opts) > 0 {
		fmt.Fprintln(t.out, strings.Join(opts, "  "))
	}
	return d
}

func (t *Terminal) ShowProgress() Dialog {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, "Loading weather...")
	p := &progressDialog{t: t}
	t.progress = p
	return p
}

// ProgressVisible reports whether a progress indicator is showing.
func (t *Terminal) ProgressVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress != nil
}

// Ask prints question and blocks until an input line arrives or ctx is done.
// It implements permission.Prompter.
func (t *Terminal) Ask(ctx context.Context, question string) (string, error) {
	ch := make(chan string, 1)
	t.mu.Lock()
	t.asks = ch
	fmt.Fprintln(t.out, question)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.asks == ch {
			t.asks = nil
		}
		t.mu.Unlock()
	}()

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Listen reads lines from in until EOF or ctx is done. The returned channel
// carries menu commands and is closed when reading stops.
func (t *Terminal) Listen(ctx context.Context, in io.Reader) <-chan Command {
	cmds := make(chan Command)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer close(cmds)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				cmd, isCmd := t.route(line)
				if !isCmd {
					continue
				}
				select {
				case cmds <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return cmds
}

// route hands line to a pending Ask or open dialog. It returns a command
// only when neither consumed the line.
func (t *Terminal) route(line string) (Command, bool) {
	t.mu.Lock()
	if ask := t.asks; ask != nil {
		t.asks = nil
		t.mu.Unlock()
		ask <- line
		return "", false
	}
	if d := t.dialog; d != nil {
		var btn Button
		switch {
		case line == "1" || strings.EqualFold(line, d.spec.Positive.Label):
			btn = d.spec.Positive
		case line == "2" || strings.EqualFold(line, d.spec.Negative.Label):
			btn = d.spec.Negative
		default:
			fmt.Fprintln(t.out, "choose 1 or 2")
			t.mu.Unlock()
			return "", false
		}
		t.dialog = nil
		d.dismissed = true
		t.mu.Unlock()
		if btn.OnClick != nil {
			t.poster.Post(btn.OnClick)
		}
		return "", false
	}
	t.mu.Unlock()

	cmd, ok := ParseCommand(line)
	if !ok && line != "" {
		t.Toast(fmt.Sprintf("unknown command %q (r = refresh, q = quit)", line))
	}
	return cmd, ok
}

// OpenDialog reports whether a dialog is waiting for input.
func (t *Terminal) OpenDialog() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialog != nil
}

type terminalDialog struct {
	t         *Terminal
	spec      DialogSpec
	dismissed bool
}

func (d *terminalDialog) Dismiss() {
	d.t.mu.Lock()
	defer d.t.mu.Unlock()
	if d.dismissed {
		return
	}
	d.dismissed = true
	if d.t.dialog == d {
		d.t.dialog = nil
	}
}

type progressDialog struct {
	t *Terminal
}

func (p *progressDialog) Dismiss() {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	if p.t.progress == p {
		p.t.progress = nil
	}
}
