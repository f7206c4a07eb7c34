package ui

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"griddojo/internal/session"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/harmonica"
	clog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"
)

const flashTTL = 4 * time.Second

type applyMsg struct {
	fn func(*Root)
}

type clockMsg time.Time
type animateMsg time.Time

type gameKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	Submit key.Binding
	Next   key.Binding
	Retry  key.Binding
	Start  key.Binding
	Mode   key.Binding
	Set    key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

func (k gameKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Submit, k.Next, k.Retry, k.Start, k.Mode, k.Set, k.Reset, k.Quit}
}

func (k gameKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Toggle},
		{k.Submit, k.Next, k.Retry},
		{k.Start, k.Mode, k.Set, k.Reset, k.Quit},
	}
}

type Root struct {
	theme       Theme
	ascii       bool
	debug       bool
	ctrl        Controller
	motionLevel string

	mu      sync.Mutex
	program *tea.Program
	running bool
	// stopEarly records a Stop that arrived before Run started the program.
	stopEarly bool

	layout LayoutMode
	cols   int
	rows   int

	header      HeaderState
	snap        session.Snapshot
	cursor      int
	statusFlash string
	flashAt     time.Time

	help     help.Model
	keymap   gameKeyMap
	timeBar  progress.Model
	warmBar  progress.Model
	spin     spinner.Model
	markdown *glamour.TermRenderer
	prompts  map[string][]string
	logger   *clog.Logger

	spring     harmonica.Spring
	shownScore float64
	scoreVel   float64
	animating  bool

	lastInputEvent string

	actions actionQueue
}

type Options struct {
	ASCIIOnly    bool
	Debug        bool
	StyleVariant string
	MotionLevel  string
}

func New(opts Options) *Root {
	logger := clog.NewWithOptions(os.Stderr, clog.Options{Prefix: "griddojo-ui", Level: clog.WarnLevel})
	if opts.Debug {
		logger.SetLevel(clog.DebugLevel)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(36),
	)
	if err != nil {
		logger.Warn("ui.markdown_unavailable", "err", err)
		renderer = nil
	}

	h := help.New()
	h.Styles = help.DefaultDarkStyles()
	motionLevel := normalizeMotionLevel(opts.MotionLevel)
	theme := ThemeForVariant(normalizeStyleVariant(opts.StyleVariant))

	spring := harmonica.NewSpring(harmonica.FPS(60), 8.0, 0.9)
	switch motionLevel {
	case "reduced":
		spring = harmonica.NewSpring(harmonica.FPS(30), 9.0, 0.95)
	case "off":
		spring = harmonica.NewSpring(harmonica.FPS(60), 1000.0, 1.0)
	}
	timeBar := progress.New(
		progress.WithWidth(24),
		progress.WithColors(lipgloss.Color("#FF6F91"), lipgloss.Color("#F2D16B"), lipgloss.Color("#79E6A6")),
		progress.WithScaled(true),
	)
	warmBar := progress.New(
		progress.WithWidth(24),
		progress.WithColors(lipgloss.Color("#5EC2FF"), lipgloss.Color("#79E6A6")),
		progress.WithoutPercentage(),
	)
	if motionLevel == "off" {
		timeBar.SetSpringOptions(1000.0, 1.0)
		warmBar.SetSpringOptions(1000.0, 1.0)
	}

	r := &Root{
		theme:       theme,
		ascii:       opts.ASCIIOnly,
		debug:       opts.Debug,
		motionLevel: motionLevel,
		layout:      LayoutWide,
		cols:        120,
		rows:        30,
		help:        h,
		timeBar:     timeBar,
		warmBar:     warmBar,
		spin:        spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(theme.Pending)),
		markdown:    renderer,
		prompts:     map[string][]string{},
		logger:      logger,
		spring:      spring,
		snap:        session.Snapshot{Status: session.StatusIdle},
	}
	r.keymap = gameKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Toggle: key.NewBinding(key.WithKeys("space", "x"), key.WithHelp("space", "Select")),
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "Submit")),
		Next:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "Next")),
		Retry:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Retry")),
		Start:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Start")),
		Mode:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "Mode")),
		Set:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "Set")),
		Reset:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "Reset")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+q", "ctrl+c"), key.WithHelp("q", "Quit")),
	}
	return r
}

func (r *Root) Init() tea.Cmd {
	return tea.Batch(clockTickCmd(), spinnerTickCmd(r.spin))
}

func (r *Root) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("update", rec, msg)
			model = r
			cmd = nil
		}
	}()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.cols = msg.Width
		r.rows = msg.Height
		r.layout = DetermineLayoutMode(r.cols, r.rows)
		return r, nil
	case applyMsg:
		if msg.fn != nil {
			msg.fn(r)
		}
		return r, r.animateIfNeeded()
	case clockMsg:
		if r.statusFlash != "" && time.Time(msg).Sub(r.flashAt) > flashTTL {
			r.statusFlash = ""
		}
		return r, clockTickCmd()
	case animateMsg:
		target := float64(r.snap.TotalScore)
		r.shownScore, r.scoreVel = r.spring.Update(r.shownScore, r.scoreVel, target)
		if r.shouldAnimate() {
			return r, animateTickCmd()
		}
		r.shownScore = target
		r.scoreVel = 0
		r.animating = false
		return r, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		r.spin, cmd = r.spin.Update(msg)
		return r, cmd
	case tea.KeyPressMsg:
		return r.handleKey(msg)
	}
	return r, nil
}

func (r *Root) View() (view tea.View) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("view", rec, nil)
			width := max(1, r.cols)
			msg := "UI recovered from a rendering panic. Check logs."
			view = tea.NewView(r.theme.Fail.Width(width).Render(trimForWidth(msg, max(1, width-1))))
		}
	}()

	if r.cols < 1 {
		r.cols = 120
	}
	if r.rows < 1 {
		r.rows = 30
	}

	var base string
	if r.layout == LayoutTooSmall {
		base = r.renderTooSmall()
	} else {
		base = r.renderPlaying()
	}
	v := tea.NewView(base)
	v.AltScreen = true
	return v
}

func (r *Root) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	if r.stopEarly {
		r.stopEarly = false
		r.mu.Unlock()
		return nil
	}
	p := tea.NewProgram(r)
	r.program = p
	r.running = true
	r.mu.Unlock()

	_, err := p.Run()

	r.mu.Lock()
	r.program = nil
	r.running = false
	r.mu.Unlock()
	return err
}

func (r *Root) Stop() {
	r.mu.Lock()
	p := r.program
	if p == nil {
		r.stopEarly = true
	}
	r.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func (r *Root) SetController(c Controller) {
	r.ctrl = c
}

func (r *Root) SetHeader(h HeaderState) {
	r.apply(func(m *Root) {
		m.header = h
	})
}

// SetSnapshot is safe to call from any goroutine.
func (r *Root) SetSnapshot(s session.Snapshot) {
	r.apply(func(m *Root) {
		if s.Challenge.ChallengeID != m.snap.Challenge.ChallengeID || !s.Active() {
			m.cursor = 0
		}
		m.snap = s
		m.clampCursor()
	})
}

func (r *Root) FlashStatus(msg string) {
	r.apply(func(m *Root) {
		m.statusFlash = msg
		m.flashAt = time.Now()
	})
}

func (r *Root) apply(fn func(*Root)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	p := r.program
	running := r.running
	if !running || p == nil {
		fn(r)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(applyMsg{fn: fn})
}

func (r *Root) dispatchController(fn func(Controller)) {
	if fn == nil || r.ctrl == nil {
		return
	}
	ctrl := r.ctrl
	r.actions.push(func() { fn(ctrl) })
}

// actionQueue runs controller calls on one goroutine in submission order so
// key handling never blocks on the engine. The queue is unbounded because the
// worker may itself wait on the program loop through apply.
type actionQueue struct {
	once    sync.Once
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func (q *actionQueue) push(fn func()) {
	q.once.Do(func() {
		q.wake = make(chan struct{}, 1)
		go q.drain()
	})
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *actionQueue) drain() {
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			fn()
		}
	}
}

func (r *Root) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	r.recordInputEvent(msg.String())

	if key.Matches(msg, r.keymap.Quit) {
		r.dispatchController(func(c Controller) { c.OnQuit() })
		return r, nil
	}
	if r.layout == LayoutTooSmall {
		return r, nil
	}

	switch {
	case key.Matches(msg, r.keymap.Up):
		r.moveCursor(0, -1)
	case key.Matches(msg, r.keymap.Down):
		r.moveCursor(0, 1)
	case key.Matches(msg, r.keymap.Left):
		r.moveCursor(-1, 0)
	case key.Matches(msg, r.keymap.Right):
		r.moveCursor(1, 0)
	case key.Matches(msg, r.keymap.Toggle):
		if r.snap.HasChallenge {
			index := r.cursor
			r.dispatchController(func(c Controller) { c.OnToggle(index) })
		}
	case key.Matches(msg, r.keymap.Submit):
		r.primaryAction()
	case key.Matches(msg, r.keymap.Next):
		r.dispatchController(func(c Controller) { c.OnNext() })
	case key.Matches(msg, r.keymap.Retry):
		r.dispatchController(func(c Controller) { c.OnRetry() })
	case key.Matches(msg, r.keymap.Start):
		r.dispatchController(func(c Controller) { c.OnStart() })
	case key.Matches(msg, r.keymap.Mode):
		r.dispatchController(func(c Controller) { c.OnCycleMode() })
	case key.Matches(msg, r.keymap.Set):
		r.dispatchController(func(c Controller) { c.OnCycleSet() })
	case key.Matches(msg, r.keymap.Reset):
		r.dispatchController(func(c Controller) { c.OnReset() })
	}
	return r, nil
}

// primaryAction maps enter onto whatever the current status allows.
func (r *Root) primaryAction() {
	s := r.snap
	switch {
	case s.Status == session.StatusIdle:
		r.dispatchController(func(c Controller) { c.OnStart() })
	case s.Finished || s.TimerExpired:
	case s.Status == session.StatusSuccess:
		r.dispatchController(func(c Controller) { c.OnNext() })
	default:
		r.dispatchController(func(c Controller) { c.OnSubmit() })
	}
}

func (r *Root) moveCursor(dx, dy int) {
	size := r.snap.Challenge.GridSize
	if !r.snap.HasChallenge || size <= 0 {
		return
	}
	row, col := r.cursor/size, r.cursor%size
	row = clampInt(row+dy, 0, size-1)
	col = clampInt(col+dx, 0, size-1)
	r.cursor = row*size + col
}

func (r *Root) clampCursor() {
	cells := r.snap.Challenge.CellCount()
	if cells <= 0 {
		r.cursor = 0
		return
	}
	r.cursor = clampInt(r.cursor, 0, cells-1)
}

func (r *Root) renderTooSmall() string {
	msg := fmt.Sprintf("Terminal too small (%dx%d). Need at least 60x20.", r.cols, r.rows)
	return r.theme.Fail.Render(trimForWidth(msg, max(1, r.cols-1)))
}

func (r *Root) renderPlaying() string {
	w := r.cols
	header := r.theme.Header.Width(max(1, w)).Render(trimForWidth(r.headerText(), max(1, w-2)))
	status := r.statusText()
	bodyH := max(3, r.rows-2)

	size := max(r.snap.Challenge.GridSize, 1)
	gridPanelW := min(w, max(gridWidth(size)+4, 34))
	title := "Grid"
	if r.snap.HasChallenge && r.snap.Challenge.Title != "" {
		title = r.snap.Challenge.Title
	}
	left := r.gridLines()
	left = append(left, "")
	left = append(left, r.bannerLines()...)

	var body string
	if r.layout == LayoutWide {
		hudW := max(10, w-gridPanelW)
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			r.drawPanel(title, left, gridPanelW, bodyH),
			r.drawPanel("HUD", r.hudLines(hudW-4), hudW, bodyH),
		)
	} else {
		gridH := min(bodyH-3, len(left)+2)
		body = lipgloss.JoinVertical(lipgloss.Left,
			r.drawPanel(title, left, w, gridH),
			r.drawPanel("HUD", r.hudLines(w-4), w, bodyH-gridH),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (r *Root) headerText() string {
	parts := []string{"Grid Dojo"}
	if name := firstNonEmptyStr(r.header.SetName, r.header.SetID); name != "" {
		parts = append(parts, name)
	}
	if mode := firstNonEmptyStr(r.snap.Mode, r.header.Mode); mode != "" {
		parts = append(parts, "mode "+mode)
	}
	if r.header.Quality != "" {
		parts = append(parts, "net "+r.header.Quality)
	}
	parts = append(parts, string(r.snap.Status))
	sep := " │ "
	if r.ascii {
		sep = " | "
	}
	return strings.Join(parts, sep)
}

func (r *Root) statusText() string {
	keys := r.help.View(r.keymap)
	if keys == "" {
		keys = "space Select  enter Submit  n Next  r Retry  s Start  m Mode  tab Set  esc Reset  q Quit"
	}
	if r.snap.Pending {
		keys += " | " + r.theme.Pending.Render(strings.TrimSpace(r.spin.View())+" Loading")
	}
	if r.statusFlash != "" {
		keys += " | " + r.statusFlash
	}
	keys = ansi.Truncate(keys, max(1, r.cols-2), "…")
	return r.theme.Status.Width(max(1, r.cols)).Render(keys)
}

func (r *Root) gridLines() []string {
	s := r.snap
	if !s.HasChallenge {
		return []string{r.theme.Muted.Render("No challenges loaded.")}
	}
	size := s.Challenge.GridSize
	lines := make([]string, 0, size)
	for row := 0; row < size; row++ {
		cells := make([]string, 0, size)
		for col := 0; col < size; col++ {
			cells = append(cells, r.renderCell(row*size+col))
		}
		lines = append(lines, " "+strings.Join(cells, " "))
	}
	return lines
}

func (r *Root) renderCell(index int) string {
	s := r.snap
	selected := s.IsSelected(index)
	glyph := r.glyphFor(index)
	if selected {
		if r.ascii {
			glyph = ">" + glyph + "<"
		} else {
			glyph = "›" + glyph + "‹"
		}
	}

	style := r.theme.Cell
	switch {
	case selected && s.Status == session.StatusSuccess:
		style = r.theme.CellSolved
	case index == r.cursor && s.Active():
		style = r.theme.CellCursor
	case selected:
		style = r.theme.CellSelected
	}
	return style.Width(cellWidth - 1).Align(lipgloss.Center).Render(glyph)
}

func (r *Root) glyphFor(index int) string {
	if tile, ok := r.snap.Challenge.Tile(index); ok && tile.Glyph != "" {
		return tile.Glyph
	}
	if r.ascii {
		return "."
	}
	return "·"
}

func (r *Root) bannerLines() []string {
	s := r.snap
	switch {
	case s.Status == session.StatusIdle:
		if !s.HasChallenge {
			return nil
		}
		return []string{r.theme.Muted.Render("Press s or enter to start a run.")}
	case s.Finished:
		return []string{
			r.theme.Pass.Render(fmt.Sprintf("Run complete: %d solved, %d points.", s.Completed, s.TotalScore)),
			r.theme.Muted.Render("esc resets, s starts again."),
		}
	case s.TimerExpired:
		return []string{
			r.theme.Fail.Render(fmt.Sprintf("Time's up. Final score %d.", s.TotalScore)),
			r.theme.Muted.Render("esc resets, s starts again."),
		}
	case s.Status == session.StatusSuccess:
		lines := []string{}
		if s.LastScore != nil {
			lines = append(lines, r.theme.Pass.Render(fmt.Sprintf("Solved! +%d", s.LastScore.TotalPoints)))
			for _, d := range s.LastScore.Breakdown {
				if d.Points == 0 {
					continue
				}
				lines = append(lines, fmt.Sprintf("  %-11s %+d", d.Kind, d.Points))
			}
		} else {
			lines = append(lines, r.theme.Pass.Render("Solved!"))
		}
		return append(lines, r.theme.Muted.Render("enter or n for the next challenge."))
	case s.Status == session.StatusError && s.Evaluation != nil:
		return []string{
			r.theme.Fail.Render(fmt.Sprintf("Not quite: %d missing, %d extra.", s.Evaluation.Missing, s.Evaluation.Extra)),
			r.theme.Muted.Render("Adjust and press enter, or r to retry."),
		}
	case s.Pending:
		return []string{r.theme.Pending.Render(strings.TrimSpace(r.spin.View()) + " Loading challenge visuals...")}
	}
	return []string{r.theme.Muted.Render("Select every matching cell, then press enter.")}
}

func (r *Root) hudLines(width int) []string {
	s := r.snap
	barW := max(8, min(width, 32))
	lines := make([]string, 0, 16)

	label := fmt.Sprintf("Challenge %d/%d", s.Index+1, max(s.Total, 1))
	if s.Endless {
		label = fmt.Sprintf("Challenge %d · endless", s.Index+1)
	}
	lines = append(lines, r.theme.PanelTitle.Render(label))

	lines = append(lines, "Time   "+formatClock(s.TimeRemaining))
	lines = append(lines, r.barView(&r.timeBar, barW, ratio(s.TimeRemaining, s.TimeTotal)))

	lines = append(lines, fmt.Sprintf("Score  %d", int(math.Round(r.shownScore))))
	if s.LastScore != nil {
		lines = append(lines, r.theme.Muted.Render(fmt.Sprintf("Last   %+d", s.LastScore.TotalPoints)))
	}
	lines = append(lines, fmt.Sprintf("Streak %d  x%.2f", s.Streak, s.Multiplier))
	lines = append(lines, fmt.Sprintf("Solved %d  Attempts %d", s.Completed, s.Attempts))

	if s.Active() {
		if s.WarmupComplete {
			lines = append(lines, r.theme.Pass.Render("Warm-up ready"))
		} else {
			lines = append(lines, r.theme.Pending.Render(fmt.Sprintf("Warm-up %d%%", s.WarmupPercent)))
			lines = append(lines, r.barView(&r.warmBar, barW, float64(s.WarmupPercent)/100))
		}
	}

	if r.layout == LayoutWide {
		if prompt := r.promptLines(); len(prompt) > 0 {
			lines = append(lines, "")
			lines = append(lines, prompt...)
		}
	}
	return lines
}

func (r *Root) barView(bar *progress.Model, width int, pct float64) string {
	bar.SetWidth(width)
	return bar.ViewAs(pct)
}

// promptLines renders the challenge prompt once per challenge.
func (r *Root) promptLines() []string {
	c := r.snap.Challenge
	if !r.snap.HasChallenge {
		return nil
	}
	if cached, ok := r.prompts[c.ChallengeID]; ok {
		return cached
	}
	md := strings.TrimSpace(c.PromptMD)
	if md == "" {
		return nil
	}
	out := md
	if r.markdown != nil {
		rendered, err := r.markdown.Render(md)
		if err != nil {
			r.logger.Debug("ui.markdown_failed", "challenge", c.ChallengeID, "err", err)
		} else {
			out = strings.Trim(rendered, "\n")
		}
	}
	lines := strings.Split(out, "\n")
	r.prompts[c.ChallengeID] = lines
	return lines
}

func (r *Root) drawPanel(title string, lines []string, width, height int) string {
	width = max(4, width)
	height = max(3, height)
	innerW := width - 2
	innerH := height - 2

	h, v := "─", "│"
	tl, tr, bl, br := "┌", "┐", "└", "┘"
	if r.ascii {
		h, v = "-", "|"
		tl, tr, bl, br = "+", "+", "+", "+"
	}

	top := tl + strings.Repeat(h, innerW) + tr
	if title != "" && innerW > 2 {
		t := []rune(" " + trimForWidth(title, innerW-2) + " ")
		runes := []rune(top)
		for i, ch := range t {
			pos := 1 + i
			if pos >= len(runes)-1 {
				break
			}
			runes[pos] = ch
		}
		top = string(runes)
	}

	out := make([]string, 0, height)
	out = append(out, r.theme.PanelBorder.Render(top))
	for row := 0; row < innerH; row++ {
		line := ""
		if row < len(lines) {
			line = lines[row]
		}
		out = append(out, r.theme.PanelBorder.Render(v)+r.theme.PanelBody.Render(padANSI(line, innerW))+r.theme.PanelBorder.Render(v))
	}
	out = append(out, r.theme.PanelBorder.Render(bl+strings.Repeat(h, innerW)+br))
	return strings.Join(out, "\n")
}

func (r *Root) animateIfNeeded() tea.Cmd {
	if r.animating || !r.shouldAnimate() {
		return nil
	}
	if r.motionLevel == "off" {
		r.shownScore = float64(r.snap.TotalScore)
		return nil
	}
	r.animating = true
	return animateTickCmd()
}

func (r *Root) shouldAnimate() bool {
	target := float64(r.snap.TotalScore)
	return math.Abs(r.shownScore-target) > 0.5 || math.Abs(r.scoreVel) > 0.01
}

func clockTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func animateTickCmd() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return animateMsg(t) })
}

func spinnerTickCmd(model spinner.Model) tea.Cmd {
	return func() tea.Msg {
		return model.Tick()
	}
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func ratio(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(part)/float64(whole)))
}

func firstNonEmptyStr(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padANSI(s string, width int) string {
	s = ansi.Truncate(strings.ReplaceAll(s, "\n", " "), width, "")
	if w := ansi.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}

func trimForWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(strings.ReplaceAll(ansi.Strip(s), "\n", " "), width, "…")
}

func normalizeStyleVariant(v string) string {
	switch strings.TrimSpace(v) {
	case "cozy_clean", "retro_terminal", "modern_arcade":
		return strings.TrimSpace(v)
	default:
		return "modern_arcade"
	}
}

func normalizeMotionLevel(v string) string {
	switch strings.TrimSpace(v) {
	case "off", "reduced", "full":
		return strings.TrimSpace(v)
	default:
		return "full"
	}
}

func (r *Root) recordInputEvent(event string) {
	r.lastInputEvent = trimForWidth(strings.TrimSpace(event), 160)
}

func (r *Root) onModelPanic(where string, recovered any, msg tea.Msg) {
	if r.statusFlash == "" {
		r.statusFlash = "Recovered UI panic"
		r.flashAt = time.Now()
	}
	msgType := ""
	if msg != nil {
		msgType = fmt.Sprintf("%T", msg)
	}
	r.logger.Error("ui.panic_recovered",
		"where", where,
		"panic", fmt.Sprintf("%v", recovered),
		"message_type", msgType,
		"status", r.snap.Status,
		"layout", r.layout,
		"cols", r.cols,
		"rows", r.rows,
		"last_input", r.lastInputEvent,
		"stack", string(debug.Stack()),
	)
}

var _ tea.Model = (*Root)(nil)
var _ View = (*Root)(nil)
