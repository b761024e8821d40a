package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/glowroutine/internal/conversation"
	"github.com/hammamikhairi/glowroutine/internal/display"
	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/pending"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
	"github.com/hammamikhairi/glowroutine/internal/timer"
)

const defaultRunLogFile = ".glow-logs/glowroutine.log"

func runCmd(flags *rootFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk through a routine in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlayer(ctx, flags, userID)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "demo", "user id")
	return cmd
}

func runPlayer(ctx context.Context, flags *rootFlags, userID string) error {
	d, err := setup(ctx, flags, defaultRunLogFile)
	if err != nil {
		return err
	}
	defer d.Close()
	log := d.log

	// Cancelled when the UI quits.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := &cliApp{
		userID: userID,
		parser: conversation.NewKeywordParser(log),
		log:    log,
		seen:   make(map[string]stepKey),
	}
	eng := d.newEngine(
		engine.WithRewards(d.rewards(app)),
		engine.WithListener(app.onSnapshot),
	)
	defer eng.Shutdown(context.Background())
	app.engine = eng

	ui := display.NewUI(eng)
	app.ui = ui

	notifier := d.notifier(conversation.NewCLINotifier(log, ui.Printf))
	watcher := timer.NewWatcher(d.store, d.catalog, notifier, log,
		timer.WithWatchInterval(d.cfg.Watcher.Interval),
	)
	go watcher.Run(ctx)

	if d.cfg.Catalog.Watch {
		go func() {
			if err := d.catalog.Watch(ctx, catalogDebounce); err != nil {
				log.Error("catalog watch stopped: %v", err)
			}
		}()
	}

	unsubscribe, err := eng.Subscribe(ctx, userID, func(*domain.UserRoutineData) {
		log.Debug("selections changed for %s", userID)
	})
	if err != nil {
		log.Warn("subscribing to selection changes: %v", err)
	} else {
		defer unsubscribe()
	}

	fmt.Println(display.RenderBanner())
	fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	return nil
}

// stepKey identifies a position in a session; ticks do not change it.
type stepKey struct {
	state sequencer.State
	index int
	set   int
}

type cliApp struct {
	engine *engine.Engine
	parser domain.IntentParser
	log    *logger.Logger
	ui     *display.UI
	userID string

	mu        sync.Mutex
	sessionID string             // current active session
	seen      map[string]stepKey // last described position per session
	flow      *pending.Flow      // open pending-product prompt
}

var _ domain.RewardSink = (*cliApp)(nil)

// XPEarned shows awards and penalties as they happen.
func (a *cliApp) XPEarned(_ context.Context, ev domain.XPEvent) error {
	a.ui.PrintXP(ev.Amount)
	return nil
}

func (a *cliApp) SkipTracked(context.Context, domain.SkipEvent) error { return nil }

func (a *cliApp) run(ctx context.Context) {
	a.ui.PrintChat("Good to see you. Which routine are we doing?")
	a.showSections(ctx)

	uiCh := a.ui.InputChan()
	for {
		var input string
		select {
		case <-ctx.Done():
			return
		case v, ok := <-uiCh:
			if !ok {
				return
			}
			input = strings.TrimSpace(v)
		}
		if input == "" {
			continue
		}

		// An open name prompt takes the raw line as the product name.
		if f := a.currentFlow(); f != nil && f.State() == pending.StateHave {
			if intent, _ := a.parser.Parse(ctx, input); intent.Type != domain.IntentCancel && intent.Type != domain.IntentQuit {
				a.submitProduct(ctx, input)
				continue
			}
		}

		intent, err := a.parser.Parse(ctx, input)
		if err != nil {
			a.log.Error("parsing input: %v", err)
			continue
		}
		a.log.Debug("intent: %s (payload=%q)", intent.Type, intent.Payload)
		if quit := a.handleIntent(ctx, intent); quit {
			return
		}
	}
}

func (a *cliApp) handleIntent(ctx context.Context, intent *domain.Intent) bool {
	switch intent.Type {
	case domain.IntentHelp:
		a.showHelp()
	case domain.IntentListSections:
		a.showSections(ctx)
	case domain.IntentStartSection:
		a.startSection(ctx, intent.Payload)
	case domain.IntentDone:
		a.dispatch(ctx, sequencer.EventMarkDone)
	case domain.IntentNext:
		a.dispatch(ctx, sequencer.EventNext)
	case domain.IntentSkipStep:
		a.dispatch(ctx, sequencer.EventSkipStep)
	case domain.IntentSkipWait:
		a.dispatch(ctx, sequencer.EventSkipWait)
	case domain.IntentStatus:
		a.status()
	case domain.IntentHaveProduct:
		a.haveProduct(ctx, intent.Payload)
	case domain.IntentDontHave:
		a.dontHave(ctx)
	case domain.IntentDeferProduct:
		a.deferProduct(ctx, intent.Payload)
	case domain.IntentSkipProduct:
		a.skipProduct(ctx)
	case domain.IntentCancel:
		a.cancelFlow()
	case domain.IntentQuit:
		a.closeSession(ctx)
		a.ui.PrintChat("See you next time. Your skin says thanks.")
		return true
	default:
		a.ui.PrintHint(fmt.Sprintf("Didn't catch %q. Type 'help' for commands.", intent.Payload))
	}
	return false
}

func (a *cliApp) showHelp() {
	a.ui.PrintStep("Commands")
	for _, line := range []string{
		"morning | evening | exercises   start a routine",
		"sections                        list today's routines",
		"done                            finish the current step or set",
		"next                            move on to the next step",
		"skip                            skip the current step",
		"skip wait                       cut a wait short (-5 XP)",
		"status                          where am I, how much XP",
		"have <product>                  I have a pending product",
		"later                           I don't have it yet",
		"defer 1|3|7                     remind me in a few days",
		"skip product                    drop it from my routine",
		"quit                            leave",
	} {
		a.ui.PrintInstruction(line)
	}
}

func (a *cliApp) showSections(ctx context.Context) {
	sections, err := loadSections(ctx, a.engine, a.userID, "")
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Error loading routines: %v", err))
		return
	}
	if len(sections) == 0 {
		a.ui.PrintHint("Nothing to do yet: pick some products first.")
		return
	}
	for _, sec := range sections {
		a.ui.PrintStep(fmt.Sprintf("%s: %d steps, ~%s, %d XP", sec.Name, len(sec.Steps), fmtSeconds(sec.EstimatedDuration), sequencer.TotalXP(sec)))
		for _, st := range sec.Steps {
			line := "  " + st.Label()
			if st.IsPending {
				line += " (not confirmed yet)"
			}
			a.ui.PrintHint(line)
		}
	}
}

func (a *cliApp) startSection(ctx context.Context, raw string) {
	name, err := domain.ParseSectionName(raw)
	if err != nil {
		a.ui.PrintUrgent(err.Error())
		return
	}
	a.closeSession(ctx)

	info, err := a.engine.StartSession(ctx, a.userID, name)
	if err != nil {
		if errors.Is(err, domain.ErrEmptySection) {
			a.ui.PrintHint(fmt.Sprintf("Your %s routine is empty.", name))
			return
		}
		a.ui.PrintUrgent(fmt.Sprintf("Couldn't start %s: %v", name, err))
		return
	}

	a.mu.Lock()
	a.sessionID = info.ID
	a.mu.Unlock()

	intro := fmt.Sprintf("Let's do your %s routine: %d steps, %d XP up for grabs.", name, info.Snapshot.StepCount, info.Snapshot.TotalXP)
	if info.Snapshot.Redo {
		intro = fmt.Sprintf("Back for another %s round? No penalties this time, but no new XP either.", name)
	}
	a.ui.PrintChat(intro)
	a.describe(info.ID, info.Snapshot)
}

func (a *cliApp) currentSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *cliApp) dispatch(ctx context.Context, ev sequencer.EventType) {
	id := a.currentSession()
	if id == "" {
		a.ui.PrintHint("No routine running. Type 'morning', 'evening' or 'exercises'.")
		return
	}
	if _, err := a.engine.Dispatch(ctx, id, ev); err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionComplete):
			a.ui.PrintHint("This routine is done. Start another one whenever you like.")
		case errors.Is(err, domain.ErrInvalidTransition):
			a.ui.PrintHint(invalidHint(ev))
		default:
			a.ui.PrintUrgent(fmt.Sprintf("Error: %v", err))
		}
	}
}

func invalidHint(ev sequencer.EventType) string {
	switch ev {
	case sequencer.EventMarkDone:
		return "Still waiting. Type 'skip wait' if you can't wait."
	case sequencer.EventSkipWait:
		return "There's no wait running. Type 'done' when you've finished this step."
	default:
		return "Can't do that right now."
	}
}

// onSnapshot prints a step whenever a session moves. Timer ticks only
// update the status bar.
func (a *cliApp) onSnapshot(sessionID string, snap sequencer.Snapshot) {
	key := stepKey{state: snap.State, index: snap.StepIndex, set: snap.CurrentSet}
	a.mu.Lock()
	prev, ok := a.seen[sessionID]
	changed := !ok || prev != key
	a.mu.Unlock()
	if !changed {
		return
	}
	if ok && prev.state == sequencer.StateWaiting && snap.State == sequencer.StateIdle {
		a.ui.PrintChat("Time's up.")
	}
	a.describe(sessionID, snap)
}

func (a *cliApp) describe(sessionID string, snap sequencer.Snapshot) {
	a.mu.Lock()
	switch snap.State {
	case sequencer.StateClosed:
		delete(a.seen, sessionID)
	case sequencer.StateComplete:
		// The engine drops finished sessions.
		delete(a.seen, sessionID)
		if a.sessionID == sessionID {
			a.sessionID = ""
		}
	default:
		a.seen[sessionID] = stepKey{state: snap.State, index: snap.StepIndex, set: snap.CurrentSet}
	}
	a.mu.Unlock()

	switch snap.State {
	case sequencer.StateComplete:
		a.ui.PrintStep(fmt.Sprintf("%s routine complete! %d/%d XP", snap.Section, snap.XPEarned, snap.TotalXP))
		return
	case sequencer.StateWaiting:
		a.ui.PrintHint(fmt.Sprintf("Let it absorb: %s before the next step ('skip wait' to rush, -5 XP).", fmtSeconds(snap.WaitRemaining)))
		return
	case sequencer.StateClosed:
		return
	}

	st := snap.Step
	if st == nil {
		return
	}
	header := fmt.Sprintf("Step %d/%d · %s", snap.StepIndex+1, snap.StepCount, st.Label())
	if snap.TotalSets > 0 {
		header += fmt.Sprintf(" · set %d/%d", snap.CurrentSet, snap.TotalSets)
	}
	a.ui.PrintStep(header)

	if st.IsPending {
		a.ui.PrintHint("You haven't confirmed this product yet. 'have <product>' if you've got it, 'later' if not, 'done' to move on.")
		return
	}
	if st.Session.Action != "" {
		a.ui.PrintInstruction(st.Session.Action)
	}
	if v := variation(st); v != nil {
		a.ui.PrintHint(fmt.Sprintf("Hold %ds, release %ds.", v.HoldSeconds, v.ReleaseSeconds))
	}
	if st.Session.Tip != nil && *st.Session.Tip != "" {
		a.ui.PrintHint("Tip: " + *st.Session.Tip)
	}
}

func variation(st *domain.RoutineStep) *domain.Variation {
	if st.Exercise == nil {
		return nil
	}
	return st.Exercise.TodayVariation
}

func (a *cliApp) status() {
	id := a.currentSession()
	if id == "" {
		a.ui.PrintHint("No routine running.")
		return
	}
	info, err := a.engine.Status(id)
	if err != nil {
		a.ui.PrintHint("No routine running.")
		return
	}
	snap := info.Snapshot
	a.ui.PrintStep(fmt.Sprintf("%s: step %d/%d, %s, %d/%d XP", info.Section, min(snap.StepIndex+1, snap.StepCount), snap.StepCount, snap.State, snap.XPEarned, snap.TotalXP))
}

func (a *cliApp) closeSession(ctx context.Context) {
	a.mu.Lock()
	id := a.sessionID
	a.sessionID = ""
	delete(a.seen, id)
	a.mu.Unlock()
	if id != "" {
		_ = a.engine.CloseSession(ctx, id)
	}
}

// ── Pending products ─────────────────────────────────────────────

func (a *cliApp) currentFlow() *pending.Flow {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flow != nil && a.flow.State() == pending.StateClosed {
		a.flow = nil
	}
	return a.flow
}

// openFlow returns the open prompt or starts one for the pending product
// in front of the user: the current ghost step, else the first one in
// today's routine.
func (a *cliApp) openFlow(ctx context.Context) *pending.Flow {
	if f := a.currentFlow(); f != nil {
		return f
	}
	id := a.pendingTarget(ctx)
	if id == "" {
		a.ui.PrintHint("No products are waiting for an answer.")
		return nil
	}
	f := a.engine.NewPendingFlow(a.userID, id)
	a.mu.Lock()
	a.flow = f
	a.mu.Unlock()
	return f
}

func (a *cliApp) pendingTarget(ctx context.Context) string {
	if id := a.currentSession(); id != "" {
		if info, err := a.engine.Status(id); err == nil {
			if st := info.Snapshot.Step; st != nil && st.IsPending {
				return st.ID
			}
		}
	}
	sections, err := a.engine.Sections(ctx, a.userID)
	if err != nil {
		return ""
	}
	for _, sec := range sections {
		for _, st := range sec.Steps {
			if st.IsPending {
				return st.ID
			}
		}
	}
	return ""
}

func (a *cliApp) haveProduct(ctx context.Context, name string) {
	f := a.openFlow(ctx)
	if f == nil {
		return
	}
	if f.State() == pending.StateInitial {
		if err := f.ChooseHave(); err != nil {
			a.ui.PrintHint(err.Error())
			return
		}
	}
	if name == "" {
		a.ui.PrintChat(fmt.Sprintf("Nice. What's the %s product called? ('cancel' to go back)", f.IngredientID()))
		return
	}
	a.submitProduct(ctx, name)
}

func (a *cliApp) submitProduct(ctx context.Context, name string) {
	f := a.currentFlow()
	if f == nil {
		return
	}
	if err := f.Submit(ctx, name); err != nil {
		a.flowError(err)
		return
	}
	a.ui.PrintChat(fmt.Sprintf("Saved %s. It shows up as a normal step from your next routine.", strings.TrimSpace(name)))
}

func (a *cliApp) dontHave(ctx context.Context) {
	f := a.openFlow(ctx)
	if f == nil {
		return
	}
	if err := f.ChooseDontHave(); err != nil {
		a.flowError(err)
		return
	}
	a.ui.PrintChat("No worries. 'defer 1', 'defer 3' or 'defer 7' to be reminded, or 'skip product' to drop it.")
}

func (a *cliApp) deferProduct(ctx context.Context, raw string) {
	days, err := strconv.Atoi(raw)
	if err != nil {
		a.ui.PrintHint("Defer by 1, 3 or 7 days.")
		return
	}
	f := a.openFlow(ctx)
	if f == nil {
		return
	}
	if f.State() == pending.StateInitial {
		_ = f.ChooseDontHave()
	}
	if f.State() == pending.StateDontHave {
		if err := f.ChooseDefer(); err != nil {
			a.flowError(err)
			return
		}
	}
	if err := f.DeferFor(ctx, days); err != nil {
		a.flowError(err)
		return
	}
	a.ui.PrintChat(fmt.Sprintf("Got it. I'll ask about %s again in %d day(s).", f.IngredientID(), days))
}

func (a *cliApp) skipProduct(ctx context.Context) {
	f := a.openFlow(ctx)
	if f == nil {
		return
	}
	if f.State() == pending.StateInitial {
		_ = f.ChooseDontHave()
	}
	if f.State() == pending.StateDontHave {
		if err := f.ChooseSkip(); err != nil {
			a.flowError(err)
			return
		}
	}
	if err := f.ConfirmSkip(ctx); err != nil {
		a.flowError(err)
		return
	}
	a.ui.PrintChat(fmt.Sprintf("Dropped %s from your routine.", f.IngredientID()))
}

func (a *cliApp) cancelFlow() {
	f := a.currentFlow()
	if f == nil {
		a.ui.PrintHint("Nothing to cancel.")
		return
	}
	if err := f.Cancel(); err != nil {
		a.ui.PrintHint("Pick an option first: 'defer 1|3|7' or 'skip product'.")
		return
	}
	a.ui.PrintHint("Cancelled.")
}

func (a *cliApp) flowError(err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyProductName):
		a.ui.PrintHint("The product needs a name.")
	case errors.Is(err, domain.ErrInvalidDeferral):
		a.ui.PrintHint("Defer by 1, 3 or 7 days.")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.ui.PrintHint("That doesn't fit here. Type 'cancel' to start over.")
	default:
		a.ui.PrintUrgent(fmt.Sprintf("Couldn't save that: %v", err))
	}
}
