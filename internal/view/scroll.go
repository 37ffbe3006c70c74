// Package view holds presentation logic that is independent of any
// particular rendering toolkit.
package view

import "time"

const (
	// DefaultThreshold is how close to the bottom, in rows, the viewport
	// must be to count as following the conversation.
	DefaultThreshold = 2
	// DefaultSettleDelay is when the initial scroll is repeated, once
	// late content has changed the layout height.
	DefaultSettleDelay = 150 * time.Millisecond
)

type ScrollAction int

const (
	NoScroll ScrollAction = iota
	ScrollInstant
	ScrollAnimated
)

// Command tells the renderer what to do after a change.
type Command struct {
	Scroll ScrollAction
	// RepeatAfter asks for a second instant scroll after the delay.
	RepeatAfter time.Duration
	ShowJump    bool
}

// ScrollController decides when a message feed follows new messages and
// when it offers a "jump to latest" affordance instead.
type ScrollController struct {
	threshold   int
	settleDelay time.Duration

	initialDone bool
	atBottom    bool
	showJump    bool
	lastCount   int
}

func NewScrollController(threshold int, settleDelay time.Duration) *ScrollController {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &ScrollController{
		threshold:   threshold,
		settleDelay: settleDelay,
		atBottom:    true,
	}
}

// OnMessages is called after the message list changes with its new
// length. The bottom position used for the decision is the one reported
// before the append.
func (c *ScrollController) OnMessages(count int) Command {
	if count == 0 {
		c.lastCount = 0
		return c.command(NoScroll)
	}

	if !c.initialDone {
		c.initialDone = true
		c.atBottom = true
		c.showJump = false
		c.lastCount = count
		return Command{Scroll: ScrollInstant, RepeatAfter: c.settleDelay}
	}

	appended := count > c.lastCount
	c.lastCount = count
	if !appended {
		return c.command(NoScroll)
	}

	if c.atBottom {
		return c.command(ScrollAnimated)
	}
	c.showJump = true
	return c.command(NoScroll)
}

// OnViewport records the viewport's distance from the bottom, in rows.
func (c *ScrollController) OnViewport(distanceFromBottom int) {
	c.atBottom = distanceFromBottom <= c.threshold
	if c.atBottom {
		c.showJump = false
	}
}

func (c *ScrollController) JumpToLatest() Command {
	c.atBottom = true
	c.showJump = false
	return c.command(ScrollAnimated)
}

// Reset prepares the controller for a different room.
func (c *ScrollController) Reset() {
	c.initialDone = false
	c.atBottom = true
	c.showJump = false
	c.lastCount = 0
}

func (c *ScrollController) JumpVisible() bool {
	return c.showJump
}

func (c *ScrollController) AtBottom() bool {
	return c.atBottom
}

func (c *ScrollController) command(a ScrollAction) Command {
	return Command{Scroll: a, ShowJump: c.showJump}
}
