package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codesquad/internal/logging"
)

const (
	driverMetaInstruction = "You are a meta-controller for an AI developer. Your job is to determine the next step."
	driverExcerptLen      = 300
)

// StartDriving enables autonomous driving toward a goal. The goal is
// frozen for the run; the first step fires after the driver delay.
func (c *Controller) StartDriving(sessionID, goal string) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return ErrSessionNotFound
	}
	s.Driving = true
	s.DrivingGoal = goal
	c.mu.Unlock()

	logging.Get(logging.CategoryDriver).Info("driving enabled on session %s", sessionID)
	c.scheduleDrive(sessionID)
	return nil
}

// StopDriving disables autonomous driving. Unknown sessions are a no-op.
func (c *Controller) StopDriving(sessionID string) {
	c.mu.Lock()
	if s, ok := c.sessions[sessionID]; ok {
		s.Driving = false
	}
	c.mu.Unlock()
	logging.Get(logging.CategoryDriver).Info("driving disabled on session %s", sessionID)
}

// scheduleDrive arms one driver step after the configured delay.
func (c *Controller) scheduleDrive(sessionID string) {
	go func() {
		time.Sleep(c.driverDelay)
		c.driveStep(sessionID)
	}()
}

// driveStep asks the meta-controller for the next prompt and sends it as
// an auto prompt. Driving stops when the session is gone, paused, busy,
// or the meta call fails or returns nothing.
func (c *Controller) driveStep(sessionID string) {
	log := logging.Get(logging.CategoryDriver)

	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !s.Driving || s.busy || s.awaitingID != 0 {
		c.mu.Unlock()
		return
	}
	goal := s.DrivingGoal
	excerpt := lastExcerpt(s.lastAIText(), driverExcerptLen)
	c.mu.Unlock()

	metaPrompt := fmt.Sprintf(
		"Goal: %s\n\nLast assistant output (excerpt):\n%s\n\n"+
			"Reply with the single next user prompt that moves toward the goal. "+
			"Reply with nothing at all if the goal is complete.",
		goal, excerpt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	next, err := c.complete(ctx, driverMetaInstruction, metaPrompt)
	if err != nil || strings.TrimSpace(next) == "" {
		if err != nil {
			log.Error("meta call failed on session %s: %v", sessionID, err)
		} else {
			log.Info("goal reached on session %s, stopping", sessionID)
		}
		c.StopDriving(sessionID)
		return
	}

	log.Debug("driving session %s with prompt_len=%d", sessionID, len(next))
	if _, err := c.send(ctx, sessionID, next, nil, true, 0, nil); err != nil {
		log.Error("driven turn failed on session %s: %v", sessionID, err)
	}
}

// lastExcerpt returns the trailing n characters of text.
func lastExcerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
