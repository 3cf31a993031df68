package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"

	"github.com/google/uuid"
)

// CommandAction runs an external command, typically an audio player, and
// finishes when the process exits.
type CommandAction struct {
	flight
	name string
	args []string
}

// NewCommandAction creates an action running command[0] with the remaining
// elements as arguments.
func NewCommandAction(command []string, onFinished func()) (*CommandAction, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("alert command is required")
	}
	return &CommandAction{
		flight: flight{onFinished: onFinished},
		name:   command[0],
		args:   append([]string(nil), command[1:]...),
	}, nil
}

// Fire starts the command. The process is not tied to ctx: an alert that has
// started plays to the end even if monitoring stops.
func (a *CommandAction) Fire(ctx context.Context) error {
	id := uuid.New().String()
	if err := a.begin(id); err != nil {
		return err
	}

	cmd := exec.Command(a.name, a.args...)
	if err := cmd.Start(); err != nil {
		a.abort()
		return fmt.Errorf("failed to start alert command %q: %w", a.name, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("alert: WARNING - alert command %q exited: %v", a.name, err)
		}
		a.end(id)
	}()
	return nil
}
