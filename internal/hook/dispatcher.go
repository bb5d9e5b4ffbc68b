package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Dispatcher runs every hook subscribed to an event, one after another.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
}

// NewDispatcher creates a Dispatcher over discovered hooks.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	return &Dispatcher{manager: manager, executor: executor}
}

// Notify marshals payload and sends it to the subscribed hooks. A failing
// hook does not stop the others; all failures are returned joined.
func (d *Dispatcher) Notify(ctx context.Context, event, sessionID, objectID string, payload any) error {
	hooks := d.manager.ForEvent(event)
	if len(hooks) == 0 {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	req := &Request{
		Event:     event,
		SessionID: sessionID,
		ObjectID:  objectID,
		Payload:   raw,
	}

	var errs []error
	for _, h := range hooks {
		resp, err := d.executor.Execute(ctx, h, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("hook %s: %s", h.Manifest.Name, resp.Error))
		}
	}
	return errors.Join(errs...)
}
