package executor

import (
	"OffloadEngine/errs"
)

// Descriptor describes one remote service call.
type Descriptor struct {
	// Service is the registered service name or one of its aliases.
	Service string `json:"service"`
	// Options configure the client connection, e.g. endpoint or credentials.
	Options map[string]any `json:"options,omitempty"`
	// Operation is the service operation to invoke.
	Operation string `json:"operation"`
	Input     map[string]any `json:"input,omitempty"`
	// Headers are attached to the outgoing request when the service supports them.
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate is safe to call on a nil descriptor.
func (d *Descriptor) Validate() error {
	if d == nil {
		return errs.New(errs.ErrInvalidDescriptor, "descriptor is nil")
	}
	if d.Service == "" {
		return errs.New(errs.ErrInvalidDescriptor, "service name is required")
	}
	if d.Operation == "" {
		return errs.New(errs.ErrInvalidDescriptor, "operation name is required")
	}
	return nil
}
