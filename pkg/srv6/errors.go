// Package srv6 implements the SRv6 local-SID data model: the SID encoder,
// the per-area locator registry, the static SID table, the adjacency-SID
// manager and the installation controller that drives them all toward the
// forwarding plane.
package srv6

import "fmt"

// ConfigError reports a constraint violation at configuration ingress
// (§7). No state changes accompany a ConfigError: the caller's request is
// rejected whole.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("srv6: config error in %s: %s", e.Op, e.Msg)
}

// NewConfigError builds a ConfigError for the named operation.
func NewConfigError(op, format string, args ...any) *ConfigError {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ResourceMissing indicates a referenced VRF or interface is not yet live.
// It is non-fatal: the affected SID stays valid-but-not-sent and is
// retried when the matching resource event fires.
type ResourceMissing struct {
	Kind string // "vrf" or "interface"
	Name string
}

func (e *ResourceMissing) Error() string {
	return fmt.Sprintf("srv6: %s %q not live", e.Kind, e.Name)
}

// BrokerSendFailure wraps a socket write failure or a broker nack. The
// controller absorbs it and retries on the next relevant event.
type BrokerSendFailure struct {
	Op  string
	Err error
}

func (e *BrokerSendFailure) Error() string {
	return fmt.Sprintf("srv6: broker send failed during %s: %v", e.Op, e.Err)
}

func (e *BrokerSendFailure) Unwrap() error { return e.Err }

// ErrEncodeOverflow names the §7 EncodeOverflow condition: a message
// that would exceed the caller-supplied buffer. pkg/fpm does not return
// this value; its encoder reports overflow by returning 0 bytes written.
var ErrEncodeOverflow = fmt.Errorf("srv6: encode overflow")

// Internal reports a broken invariant — e.g. a SID marked sent but absent
// from its owning table. It is fatal: callers that detect one should call
// Fatal rather than try to continue.
type Internal struct {
	Msg string
}

func (e *Internal) Error() string {
	return fmt.Sprintf("srv6: internal invariant violated: %s", e.Msg)
}

// Fatal panics with an Internal error. Reserved for invariant violations
// that leave the in-memory catalogue inconsistent; there is no recovery
// path for these by design (§7).
func Fatal(format string, args ...any) {
	panic(&Internal{Msg: fmt.Sprintf(format, args...)})
}
