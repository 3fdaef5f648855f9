// Package relay mediates between declarative view configuration and a native
// web view control.
//
// Ownership model:
//   - The host owns view handles and drives the relay: property batches,
//     commit signals, numeric commands, detach.
//   - The relay owns per-view state (pending source, injected script) and the
//     control's lifecycle subscriptions, and translates control callbacks
//     into outbound events delivered through sinks.
//   - The control (see Control) owns actual navigation, history and script
//     execution; pkg/headless provides an in-process implementation.
//
// Updates for a single handle are applied in arrival order; independent
// handles can be attached and detached concurrently.
package relay
