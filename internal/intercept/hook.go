package intercept

import (
	"net/http"
	"sync"
)

// Hook installs a round tripper at a process-wide interception point.
// Implementations must be idempotent and reversible.
type Hook interface {
	Install(rt http.RoundTripper)
	Uninstall()
	Installed() bool
}

// DefaultHook replaces http.DefaultTransport and http.DefaultClient's
// transport, the two places clients built with default configuration get
// their round tripper from.
type DefaultHook struct {
	mu              sync.Mutex
	installed       bool
	savedTransport  http.RoundTripper
	savedClientTrip http.RoundTripper
}

// Install swaps in rt. Calling it again while installed is a no-op.
func (h *DefaultHook) Install(rt http.RoundTripper) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.installed {
		return
	}
	h.savedTransport = http.DefaultTransport
	h.savedClientTrip = http.DefaultClient.Transport

	http.DefaultTransport = rt
	http.DefaultClient.Transport = rt
	h.installed = true
}

// Uninstall restores the saved originals.
func (h *DefaultHook) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.installed {
		return
	}
	http.DefaultTransport = h.savedTransport
	http.DefaultClient.Transport = h.savedClientTrip
	h.savedTransport, h.savedClientTrip = nil, nil
	h.installed = false
}

// Installed reports whether the hook is active.
func (h *DefaultHook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

// ClientHook installs into a single client, for applications that build
// their own clients from a shared factory.
type ClientHook struct {
	Client *http.Client

	mu        sync.Mutex
	installed bool
	saved     http.RoundTripper
}

// Install swaps in rt. Calling it again while installed is a no-op.
func (h *ClientHook) Install(rt http.RoundTripper) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.installed {
		return
	}
	h.saved = h.Client.Transport
	h.Client.Transport = rt
	h.installed = true
}

// Uninstall restores the client's original transport.
func (h *ClientHook) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.installed {
		return
	}
	h.Client.Transport = h.saved
	h.saved = nil
	h.installed = false
}

// Installed reports whether the hook is active.
func (h *ClientHook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}
