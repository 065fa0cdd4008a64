/*
Package circuit implements circuit breaker functionality for the proxy.

It provides two types of circuit breakers: consecutive and failure rate based. The circuit breakers are
configured per backend server. The registry ensures synchronized access to the active breakers and the
recycling of the idle ones.

The circuit breakers are always assigned to backend servers, so that the outcome of requests to one backend
never affects the circuit breaker behavior of another.

# Breaker Type - Consecutive Failures

This breaker opens when the proxy couldn't connect to a backend or received a >=500 status code at least N times
in a row. When open, the proxy returns 503 - Service Unavailable response during the breaker timeout. After this
timeout, the breaker goes into half-open state, in which it expects that M number of requests succeed. The
requests in the half-open state are accepted concurrently. If any of the requests during the half-open state
fails, the breaker goes back to open state. If all succeed, it goes to closed state again.

# Breaker Type - Failure Rate

The "rate breaker" works similar to the "consecutive breaker", but instead of considering N consecutive failures
for going open, it maintains a sliding window of the last M events, both successes and failures, and opens only
when the number of failures reaches N within the window. This way the sliding window is not time based and
allows the same breaker characteristics for high and low rate traffic.

# Usage

The Registry holds the circuit breakers and their settings. It is built with NewRegistry from an Options value:
global Defaults, per-backend-server HostSettings, and the registry-wide IdleTTL. Within this module,
health.NewBreakerRegistry builds one registry with consecutive-failure defaults and requests a breaker per
backend server address.

The breaker settings can be defined at two levels: global defaults, and per-backend-server overrides. The values
are merged in that order, so the global settings serve as defaults for the per-server settings.

# Settings - Type

It can be ConsecutiveFailures or FailureRate, selecting which breaker implementation backs a given server.

# Settings - Host

The Host field identifies the backend server a set of settings applies to. Leaving it empty indicates global
settings.

# Settings - Window

The window value sets the size of the sliding counter window of the failure rate breaker.

# Settings - Failures

The failures value sets the max failure count for both the "consecutive" and "rate" breakers.

# Settings - Timeout

With the timeout we can set how long the breaker should stay open, before becoming half-open.

# Settings - Half-Open Requests

Defines the number of requests expected to succeed while the circuit breaker is in the half-open state before it
closes again; see health.NewBreakerRegistry, which fixes this at 3 to match the close-after-three-successes
requirement of the backend health model.

# Settings - Idle TTL

The registry recycles a circuit breaker that hasn't been requested for longer than Options.IdleTTL (one hour when
unset). The IdleTTL field of BreakerSettings is merged from the defaults like the other fields, but the registry
does not consult it.

# Proxy Usage

The proxy, when circuit breakers are configured, uses them for backend connections. It checks the breaker for
the current backend server if it's closed before making backend requests. It reports the outcome of the request to
the breaker, considering connection failures and backend responses with status code >=500 as failures. When the
breaker is open, the proxy doesn't try to make backend requests, and returns a response with a status code of
503 and appending a header to the response:

	X-Circuit-Open: true

# Registry

The active circuit breakers are stored in a registry. They are created on-demand, for the requested settings.
The registry synchronizes access to the shared circuit breakers. When the registry detects that a circuit
breaker is idle, it resets it, this way avoiding that an old series of failures would cause the circuit breaker
go open after an unreasonably low number of recent failures. The registry also makes sure to cleanup idle
circuit breakers that are not requested anymore by the proxy. This happens in a passive way, whenever a new
circuit breaker is created. The cleanup prevents storing circuit breakers for inaccessible backend hosts
infinitely in those scenarios where the route configuration is continuously changing.
*/
package circuit
