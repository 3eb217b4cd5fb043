/*
Package resilience provides a circuit breaker for calls to the backend.

When the catalog, entitlement or token endpoints are down, every sync and
every session start would otherwise wait out a full timeout. The breaker
opens after Threshold consecutive failures, fails calls fast with
ErrCircuitOpen for Cooldown, then admits Probes trial calls before closing.

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                            Open

Usage:

	breaker := resilience.New("backend", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})
	err := breaker.Do(func() error {
		return client.Call(ctx)
	})
*/
package resilience
