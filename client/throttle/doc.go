// Package throttle rate-limits outbound exchanges using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Build a [Limiter] and call [Limiter.Wait] before every wire exchange:
//
//	lim, err := throttle.New(
//		10, // requests per second
//		5,  // burst capacity
//		func() *slog.Logger { return slog.Default() },
//	)
//	if err := lim.Wait(ctx, "example.com:443"); err != nil { ... }
//
// When the rate limit is exceeded, Wait blocks until a token becomes
// available or the context is cancelled. Redirect hops and the
// authentication retry each consume a token of their own.
package throttle
