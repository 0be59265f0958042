// Package ratelimit paces image downloads so a batch of URLs from one
// host does not arrive as a burst.
//
// Two strategies are available and both satisfy Limiter:
//
//   - TokenBucket allows a burst up to its capacity, then one request per
//     refill interval.
//   - SlidingWindow allows at most N requests in any trailing window.
//
// NewFromConfig picks one from the rate_limit section of the config file:
//
//	limiter, err := ratelimit.NewFromConfig(cfg.RateLimit)
//	if err != nil {
//		return err
//	}
//	if err := limiter.Wait(ctx); err != nil {
//		return err // ctx ended
//	}
package ratelimit
