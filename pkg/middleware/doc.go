// Package middleware provides HTTP middleware for admin authentication and
// rate limiting of the public telemetry endpoint.
//
// # Admin authentication
//
// AdminAuthMiddleware accepts a bearer token when any configured TokenVerifier
// does and stores the verified subject with contextkeys.WithSubject:
//
//	verifier := middleware.ChainVerifier{
//	    oidcVerifier,                                  // OIDC ID tokens
//	    middleware.NewHMACVerifier(secret, "funnel"),  // HS256 service tokens
//	    middleware.NewStaticTokenVerifier(token, ""),  // break-glass token
//	}
//	admin.Use(middleware.AdminAuthMiddleware(verifier))
//
// # Rate limiting
//
// RateLimitMiddleware keys requests by client IP. RateLimiter keeps token
// buckets in process; DistributedRateLimiter shares a fixed window per client
// across replicas through Redis.
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Use(middleware.NewRateLimitMiddleware(limiter, true).Handler)
package middleware
