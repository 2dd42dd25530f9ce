// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// apiTokenRate is the token refill rate for the api request bucket,
	// per second. Public endpoints are polled by the game frontend at a
	// controlled rate, so a small bucket is adequate.
	apiTokenRate = 10

	// apiBurst is the maximum token usage allowed per second for api
	// clients.
	apiBurst = 10

	// adminTokenRate is the token refill rate for the admin request
	// bucket, per second.
	adminTokenRate = 1

	// adminBurst is the maximum token usage allowed per second for admin
	// clients.
	adminBurst = 3

	// APIClient represents a public api client.
	APIClient = "api"

	// AdminClient represents an admin client.
	AdminClient = "admin"
)

// RateLimiter keeps connected clients within their allocated request rates.
type RateLimiter struct {
	mutex    sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter initializes a rate limiter.
func NewRateLimiter() *RateLimiter {
	limiters := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
	return limiters
}

// AddRequestLimiter adds a new client request limiter to the limiter set.
func (r *RateLimiter) AddRequestLimiter(ip string, clientType string) *rate.Limiter {
	var limiter *rate.Limiter
	switch clientType {
	case APIClient:
		limiter = rate.NewLimiter(apiTokenRate, apiBurst)
	case AdminClient:
		limiter = rate.NewLimiter(adminTokenRate, adminBurst)
	default:
		log.Errorf("unknown client type provided: %s", clientType)
		return nil
	}

	r.mutex.Lock()
	r.limiters[ip] = limiter
	r.mutex.Unlock()

	return limiter
}

// GetLimiter fetches the request limiter referenced by the provided
// IP address.
func (r *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	r.mutex.RLock()
	limiter := r.limiters[ip]
	r.mutex.RUnlock()

	return limiter
}

// RemoveLimiter deletes the request limiter associated with the provided ip.
func (r *RateLimiter) RemoveLimiter(ip string) {
	r.mutex.Lock()
	delete(r.limiters, ip)
	r.mutex.Unlock()
}

// WithinLimit asserts that the client referenced by the provided IP
// address is within the limits of the rate limiter, therefore can make
// further requests. If no request limiter is found for the provided IP
// address a new one is created.
func (r *RateLimiter) WithinLimit(ip string, clientType string) bool {
	reqLimiter := r.GetLimiter(ip)

	// create a new limiter if the incoming request is from a new client.
	if reqLimiter == nil {
		reqLimiter = r.AddRequestLimiter(ip, clientType)
	}

	return reqLimiter.Allow()
}
