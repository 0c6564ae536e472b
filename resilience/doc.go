// Package resilience provides failure isolation for calls to remote
// collaborators: protocol connections and model providers.
//
// # Patterns
//
//   - Circuit Breaker: stops calling an operation class after
//     FailureThreshold consecutive failures and admits trial calls again after
//     ResetTimeout. Transitions are published to StateListeners.
//
//   - Retry: retries transient failures with exponential backoff and
//     jitter, bounded by an overall timeout that yields ErrTimeout.
//
//   - Timeout: bounds a single attempt.
//
//   - Result: a tagged success / degraded / failure union for callers that
//     need to surface "service degraded" instead of a hard error.
//
// # Usage
//
//	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 3,
//	    ResetTimeout:     30 * time.Second,
//	}, nil)
//
//	policy := resilience.DefaultRetryPolicy()
//	policy.Timeout = 10 * time.Second
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(breakers.Get("llm.chat")),
//	    resilience.WithRetryPolicy(policy),
//	)
//
//	reply, err := resilience.Do(ctx, executor, func(ctx context.Context) (string, error) {
//	    return provider.Chat(ctx, prompt)
//	})
//	res := resilience.ResultOf(reply, err)
package resilience
