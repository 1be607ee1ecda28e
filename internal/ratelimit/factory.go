package ratelimit

// NewLimiters builds one fixed-window limiter per policy, all sharing store.
func NewLimiters(store Store, policies map[string]Policy) map[string]Limiter {
	limiters := make(map[string]Limiter, len(policies))
	for class, policy := range policies {
		if policy.Window <= 0 {
			policy.Window = DefaultWindow
		}
		if policy.Class == "" {
			policy.Class = class
		}
		limiters[class] = NewFixedWindow(store, policy)
	}
	return limiters
}
