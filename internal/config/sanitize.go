package config

import "encoding/json"

const redacted = "***REDACTED***"

// Sanitized returns a deep copy of c with credentials and secrets replaced,
// safe to log or return from /v1/health.
func (c *Config) Sanitized() *Config {
	cp := c.deepCopy()
	cp.TargetStack.DatabaseURL = sanitizeURL(cp.TargetStack.DatabaseURL)
	cp.KillSwitch.Redis.Password = redacted
	return cp
}

func (c *Config) deepCopy() *Config {
	raw, err := json.Marshal(c)
	if err != nil {
		return c
	}
	var cp Config
	if err := json.Unmarshal(raw, &cp); err != nil {
		return c
	}
	return &cp
}

func sanitizeURL(url string) string {
	if url == "" {
		return url
	}
	return redacted
}
