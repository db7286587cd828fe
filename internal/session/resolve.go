package session

import "github.com/matheus3301/wpdl/internal/config"

// Resolve determines the session to activate at startup using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. none (the UI selects or creates one)
func Resolve(flagOverride string, cfg *config.Config) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg != nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return ""
}
