package config

import "time"

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Server:  DefaultServerConfig(),
		Fetch:   DefaultFetchConfig(),
		Remote:  DefaultRemoteConfig(),
		Session: DefaultSessionConfig(),
		Log:     DefaultLogConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// DefaultServerConfig points at a server on the conventional local port.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		BaseURL:     "http://127.0.0.1:8188",
		HTTPTimeout: 120 * time.Second,
	}
}

// DefaultFetchConfig retries transient fetch failures with modest backoff and
// leaves the rate uncapped.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		MaxRetries:   3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// DefaultRemoteConfig probes a cold worker patiently; GPU instances can take
// a minute to come up.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		ReadyRetries:  30,
		ReadyInterval: 2 * time.Second,
	}
}

// DefaultSessionConfig applies no run bound.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{}
}

// DefaultLogConfig logs JSON at info to stdout.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultMetricsConfig leaves metrics off until a caller opts in.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "commander",
	}
}
