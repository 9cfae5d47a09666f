// Package commander provides a top-level convenience entry point for running
// node-graph workflows on a generative-media execution server.
//
// Usage:
//
//	import "github.com/comfygo/commander"
//
//	g, err := commander.Load("workflow_api.json")
//	conn := commander.Connect("http://127.0.0.1:8188")
//	defer conn.Close()
//	sess, results, err := commander.Execute(ctx, conn, g)
//
// The root package is a thin wrapper over [graph], [client], and [session];
// use those packages directly when you need finer control.
package commander

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/comfygo/commander/client"
	"github.com/comfygo/commander/config"
	"github.com/comfygo/commander/graph"
	"github.com/comfygo/commander/internal/retry"
	"github.com/comfygo/commander/session"
)

// Load reads a workflow exported in API format from path.
func Load(path string) (*graph.Graph, error) {
	return graph.FromFile(path)
}

// Parse reads a workflow exported in API format from raw bytes.
func Parse(data []byte) (*graph.Graph, error) {
	return graph.Parse(data)
}

// Connect creates a connection to the server at baseURL.
func Connect(baseURL string, opts ...client.Option) *client.LocalConnection {
	return client.NewLocalConnection(baseURL, opts...)
}

// ConnectConfig creates a connection from a loaded configuration, wiring the
// fetch policy and rate limit it describes.
func ConnectConfig(cfg *config.Config, opts ...client.Option) *client.LocalConnection {
	base := []client.Option{
		client.WithFetchPolicy(&retry.Policy{
			MaxRetries:   cfg.Fetch.MaxRetries,
			InitialDelay: cfg.Fetch.InitialDelay,
			MaxDelay:     cfg.Fetch.MaxDelay,
			Multiplier:   cfg.Fetch.Multiplier,
			Jitter:       true,
		}),
	}
	if cfg.Fetch.RateRPS > 0 {
		base = append(base, client.WithFetchRate(cfg.Fetch.RateRPS, cfg.Fetch.RateBurst))
	}
	return client.NewLocalConnection(cfg.Server.BaseURL, append(base, opts...)...)
}

// Execute submits g over conn and blocks until the job reaches a terminal
// state. A failed job is reported through the session's state and failure
// reason, not through the error.
func Execute(ctx context.Context, conn client.Connection, g *graph.Graph, opts ...session.RunOption) (*session.Session, *session.Results, error) {
	sess, err := session.Run(ctx, conn, g, opts...)
	if err != nil {
		return nil, nil, err
	}
	results, err := sess.Wait(ctx)
	if err != nil {
		return sess, nil, err
	}
	return sess, results, nil
}

// NewLogger builds a zap logger from a log configuration.
func NewLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
