// temporal/client.go
package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"promptsmith/config"
	"promptsmith/logging"
)

// NewClient dials the Temporal frontend described by cfg.
func NewClient(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	hostPort := cfg.HostPort
	if hostPort == "" {
		hostPort = client.DefaultHostPort
	}
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: cfg.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Error("Failed to create Temporal client", zap.String("hostPort", hostPort), zap.Error(err))
		return nil, fmt.Errorf("dial temporal %s: %w", hostPort, err)
	}
	logger.Info("Temporal client connected", zap.String("hostPort", hostPort), zap.String("namespace", cfg.Namespace))
	return c, nil
}
