package service

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound is wrapped by every ConfigNotFoundError.
	ErrConfigNotFound = errors.New("config not found")

	// ErrInvalidConfig is wrapped by every InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

// User facing explanations for a missing channel mapping.
const (
	msgUnconfigured    = "Bot is unconfigured, or channel -> workflow mapping not found"
	msgChannelNotFound = "Channel not found in config"
)

// ConfigNotFoundError means no mapping applies to a channel, either because
// nothing is configured or because the channel is not listed. Its message is
// shown to users as is.
type ConfigNotFoundError struct {
	ChannelID string
	Reason    string
}

func (e *ConfigNotFoundError) Error() string {
	return e.Reason
}

func (e *ConfigNotFoundError) Unwrap() error {
	return ErrConfigNotFound
}

// InvalidConfigError rejects a configuration document that is not valid JSON.
type InvalidConfigError struct {
	Err error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", e.Err)
}

func (e *InvalidConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}
