// Package service provides the conversation routing and admin logic of the bot.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/internal/store"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
)

// emptyConfig is written over a stored document that fails to decode.
var emptyConfig = []byte("[]")

// ConfigService reads and replaces the channel configuration document.
type ConfigService struct {
	kv     store.KV
	key    string
	logger *logger.Logger
}

// NewConfigService creates a config service storing the document under key.
func NewConfigService(kv store.KV, key string, log *logger.Logger) *ConfigService {
	return &ConfigService{
		kv:     kv,
		key:    key,
		logger: log,
	}
}

// Load decodes the stored document. It never fails: a missing key, a store
// error, content that is not a list or an empty list all report false. Only
// content that is not JSON at all is replaced by an empty list; a well-formed
// document is never overwritten here. Entries that do not decode as a
// mapping are skipped.
func (s *ConfigService) Load(ctx context.Context) (model.ChannelConfig, bool) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("failed to read channel config", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if !json.Valid(raw) {
		s.logger.Warn("stored channel config is malformed, resetting")
		if err := s.kv.Set(ctx, s.key, emptyConfig); err != nil {
			s.logger.Error("failed to reset channel config", zap.Error(err))
		}
		return nil, false
	}

	cfg, skipped, err := decodeChannelConfig(raw)
	if err != nil {
		s.logger.Warn("stored channel config is not a list of mappings", zap.Error(err))
		return nil, false
	}
	for _, err := range skipped {
		s.logger.Warn("skipping channel config entry", zap.Error(err))
	}

	if dups := cfg.Duplicates(); len(dups) > 0 {
		s.logger.Warn("channel config has duplicate channels, first entry wins", zap.Strings("channels", dups))
	}

	if len(cfg) == 0 {
		return nil, false
	}
	return cfg, true
}

// decodeChannelConfig decodes a JSON list entry by entry. Entries that do
// not decode are reported in skipped and left out of the result.
func decodeChannelConfig(raw []byte) (cfg model.ChannelConfig, skipped []error, err error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, err
	}

	cfg = make(model.ChannelConfig, 0, len(entries))
	for i, entry := range entries {
		var m model.ChannelMapping
		if err := json.Unmarshal(entry, &m); err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		cfg = append(cfg, m)
	}
	return cfg, skipped, nil
}

// Raw returns the stored document bytes as is.
func (s *ConfigService) Raw(ctx context.Context) ([]byte, bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read channel config: %w", err)
	}
	return raw, ok, nil
}

// Save replaces the stored document with raw after checking it is valid JSON.
// Invalid input returns an *InvalidConfigError and leaves the store untouched.
func (s *ConfigService) Save(ctx context.Context, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &InvalidConfigError{Err: err}
	}

	if _, isList := doc.([]any); !isList {
		s.logger.Warn("saved channel config is not a list and will be treated as unconfigured")
	}

	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("failed to save channel config: %w", err)
	}
	return nil
}
