/*
 * Copyright 2025 Graywatch Security.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	log "go.opentelemetry.io/otel/log"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
		},
		{
			name:   "explicit level",
			config: &Config{Level: "warn", Output: "stderr"},
		},
		{
			name:   "debug overrides level",
			config: &Config{Level: "error", Debug: true},
		},
		{
			name:    "bad level",
			config:  &Config{Level: "shout"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(context.Background(), tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(context.Background(), &Config{Level: "info"}))

	SetLevel(zerolog.ErrorLevel)
	assert.Equal(t, zerolog.ErrorLevel, GetLogger().GetLevel())

	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()

	// Must be safe to log through without output or panics.
	log.Info().Str("k", "v").Msg("discarded")
	log.Error().Msg("discarded")
	componentLog := log.WithComponent("test")
	componentLog.Info().Msg("discarded")
}

func TestNewOTELWriter_Validation(t *testing.T) {
	_, err := NewOTELWriter(context.Background(), OTelConfig{})
	assert.ErrorIs(t, err, ErrOTelLoggingDisabled)

	_, err = NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	assert.ErrorIs(t, err, ErrOTelEndpointRequired)
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	assert.Equal(t, log.SeverityTrace, mapZerologLevelToOTEL("trace"))
	assert.Equal(t, log.SeverityWarn, mapZerologLevelToOTEL("warning"))
	assert.Equal(t, log.SeverityFatal, mapZerologLevelToOTEL("panic"))
	assert.Equal(t, log.SeverityInfo, mapZerologLevelToOTEL("unknown"))
}
