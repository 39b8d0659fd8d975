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

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graywatch/otsentinel/pkg/logger"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "minimal listen-only",
			config: Config{ListenPorts: "1025,2004"},
		},
		{
			name: "active with scan set",
			config: Config{
				ListenPorts: "1025",
				ScanPorts:   "1050-1060,7331",
				Active:      true,
			},
		},
		{
			name:    "missing listen ports",
			config:  Config{},
			wantErr: true,
		},
		{
			name:    "malformed listen spec",
			config:  Config{ListenPorts: "0,100"},
			wantErr: true,
		},
		{
			name:    "active without scan ports",
			config:  Config{ListenPorts: "1025", Active: true},
			wantErr: true,
		},
		{
			name:    "malformed scan spec",
			config:  Config{ListenPorts: "1025", ScanPorts: "200-100"},
			wantErr: true,
		},
		{
			name: "negative timeout",
			config: Config{
				ListenPorts: "1025",
				Timeout:     logger.Duration(-time.Second),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := Config{ListenPorts: "2004"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultTimeout, cfg.ConnectionTimeout())
	assert.Equal(t, DefaultScanTarget, cfg.ScanTarget)
	assert.Equal(t, DefaultEmitterBuffer, cfg.EmitterBuffer)
}

func TestScanReport_Count(t *testing.T) {
	var report ScanReport

	report.Count(Outcome{Kind: KindConnected})
	report.Count(Outcome{Kind: KindConnected})
	report.Count(Outcome{Kind: KindRefused})
	report.Count(Outcome{Kind: KindTimedOut})
	report.Count(Outcome{Kind: KindError})

	assert.Equal(t, 2, report.Open)
	assert.Equal(t, 1, report.Refused)
	assert.Equal(t, 1, report.TimedOut)
	assert.Equal(t, 1, report.Errored)
}

func TestOutcome_Open(t *testing.T) {
	assert.True(t, Outcome{Kind: KindConnected}.Open())
	assert.False(t, Outcome{Kind: KindRefused}.Open())
}
