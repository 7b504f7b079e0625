// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservabilityMux(t *testing.T) {
	// --- Arrange ---
	a := NewApp(io.Discard, io.Discard, &Config{LogLevel: "error"})
	a.metrics.Sessions.Set(3)
	ts := httptest.NewServer(a.observabilityMux())
	defer ts.Close()

	// --- Act ---
	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	assert.Contains(t, string(body), "docgrid_sessions 3")
	assert.Contains(t, string(body), "go_goroutines")
}
