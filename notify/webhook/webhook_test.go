// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rouselabs/rouse/notify"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/types"
)

func pending(target string) *provider.PendingNotification {
	return provider.NewPendingNotification(
		types.NewAlertID(), types.ChannelWebhook, target, "API is down", time.Now().UTC())
}

func TestNotifyPostsMessage(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := New(srv.Client(), slog.New(slog.DiscardHandler))
	p := pending(srv.URL)
	_, err := n.Notify(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "API is down", got.Payload)
	require.Equal(t, p.AlertID, got.AlertID)
}

func TestNotifyClassifiesStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		status int
		class  error
	}{
		{http.StatusTooManyRequests, notify.ErrRateLimited},
		{http.StatusInternalServerError, notify.ErrChannelUnavailable},
		{http.StatusBadGateway, notify.ErrChannelUnavailable},
		{http.StatusNotFound, notify.ErrDeliveryFailed},
		{http.StatusBadRequest, notify.ErrDeliveryFailed},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		n := New(srv.Client(), slog.New(slog.DiscardHandler))
		_, err := n.Notify(context.Background(), pending(srv.URL))
		require.ErrorIs(t, err, tc.class, "status %d", tc.status)
		require.True(t, notify.Retryable(err))
		srv.Close()
	}
}

func TestNotifyRejectsBadURL(t *testing.T) {
	n := New(nil, slog.New(slog.DiscardHandler))
	for _, target := range []string{"", "not-a-url", "ftp://example.com/hook"} {
		_, err := n.Notify(context.Background(), pending(target))
		require.ErrorIs(t, err, notify.ErrInvalidTarget, "target %q", target)
		require.False(t, notify.Retryable(err))
	}
}

func TestNotifyConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n := New(nil, slog.New(slog.DiscardHandler))
	_, err := n.Notify(context.Background(), pending(srv.URL))
	require.ErrorIs(t, err, notify.ErrChannelUnavailable)
}
