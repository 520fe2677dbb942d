package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/sync"
)

func TestClient_RoundTrip(t *testing.T) {
	doc := &memDocument{}
	ts := httptest.NewServer(NewServer(sync.NewEngine(doc, "", nil), nil))
	defer ts.Close()

	client := NewClient(ts.URL+SyncPath, "carol", time.Second, nil)
	snap := sampleSnapshot()

	got, err := client.Run(context.Background(), sync.ModeOverwriteCloud, snap)
	require.NoError(t, err)
	assert.Len(t, got.Cards, 1)

	stored, err := remote.Decode(doc.files, "carol")
	require.NoError(t, err)
	assert.Len(t, stored.Decks, 1)

	pulled, err := client.Run(context.Background(), sync.ModeOverwriteLocal, snap)
	require.NoError(t, err)
	require.Len(t, pulled.Cards, 1)
	assert.Equal(t, snap.Cards[0].ID, pulled.Cards[0].ID)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"auth", remote.ErrAuth, remote.ErrAuth},
		{"server failure", errors.New("boom"), sync.ErrRemoteRejected},
		{"remote down", remote.ErrUnavailable, sync.ErrRemoteRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(NewServer(&stubReconciler{err: tt.err}, nil))
			defer ts.Close()

			_, err := NewClient(ts.URL+SyncPath, "", time.Second, nil).Run(context.Background(), sync.ModeSync, sampleSnapshot())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_SuccessFalse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"error":"quota"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "", time.Second, nil).Run(context.Background(), sync.ModeSync, sampleSnapshot())
	assert.ErrorIs(t, err, sync.ErrRemoteRejected)
	assert.Contains(t, err.Error(), "quota")
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url+SyncPath, "", time.Second, nil).Run(context.Background(), sync.ModeSync, sampleSnapshot())
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}
