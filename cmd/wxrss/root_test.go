package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxrss/pkg/config"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/session"
	"wxrss/pkg/wechat"
)

func setupCLIConfig(t *testing.T) session.Store {
	t.Helper()

	cfg = config.DefaultConfig()
	cfg.Session.File = filepath.Join(t.TempDir(), "session.json")
	cfg.RateLimit.MinInterval = 0
	cfg.RateLimit.TransportRetries = 1

	store, err := openStore()
	require.NoError(t, err)
	return store
}

func platformFixture(t *testing.T, handler http.HandlerFunc) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Cleanup(wechat.SetBaseURLForTest(server.URL))
}

func TestValidSessionRequiresLogin(t *testing.T) {
	setupCLIConfig(t)

	_, _, _, err := validSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wxrss login")
}

func TestValidSessionProbesBeforeUse(t *testing.T) {
	store := setupCLIConfig(t)
	require.NoError(t, store.Save(session.New("tok123", map[string]string{"slave_sid": "abc"}, "")))

	probes := 0
	platformFixture(t, func(w http.ResponseWriter, r *http.Request) {
		probes++
		json.NewEncoder(w).Encode(wechat.SearchResponse{BaseResp: wechat.BaseResp{Ret: 0}})
	})

	sess, client, g, err := validSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, client)
	require.NotNil(t, g)
	assert.Equal(t, 1, probes, "the session is checked once before any real call")
	assert.Equal(t, session.StateValidated, sess.State())
}

func TestValidSessionPersistsDetectedExpiry(t *testing.T) {
	store := setupCLIConfig(t)
	require.NoError(t, store.Save(session.New("tok123", map[string]string{"slave_sid": "abc"}, "")))

	platformFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wechat.SearchResponse{
			BaseResp: wechat.BaseResp{Ret: 200003, ErrMsg: "invalid session"},
		})
	})

	_, _, _, err := validSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindTokenExpired, errs.KindOf(err))

	// The dead session must not be offered to the next run.
	loaded, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Nil(t, loaded)
}

func TestValidSessionKeepsSessionOnTransportFailure(t *testing.T) {
	store := setupCLIConfig(t)
	require.NoError(t, store.Save(session.New("tok123", map[string]string{"slave_sid": "abc"}, "")))

	platformFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, _, err := validSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))

	loaded, loadErr := store.Load()
	require.NoError(t, loadErr)
	require.NotNil(t, loaded, "a transport failure must not invalidate the session")
	assert.Equal(t, "tok123", loaded.Token)
}
