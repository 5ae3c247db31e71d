package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"index_risk_sentinel/config"
	"index_risk_sentinel/logs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logs.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	fail   int
}

func (r *recordingNotifier) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	if r.fail > 0 {
		r.fail--
		return errors.New("gateway down")
	}
	return nil
}

func TestDispatcherRetriesOnce(t *testing.T) {
	rec := &recordingNotifier{fail: 1}
	d := NewDispatcher(rec, time.Millisecond)
	var results []error
	var mu sync.Mutex
	d.NotifyThen("HARD_EXIT", "position closed", func(_ string, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})
	d.Wait()

	assert.Equal(t, []string{"HARD_EXIT", "RETRY: HARD_EXIT"}, rec.titles)
	require.Len(t, results, 1)
	assert.NoError(t, results[0])
}

func TestDispatcherGivesUpAfterRetry(t *testing.T) {
	rec := &recordingNotifier{fail: 5}
	d := NewDispatcher(rec, time.Millisecond)
	var final error
	d.NotifyThen("ALERT", "msg", func(_ string, err error) { final = err })
	d.Wait()

	assert.Len(t, rec.titles, 2)
	assert.Error(t, final)
}

func TestGupshupSend(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		_, _ = w.Write([]byte(`{"status":"submitted","messageId":"abc"}`))
	}))
	defer srv.Close()

	g := NewGupshupNotifier(&config.EnvConfig{
		GupshupAPIKey:  "key",
		GupshupAppName: "sentinel",
		GupshupBaseURL: srv.URL,
		GupshupSource:  "917000000000",
		AdminPhone:     "919000000000",
	}, time.Second)

	require.NoError(t, g.Send(context.Background(), "EMERGENCY_EXIT", "NIFTY down 2%"))
	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "key", got.Header.Get("apikey"))
	assert.Equal(t, "whatsapp", got.PostForm.Get("channel"))
	assert.Equal(t, "917000000000", got.PostForm.Get("source"))
	assert.Equal(t, "919000000000", got.PostForm.Get("destination"))
	assert.Equal(t, "sentinel", got.PostForm.Get("src.name"))
	assert.Equal(t, "*EMERGENCY_EXIT*\nNIFTY down 2%", got.PostForm.Get("message"))
}

func TestGupshupErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","message":"Authentication Failed"}`))
	}))
	defer srv.Close()

	g := NewGupshupNotifier(&config.EnvConfig{GupshupBaseURL: srv.URL}, time.Second)
	err := g.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication Failed")

	assert.NoError(t, LogNotifier{}.Send(context.Background(), "t", "m"))
}
