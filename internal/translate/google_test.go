package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestGoogleClient_ParsesSentencePairs(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"client": q.Get("client"),
			"sl":     q.Get("sl"),
			"tl":     q.Get("tl"),
			"q":      q.Get("q"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[["Hola ","Hello ",null],["mundo","world",null]],null,"en"]`))
	}))
	defer srv.Close()

	client := NewGoogleClient(WithGoogleEndpoint(srv.URL))

	got, err := client.Translate(context.Background(), "Hello world", "auto", "es")
	require.NoError(t, err)

	require.Equal(t, "gtx", gotQuery["client"])
	require.Equal(t, "auto", gotQuery["sl"])
	require.Equal(t, "es", gotQuery["tl"])
	require.Equal(t, "Hello world", gotQuery["q"])

	require.Equal(t, "Hola mundo", got.Translation)
	require.Equal(t, "en", got.DetectedSourceLanguage)
	require.Equal(t, "google-translate-gtx", client.Source())
}

func TestGoogleClient_MissingDetectedLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[["Hola","Hello",null]]]`))
	}))
	defer srv.Close()

	client := NewGoogleClient(WithGoogleEndpoint(srv.URL))

	got, err := client.Translate(context.Background(), "Hello", "auto", "es")
	require.NoError(t, err)
	require.Equal(t, "Hola", got.Translation)
	require.Empty(t, got.DetectedSourceLanguage)
}

func TestGoogleClient_ErrorStatusIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGoogleClient(WithGoogleEndpoint(srv.URL))

	_, err := client.Translate(context.Background(), "Hello", "auto", "es")
	require.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestGoogleClient_RequiresTargetLanguage(t *testing.T) {
	client := NewGoogleClient()
	_, err := client.Translate(context.Background(), "Hello", "auto", " ")
	require.True(t, apperr.IsKind(err, apperr.KindInput))
}
