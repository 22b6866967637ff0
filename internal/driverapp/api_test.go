package driverapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAPIRoutes(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			assert.Equal(t, driverID, r.URL.Query().Get("chauffeur_id"))
			assert.Equal(t, "true", r.URL.Query().Get("unread"))
			_, _ = w.Write([]byte(`[{"id":"n1","type":"nouvelle_commande","read":false,"message":"m","chauffeur_id":"` + driverID + `","created_at":"2026-01-01T00:00:00Z"}]`))
			return
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, driverID, body["chauffeur_id"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, api.Heartbeat(ctx, driverID, true))
	require.NoError(t, api.SetStatus(ctx, driverID, false, "hors_ligne"))
	require.NoError(t, api.UpdateLocation(ctx, driverID, Fix{Lat: 5.3, Lng: -4}))
	list, err := api.Unread(ctx, driverID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, api.Accept(ctx, "n1", driverID))
	require.NoError(t, api.Decline(ctx, "n1", driverID))

	assert.Equal(t, []string{
		"POST /chauffeurs/heartbeat",
		"POST /chauffeurs/status",
		"POST /chauffeurs/location",
		"GET /notifications",
		"POST /chauffeurs/notifications/n1/accept",
		"POST /chauffeurs/notifications/n1/decline",
	}, seen)
}
