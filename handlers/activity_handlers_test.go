package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

func newActivityRouter() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.JWTMiddleware)
	api.HandleFunc("/activities/{id}/materials", AddActivityMaterial).Methods("POST")
	api.HandleFunc("/activities/{id}/materials/{reservationId}", UpdateActivityMaterial).Methods("PUT")
	api.HandleFunc("/activities/{id}/materials/{reservationId}", RemoveActivityMaterial).Methods("DELETE")
	return r
}

func authedRequest(t *testing.T, user models.User, method, target, body string) *http.Request {
	t.Helper()
	token, err := middleware.GenerateToken(user.ID.String(), user.Role, user.Name, user.Phone)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestActivityMaterialOwnership ensures the reservation subresource is
// scoped to the activity owner: another authenticated user who knows the
// UUIDs must not be able to reserve, resize or release foreign stock.
func TestActivityMaterialOwnership(t *testing.T) {
	f := newFixture(t)
	config.DB = f.db
	router := newActivityRouter()

	stranger := models.User{Name: "Mallory", Phone: "0900000009", PasswordHash: "x", Role: "farmer"}
	require.NoError(t, f.db.Create(&stranger).Error)

	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	reservationID := activity.Materials[0].ID

	materialsURL := fmt.Sprintf("/api/v1/activities/%s/materials", activity.ID)
	reservationURL := fmt.Sprintf("%s/%s", materialsURL, reservationID)
	addBody := fmt.Sprintf(`{"materialId":%q,"plannedQuantity":10}`, f.material.ID)

	// A foreign caller gets 404 on every verb, and no stock moves.
	rec := do(router, authedRequest(t, stranger, http.MethodPost, materialsURL, addBody))
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(router, authedRequest(t, stranger, http.MethodPut, reservationURL, `{"plannedQuantity":50}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(router, authedRequest(t, stranger, http.MethodDelete, reservationURL, ""))
	require.Equal(t, http.StatusNotFound, rec.Code)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 30.0, m.ReservedQuantity)

	// The owner's requests pass through to the engine.
	rec = do(router, authedRequest(t, f.user, http.MethodPut, reservationURL, `{"plannedQuantity":40}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 40.0, f.reloadMaterial(t, f.material.ID).ReservedQuantity)
}

// TestReservationMustBelongToPathActivity rejects a reservation id that
// exists but hangs off a different activity than the one in the path.
func TestReservationMustBelongToPathActivity(t *testing.T) {
	f := newFixture(t)
	config.DB = f.db
	router := newActivityRouter()

	first, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	second, err := f.engine.CreateActivity(f.fertilizing(baseStart.AddDate(0, 0, 20),
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)

	crossURL := fmt.Sprintf("/api/v1/activities/%s/materials/%s",
		first.ID, second.Materials[0].ID)
	rec := do(router, authedRequest(t, f.user, http.MethodPut, crossURL, `{"plannedQuantity":50}`))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, authedRequest(t, f.user, http.MethodDelete, crossURL, ""))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, 40.0, f.reloadMaterial(t, f.material.ID).ReservedQuantity)
}
