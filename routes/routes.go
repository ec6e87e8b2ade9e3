package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"p9e.in/farmops/handlers"
	"p9e.in/farmops/middleware"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// =====================================================
	// Public Routes (no authentication)
	// =====================================================
	r.HandleFunc("/register", handlers.Register).Methods("POST")
	r.HandleFunc("/login", handlers.Login).Methods("POST")
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir("./uploads"))),
	)

	// =====================================================
	// Protected API Routes (require JWT authentication)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.JWTMiddleware)

	// Profile & account
	api.HandleFunc("/profile", handlers.GetProfile).Methods("GET")
	api.HandleFunc("/change-password", handlers.ChangePassword).Methods("POST")

	// Fields
	api.HandleFunc("/fields", handlers.GetAllFields).Methods("GET")
	api.HandleFunc("/fields", handlers.CreateField).Methods("POST")
	api.HandleFunc("/fields/{id}", handlers.GetField).Methods("GET")
	api.HandleFunc("/fields/{id}", handlers.UpdateField).Methods("PUT")
	api.HandleFunc("/fields/{id}", handlers.DeleteField).Methods("DELETE")

	// Crops
	api.HandleFunc("/crops", handlers.GetAllCrops).Methods("GET")
	api.HandleFunc("/crops", handlers.CreateCrop).Methods("POST")
	api.HandleFunc("/crops/{id}", handlers.GetCrop).Methods("GET")
	api.HandleFunc("/crops/{id}", handlers.UpdateCrop).Methods("PUT")
	api.HandleFunc("/crops/{id}", handlers.DeleteCrop).Methods("DELETE")

	// Materials (inventory)
	api.HandleFunc("/materials", handlers.GetAllMaterials).Methods("GET")
	api.HandleFunc("/materials", handlers.CreateMaterial).Methods("POST")
	api.HandleFunc("/materials/export", handlers.ExportInventoryToExcel).Methods("GET")
	api.HandleFunc("/materials/{id}", handlers.GetMaterial).Methods("GET")
	api.HandleFunc("/materials/{id}", handlers.UpdateMaterial).Methods("PUT")
	api.HandleFunc("/materials/{id}", handlers.DeleteMaterial).Methods("DELETE")

	// Activities & their material reservations
	api.HandleFunc("/activities", handlers.GetAllActivities).Methods("GET")
	api.HandleFunc("/activities", handlers.CreateActivity).Methods("POST")
	api.HandleFunc("/activities/{id}", handlers.GetActivity).Methods("GET")
	api.HandleFunc("/activities/{id}", handlers.UpdateActivity).Methods("PUT")
	api.HandleFunc("/activities/{id}", handlers.DeleteActivity).Methods("DELETE")
	api.HandleFunc("/activities/{id}/start", handlers.StartActivity).Methods("POST")
	api.HandleFunc("/activities/{id}/complete", handlers.CompleteActivity).Methods("POST")
	api.HandleFunc("/activities/{id}/cancel", handlers.CancelActivity).Methods("POST")
	api.HandleFunc("/activities/{id}/materials", handlers.AddActivityMaterial).Methods("POST")
	api.HandleFunc("/activities/{id}/materials/{reservationId}", handlers.UpdateActivityMaterial).Methods("PUT")
	api.HandleFunc("/activities/{id}/materials/{reservationId}", handlers.RemoveActivityMaterial).Methods("DELETE")

	// Cultivation plan generation
	api.HandleFunc("/plan/preview", handlers.PreviewPlan).Methods("POST")
	api.HandleFunc("/plan/confirm", handlers.ConfirmPlan).Methods("POST")

	// Activity templates
	api.HandleFunc("/templates", handlers.GetTemplates).Methods("GET")
	api.HandleFunc("/templates", handlers.CreateTemplate).Methods("POST")
	api.HandleFunc("/templates/{id}", handlers.UpdateTemplate).Methods("PUT")
	api.HandleFunc("/templates/{id}", handlers.DeleteTemplate).Methods("DELETE")

	// Notifications
	api.HandleFunc("/notifications", handlers.GetNotifications).Methods("GET")
	api.HandleFunc("/notifications/scan", handlers.ScanNotifications).Methods("POST")
	api.HandleFunc("/notifications/read-all", handlers.MarkAllNotificationsRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", handlers.MarkNotificationRead).Methods("POST")

	// Photo uploads
	api.HandleFunc("/photos", handlers.UploadPhoto).Methods("POST")

	// =====================================================
	// Admin Routes (system plan templates)
	// =====================================================
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Handle("/templates",
		middleware.RequireRole([]string{"admin"}, http.HandlerFunc(handlers.CreateSystemTemplate)),
	).Methods("POST")

	return r
}
