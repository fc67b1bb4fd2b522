package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
)

// Rate limit caps for the abuse-prone public endpoints.
const (
	sendOTPLimit    = 5
	sendOTPWindow   = time.Hour
	verifyOTPLimit  = 10
	verifyOTPWindow = 15 * time.Minute
	loginLimit      = 5
	loginWindow     = 15 * time.Minute
)

func NewRouter(authH *AuthHandlers, orderH *OrderHandlers, catalogH *CatalogHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	authMW := middleware.AuthMiddleware(jwtService)
	adminMW := middleware.RequireRole(auth.RoleAdmin)
	admin := func(h http.HandlerFunc) http.Handler {
		return authMW(adminMW(h))
	}

	sendOTPLimiter := middleware.NewRateLimiter(sendOTPLimit, sendOTPWindow)
	verifyOTPLimiter := middleware.NewRateLimiter(verifyOTPLimit, verifyOTPWindow)
	loginLimiter := middleware.NewRateLimiter(loginLimit, loginWindow)

	// Auth
	mux.Handle("/api/auth/send-otp", sendOTPLimiter.Middleware(post(authH.SendOTP)))
	mux.Handle("/api/auth/verify-otp", verifyOTPLimiter.Middleware(post(authH.VerifyOTP)))
	mux.Handle("/api/auth/register", post(authH.Register))
	mux.Handle("/api/auth/login", loginLimiter.Middleware(post(authH.Login)))
	mux.Handle("/api/auth/logout", post(authH.Logout))
	mux.Handle("/api/auth/refresh", post(authH.Refresh))
	mux.Handle("/api/auth/me", authMW(get(authH.Me)))

	// Orders
	mux.Handle("/api/orders", authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			orderH.CreateOrder(w, r)
		case http.MethodGet:
			adminMW(http.HandlerFunc(orderH.ListOrders)).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/api/orders/", authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/api/orders/my-orders" && r.Method == http.MethodGet:
			orderH.MyOrders(w, r)
		case path == "/api/orders/stats/overview" && r.Method == http.MethodGet:
			adminMW(http.HandlerFunc(orderH.Stats)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/pay") && r.Method == http.MethodPut:
			orderH.PayOrder(w, r)
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPut:
			orderH.CancelOrder(w, r)
		case strings.HasSuffix(path, "/status") && r.Method == http.MethodPut:
			adminMW(http.HandlerFunc(orderH.UpdateStatus)).ServeHTTP(w, r)
		case r.Method == http.MethodGet:
			orderH.GetOrder(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Catalog
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			catalogH.SearchProducts(w, r)
		case http.MethodPost:
			admin(catalogH.CreateProduct).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/products/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			catalogH.GetProduct(w, r)
		case http.MethodPut:
			admin(catalogH.UpdateProduct).ServeHTTP(w, r)
		case http.MethodDelete:
			admin(catalogH.DeleteProduct).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			catalogH.ListCategories(w, r)
		case http.MethodPost:
			admin(catalogH.CreateCategory).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return withLogging(mux)
}

func post(h http.HandlerFunc) http.Handler {
	return methodOnly(http.MethodPost, h)
}

func get(h http.HandlerFunc) http.Handler {
	return methodOnly(http.MethodGet, h)
}

func methodOnly(method string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
