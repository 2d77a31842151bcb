package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cheqr/internal/auth"
	"cheqr/internal/clock"
	"cheqr/internal/config"
	"cheqr/internal/directory"
	"cheqr/internal/httpmiddleware"
	"cheqr/internal/ledger"
	"cheqr/internal/queue"
	"cheqr/internal/scan"
	"cheqr/internal/store"
	"cheqr/internal/token"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	clk := clock.System{}

	var (
		led ledger.Store
		dir directory.Directory
		db  *store.DB
	)
	if cfg.Backend == "memory" {
		led = ledger.NewMemory()
		mem := directory.NewMemory()
		seedDevAdmin(mem)
		dir = mem
		log.Println("using in-memory storage (dev mode)")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(context.Background(), db.Client); err != nil {
			return err
		}
		led = ledger.NewPostgres(db.Client)
		dir = directory.NewPostgres(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "cheqr:scans")
	}

	gen := token.NewGenerator(led, dir, clk, cfg.TokenValidity)
	val := scan.NewValidator(led, dir, clk)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Gin())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Redis only gates readiness when a Redis-backed component is wired;
	// the badge endpoint alone falls back to the ledger.
	redisRequired := cfg.QueueBackend != "memory"

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := healthStatus(dbHealthy, redisHealthy, redisRequired)
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := dir.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		signed, exp, err := auth.Issue(u.ID, u.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": signed,
			"role":         u.Role,
			"user_id":      u.ID,
			"expires_at":   exp.Unix(),
		})
	})

	// Admin directory management.
	admin := r.Group("/v1/admin", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))

	admin.POST("/users", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Name     string `json:"name" binding:"required"`
			Role     string `json:"role" binding:"required,oneof=admin lecturer student"`
			Password string `json:"password" binding:"required,min=6"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "password hash failed"})
			return
		}
		u, err := dir.CreateUser(c.Request.Context(), directory.User{
			Username: req.Username, Name: req.Name, Role: req.Role, PasswordHash: hash,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, u)
	})

	admin.GET("/users", func(c *gin.Context) {
		users, err := dir.ListUsers(c.Request.Context(), c.Query("role"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	})

	admin.GET("/users/:id", func(c *gin.Context) {
		u, err := dir.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	admin.DELETE("/users/:id", func(c *gin.Context) {
		if err := dir.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
			notFoundOr500(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.POST("/courses", func(c *gin.Context) {
		var req struct {
			Code       string `json:"code" binding:"required"`
			Name       string `json:"name" binding:"required"`
			LecturerID string `json:"lecturer_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		course, err := dir.CreateCourse(c.Request.Context(), directory.Course{
			Code: req.Code, Name: req.Name, LecturerID: req.LecturerID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, course)
	})

	admin.GET("/courses", func(c *gin.Context) {
		courses, err := dir.ListCourses(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": courses})
	})

	admin.PUT("/courses/:id", func(c *gin.Context) {
		var req struct {
			Code       string `json:"code" binding:"required"`
			Name       string `json:"name" binding:"required"`
			LecturerID string `json:"lecturer_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		course, err := dir.UpdateCourse(c.Request.Context(), directory.Course{
			ID: c.Param("id"), Code: req.Code, Name: req.Name, LecturerID: req.LecturerID,
		})
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, course)
	})

	admin.DELETE("/courses/:id", func(c *gin.Context) {
		if err := dir.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
			notFoundOr500(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.POST("/courses/:id/students", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := dir.AssignStudent(c.Request.Context(), c.Param("id"), req.StudentID); err != nil {
			notFoundOr500(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.DELETE("/courses/:id/students/:studentId", func(c *gin.Context) {
		if err := dir.UnassignStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
			notFoundOr500(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Lecturer session surface.
	lect := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleLecturer, auth.RoleAdmin))

	lect.POST("/courses/:id/sessions", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		courseID := c.Param("id")
		course, err := dir.GetCourse(c.Request.Context(), courseID)
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		if claims.Role == auth.RoleLecturer && course.LecturerID != claims.Subject {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your course"})
			return
		}
		t, err := gen.Generate(c.Request.Context(), courseID, claims.Subject)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to generate attendance code, try again"})
			return
		}
		payload, err := token.Encode(t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session":   t,
			"payload":   string(payload),
			"countdown": t.Countdown(clk.Now()),
		})
	})

	lect.GET("/courses/:id/sessions", func(c *gin.Context) {
		sessions, err := led.ListSessions(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	lect.GET("/sessions/:id", func(c *gin.Context) {
		t, err := led.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": t, "countdown": t.Countdown(clk.Now())})
	})

	lect.GET("/sessions/:id/qr.png", func(c *gin.Context) {
		t, err := led.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		png, err := token.QRPNG(*t, 320)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	lect.GET("/sessions/:id/records", func(c *gin.Context) {
		records, err := led.ListScans(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	lect.GET("/courses/:id/scans", func(c *gin.Context) {
		since := clk.Now().Add(-cfg.RecentWindow)
		if v := c.Query("since"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			since = parsed
		}
		records, err := led.ListRecentScans(c.Request.Context(), c.Param("id"), since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "since": since})
	})

	lect.GET("/courses/:id/scans/recent", func(c *gin.Context) {
		courseID := c.Param("id")
		window := cfg.RecentWindow
		if v := c.Query("window"); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
				window = parsed
			}
		}
		now := clk.Now()
		n, err := redisClient.RecentScanCount(c.Request.Context(), courseID, window, now)
		if err != nil {
			// Counter cache down; the ledger stays authoritative.
			n, err = led.CountRecentScans(c.Request.Context(), courseID, window, now)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"course_id": courseID, "recent_scans": n, "window": window.String()})
	})

	// Student scan surface.
	stud := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	stud.POST("/scans", func(c *gin.Context) {
		var req struct {
			Payload  string `json:"payload" binding:"required"`
			CourseID string `json:"course_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.ClaimsFrom(c)
		res, err := val.Validate(c.Request.Context(), []byte(req.Payload), claims.Subject, req.CourseID)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown course"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "scan could not be processed, try again"})
			return
		}
		if !res.OK {
			c.JSON(http.StatusUnprocessableEntity, res)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.ScanEvent{
			CourseID:  res.Record.CourseID,
			SessionID: res.Record.SessionID,
			StudentID: res.Record.StudentID,
			ScannedAt: res.Record.ScannedAt,
		}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusCreated, res)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// healthStatus maps component health to the readiness status code.
func healthStatus(dbHealthy, redisHealthy, redisRequired bool) int {
	if !dbHealthy || (redisRequired && !redisHealthy) {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func notFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, directory.ErrNotFound) || errors.Is(err, ledger.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// securityHeaders sets baseline response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// seedDevAdmin provisions a login for memory mode so the API is usable
// without a database.
func seedDevAdmin(dir *directory.Memory) {
	hash, err := auth.HashPassword("admin123")
	if err != nil {
		return
	}
	_, _ = dir.CreateUser(context.Background(), directory.User{
		Username: "admin", Name: "Dev Admin", Role: auth.RoleAdmin, PasswordHash: hash,
	})
	log.Println("seeded dev admin (admin/admin123)")
}
