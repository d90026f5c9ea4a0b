// Package apitest runs an in-memory to-do API over HTTP for tests. It speaks
// the same routes and envelopes as the real backend and can be told to fail.
package apitest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.record(), s.inject())

	router.POST("/auth/login", s.login)
	router.POST("/auth/register", s.register)

	api := router.Group("")
	api.Use(s.authMiddleware())
	{
		api.GET("/todos", s.listTodos)
		api.GET("/todos/completed", s.listCompleted)
		api.POST("/todos", s.createTodo)
		api.PUT("/todos/:id", s.updateTodo)
		api.PATCH("/todos/:id", s.updateTodo)
		api.DELETE("/todos/:id", s.deleteTodo)
	}
	return router
}

// authMiddleware accepts HS256 tokens signed with the server secret. It is a
// no-op unless RequireAuth is set.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.RequireAuth {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if auth == "" || !strings.HasPrefix(auth, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		tokenStr := strings.TrimSpace(auth[len(prefix):])
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set("user", claims.Subject)
		c.Next()
	}
}

// Token signs a token for userID valid for ttl.
func (s *Server) Token(userID string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, _ := c.GetRawData()
		c.Request.Body = newBody(body)
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Query:     c.Request.URL.Query(),
			Auth:      c.GetHeader("Authorization"),
			RequestID: c.GetHeader("X-Request-ID"),
			Body:      string(body),
		})
		s.mu.Unlock()
		c.Next()
	}
}

// inject answers with a queued failure when one matches the request.
func (s *Server) inject() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.takeFailure(c.Request.Method, c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}
		if f.Delay > 0 {
			time.Sleep(f.Delay)
		}
		if f.Raw != "" {
			c.Data(f.Status, "application/json", []byte(f.Raw))
		} else {
			c.JSON(f.Status, gin.H{"message": f.Message})
		}
		c.Abort()
	}
}
