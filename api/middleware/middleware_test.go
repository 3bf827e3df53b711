/*
Copyright 2025 Driftcap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/driftcap/driftcap/config"
)

func setupSecureRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecretKeyAuthMiddleware())
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{Secure: true, SecretKey: "secret-key-1"},
	})
	router := setupSecureRouter()

	tests := []struct {
		name         string
		key          string
		expectedCode int
	}{
		{"Valid key", "secret-key-1", http.StatusOK},
		{"Missing key", "", http.StatusUnauthorized},
		{"Wrong key", "not-the-key", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.key != "" {
				req.Header.Set(KeyHeader, tt.key)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestRateLimitMiddleware_DisabledWithoutConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(&config.Configuration{}))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 50; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
