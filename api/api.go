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
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/driftcap/driftcap"
	"github.com/driftcap/driftcap/api/middleware"
	"github.com/driftcap/driftcap/config"
)

type Api struct {
	driftcap *driftcap.Driftcap
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/triggers", a.SubmitTrigger)
	router.GET("/triggers/:id", a.GetTrigger)
	router.GET("/triggers/:id/counts", a.GetTriggerCounts)
	return a.router
}

func NewAPI(d *driftcap.Driftcap) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{driftcap: d, router: r}
}
