package handler

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/storage"
)

// NewRouter builds the gin engine serving the REST API, the WebSocket
// endpoint and, for local storage, the uploaded files.
func NewRouter(logger zerolog.Logger, api *Handler, ws *WSHandler, store storage.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if store.Driver != "s3" && store.Local.URLPrefix != "" {
		r.Static(store.Local.URLPrefix, store.Local.BasePath)
	}

	api.RegisterRoutes(r)
	if ws != nil {
		ws.RegisterRoutes(r)
	}
	return r
}
