package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redlite/redlite/internal/storage"
)

func (s *Server) handleHealthz(c *gin.Context) {
	err := s.root.Store.Transact(c.Request.Context(), func(tx *storage.Tx) error {
		var one int
		return tx.QueryRow(`SELECT 1`).Scan(&one)
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap, err := s.stats.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disk_bytes":      snap.DiskBytes,
		"sampled_at":      snap.GeneratedAt,
		"maxmemory_bytes": s.root.Config.MaxMemoryBytes(),
		"maxdisk_bytes":   s.root.Config.MaxDiskBytes(),
		"eviction_policy": s.root.Config.EvictionPolicy(),
	})
}

func (s *Server) handleConfigGet(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")
	pairs := s.root.Config.Get(pattern)
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p[0]] = p[1]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleConfigSet(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	for name, value := range req {
		if err := s.root.Config.Set(name, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}
	c.Status(http.StatusNoContent)
}
