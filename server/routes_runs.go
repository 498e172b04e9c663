// routes_runs.go - Handler fuer Laeufe, Skalare und Checkpoints
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cortml/cort/api"
	"github.com/cortml/cort/store"
)

// ListRunsHandler liefert alle Laeufe, neueste zuerst. ?sweep= filtert nach Sweep.
func (s *Server) ListRunsHandler(c *gin.Context) {
	runs, err := s.store.Runs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if sweep := c.Query("sweep"); sweep != "" {
		filtered := runs[:0]
		for _, r := range runs {
			if r.SweepID == sweep {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	if runs == nil {
		runs = []store.Run{}
	}

	c.JSON(http.StatusOK, api.ListRunsResponse{Runs: runs})
}

func (s *Server) RunHandler(c *gin.Context) {
	run, err := s.store.Run(c.Param("id"))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// ScalarsHandler liefert die Skalare eines Laufs, mit ?key= nur einen Schluessel
func (s *Server) ScalarsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Run(id); err != nil {
		abortWithStoreError(c, err)
		return
	}

	scalars, err := s.store.Scalars(id, c.Query("key"))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	if scalars == nil {
		scalars = []store.Scalar{}
	}

	c.JSON(http.StatusOK, api.ScalarsResponse{Scalars: scalars})
}

func (s *Server) CheckpointsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Run(id); err != nil {
		abortWithStoreError(c, err)
		return
	}

	artifacts, err := s.store.Artifacts(id)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	if artifacts == nil {
		artifacts = []store.Artifact{}
	}

	c.JSON(http.StatusOK, api.CheckpointsResponse{Checkpoints: artifacts})
}

func abortWithStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
