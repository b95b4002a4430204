// routes_backends.go - Handler fuer Backend-Liste und Instanz-Verwaltung
// Enthaelt: ListBackendsHandler, CreateInstanceHandler, ListInstancesHandler, DeleteInstanceHandler
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

// ListBackendsHandler liefert die Backends in Auswahlreihenfolge
func (s *Server) ListBackendsHandler(c *gin.Context) {
	infos, err := s.registry.Factories()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := api.ListBackendsResponse{Backends: make([]api.BackendInfo, 0, len(infos))}
	for _, fi := range infos {
		resp.Backends = append(resp.Backends, api.BackendInfo{
			Name:     fi.Name,
			Priority: fi.Priority,
			Default:  fi.Default,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// CreateInstanceHandler erstellt ein Backend und merkt es unter einer neuen ID
func (s *Server) CreateInstanceHandler(c *gin.Context) {
	var req api.CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	opts, err := optionsdict.Parse(req.Options)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := req.Backend
	if name == "" {
		names, err := s.registry.ListNames()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(names) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": neural.ErrNoBackends.Error()})
			return
		}
		name = names[0]
	}

	b, err := s.registry.CreateFromName(name, opts)
	if err != nil {
		c.AbortWithStatusJSON(createStatus(err), gin.H{"error": err.Error()})
		return
	}

	inst := newInstance(name, req.Options, b)
	s.instances.add(inst)
	slog.Info("created instance", "id", inst.id, "backend", name)

	c.JSON(http.StatusOK, inst.info())
}

// createStatus bildet Erstellungsfehler auf HTTP-Status ab
func createStatus(err error) int {
	var keyErr *optionsdict.KeyError
	switch {
	case errors.Is(err, neural.ErrUnknownBackend):
		return http.StatusNotFound
	case errors.As(err, &keyErr), errors.Is(err, optionsdict.ErrUnusedOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) ListInstancesHandler(c *gin.Context) {
	insts := s.instances.list()
	resp := api.ListInstancesResponse{Instances: make([]api.InstanceInfo, 0, len(insts))}
	for _, inst := range insts {
		resp.Instances = append(resp.Instances, inst.info())
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteInstanceHandler schliesst die Instanz, laufende Auswertungen werden abgewartet
func (s *Server) DeleteInstanceHandler(c *gin.Context) {
	id := c.Param("id")
	inst, ok := s.instances.remove(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "instance '" + id + "' not found"})
		return
	}

	inst.close()
	slog.Info("closed instance", "id", id, "backend", inst.backend)
	c.Status(http.StatusOK)
}
