// MODUL: routes_evaluate
// ZWECK: POST /api/evaluate, wertet Positionen auf einer Instanz aus
// INPUT: api.EvaluateRequest (Instanz-ID, Positionen mit Planes)
// OUTPUT: api.EvaluateResponse mit Policy, Value und Moves-Left pro Position
// NEBENEFFEKTE: Alloziert BatchBuffers pro Anfrage
// ABHAENGIGKEITEN: neural (RunInference), x/sync/semaphore (Parallelitaet)
// HINWEISE: Hoechstens LC0_NUM_PARALLEL Anfragen laufen gleichzeitig

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/neural"
)

func (s *Server) EvaluateHandler(c *gin.Context) {
	checkpointStart := time.Now()

	var req api.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := s.validateEvaluate(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, ok := s.instances.get(req.Instance)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("instance '%s' not found", req.Instance)})
		return
	}

	ctx := c.Request.Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer s.sem.Release(1)

	b, release, ok := inst.acquire()
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("instance '%s' was closed", req.Instance)})
		return
	}
	defer release()

	n := len(req.Positions)
	bufs, err := neural.NewBatchBuffersFor(b, n)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
		return
	}
	defer bufs.Release()

	for pos, p := range req.Positions {
		for plane, pl := range p.Planes {
			bufs.SetPlane(pos, plane, pl.Mask, pl.Value)
		}
	}

	if err := neural.RunInference(ctx, b, bufs, n); err != nil {
		c.AbortWithStatusJSON(evaluateStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.EvaluateResponse{
		Results:       results(bufs, n),
		TotalDuration: time.Since(checkpointStart),
	})
}

func (s *Server) validateEvaluate(req *api.EvaluateRequest) error {
	switch n := len(req.Positions); {
	case req.Instance == "":
		return errors.New("instance is required")
	case n == 0:
		return errors.New("at least one position is required")
	case n > s.maxBatch:
		return fmt.Errorf("%d positions exceed the limit of %d", n, s.maxBatch)
	}

	for i, p := range req.Positions {
		if len(p.Planes) > neural.InputPlanes {
			return fmt.Errorf("position %d has %d planes, at most %d allowed", i, len(p.Planes), neural.InputPlanes)
		}
	}
	return nil
}

func evaluateStatus(err error) int {
	switch {
	case errors.Is(err, neural.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// results kopiert die Outputs, die Buffer werden danach freigegeben
func results(bufs *neural.BatchBuffers, n int) []api.Result {
	out := make([]api.Result, n)
	for pos := range n {
		out[pos] = api.Result{
			Policy: append([]float32(nil), bufs.Policy(pos)...),
			Value:  append([]float32(nil), bufs.Value(pos)...),
		}
		if ml, ok := bufs.MovesLeft(pos); ok {
			out[pos].MovesLeft = &ml
		}
	}
	return out
}
