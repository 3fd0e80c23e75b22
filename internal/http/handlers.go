package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/ingest"
)

// handleListAllSensors merges both providers' persisted sensor sets. The two
// queries run concurrently; either failure fails the whole request (preserved
// behavior of the original aggregation endpoint, see DESIGN.md).
func (s *Server) handleListAllSensors(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	type outcome struct {
		sensors []ingest.Sensor
		err     error
	}

	results := make(chan outcome, 2)
	for _, t := range []catalog.ProviderType{catalog.ProviderPurpleAir, catalog.ProviderAcuRite} {
		go func(t catalog.ProviderType) {
			sensors, err := s.store.SensorsByType(ctx, t)
			results <- outcome{sensors: sensors, err: err}
		}(t)
	}

	merged := make([]ingest.Sensor, 0)
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.err.Error()})
			return
		}
		merged = append(merged, res.sensors...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].SensorIndex < merged[j].SensorIndex })
	c.JSON(http.StatusOK, merged)
}

func (s *Server) handleListSensors(t catalog.ProviderType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		sensors, err := s.store.SensorsByType(ctx, t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sensors)
	}
}

func (s *Server) handleGetSensor(t catalog.ProviderType) gin.HandlerFunc {
	return func(c *gin.Context) {
		idx, ok := sensorIndexParam(c)
		if !ok {
			return
		}
		entry, found := s.catalog.ByIndex(idx, t)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func (s *Server) handlePurpleAirHistory(c *gin.Context) {
	idx, ok := sensorIndexParam(c)
	if !ok {
		return
	}

	req := ingest.FreshDataRequest{
		SensorIndex: idx,
		Provider:    catalog.ProviderPurpleAir,
		Fields:      c.Query("fields"),
	}

	if v := c.Query("start_timestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ts < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_timestamp"})
			return
		}
		req.StartTimestamp = ts
	}

	if v := c.Query("average"); v != "" {
		avg, err := strconv.Atoi(v)
		if err != nil || avg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid average"})
			return
		}
		req.Average = avg
	}

	s.serveFreshData(c, req)
}

func (s *Server) handleAcuRiteLive(c *gin.Context) {
	idx, ok := sensorIndexParam(c)
	if !ok {
		return
	}

	entry, found := s.catalog.ByIndex(idx, catalog.ProviderAcuRite)
	if !found || entry.DeviceID == nil || *entry.DeviceID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "acurite sensor or device_id not found"})
		return
	}

	date := c.Param("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
	}

	s.serveFreshData(c, ingest.FreshDataRequest{
		SensorIndex: idx,
		Provider:    catalog.ProviderAcuRite,
		Date:        date,
	})
}

func (s *Server) serveFreshData(c *gin.Context, req ingest.FreshDataRequest) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.pipeline.FreshData(ctx, req)
	if errors.Is(err, ingest.ErrUnknownSensor) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func sensorIndexParam(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("sensor_index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sensor_index"})
		return 0, false
	}
	return idx, true
}
