package main

import (
	"net/http"
	"testing"
)

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name          string
		dbHealthy     bool
		redisHealthy  bool
		redisRequired bool
		want          int
	}{
		{name: "all healthy", dbHealthy: true, redisHealthy: true, redisRequired: true, want: http.StatusOK},
		{name: "db down", dbHealthy: false, redisHealthy: true, redisRequired: true, want: http.StatusServiceUnavailable},
		{name: "redis down and required", dbHealthy: true, redisHealthy: false, redisRequired: true, want: http.StatusServiceUnavailable},
		{name: "redis down in memory mode", dbHealthy: true, redisHealthy: false, redisRequired: false, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthStatus(tt.dbHealthy, tt.redisHealthy, tt.redisRequired); got != tt.want {
				t.Errorf("healthStatus(%v, %v, %v) = %d, want %d",
					tt.dbHealthy, tt.redisHealthy, tt.redisRequired, got, tt.want)
			}
		})
	}
}
