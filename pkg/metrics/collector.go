package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/store"
)

// StoreCollector reports gauges computed from the job store at scrape time
type StoreCollector struct {
	store     store.Store
	startTime time.Time

	uptime       *prometheus.Desc
	jobsByStatus *prometheus.Desc
	regions      *prometheus.Desc
	storeUp      *prometheus.Desc
}

// NewStoreCollector creates a collector over s
func NewStoreCollector(s store.Store) *StoreCollector {
	return &StoreCollector{
		store:     s,
		startTime: time.Now(),
		uptime: prometheus.NewDesc(namespace+"_uptime_seconds",
			"Time since the server started", nil, nil),
		jobsByStatus: prometheus.NewDesc(namespace+"_jobs_by_status",
			"Number of stored jobs by status", []string{"status"}, nil),
		regions: prometheus.NewDesc(namespace+"_regions_total",
			"Number of regions across all stored jobs", nil, nil),
		storeUp: prometheus.NewDesc(namespace+"_store_up",
			"Whether the job store answered the last scrape", nil, nil),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.jobsByStatus
	ch <- c.regions
	ch <- c.storeUp
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startTime).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobs, err := c.store.ListJobs(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.storeUp, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.storeUp, prometheus.GaugeValue, 1)

	counts := map[models.JobStatus]int{
		models.JobStatusCreated:        0,
		models.JobStatusRegionsPending: 0,
		models.JobStatusQueued:         0,
		models.JobStatusRunning:        0,
		models.JobStatusCompleted:      0,
		models.JobStatusFailed:         0,
	}
	regions := 0
	for _, job := range jobs {
		counts[job.Status]++
		regions += len(job.Regions)
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.regions, prometheus.GaugeValue, float64(regions))
}
