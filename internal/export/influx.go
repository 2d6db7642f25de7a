package export

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/config"
)

// InfluxWriter records readings as points in an InfluxDB v2 bucket.
// Writes are blocking so a failed write surfaces to the caller.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxConfig
	logger   *logrus.Logger
}

// NewInfluxWriter creates a writer for the configured server and bucket.
func NewInfluxWriter(cfg config.InfluxConfig, logger *logrus.Logger) (*InfluxWriter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Export writes one sample as a point tagged with the device identity.
func (w *InfluxWriter) Export(ctx context.Context, s Sample) error {
	point := write.NewPoint(
		w.cfg.Measurement,
		map[string]string{
			"mac":  s.MAC,
			"name": s.Name,
		},
		map[string]interface{}{
			"temperature_c": float64(s.Reading.Temperature),
			"humidity_pct":  float64(s.Reading.Humidity),
		},
		s.Timestamp,
	)

	if err := w.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write %s/%s: %w", w.cfg.Bucket, w.cfg.Measurement, err)
	}

	w.logger.WithFields(logrus.Fields{
		"bucket":      w.cfg.Bucket,
		"measurement": w.cfg.Measurement,
		"mac":         s.MAC,
	}).Debug("Wrote reading")
	return nil
}

// Close shuts the client down.
func (w *InfluxWriter) Close() {
	w.client.Close()
}
