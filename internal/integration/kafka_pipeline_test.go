//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/kafka"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/observability"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/ctessum/geom"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testRankingTopic = "test-ranking"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hotspots-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type staticZones map[string][]zonal.Zone

func (s staticZones) LoadZones(_ context.Context, src pipeline.ZoneSource) ([]zonal.Zone, error) {
	out := append([]zonal.Zone(nil), s[src.Path]...)
	for i := range out {
		out[i].Dataset, out[i].Country, out[i].Level = src.Dataset, src.Country, src.Level
	}
	return out, nil
}

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}
}

// TestPipelinePublishesRanking runs a full in-memory pipeline with the Kafka
// writer as report loader and reads the ranking back from the topic.
func TestPipelinePublishesRanking(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRankingTopic)

	meta := raster.Meta{
		Width: 4, Height: 2, BlockWidth: 4, BlockHeight: 2,
		Transform: raster.Transform{0, 1, 0, 2, 0, -1},
		NoData:    -9999, HasNoData: true,
	}
	store := raster.NewMemStore()
	require.NoError(t, store.Put("his.tif", meta, make([]float32, 8)))
	require.NoError(t, store.Put("fut.tif", meta, []float32{1, 1, 3, 3, 1, 1, 3, 3}))

	plan := pipeline.Plan{
		Variables: []domain.Variable{{Key: "bio1", Name: "BIO1", Group: domain.GroupThermal, HistPath: "his.tif", FutPath: "fut.tif"}},
		NoData:    -9999,
		Layout:    engine.Layout{Dir: "out", Ext: ".tif"},
		Datasets: []pipeline.Dataset{{
			Report: domain.DatasetReport{Key: "URUGUAY_DEPTO", Country: "URUGUAY", AdminLevel: "Departamento"},
			Source: pipeline.ZoneSource{Dataset: "URUGUAY_DEPTO", Country: "URUGUAY", Level: "Departamento", Path: "uy.shp"},
		}},
	}
	zones := staticZones{"uy.shp": {
		{Name: "Rivera", Index: 0, Geometry: rect(0, 0, 2, 2)},
		{Name: "Salto", Index: 1, Geometry: rect(2, 0, 4, 2)},
	}}

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaRankingTopic: testRankingTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	runner := pipeline.New(plan, store, zones, []pipeline.NamedLoader{{Name: "kafka", Loader: writer}},
		discardLogger(), observability.NewMetricsForTesting())
	res, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Loaders, 1)
	require.NoError(t, res.Loaders[0].Err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testRankingTopic,
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var got []kafka.RankedZone
	for range 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from ranking topic")

		var zone kafka.RankedZone
		require.NoError(t, json.Unmarshal(msg.Value, &zone))
		assert.Equal(t, kafka.MessageKey(domain.ZoneRecord{Country: zone.Country, AdminLevel: zone.AdminLevel, Name: zone.Zone}), string(msg.Key))
		got = append(got, zone)
	}

	assert.Equal(t, "Salto", got[0].Zone)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "Rivera", got[1].Zone)
	assert.Equal(t, res.RunID, got[1].RunID)
	assert.InDelta(t, 1.0, got[0].Consolidated, 1e-6)
}
