// Package kafka publishes ranked zones to a Kafka topic, one message per zone.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces ranking messages to a Kafka topic.
// It implements pipeline.ReportLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured ranking topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRankingTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// RankedZone is the message payload of one ranked zone.
type RankedZone struct {
	RunID         string             `json:"run_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Rank          int                `json:"rank"`
	Dataset       string             `json:"dataset"`
	Country       string             `json:"country"`
	AdminLevel    string             `json:"admin_level"`
	Zone          string             `json:"zone"`
	ThermalStress *float64           `json:"thermal_stress"`
	HydricStress  *float64           `json:"hydric_stress"`
	Consolidated  float64            `json:"consolidated"`
	Z             map[string]float64 `json:"z"`
}

// LoadReport publishes the global ranking in a single WriteMessages call.
func (w *Writer) LoadReport(ctx context.Context, rep domain.Report) error {
	if len(rep.Ranking) == 0 {
		w.logger.Warn("empty ranking, nothing published")
		return nil
	}
	msgs := make([]kafkago.Message, len(rep.Ranking))
	for i := range rep.Ranking {
		msg, err := serializeToMessage(rep, rep.Ranking[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish ranking: %w", err)
	}
	w.logger.Info("ranking published", "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey identifies a zone across runs so compacted topics keep the
// latest ranking of each zone.
func MessageKey(r domain.ZoneRecord) string {
	return r.Country + "|" + r.AdminLevel + "|" + r.Name
}

// serializeToMessage marshals one ranked zone into a Kafka message.
func serializeToMessage(rep domain.Report, r domain.ZoneRecord) (kafkago.Message, error) {
	z := make(map[string]float64, len(rep.Variables))
	for _, v := range rep.Variables {
		if m := r.Mean(v.ZGridName()); finite(m) {
			z[v.ZGridName()] = m
		}
	}
	data, err := json.Marshal(RankedZone{
		RunID:         rep.RunID,
		GeneratedAt:   rep.GeneratedAt,
		Rank:          r.Rank,
		Dataset:       r.Dataset,
		Country:       r.Country,
		AdminLevel:    r.AdminLevel,
		Zone:          r.Name,
		ThermalStress: optional(r.ThermalStress),
		HydricStress:  optional(r.HydricStress),
		Consolidated:  r.Consolidated,
		Z:             z,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize zone %s: %w", r.Name, err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(r)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(rep.RunID)},
			{Key: "rank", Value: []byte(strconv.Itoa(r.Rank))},
			{Key: "generated_at", Value: []byte(rep.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// optional drops non-finite values, which JSON cannot carry.
func optional(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}
