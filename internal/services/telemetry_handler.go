package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/kafka"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
)

// devicePayloadSchema is the wire contract of a raw payload: an object of
// timestamp-keyed rows, each row itself an object. Finer-grained issues
// (non-integer keys, malformed stream rows) degrade gracefully inside the
// pipeline instead of failing the message.
const devicePayloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"additionalProperties": {"type": "object"}
}`

// TelemetryHandler consumes raw telemetry from Kafka and feeds it to the
// ingest pipeline. A keyed message carries one device's payload, the key
// being the device UID; a keyless message carries a map of device UIDs to
// payloads.
type TelemetryHandler struct {
	logger       *utils.Logger
	kafkaManager *kafka.Manager
	ingest       *IngestService
	alarmLog     *AlarmLogService
	validator    *utils.JSONSchemaValidator
	instanceID   string
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(
	kafkaManager *kafka.Manager,
	ingest *IngestService,
	alarmLog *AlarmLogService,
	instanceID string,
	logger *utils.Logger,
) (*TelemetryHandler, error) {
	validator := utils.NewJSONSchemaValidator()
	if err := validator.LoadSchema("device_payload", devicePayloadSchema); err != nil {
		return nil, err
	}

	return &TelemetryHandler{
		logger:       logger.Named("telemetry_handler"),
		kafkaManager: kafkaManager,
		ingest:       ingest,
		alarmLog:     alarmLog,
		validator:    validator,
		instanceID:   instanceID,
	}, nil
}

// Initialize registers the raw-data consumer. The returned error of the
// message handler routes the message to the dead letter queue.
func (h *TelemetryHandler) Initialize(ctx context.Context) error {
	return h.kafkaManager.RegisterRawDataHandler("telemetry",
		func(devUI string, payload json.RawMessage) error {
			return h.handleRawData(ctx, devUI, payload)
		})
}

func (h *TelemetryHandler) handleRawData(ctx context.Context, devUI string, payload json.RawMessage) error {
	if devUI != "" {
		if err := h.validator.ValidateJSON("device_payload", payload); err != nil {
			h.alarmLog.Add(models.LogWarning,
				fmt.Sprintf("Payload for device %s rejected by schema: %v", devUI, err),
				utils.NowMS(), "device", nil, h.instanceID)
			return err
		}
		var dp DevicePayload
		if err := json.Unmarshal(payload, &dp); err != nil {
			h.alarmLog.Add(models.LogWarning,
				fmt.Sprintf("Undecodable payload for device %s: %v", devUI, err),
				utils.NowMS(), "device", nil, h.instanceID)
			return err
		}
		return h.ingest.IngestDevicePayload(ctx, devUI, dp)
	}

	// Keyless message: one payload per device, keyed by device UID.
	var multi map[string]json.RawMessage
	if err := json.Unmarshal(payload, &multi); err != nil {
		h.alarmLog.Add(models.LogWarning,
			fmt.Sprintf("Undecodable multi-device payload: %v", err),
			utils.NowMS(), "device", nil, h.instanceID)
		return err
	}

	var firstErr error
	for ui, raw := range multi {
		if err := h.validator.ValidateJSON("device_payload", raw); err != nil {
			h.alarmLog.Add(models.LogWarning,
				fmt.Sprintf("Payload for device %s rejected by schema: %v", ui, err),
				utils.NowMS(), "device", nil, h.instanceID)
			continue
		}
		var dp DevicePayload
		if err := json.Unmarshal(raw, &dp); err != nil {
			h.alarmLog.Add(models.LogWarning,
				fmt.Sprintf("Undecodable payload for device %s: %v", ui, err),
				utils.NowMS(), "device", nil, h.instanceID)
			continue
		}
		if err := h.ingest.IngestDevicePayload(ctx, ui, dp); err != nil {
			h.logger.Error("Failed to ingest device payload",
				zap.String("dev_ui", ui),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
