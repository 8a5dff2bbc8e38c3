// Package model holds the read-only descriptor snapshots the simulation
// runtime consumes. These types mirror entities owned by the surrounding
// CRUD layer; the runtime never mutates them.
package model

import "time"

// ProjectDescriptor is the set of devices a project groups together.
type ProjectDescriptor struct {
	ID            string
	EnabledDevice []string // device ids enabled for this project, as persisted
}

// DeviceDescriptor is a single simulated emitter.
type DeviceDescriptor struct {
	ID           string
	Name         string
	ProjectID    string
	Metadata     map[string]any
	PayloadRef   string
	TargetRef    string
	SendInterval int // seconds, 1..3600
	Enabled      bool
}

// PayloadKind distinguishes schema-driven from script-driven generators.
type PayloadKind string

const (
	PayloadKindSchema PayloadKind = "schema"
	PayloadKindScript PayloadKind = "script"
)

// PayloadDescriptor is either an ordered field schema or script source.
type PayloadDescriptor struct {
	ID     string
	Kind   PayloadKind
	Schema []FieldSpec // used when Kind == PayloadKindSchema
	Script string      // used when Kind == PayloadKindScript
}

// FieldType enumerates the value types a schema field can produce.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeUUID      FieldType = "uuid"
	FieldTypeTimestamp FieldType = "timestamp"
)

// GeneratorVariant enumerates how a field's value is produced.
type GeneratorVariant string

const (
	GeneratorFixed        GeneratorVariant = "fixed"
	GeneratorRandomInt    GeneratorVariant = "random_int"
	GeneratorRandomFloat  GeneratorVariant = "random_float"
	GeneratorRandomChoice GeneratorVariant = "random_choice"
	GeneratorRandomString GeneratorVariant = "random_string"
	GeneratorRandomBool   GeneratorVariant = "random"
)

// GeneratorSpec configures how a FieldSpec's value is produced.
type GeneratorSpec struct {
	Variant  GeneratorVariant
	Value    any      // fixed
	Min      float64  // random_int / random_float
	Max      float64  // random_int / random_float
	Decimals int      // random_float rounding precision
	Choices  []string // random_choice
	Length   int      // random_string
}

// FieldSpec is one field of a schema-driven payload.
type FieldSpec struct {
	Name      string
	Type      FieldType
	Generator GeneratorSpec
}

// TargetKind enumerates the supported outbound transports.
type TargetKind string

const (
	TargetHTTP      TargetKind = "http"
	TargetMQTT      TargetKind = "mqtt"
	TargetKafka     TargetKind = "kafka"
	TargetWebSocket TargetKind = "websocket"
	TargetFTP       TargetKind = "ftp"
	TargetPubSub    TargetKind = "pubsub"
)

// TargetDescriptor is a target system's kind plus its kind-specific config.
// Config is kept as a raw map so the connector factory can validate and
// decode it into the concrete kind's config struct.
type TargetDescriptor struct {
	ID     string
	Kind   TargetKind
	Config map[string]any
}

// LogEventType enumerates the kinds of events a device simulator emits.
type LogEventType string

const (
	EventStarted      LogEventType = "started"
	EventStopped      LogEventType = "stopped"
	EventConnected    LogEventType = "connected"
	EventDisconnected LogEventType = "disconnected"
	EventMessageSent  LogEventType = "message_sent"
	EventError        LogEventType = "error"
	EventWarning      LogEventType = "warning"
	EventInfo         LogEventType = "info"
)

// LogEntry is a single fan-out event from a device simulator.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	DeviceID   string         `json:"device_id"`
	DeviceName string         `json:"device_name"`
	EventType  LogEventType   `json:"event_type"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload,omitempty"`
	ProjectID  string         `json:"project_id,omitempty"`
}

// Payload is the JSON-representable mapping produced by a generator and
// accepted by a connector's Send.
type Payload map[string]any
