package config

import "time"

// Config is the root configuration for the pilot daemon.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Inference InferenceConfig `json:"inference"`
	Task      TaskConfig      `json:"task"`
	Events    EventsConfig    `json:"events"`
	Security  SecurityConfig  `json:"security"`
}

// GatewayConfig holds the submission surface's HTTP settings.
type GatewayConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	SubscriberBacklog int   `json:"subscriber_backlog"`
}

// InferenceConfig configures the locally hosted inference server and the
// models used for each collaborator role (§3 Configuration).
type InferenceConfig struct {
	Endpoint       string   `json:"inference_endpoint"`
	PlannerModel   string   `json:"planner_model"`
	VisionModel    string   `json:"vision_model"`
	EmbeddingModel string   `json:"embedding_model"`
	PlanCallTimeout Duration `json:"plan_call_timeout,omitempty"`
	StepVerifyTimeout Duration `json:"step_verify_timeout,omitempty"`
	VerifyThreshold float64  `json:"verify_threshold,omitempty"`
}

// TaskConfig configures the lifecycle engine's bounded retry behavior.
type TaskConfig struct {
	MaxReplans int `json:"max_replans"`
	// BrowseTruncateChars is the BROWSE action's content truncation threshold.
	BrowseTruncateChars int `json:"browse_truncate_chars"`
}

// SecurityConfig configures the two-stage plan screen.
type SecurityConfig struct {
	// EnableModelScreen turns on stage-2 (inference-backed) classification.
	EnableModelScreen bool     `json:"enable_model_screen"`
	SecurityModel     string   `json:"security_model,omitempty"`
	DenylistTimeout   Duration `json:"denylist_timeout,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
