package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robot_face_inference_latency_seconds",
			Help:    "Inference call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	InferenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robot_face_inference_failures_total",
			Help: "Total number of failed inference calls",
		},
	)

	TokensPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robot_face_tokens_per_second",
			Help: "Generation speed of the most recent reply",
		},
	)

	NormalizedReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_face_normalized_replies_total",
			Help: "Model replies by the normalizer tier that accepted them",
		},
		[]string{"tier"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_face_state_transitions_total",
			Help: "Orchestrator state transitions by target state",
		},
		[]string{"state"},
	)

	ModelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_face_model_loads_total",
			Help: "Engine construction attempts by model and result",
		},
		[]string{"model", "result"},
	)

	IdleThoughts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robot_face_idle_thoughts_total",
			Help: "Idle thoughts shown while waiting for input",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robot_face_stream_clients",
			Help: "Connected SSE and WebSocket clients",
		},
	)
)
