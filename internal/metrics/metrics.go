package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PeerLinks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mesh_peer_links",
		Help: "Peer links by connection state",
	}, []string{"state"})

	PeerRenegotiations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_peer_renegotiations_total",
		Help: "Full renegotiations started after a link failure",
	})

	PeerDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_peer_dropped_total",
		Help: "Participants dropped after link recovery gave up",
	})

	SessionTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_session_terminations_total",
		Help: "Local sessions ended, by reason",
	}, []string{"reason"})

	RecordingBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_recording_bytes_total",
		Help: "Bytes appended to recording chunks",
	})

	SignalPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_signal_published_total",
		Help: "Signaling events published, by type",
	}, []string{"type"})

	RemoteRTPBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_remote_rtp_bytes_total",
		Help: "RTP payload bytes received from remote participants",
	})
)

var (
	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesh_hub_subscribers",
		Help: "Open signaling subscriptions on the hub",
	})

	HubFramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_hub_frames_relayed_total",
		Help: "Frames fanned out to session channels",
	})

	HubFramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_hub_frames_rejected_total",
		Help: "Frames rejected by the hub, by reason",
	}, []string{"reason"})

	HubKicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_hub_kicked_total",
		Help: "Subscribers disconnected by the backpressure policy",
	})
)
