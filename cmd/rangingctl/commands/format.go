package commands

import (
	"encoding/json"
	"fmt"

	"github.com/go-ranging/goranging/internal/aggregator"
)

type sessionView struct {
	Peer             string `json:"peer"`
	State            string `json:"state"`
	MeasurementCount uint64 `json:"measurement_count"`
}

func sessionsToView(snapshots []aggregator.Snapshot) []sessionView {
	views := make([]sessionView, 0, len(snapshots))
	for _, s := range snapshots {
		views = append(views, sessionView{
			Peer:             s.Peer.String(),
			State:            s.State.String(),
			MeasurementCount: s.MeasurementCount,
		})
	}
	return views
}

func formatSessionsJSON(snapshots []aggregator.Snapshot) (string, error) {
	data, err := json.MarshalIndent(sessionsToView(snapshots), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
