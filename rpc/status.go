package rpc

import "github.com/nicebartender/squad-bridge/dispatch"

// Status is the operator view of the bridge.
type Status struct {
	Connected bool            `json:"connected"`
	Keys      bool            `json:"keys"`
	Region    string          `json:"region,omitempty"`
	InTeam    bool            `json:"inTeam"`
	Members   int             `json:"members"`
	Queued    int             `json:"queued"`
	Clients   int             `json:"clients"`
	Dispatch  *dispatch.Stats `json:"dispatch,omitempty"`
}

func (r *Router) status() Status {
	var st Status
	if r.State != nil {
		snap := r.State.Snapshot()
		st.Connected = snap.TransportReady()
		st.Keys = snap.CryptoReady()
		st.Region = snap.Region
		st.InTeam = snap.InGroup()
		st.Members = len(snap.Members)
	}
	if r.Queue != nil {
		st.Queued = r.Queue.Len()
	}
	if r.Hub != nil {
		st.Clients = r.Hub.ClientCount()
	}
	if r.Stats != nil {
		stats := r.Stats()
		st.Dispatch = &stats
	}
	return st
}
