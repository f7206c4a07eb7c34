package devtools

import (
	"griddojo/internal/prefetch"
	"griddojo/internal/session"
)

// StateView is the JSON shape served by /__dev/state and /__dev/stream.
type StateView struct {
	RunID          string       `json:"run_id,omitempty"`
	SetID          string       `json:"set_id"`
	Mode           string       `json:"mode"`
	Status         string       `json:"status"`
	Index          int          `json:"index"`
	Total          int          `json:"total"`
	Endless        bool         `json:"endless"`
	Finished       bool         `json:"finished"`
	ChallengeID    string       `json:"challenge_id,omitempty"`
	Hydrated       bool         `json:"hydrated"`
	Pending        bool         `json:"pending"`
	Selected       []int        `json:"selected"`
	TotalScore     int          `json:"total_score"`
	Streak         int          `json:"streak"`
	TimeRemaining  int          `json:"time_remaining"`
	TimerExpired   bool         `json:"timer_expired"`
	Completed      int          `json:"completed"`
	Attempts       int          `json:"attempts"`
	WarmupPercent  int          `json:"warmup_percent"`
	WarmupComplete bool         `json:"warmup_complete"`
	Prefetch       PrefetchView `json:"prefetch"`
}

type PrefetchView struct {
	Scope        string `json:"scope"`
	Cached       int    `json:"cached"`
	InFlight     int    `json:"in_flight"`
	Running      int    `json:"running"`
	Queued       int    `json:"queued"`
	Attempted    int    `json:"attempted"`
	Failed       int    `json:"failed"`
	Concurrency  int    `json:"concurrency"`
	Quality      string `json:"quality"`
	WarmTarget   int    `json:"warm_target"`
	WarmComplete bool   `json:"warm_complete"`
}

func viewOf(s session.Snapshot, st prefetch.Stats) StateView {
	selected := s.Selected
	if selected == nil {
		selected = []int{}
	}
	v := StateView{
		RunID:          s.RunID,
		SetID:          s.SetID,
		Mode:           s.Mode,
		Status:         string(s.Status),
		Index:          s.Index,
		Total:          s.Total,
		Endless:        s.Endless,
		Finished:       s.Finished,
		Pending:        s.Pending,
		Selected:       selected,
		TotalScore:     s.TotalScore,
		Streak:         s.Streak,
		TimeRemaining:  s.TimeRemaining,
		TimerExpired:   s.TimerExpired,
		Completed:      s.Completed,
		Attempts:       s.Attempts,
		WarmupPercent:  s.WarmupPercent,
		WarmupComplete: s.WarmupComplete,
		Prefetch: PrefetchView{
			Scope:        string(st.Scope),
			Cached:       st.Cached,
			InFlight:     st.InFlight,
			Running:      st.Running,
			Queued:       st.Queued,
			Attempted:    st.Attempted,
			Failed:       st.Failed,
			Concurrency:  st.Concurrency,
			Quality:      string(st.Quality),
			WarmTarget:   st.WarmTarget,
			WarmComplete: st.WarmComplete,
		},
	}
	if s.HasChallenge {
		v.ChallengeID = s.Challenge.ChallengeID
		v.Hydrated = s.Challenge.Hydrated
	}
	return v
}
