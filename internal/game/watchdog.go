package game

// Inactivity thresholds.
const (
	WarnMs = 45000
	KickMs = 60000
)

// runWatchdog enforces per-player input deadlines. In multi mode idle
// players are warned then kicked; in solo/single an idle player ends the
// game. Membership and token cleanup for kicks is room work — the engine
// only flags the player and mutates game state.
func (e *Engine) runWatchdog(now int64, res *TickResult) {
	st := e.St
	for _, id := range st.joinOrder {
		p := st.Players[id]
		if p == nil || p.Kind != KindHuman || !p.Alive {
			continue
		}
		idle := now - st.lastInputMs[id]

		if st.Mode == ModeMulti {
			switch {
			case idle >= KickMs:
				p.Alive = false
				p.SurvivalDuration = now - p.SurvivalStart
				e.Pow.CancelAll(p)
				res.Kicked = append(res.Kicked, id)
			case idle >= WarnMs && !st.warned[id]:
				st.warned[id] = true
				remaining := int((KickMs - idle + 999) / 1000)
				res.Events = append(res.Events, Event{
					Name: "inactivityWarning",
					To:   id,
					Payload: map[string]any{
						"message":          "You will be removed for inactivity",
						"remainingSeconds": remaining,
					},
				})
			}
			continue
		}

		// Solo and single mode: idling out ends the whole session.
		if idle >= KickMs && st.Winner == nil {
			p.Alive = false
			p.SurvivalDuration = now - p.SurvivalStart
			e.Pow.CancelAll(p)
			e.checkWin(false, now)
			res.Ended = true
			res.EndReason = "player_inactive"
			return
		}
	}
}
