package coordinator

// TeamResult is the outcome of one team's pipeline.
type TeamResult struct {
	Team      string
	Projects  []*Project
	Succeeded int
	Failed    int
	Escalated bool
	Reason    string
}

// RunResult aggregates every team's outcome for one goal.
type RunResult struct {
	Success   bool
	Total     int
	Succeeded int
	Failed    int
	Escalated bool
	Reason    string
	Teams     []TeamResult
}

// aggregate sums team results. The reason of the first escalated team in
// results wins.
func aggregate(results []TeamResult) *RunResult {
	res := &RunResult{Teams: results}
	for _, tr := range results {
		res.Succeeded += tr.Succeeded
		res.Failed += tr.Failed
		if tr.Escalated && !res.Escalated {
			res.Escalated = true
			res.Reason = tr.Reason
		}
	}
	res.Total = res.Succeeded + res.Failed
	res.Success = res.Total > 0 && res.Failed == 0 && !res.Escalated
	if !res.Success && res.Reason == "" {
		switch {
		case res.Total == 0:
			res.Reason = "no projects were planned"
		default:
			res.Reason = "one or more projects failed"
		}
	}
	return res
}
