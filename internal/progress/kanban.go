package progress

// KanbanColumn places a design pipeline on a board with the given number of
// columns: the current step, else the step after the last completed one,
// else the first column.
func KanbanColumn(steps []PipelineStep, columns int) int {
	if columns < 1 {
		columns = 1
	}
	lastDone := 0
	for _, s := range steps {
		if s.Status == StepCurrent && s.Position >= 1 {
			return min(s.Position, columns)
		}
		if s.Status == StepCompleted && s.Position > lastDone {
			lastDone = s.Position
		}
	}
	if lastDone > 0 {
		return min(lastDone+1, columns)
	}
	return 1
}

type KanbanCard struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Status Status `json:"status"`
}

type KanbanLane struct {
	Position int          `json:"position"`
	Label    string       `json:"label"`
	Cards    []KanbanCard `json:"cards"`
}

// KanbanItem is a design project ready for board placement.
type KanbanItem struct {
	Result DesignResult
	Steps  []PipelineStep
}

// GroupKanban builds one lane per label. Cancelled projects are left off the board.
func GroupKanban(items []KanbanItem, labels []string) []KanbanLane {
	lanes := make([]KanbanLane, len(labels))
	for i, l := range labels {
		lanes[i] = KanbanLane{Position: i + 1, Label: l, Cards: []KanbanCard{}}
	}
	if len(lanes) == 0 {
		return lanes
	}
	for _, it := range items {
		if it.Result.Lifecycle == LifecycleCancelled {
			continue
		}
		col := KanbanColumn(it.Steps, len(lanes))
		lanes[col-1].Cards = append(lanes[col-1].Cards, KanbanCard{
			ID:     it.Result.ID,
			Name:   it.Result.Name,
			Owner:  it.Result.Owner,
			Status: it.Result.Status,
		})
	}
	return lanes
}
