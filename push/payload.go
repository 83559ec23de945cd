// Package push builds destination-agnostic summary payloads and fans
// them out to the configured destinations. Building and rendering are
// pure; only Dispatch touches the network.
package push

import (
	"html/template"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"tracking-api/domain"
)

// Event identifies why a payload is being pushed.
type Event string

const (
	EventTest          Event = "test"
	EventTaskCreated   Event = "task.created"
	EventTaskCompleted Event = "task.completed"
	EventPushSync      Event = "push.sync"
)

// TaskDetail is the per-task slice of a payload.
type TaskDetail struct {
	Title       string `json:"title"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// Summary is the profile rollup present on every payload. Counts cover
// all tasks; the Tasks list is populated only for summary events and
// only with tasks flagged for inclusion in reports.
type Summary struct {
	StreamsTotal float64            `json:"streams_total"`
	TaskCount    int                `json:"task_count"`
	OpenTasks    int                `json:"open_tasks"`
	DoneTasks    int                `json:"done_tasks"`
	NextSession  domain.NextSession `json:"next_session"`
	Tasks        []TaskDetail       `json:"tasks,omitempty"`
}

// Payload is the destination-agnostic summary pushed to every
// destination. The webhook sends it as JSON; email renders the same
// fields as HTML.
type Payload struct {
	Event     Event       `json:"event"`
	Business  string      `json:"business"`
	Year      int         `json:"year"`
	Summary   Summary     `json:"summary"`
	Task      *TaskDetail `json:"task,omitempty"`
	Timestamp string      `json:"ts"`
}

// Build assembles the payload for an event. Task detail rides along for
// task.created and task.completed; push.sync instead lists report-flagged
// tasks inside the summary.
func Build(p *domain.BusinessProfile, task *domain.Task, event Event) Payload {
	summary := Summary{
		StreamsTotal: p.StreamsTotal(),
		TaskCount:    len(p.Tasks),
		NextSession:  p.NextSession,
	}
	for i := range p.Tasks {
		if p.Tasks[i].Done() {
			summary.DoneTasks++
		} else {
			summary.OpenTasks++
		}
	}
	if event == EventPushSync {
		for i := range p.Tasks {
			if p.Tasks[i].IncludeInReport {
				summary.Tasks = append(summary.Tasks, detailOf(&p.Tasks[i]))
			}
		}
	}

	pl := Payload{
		Event:     event,
		Business:  p.Name,
		Year:      p.Year,
		Summary:   summary,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if task != nil && (event == EventTaskCreated || event == EventTaskCompleted) {
		d := detailOf(task)
		pl.Task = &d
	}
	return pl
}

func detailOf(t *domain.Task) TaskDetail {
	d := TaskDetail{
		Title:    t.Title,
		Assignee: t.Assignee,
		DueDate:  t.DueDate,
		Status:   string(t.Status),
		Notes:    t.Notes,
	}
	if t.CompletedAt != nil {
		d.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return d
}

// EncodeJSON renders the webhook body. Preview uses the same encoding,
// so what the operator sees is byte-identical to what a live dispatch
// sends.
func (pl Payload) EncodeJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(pl)
}

var emailTmpl = template.Must(template.New("email").Parse(`<html><body>
<h2>{{.Business}} — {{.Event}} ({{.Year}})</h2>
<p>Streams total: ${{printf "%.0f" .Summary.StreamsTotal}} — tasks {{.Summary.DoneTasks}}/{{.Summary.TaskCount}} done</p>
{{if .Summary.NextSession.When}}<p>Next session: {{.Summary.NextSession.When}} {{.Summary.NextSession.Notes}}</p>{{end}}
{{if .Task}}<h3>Task</h3>
<p><b>{{.Task.Title}}</b> — {{.Task.Assignee}} — due {{.Task.DueDate}} — {{.Task.Status}}</p>
{{if .Task.Notes}}<p>{{.Task.Notes}}</p>{{end}}{{end}}
{{if .Summary.Tasks}}<h3>Tasks in report</h3>
<ul>{{range .Summary.Tasks}}<li><b>{{.Title}}</b> — {{.Assignee}} — due {{.DueDate}} — {{.Status}}</li>{{end}}</ul>{{end}}
<p><small>{{.Timestamp}}</small></p>
</body></html>`))

// RenderHTML renders the email body from the same logical fields as the
// webhook JSON.
func (pl Payload) RenderHTML() (string, error) {
	var b strings.Builder
	if err := emailTmpl.Execute(&b, pl); err != nil {
		return "", err
	}
	return b.String(), nil
}
