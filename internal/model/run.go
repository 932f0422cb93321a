package model

import "time"

type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run хранит сводку одного прохода по истории канала.
type Run struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	Status      RunStatus `json:"status"`
	Messages    int       `json:"messages"`    // просмотрено сообщений
	Tasks       int       `json:"tasks"`       // сообщений с вложениями
	Attachments int       `json:"attachments"` // попыток загрузки
	Saved       int       `json:"saved"`
	Failed      int       `json:"failed"`
	Bytes       int64     `json:"bytes"`
	PageErrors  int       `json:"page_errors,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Add учитывает результаты одной задачи в сводке.
func (r *Run) Add(files []File) {
	r.Tasks++
	for _, f := range files {
		r.Attachments++
		if f.OK() {
			r.Saved++
			r.Bytes += f.Size
		} else {
			r.Failed++
		}
	}
}
