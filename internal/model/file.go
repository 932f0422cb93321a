package model

// File описывает результат обработки одного вложения.
//
// При успехе заполнен Path, при неудаче Error. Mirrored выставляется,
// если файл дополнительно выгружен в объектное хранилище.
type File struct {
	AttachmentID string `json:"attachment_id"`
	MessageID    string `json:"message_id,omitempty"`
	URL          string `json:"url,omitempty"`
	OrigName     string `json:"orig_name,omitempty"`
	Name         string `json:"name,omitempty"`
	Path         string `json:"path,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Mirrored     bool   `json:"mirrored,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (f File) OK() bool {
	return f.Error == ""
}
