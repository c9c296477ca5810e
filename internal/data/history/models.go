package history

import "time"

// Entry is one journaled rename operation.
type Entry struct {
	ID            string    `json:"id"`
	Command       string    `json:"command"`
	Symbol        string    `json:"symbol"`
	Module        string    `json:"module"`
	NewName       string    `json:"new_name"`
	Level         string    `json:"level,omitempty"`
	State         string    `json:"state"`
	FilesAffected int       `json:"files_affected"`
	Edits         int       `json:"edits"`
	Files         []string  `json:"files,omitempty"`
	Error         string    `json:"error,omitempty"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
}
