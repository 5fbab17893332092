package task

import (
	"encoding/json"
	"fmt"
)

const (
	TaskTypeUpload = "sftp_upload"
)

// UploadPayload points the worker at a settings file written by the sftpush CLI.
type UploadPayload struct {
	SettingsFilePath    string `json:"settings_file_path"`
	SettingsKeyFilePath string `json:"settings_key_file_path,omitempty"`
}

func (p UploadPayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

func UnmarshalUploadPayload(data []byte) (UploadPayload, error) {
	var p UploadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return UploadPayload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.SettingsFilePath == "" {
		return UploadPayload{}, fmt.Errorf("settings_file_path is required")
	}
	return p, nil
}

type UploadResult struct {
	SettingsFilePath string `json:"settings_file_path"`
	SourcePath       string `json:"source_path"`
	DestinationPath  string `json:"destination_path"`
	Duration         string `json:"duration"`
}
