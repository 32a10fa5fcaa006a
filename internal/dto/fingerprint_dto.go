package dto

type RegisterRequest struct {
	RegistrationID string `json:"registrationId" validate:"required"`
	Finger         string `json:"finger"`
	Samples        int    `json:"samples"`
	Overwrite      *bool  `json:"overwrite,omitempty"`
}

type RegisterResponse struct {
	RegistrationID string  `json:"registrationId"`
	Finger         string  `json:"finger"`
	TemplatePath   string  `json:"templatePath"`
	TemplateSize   int     `json:"templateSize"`
	Samples        int     `json:"samples"`
	SelectedImages int     `json:"selectedImages"`
	AverageQuality float64 `json:"averageQuality"`
}

type VerifyRequest struct {
	RegistrationID string `json:"registrationId" validate:"required"`
	Finger         string `json:"finger"`
}

type VerifyResponse struct {
	RegistrationID string `json:"registrationId"`
	Matched        bool   `json:"matched"`
	Score          int    `json:"score"`
	Threshold      int    `json:"threshold"`
	CaptureQuality int    `json:"captureQuality"`
	TemplatePath   string `json:"templatePath"`
}

type IdentifyRequest struct {
	// Directory to search; empty means the configured template root.
	SearchDir string `json:"searchDir"`
}

type IdentifyResponse struct {
	Matched        bool   `json:"matched"`
	RegistrationID string `json:"registrationId,omitempty"`
	Label          string `json:"label,omitempty"`
	TemplatePath   string `json:"templatePath,omitempty"`
	Score          int    `json:"score"`
	Threshold      int    `json:"threshold"`
	MatchIndex     int    `json:"matchIndex"`
	TotalCompared  int    `json:"totalCompared"`
}

type CaptureResponse struct {
	CaptureDir   string  `json:"captureDir"`
	TemplatePath string  `json:"templatePath"`
	TemplateSize int     `json:"templateSize"`
	Quality      float64 `json:"quality"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	DeviceConnected bool   `json:"deviceConnected"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
	LastError       string `json:"lastError,omitempty"`
}
