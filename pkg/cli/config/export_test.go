package config

// SetPath sets the configuration file path directly for tests.
func (a *AppConfig) SetPath(path string) {
	a.path = path
}

// NewGeminiForTest creates a Gemini config with explicit values for tests.
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{projectID: projectID, location: location}
}
