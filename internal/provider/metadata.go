package provider

// AdapterMetadata describes static metadata about a provider adapter.
type AdapterMetadata struct {
	Identifier     string           `json:"identifier"`
	DisplayName    string           `json:"displayName,omitempty"`
	Venue          string           `json:"venue,omitempty"`
	Description    string           `json:"description,omitempty"`
	Capabilities   []string         `json:"capabilities,omitempty"`
	SettingsSchema []AdapterSetting `json:"settingsSchema"`
}

// AdapterSetting details a user-configurable adapter parameter.
type AdapterSetting struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required"`
}

// Clone returns a deep copy of the adapter metadata.
func (m AdapterMetadata) Clone() AdapterMetadata {
	clone := m
	clone.Capabilities = append([]string(nil), m.Capabilities...)
	clone.SettingsSchema = cloneAdapterSettings(m.SettingsSchema)
	return clone
}

func cloneAdapterSettings(settings []AdapterSetting) []AdapterSetting {
	if len(settings) == 0 {
		return nil
	}
	out := make([]AdapterSetting, len(settings))
	copy(out, settings)
	return out
}
