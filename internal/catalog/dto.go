package catalog

// Screen is the catalog's record for a physical display.
type Screen struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CustomID       *string `json:"custom_id"`
	PlaylistID     *string `json:"playlist_id"`
	Orientation    *string `json:"orientation"`
	Resolution     *string `json:"resolution"`
	IsActive       *bool   `json:"is_active"`
	AudioEnabled   *bool   `json:"audio_enabled"`
	TimezoneOffset *int    `json:"timezone_offset"`
}

// UUID returns the opaque identifier used for commands and file paths. The
// custom id is operator-facing and may change; the UUID never does.
func (s *Screen) UUID() string {
	return s.ID
}

type remotePlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type remotePlaylistItem struct {
	ID             string  `json:"id"`
	MediaID        *string `json:"media_id"`
	WidgetID       *string `json:"widget_id"`
	ExternalLinkID *string `json:"external_link_id"`
	Position       *int    `json:"position"`
	Duration       *int64  `json:"duration"`
	StartTime      *string `json:"start_time"`
	EndTime        *string `json:"end_time"`
	DaysOfWeek     *string `json:"days_of_week"`
}

type remoteMedia struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	FileType *string `json:"file_type"`
	FileURL  string  `json:"file_url"`
}

type remoteWidget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type remoteExternalLink struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type playLogRecord struct {
	ScreenID  string `json:"screen_id"`
	MediaID   string `json:"media_id"`
	Duration  int    `json:"duration"`
	StartedAt string `json:"started_at"`
	Status    string `json:"status"`
}

type downloadStatusRecord struct {
	DeviceID  string `json:"device_id"`
	MediaID   string `json:"media_id"`
	Progress  int    `json:"progress"`
	UpdatedAt string `json:"updated_at"`
}

type registerScreenRecord struct {
	ID         string `json:"id"`
	CustomID   string `json:"custom_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Version    string `json:"version"`
	LastPingAt string `json:"last_ping_at"`
}

type heartbeatParams struct {
	ScreenID  string `json:"p_screen_id"`
	Status    string `json:"p_status"`
	Version   string `json:"p_version"`
	RAMUsage  string `json:"p_ram_usage"`
	FreeSpace string `json:"p_free_space"`
	CPUTemp   string `json:"p_cpu_temp"`
	Uptime    string `json:"p_uptime"`
	IPAddress string `json:"p_ip_address"`
}
