package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/model"
)

const (
	defaultHeartbeatSeconds = 60
	defaultItemDuration     = 10
)

// Client talks to the catalog's PostgREST API. All writes that merely report
// state (progress, acks, heartbeats) swallow their own failures; reads and
// registration surface typed errors for the caller to route.
type Client struct {
	baseURL       string
	apiKey        string
	deviceID      string
	viewerBaseURL string
	httpClient    *http.Client
	now           func() time.Time
	logger        *zap.Logger

	mu         sync.RWMutex
	screenUUID string
}

// NewClient creates a new catalog client. now supplies timestamps so reports
// carry the synchronized clock, not the possibly-drifted system one.
func NewClient(baseURL, apiKey, deviceID, viewerBaseURL string, timeout time.Duration, now func() time.Time, logger *zap.Logger) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		deviceID:      deviceID,
		viewerBaseURL: strings.TrimRight(viewerBaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		now:           now,
		logger:        logger.Named("catalog"),
	}
}

// DeviceID returns the identifier this device presents to the catalog.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// ScreenUUID returns the opaque screen identifier learned from the last
// successful lookup, or the configured device id before first contact.
func (c *Client) ScreenUUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.screenUUID != "" {
		return c.screenUUID
	}
	return c.deviceID
}

// FindScreen locates this device's screen record. Operators enter the human
// custom id during provisioning, so that is tried case-insensitively first;
// long identifiers are additionally matched against the opaque UUID column.
func (c *Client) FindScreen(ctx context.Context) (*Screen, error) {
	id := strings.TrimSpace(c.deviceID)

	clauses := []string{
		fmt.Sprintf("custom_id.eq.%s", id),
		fmt.Sprintf("custom_id.eq.%s", strings.ToUpper(id)),
		fmt.Sprintf("custom_id.eq.%s", strings.ToLower(id)),
	}
	if len(id) > 20 {
		clauses = append(clauses, fmt.Sprintf("id.eq.%s", id))
	}

	query := url.Values{}
	query.Set("select", "*")
	query.Set("or", "("+strings.Join(clauses, ",")+")")
	query.Set("limit", "1")

	var screens []Screen
	if err := c.do(ctx, http.MethodGet, "/screens", query, nil, &screens); err != nil {
		return nil, err
	}
	if len(screens) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("screen %s not found in catalog", id))
	}

	screen := &screens[0]
	c.mu.Lock()
	c.screenUUID = screen.ID
	c.mu.Unlock()
	return screen, nil
}

// FetchPlaylist resolves the full playlist assigned to screen: the playlist
// row, its ordered items, and the media, widget and link metadata they
// reference. A screen with no assignment yields a NotFound error so callers
// can show the provisioning message instead of a generic failure.
func (c *Client) FetchPlaylist(ctx context.Context, screen *Screen) (*model.Playlist, error) {
	if screen.PlaylistID == nil || *screen.PlaylistID == "" {
		return nil, errors.NotFound("screen has no playlist assigned")
	}
	playlistID := *screen.PlaylistID

	query := url.Values{}
	query.Set("select", "id,name")
	query.Set("id", "eq."+playlistID)

	var playlists []remotePlaylist
	if err := c.do(ctx, http.MethodGet, "/playlists", query, nil, &playlists); err != nil {
		return nil, err
	}
	if len(playlists) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("playlist %s not found", playlistID))
	}

	itemQuery := url.Values{}
	itemQuery.Set("select", "*")
	itemQuery.Set("playlist_id", "eq."+playlistID)

	var rawItems []remotePlaylistItem
	if err := c.do(ctx, http.MethodGet, "/playlist_items", itemQuery, nil, &rawItems); err != nil {
		return nil, err
	}

	media, widgets, links, err := c.fetchItemMetadata(ctx, rawItems)
	if err != nil {
		return nil, err
	}

	return c.assemblePlaylist(&playlists[0], rawItems, media, widgets, links, screen), nil
}

// fetchItemMetadata loads the referenced media, widget and link rows. The
// items table carries only foreign keys; joins are avoided so a missing
// schema relationship on the backend cannot break sync.
func (c *Client) fetchItemMetadata(ctx context.Context, items []remotePlaylistItem) (map[string]remoteMedia, map[string]remoteWidget, map[string]remoteExternalLink, error) {
	var mediaIDs, widgetIDs, linkIDs []string
	for _, item := range items {
		if item.MediaID != nil {
			mediaIDs = append(mediaIDs, *item.MediaID)
		}
		if item.WidgetID != nil {
			widgetIDs = append(widgetIDs, *item.WidgetID)
		}
		if item.ExternalLinkID != nil {
			linkIDs = append(linkIDs, *item.ExternalLinkID)
		}
	}

	media := make(map[string]remoteMedia)
	if len(mediaIDs) > 0 {
		var rows []remoteMedia
		if err := c.do(ctx, http.MethodGet, "/media", inQuery(mediaIDs), nil, &rows); err != nil {
			return nil, nil, nil, err
		}
		for _, row := range rows {
			media[row.ID] = row
		}
	}

	widgets := make(map[string]remoteWidget)
	if len(widgetIDs) > 0 {
		var rows []remoteWidget
		if err := c.do(ctx, http.MethodGet, "/widgets", inQuery(widgetIDs), nil, &rows); err != nil {
			return nil, nil, nil, err
		}
		for _, row := range rows {
			widgets[row.ID] = row
		}
	}

	links := make(map[string]remoteExternalLink)
	if len(linkIDs) > 0 {
		var rows []remoteExternalLink
		if err := c.do(ctx, http.MethodGet, "/external_links", inQuery(linkIDs), nil, &rows); err != nil {
			return nil, nil, nil, err
		}
		for _, row := range rows {
			links[row.ID] = row
		}
	}

	return media, widgets, links, nil
}

// assemblePlaylist merges item rows with their metadata. Resolution priority
// is media, then widget, then external link; items referencing metadata that
// no longer exists are dropped with a log line rather than poisoning the
// whole playlist.
func (c *Client) assemblePlaylist(playlist *remotePlaylist, rawItems []remotePlaylistItem, media map[string]remoteMedia, widgets map[string]remoteWidget, links map[string]remoteExternalLink, screen *Screen) *model.Playlist {
	items := make([]model.MediaItem, 0, len(rawItems))

	for _, raw := range rawItems {
		var (
			id, name, rawURL string
			mediaType        model.MediaType
		)

		switch {
		case raw.MediaID != nil:
			row, ok := media[*raw.MediaID]
			if !ok {
				c.logger.Error("media referenced by item not found",
					zap.String("item_id", raw.ID), zap.String("media_id", *raw.MediaID))
				continue
			}
			id, name, rawURL = row.ID, row.Name, row.FileURL
			mediaType = resolveMediaType(row)
		case raw.WidgetID != nil:
			row, ok := widgets[*raw.WidgetID]
			if !ok {
				c.logger.Error("widget referenced by item not found",
					zap.String("item_id", raw.ID), zap.String("widget_id", *raw.WidgetID))
				continue
			}
			id, name = row.ID, row.Name
			rawURL = c.viewerBaseURL + "/widget/" + row.ID
			mediaType = model.MediaTypeWidget
		case raw.ExternalLinkID != nil:
			row, ok := links[*raw.ExternalLinkID]
			if !ok {
				c.logger.Error("link referenced by item not found",
					zap.String("item_id", raw.ID), zap.String("link_id", *raw.ExternalLinkID))
				continue
			}
			id, name = row.ID, row.Title
			rawURL = c.viewerBaseURL + "/link/" + row.ID
			mediaType = model.MediaTypeLink
		default:
			c.logger.Error("item carries no media, widget or link reference",
				zap.String("item_id", raw.ID))
			continue
		}

		duration := int64(defaultItemDuration)
		if raw.Duration != nil && *raw.Duration > 0 {
			duration = *raw.Duration
		}
		order := 0
		if raw.Position != nil {
			order = *raw.Position
		}

		items = append(items, model.MediaItem{
			ID:              id,
			Name:            name,
			Type:            mediaType,
			DurationSeconds: duration,
			RemoteURL:       rawURL,
			Hash:            urlFingerprint(rawURL),
			OrderIndex:      order,
			Schedule: model.Schedule{
				StartTime:  deref(raw.StartTime),
				EndTime:    deref(raw.EndTime),
				DaysOfWeek: deref(raw.DaysOfWeek),
			},
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OrderIndex < items[j].OrderIndex
	})

	orientation := "landscape"
	if screen.Orientation != nil && *screen.Orientation != "" {
		orientation = *screen.Orientation
	}
	resolution := "16x9"
	if screen.Resolution != nil && *screen.Resolution != "" {
		resolution = *screen.Resolution
	}

	return &model.Playlist{
		ID:                 playlist.ID,
		Name:               playlist.Name,
		Version:            c.now().UnixMilli(),
		Orientation:        orientation,
		Resolution:         resolution,
		HeartbeatInterval:  defaultHeartbeatSeconds,
		SeamlessTransition: true,
		CacheNextMedia:     true,
		Items:              items,
	}
}

// RegisterScreen inserts a pending-approval record so the device shows up in
// the operator dashboard on first boot.
func (c *Client) RegisterScreen(ctx context.Context, deviceName string) error {
	record := registerScreenRecord{
		ID:         c.deviceID,
		CustomID:   c.deviceID,
		Name:       deviceName,
		Status:     "pending_approval",
		Version:    "1.0.0",
		LastPingAt: c.isoTimestamp(),
	}
	if err := c.do(ctx, http.MethodPost, "/screens", nil, record, nil); err != nil {
		return fmt.Errorf("failed to self-register screen: %w", err)
	}
	c.logger.Info("screen self-registered pending approval", zap.String("device_id", c.deviceID))
	return nil
}

// Heartbeat reports liveness and device health through the catalog's RPC
// endpoint.
func (c *Client) Heartbeat(ctx context.Context, status, version string, health model.HealthSnapshot) error {
	params := heartbeatParams{
		ScreenID:  c.ScreenUUID(),
		Status:    status,
		Version:   version,
		RAMUsage:  fmt.Sprintf("%d%%", health.RAMUsedPercent),
		FreeSpace: fmt.Sprintf("%.1fGB", float64(health.FreeStorageBytes)/(1024*1024*1024)),
		CPUTemp:   formatTemp(health.CPUTempCelsius),
		Uptime:    fmt.Sprintf("%dh", health.UptimeHours),
		IPAddress: orNA(health.IPAddress),
	}
	return c.do(ctx, http.MethodPost, "/rpc/pulse_screen", nil, params, nil)
}

// InsertPlayLogs uploads a batch of buffered play-proof records.
func (c *Client) InsertPlayLogs(ctx context.Context, logs []model.PlaybackLog) error {
	if len(logs) == 0 {
		return nil
	}
	records := make([]playLogRecord, len(logs))
	for i, log := range logs {
		records[i] = playLogRecord{
			ScreenID:  log.ScreenID,
			MediaID:   log.MediaID,
			Duration:  log.DurationSeconds,
			StartedAt: log.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			Status:    log.Status,
		}
	}
	return c.do(ctx, http.MethodPost, "/playback_logs", nil, records, nil)
}

// ReportDownloadProgress upserts per-media progress so operators can watch a
// provisioning screen fill. Failures are swallowed: visibility never blocks
// the pipeline.
func (c *Client) ReportDownloadProgress(ctx context.Context, mediaID string, percent int) {
	record := downloadStatusRecord{
		DeviceID:  c.ScreenUUID(),
		MediaID:   mediaID,
		Progress:  percent,
		UpdatedAt: c.isoTimestamp(),
	}
	query := url.Values{}
	query.Set("on_conflict", "device_id,media_id")

	if err := c.doWithPrefer(ctx, http.MethodPost, "/download_status", query, record, nil, "resolution=merge-duplicates"); err != nil {
		c.logger.Debug("download progress report failed", zap.String("media_id", mediaID), zap.Error(err))
	}
}

// AcknowledgeCommand records a command's terminal status and execution time.
func (c *Client) AcknowledgeCommand(ctx context.Context, commandID, status string) {
	query := url.Values{}
	query.Set("id", "eq."+commandID)
	body := map[string]string{
		"status":      status,
		"executed_at": c.isoTimestamp(),
	}
	if err := c.do(ctx, http.MethodPatch, "/remote_commands", query, body, nil); err != nil {
		c.logger.Error("failed to acknowledge command", zap.String("command_id", commandID), zap.Error(err))
	}
}

// RecordScreenshot stamps the screens row after a screenshot upload so the
// dashboard refreshes its preview.
func (c *Client) RecordScreenshot(ctx context.Context, objectPath, source string) {
	uuid := c.ScreenUUID()
	query := url.Values{}
	query.Set("id", "eq."+uuid)
	body := map[string]string{
		"last_screenshot_at":   c.isoTimestamp(),
		"last_screenshot_type": source,
		"last_screenshot_url":  fmt.Sprintf("%s?t=%d", objectPath, c.now().UnixMilli()),
	}
	if err := c.do(ctx, http.MethodPatch, "/screens", query, body, nil); err != nil {
		c.logger.Error("failed to record screenshot metadata", zap.Error(err))
	}
}

// ReportScreenAction stamps the screens row after a remote command is applied.
func (c *Client) ReportScreenAction(ctx context.Context, action, value string) {
	query := url.Values{}
	query.Set("id", "eq."+c.ScreenUUID())
	body := map[string]string{
		"last_action":       action,
		"last_action_value": value,
		"last_action_at":    c.isoTimestamp(),
	}
	if err := c.do(ctx, http.MethodPatch, "/screens", query, body, nil); err != nil {
		c.logger.Debug("failed to report screen action", zap.String("action", action), zap.Error(err))
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.doWithPrefer(ctx, method, path, query, body, out, "")
}

func (c *Client) doWithPrefer(ctx context.Context, method, path string, query url.Values, body, out any, prefer string) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		if prefer != "" {
			req.Header.Set("Prefer", "return=minimal,"+prefer)
		} else {
			req.Header.Set("Prefer", "return=minimal")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeTransient, "catalog request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.SessionExpired(fmt.Sprintf("catalog rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode >= 400:
		return errors.Wrap(errors.ErrorTypeTransient,
			fmt.Sprintf("catalog returned status %d for %s %s", resp.StatusCode, method, path), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrorTypeTransient, "failed to decode catalog response", err)
		}
	}
	return nil
}

func (c *Client) isoTimestamp() string {
	return c.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func inQuery(ids []string) url.Values {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "in.("+strings.Join(ids, ",")+")")
	return query
}

// resolveMediaType trusts the catalog's type column and falls back to the
// file extension; signed URLs carry query params that must be stripped first.
func resolveMediaType(row remoteMedia) model.MediaType {
	if row.FileType != nil {
		switch *row.FileType {
		case "video":
			return model.MediaTypeVideo
		case "image":
			return model.MediaTypeImage
		}
	}

	clean := row.FileURL
	if idx := strings.IndexByte(clean, '?'); idx != -1 {
		clean = clean[:idx]
	}
	ext := strings.ToLower(clean[strings.LastIndexByte(clean, '.')+1:])
	switch ext {
	case "mp4", "mkv", "webm", "avi", "mov":
		return model.MediaTypeVideo
	default:
		return model.MediaTypeImage
	}
}

// urlFingerprint derives a short change marker from the media URL. The
// catalog carries no content checksum, so a URL change is what forces a
// re-download; the short form is deliberately not a full SHA-256 so the file
// store treats presence under the media id as identity.
func urlFingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatTemp(celsius float64) string {
	if celsius <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f°C", celsius)
}
