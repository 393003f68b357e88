// Package app holds the application logic behind the terminal UI and the
// CLI: the startup workflow, cache refetching and the selection state
// machine that decides which controls are enabled.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/catalog"
	"github.com/catalogtools/apt/pkg/settings"
	"github.com/catalogtools/apt/pkg/stores"
	"github.com/catalogtools/apt/pkg/telemetry"
)

var (
	// ErrNeedsSettings is returned when the settings file is missing or invalid.
	ErrNeedsSettings = errors.New("settings are missing or invalid")

	// ErrDisabled is returned when an operation's control is disabled.
	ErrDisabled = errors.New("control is disabled")

	// ErrUnknownSelection is returned when a selected id is not available.
	ErrUnknownSelection = errors.New("selection is not available")
)

// CatalogClient is the part of the REST client the session uses.
type CatalogClient interface {
	ValidateToken(ctx context.Context) bool
	RefreshToken(ctx context.Context) bool
	GetDocumentHubs(ctx context.Context) ([]alation.DocumentHub, error)
	GetFolders(ctx context.Context, params url.Values) ([]alation.Folder, error)
	GetTemplates(ctx context.Context) ([]alation.Template, error)
	GetTemplate(ctx context.Context, id int64) (*alation.Template, error)
	BaseURL() string
}

// ClientFactory builds a client for the given settings.
type ClientFactory func(cfg alation.Config) CatalogClient

// DefaultClientFactory builds the real REST client.
func DefaultClientFactory(cfg alation.Config) CatalogClient {
	return alation.NewClient(cfg)
}

// Options configures a Session.
type Options struct {
	// SettingsPath is the settings file location.
	SettingsPath string

	// Store persists the cache snapshot and the activity log. Optional.
	Store stores.Store

	// Telemetry receives logs, spans, metrics and events. Optional.
	Telemetry *telemetry.Telemetry

	// NewClient overrides DefaultClientFactory.
	NewClient ClientFactory

	// Fetch tunes the folder fetch of RefetchCache.
	Fetch FetchOptions
}

// Session owns the cache, the client and the current selections. All
// methods are safe for concurrent use; network calls run without holding
// the session lock.
type Session struct {
	settingsPath string
	store        stores.Store
	tel          *telemetry.Telemetry
	newClient    ClientFactory
	fetchOpts    FetchOptions
	logger       *telemetry.Logger

	mu            sync.RWMutex
	settings      *settings.Settings
	client        CatalogClient
	needsSettings bool
	tokenValid    bool
	cache         *catalog.Cache
	sel           Selection
	tree          []*catalog.FolderNode
	templates     []alation.Template
}

// NewSession creates a session. Nothing is loaded until Initialize.
func NewSession(opts Options) (*Session, error) {
	tel := opts.Telemetry
	if tel == nil {
		cfg := telemetry.DefaultConfig()
		cfg.Metrics.Enabled = false
		cfg.Events.Enabled = false
		var err error
		if tel, err = telemetry.NewTelemetryWithLogger(cfg, telemetry.NopLogger()); err != nil {
			return nil, fmt.Errorf("failed to create telemetry: %w", err)
		}
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = DefaultClientFactory
	}

	s := &Session{
		settingsPath:  opts.SettingsPath,
		store:         opts.Store,
		tel:           tel,
		newClient:     newClient,
		fetchOpts:     opts.Fetch.withDefaults(),
		logger:        tel.Logger.NewComponentLogger("session"),
		needsSettings: true,
		cache:         catalog.EmptyCache(),
	}

	if s.store != nil {
		tel.Events.Subscribe(s.recordActivity, telemetry.FilterByType(activityEvents...))
	}
	return s, nil
}

// Initialize runs the startup workflow: load settings, refresh the access
// token, then load the persisted cache or fetch a fresh one. It returns
// ErrNeedsSettings, wrapping the cause, when the settings are unusable.
// Token and fetch failures are logged and reflected in the controls.
func (s *Session) Initialize(ctx context.Context) error {
	ctx = s.withTelemetry(ctx)
	op := telemetry.StartOperation(ctx, "session.initialize")
	ctx = op.Ctx

	op.Logger.Info("Application started")
	s.publish(telemetry.EventTypeSessionStarted, telemetry.EventLevelInfo, "Session started", nil)

	if _, err := s.Configure(); err != nil {
		op.Logger.WithError(err).Warn("Settings are missing or invalid")
		op.End(nil)
		return err
	}

	if s.refresh(ctx, s.currentClient()) {
		op.Logger.Info("Access token refreshed at startup")
	}

	if !s.loadSnapshot(ctx) && s.Controls().RefetchEnabled {
		s.RefetchCache(ctx)
	}

	op.End(nil)
	return nil
}

// Configure loads the settings file and builds the client from it without
// contacting the catalog. It returns ErrNeedsSettings, wrapping the cause,
// when the settings are unusable.
func (s *Session) Configure() (*settings.Settings, error) {
	cfg, err := s.LoadSettings()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		s.mu.Lock()
		s.needsSettings = true
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrNeedsSettings, err)
	}
	s.applySettings(cfg)
	return cfg, nil
}

// ValidateToken checks the held access token without refreshing it.
func (s *Session) ValidateToken(ctx context.Context) bool {
	client := s.currentClient()
	if client == nil {
		return false
	}
	ok := client.ValidateToken(s.withTelemetry(ctx))
	s.setTokenValid(ok)
	return ok
}

// RefreshToken mints a new access token.
func (s *Session) RefreshToken(ctx context.Context) bool {
	client := s.currentClient()
	if client == nil {
		return false
	}
	return s.refresh(s.withTelemetry(ctx), client)
}

func (s *Session) refresh(ctx context.Context, client CatalogClient) bool {
	ok := client.RefreshToken(ctx)
	s.setTokenValid(ok)
	if ok {
		s.publish(telemetry.EventTypeTokenRefreshed, telemetry.EventLevelInfo, "API access token refreshed", nil)
	} else {
		s.publish(telemetry.EventTypeTokenInvalid, telemetry.EventLevelWarning, "Could not refresh API access token", nil)
	}
	return ok
}

// RefetchCache fetches hubs, the folders of every hub and all templates,
// replaces the cache, persists it and resets the selections. On failure
// the previous cache is kept and false is returned.
func (s *Session) RefetchCache(ctx context.Context) bool {
	ctx = s.withTelemetry(ctx)
	op := telemetry.StartOperation(ctx, "session.refetch_cache")
	ctx = op.Ctx

	cache, err := s.fetch(ctx)
	op.End(err)
	s.tel.Metrics.RecordRefetch(err == nil)
	if err != nil {
		if alation.IsAuth(err) {
			op.Logger.WithError(err).Error("Catalog rejected the access token during refetch; refresh it from the settings")
		} else {
			op.Logger.WithError(err).Error("Failed to refetch cache")
		}
		s.publish(telemetry.EventTypeCacheFailed, telemetry.EventLevelError, "Cache refetch failed",
			map[string]interface{}{"error": err.Error()})
		return false
	}

	s.installCache(cache)

	if s.store != nil {
		snap := &stores.Snapshot{
			BaseURL:   s.currentClient().BaseURL(),
			FetchedAt: cache.FetchedAt(),
			Hubs:      cache.Hubs(),
			Folders:   cache.AllFolders(),
			Templates: cache.Templates(),
		}
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			op.Logger.WithError(err).Warn("Failed to persist cache snapshot")
		}
	}

	hubs, folders, templates := cache.Counts()
	op.Logger.WithFields(map[string]interface{}{
		"hubs":      hubs,
		"folders":   folders,
		"templates": templates,
	}).Info("Cache refetched")
	s.publish(telemetry.EventTypeCacheRefetched, telemetry.EventLevelInfo,
		fmt.Sprintf("Fetched %d hubs, %d folders, %d templates", hubs, folders, templates),
		map[string]interface{}{"hubs": hubs, "folders": folders, "templates": templates})
	return true
}

func (s *Session) fetch(ctx context.Context) (*catalog.Cache, error) {
	s.mu.RLock()
	client, tokenValid := s.client, s.tokenValid
	s.mu.RUnlock()

	if client == nil || !tokenValid {
		return nil, fmt.Errorf("refetch: %w", ErrDisabled)
	}

	hubs, err := client.GetDocumentHubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document hubs: %w", err)
	}

	folders, err := fetchFolders(ctx, client, hubs, s.fetchOpts)
	if err != nil {
		return nil, err
	}

	templates, err := client.GetTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}

	return catalog.NewCache(hubs, folders, templates, time.Now().UTC()), nil
}

// loadSnapshot installs the persisted cache, reporting whether one existed.
func (s *Session) loadSnapshot(ctx context.Context) bool {
	if s.store == nil {
		return false
	}

	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, stores.ErrNoSnapshot) {
			s.logger.WithError(err).Warn("Failed to load cached snapshot")
		}
		return false
	}
	if client := s.currentClient(); client != nil && snap.BaseURL != client.BaseURL() {
		s.logger.WithFields(map[string]interface{}{
			"cached_url":     snap.BaseURL,
			"configured_url": client.BaseURL(),
		}).Info("Cached snapshot belongs to another instance, ignoring it")
		return false
	}

	cache := catalog.NewCache(snap.Hubs, snap.Folders, snap.Templates, snap.FetchedAt)
	s.installCache(cache)

	hubs, folders, templates := cache.Counts()
	s.logger.WithField("fetched_at", snap.FetchedAt).Info("Loaded cached snapshot")
	s.publish(telemetry.EventTypeCacheLoaded, telemetry.EventLevelInfo,
		fmt.Sprintf("Loaded cache from %s", snap.FetchedAt.Local().Format(time.DateTime)),
		map[string]interface{}{"hubs": hubs, "folders": folders, "templates": templates})
	return true
}

func (s *Session) installCache(cache *catalog.Cache) {
	s.mu.Lock()
	s.cache = cache
	s.sel = Selection{}
	s.tree = nil
	s.templates = nil
	s.mu.Unlock()

	hubs, folders, templates := cache.Counts()
	s.tel.Metrics.SetCacheObjects("hubs", hubs)
	s.tel.Metrics.SetCacheObjects("folders", folders)
	s.tel.Metrics.SetCacheObjects("templates", templates)
}

// SelectHub selects a document hub, clears the folder and template
// selections and populates the folder tree.
func (s *Session) SelectHub(ctx context.Context, hubID int64) error {
	_, span := s.tel.Tracer.StartSelectionSpan(s.withTelemetry(ctx), "hub", hubID)
	defer span.End()

	s.mu.Lock()
	if s.cache.Empty() {
		s.mu.Unlock()
		err := fmt.Errorf("hub selector: %w", ErrDisabled)
		telemetry.RecordError(span, err)
		return err
	}
	hub, ok := s.cache.Hub(hubID)
	if !ok {
		s.mu.Unlock()
		err := fmt.Errorf("hub %d: %w", hubID, ErrUnknownSelection)
		telemetry.RecordError(span, err)
		return err
	}
	s.sel = Selection{HubID: hubID}
	s.tree = s.cache.FolderTree(hubID)
	s.templates = nil
	s.mu.Unlock()

	s.tel.Metrics.RecordSelection("hub")
	s.logger.WithHubID(hubID).Info("Document hub selected")
	s.publish(telemetry.EventTypeHubSelected, telemetry.EventLevelInfo, hub.Title,
		map[string]interface{}{"hub_id": hubID})
	telemetry.RecordSuccess(span)
	return nil
}

// SelectFolder selects a folder of the selected hub, clears the template
// selection and populates the template options. A folder carrying its own
// template gets it preselected.
func (s *Session) SelectFolder(ctx context.Context, folderID int64) error {
	_, span := s.tel.Tracer.StartSelectionSpan(s.withTelemetry(ctx), "folder", folderID)
	defer span.End()

	s.mu.Lock()
	if s.sel.HubID == 0 {
		s.mu.Unlock()
		err := fmt.Errorf("folder tree: %w", ErrDisabled)
		telemetry.RecordError(span, err)
		return err
	}
	folder, ok := s.cache.Folder(folderID)
	if !ok || folder.DocumentHubID != s.sel.HubID {
		s.mu.Unlock()
		err := fmt.Errorf("folder %d in hub %d: %w", folderID, s.sel.HubID, ErrUnknownSelection)
		telemetry.RecordError(span, err)
		return err
	}
	s.sel.FolderID = folderID
	s.sel.TemplateID = 0
	s.templates = s.cache.TemplatesForFolder(folderID)
	if folder.TemplateID != nil && containsTemplate(s.templates, *folder.TemplateID) {
		s.sel.TemplateID = *folder.TemplateID
	}
	preselected := s.sel.TemplateID
	options := len(s.templates)
	s.mu.Unlock()

	s.tel.Metrics.RecordSelection("folder")
	s.logger.WithFolderID(folderID).WithField("templates", options).Info("Folder selected")
	s.publish(telemetry.EventTypeFolderSelected, telemetry.EventLevelInfo, folder.Title,
		map[string]interface{}{"folder_id": folderID, "templates": options})
	if preselected != 0 {
		s.logger.WithTemplateID(preselected).Debug("Folder template preselected")
	}
	telemetry.RecordSuccess(span)
	return nil
}

// SelectTemplate selects one of the current template options.
func (s *Session) SelectTemplate(ctx context.Context, templateID int64) error {
	_, span := s.tel.Tracer.StartSelectionSpan(s.withTelemetry(ctx), "template", templateID)
	defer span.End()

	s.mu.Lock()
	if s.sel.FolderID == 0 || len(s.templates) == 0 {
		s.mu.Unlock()
		err := fmt.Errorf("template selector: %w", ErrDisabled)
		telemetry.RecordError(span, err)
		return err
	}
	var tmpl alation.Template
	found := false
	for _, t := range s.templates {
		if t.ID == templateID {
			tmpl, found = t, true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		err := fmt.Errorf("template %d: %w", templateID, ErrUnknownSelection)
		telemetry.RecordError(span, err)
		return err
	}
	s.sel.TemplateID = templateID
	s.mu.Unlock()

	s.tel.Metrics.RecordSelection("template")
	s.logger.WithTemplateID(templateID).Info("Template selected")
	s.publish(telemetry.EventTypeTemplateSelected, telemetry.EventLevelInfo, tmpl.Title,
		map[string]interface{}{"template_id": templateID})
	telemetry.RecordSuccess(span)
	return nil
}

// Generate writes the field schema of the selected template to w.
func (s *Session) Generate(ctx context.Context, w io.Writer, format catalog.Format) error {
	ctx = s.withTelemetry(ctx)
	op := telemetry.StartOperation(ctx, "session.generate")

	s.mu.RLock()
	sel := s.sel
	tmpl, ok := s.cache.Template(sel.TemplateID)
	folder, _ := s.cache.Folder(sel.FolderID)
	s.mu.RUnlock()

	if sel.FolderID == 0 || sel.TemplateID == 0 {
		err := fmt.Errorf("generate: %w", ErrDisabled)
		op.End(err)
		return err
	}
	if !ok {
		err := fmt.Errorf("template %d: %w", sel.TemplateID, ErrUnknownSelection)
		op.End(err)
		return err
	}
	if len(tmpl.Fields) == 0 {
		tmpl = s.templateDetail(op.Ctx, tmpl)
	}

	if err := catalog.WriteSchema(w, tmpl, format); err != nil {
		err = fmt.Errorf("failed to write schema: %w", err)
		op.Logger.WithError(err).Error("Failed to generate schema")
		op.End(err)
		return err
	}
	op.End(nil)

	s.tel.Metrics.RecordGenerate(string(format))
	op.Logger.WithTemplateID(tmpl.ID).WithField("format", string(format)).Info("Generated template schema")
	s.publish(telemetry.EventTypeSchemaGenerated, telemetry.EventLevelInfo,
		fmt.Sprintf("%s for folder %s", tmpl.Title, folder.Title),
		map[string]interface{}{"template_id": tmpl.ID, "folder_id": sel.FolderID, "format": string(format)})
	return nil
}

// templateDetail fetches the full record of a template whose cached copy
// carries no fields. The cached copy is kept when that is not possible.
func (s *Session) templateDetail(ctx context.Context, tmpl alation.Template) alation.Template {
	client := s.currentClient()
	if client == nil || !s.Controls().RefetchEnabled {
		return tmpl
	}
	full, err := client.GetTemplate(ctx, tmpl.ID)
	switch {
	case alation.IsNotFound(err):
		s.logger.WithTemplateID(tmpl.ID).Warn("Template no longer exists in the catalog, using the cached copy")
		return tmpl
	case err != nil:
		s.logger.WithError(err).WithTemplateID(tmpl.ID).Warn("Failed to fetch template fields, using the cached copy")
		return tmpl
	}
	return *full
}

// LoadSettings reads the settings file without applying it.
func (s *Session) LoadSettings() (*settings.Settings, error) {
	return settings.Load(s.settingsPath)
}

// SaveSettings validates and writes cfg, rebuilds the client from it and
// refreshes the access token with the new credentials.
func (s *Session) SaveSettings(ctx context.Context, cfg *settings.Settings) error {
	ctx = s.withTelemetry(ctx)
	if err := settings.Save(s.settingsPath, cfg); err != nil {
		s.logger.WithError(err).Error("Failed to save settings")
		return err
	}

	s.logger.WithField("path", s.settingsPath).Info("Settings saved")
	s.publish(telemetry.EventTypeSettingsSaved, telemetry.EventLevelInfo, "Settings saved", nil)

	s.ApplySettings(ctx, cfg)
	return nil
}

// ApplySettings installs already validated settings, as after an external
// edit of the settings file, and refreshes the access token.
func (s *Session) ApplySettings(ctx context.Context, cfg *settings.Settings) bool {
	client := s.applySettings(cfg)
	return s.refresh(s.withTelemetry(ctx), client)
}

func (s *Session) applySettings(cfg *settings.Settings) CatalogClient {
	client := s.newClient(cfg.ClientConfig())

	s.mu.Lock()
	s.settings = cfg
	s.client = client
	s.needsSettings = false
	s.tokenValid = false
	s.mu.Unlock()
	return client
}

// Settings returns the applied settings, or nil before Initialize.
func (s *Session) Settings() *settings.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SettingsPath returns the settings file location.
func (s *Session) SettingsPath() string {
	return s.settingsPath
}

// Controls derives the current control enablement.
func (s *Session) Controls() Controls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deriveControls(s.tokenValid, s.cache, s.sel, s.templates)
}

// Selection returns the current selections.
func (s *Session) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sel
}

// Cache returns the current cache. It is never nil.
func (s *Session) Cache() *catalog.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// View returns a consistent copy of the render state.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Controls:      deriveControls(s.tokenValid, s.cache, s.sel, s.templates),
		Selection:     s.sel,
		NeedsSettings: s.needsSettings,
		FolderTree:    s.tree,
		Templates:     append([]alation.Template(nil), s.templates...),
	}
	if v.Controls.HubEnabled {
		v.Hubs = s.cache.Hubs()
	}
	return v
}

// Activity returns the most recent persisted activity entries.
func (s *Session) Activity(ctx context.Context, limit int) ([]*stores.ActivityEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListActivity(ctx, limit)
}

// Telemetry returns the session's telemetry.
func (s *Session) Telemetry() *telemetry.Telemetry {
	return s.tel
}

func (s *Session) currentClient() CatalogClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) setTokenValid(ok bool) {
	s.mu.Lock()
	s.tokenValid = ok
	s.mu.Unlock()
}

func (s *Session) withTelemetry(ctx context.Context) context.Context {
	if telemetry.FromTelemetryContext(ctx) != nil {
		return ctx
	}
	return s.tel.WithContext(ctx)
}

func (s *Session) publish(eventType, level, message string, data map[string]interface{}) {
	err := s.tel.Events.Publish(telemetry.Event{
		Type:    eventType,
		Source:  "session",
		Level:   level,
		Message: message,
		Data:    data,
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to publish event")
	}
}

// activityEvents are the event types kept in the persisted activity log.
var activityEvents = []string{
	telemetry.EventTypeHubSelected,
	telemetry.EventTypeFolderSelected,
	telemetry.EventTypeTemplateSelected,
	telemetry.EventTypeSchemaGenerated,
	telemetry.EventTypeCacheRefetched,
	telemetry.EventTypeCacheFailed,
	telemetry.EventTypeSettingsSaved,
}

// recordActivity persists an event in the activity log.
func (s *Session) recordActivity(ev telemetry.Event) {
	data := "{}"
	if len(ev.Data) > 0 {
		if b, err := json.Marshal(ev.Data); err == nil {
			data = string(b)
		}
	}
	entry := &stores.ActivityEntry{
		ID:         ev.ID,
		OccurredAt: ev.Timestamp,
		Type:       ev.Type,
		Level:      ev.Level,
		Message:    ev.Message,
		Data:       data,
	}
	if err := s.store.AppendActivity(context.Background(), entry); err != nil {
		s.logger.WithError(err).Warn("Failed to record activity")
	}
}

func containsTemplate(ts []alation.Template, id int64) bool {
	for _, t := range ts {
		if t.ID == id {
			return true
		}
	}
	return false
}
