package companion

import (
	"errors"
	"fmt"
	"time"

	"github.com/benvon/mentra/internal/localstore"
	"github.com/benvon/mentra/internal/models"
)

// Kind tags a message on the channel.
type Kind string

const (
	KindShowPrompt      Kind = "show-prompt"
	KindSaveReflection  Kind = "save-reflection"
	KindGetAIResponse   Kind = "get-ai-response"
	KindUpdateStats     Kind = "update-stats"
	KindAddOverrideRule Kind = "add-override-rule"
	KindSubmitFeedback  Kind = "submit-feedback"
	KindGetBlockedSites Kind = "get-blocked-sites"
	KindGetUserID       Kind = "get-user-id"
	KindGetReflections  Kind = "get-reflections"
	KindGetStats        Kind = "get-stats"
	KindGetSettings     Kind = "get-settings"
	KindUpdateSettings  Kind = "update-settings"
)

// Kinds returns every message kind in protocol order.
func Kinds() []Kind {
	return []Kind{
		KindShowPrompt,
		KindSaveReflection,
		KindGetAIResponse,
		KindUpdateStats,
		KindAddOverrideRule,
		KindSubmitFeedback,
		KindGetBlockedSites,
		KindGetUserID,
		KindGetReflections,
		KindGetStats,
		KindGetSettings,
		KindUpdateSettings,
	}
}

// ErrUnknownKind is returned for a tag outside Kinds.
var ErrUnknownKind = errors.New("unknown message kind")

// Request is a message sent to the agent. The set of implementations is
// closed: only types in this package satisfy it.
type Request interface {
	Kind() Kind
	request()
}

// Response is the reply to a Request.
type Response interface {
	response()
}

// ShowPromptRequest asks the user the reflection question for a blocked visit.
type ShowPromptRequest struct {
	Website  string `json:"website"`
	Domain   string `json:"domain"`
	Question string `json:"question"`
	// Count is the day's blocked-visit count.
	Count int `json:"count"`
}

// ShowPromptResponse is the user's answer. Dismissed means the user closed
// the prompt without answering.
type ShowPromptResponse struct {
	QuickResponse string `json:"quickResponse,omitempty"`
	FreeText      string `json:"freeText,omitempty"`
	Dismissed     bool   `json:"dismissed"`
}

// Text is the free text, or the quick response when there is none.
func (r ShowPromptResponse) Text() string {
	if r.FreeText != "" {
		return r.FreeText
	}
	return r.QuickResponse
}

// SaveReflectionRequest records an answered prompt.
type SaveReflectionRequest struct {
	Website       string `json:"website" validate:"required,max=2048"`
	Prompt        string `json:"prompt" validate:"max=1000"`
	QuickResponse string `json:"quickResponse,omitempty" validate:"max=200"`
	FreeText      string `json:"freeText,omitempty" validate:"max=10000"`
	AIResponse    string `json:"aiResponse,omitempty" validate:"max=10000"`
}

// SaveReflectionResponse carries the local id and, when the backend
// accepted the mirror, the remote id.
type SaveReflectionResponse struct {
	ID       int64  `json:"id"`
	RemoteID string `json:"remoteId,omitempty"`
}

// GetAIResponseRequest asks for a coaching reply to a reflection.
// ReflectionID links the stored embedding when non-zero.
type GetAIResponseRequest struct {
	Reflection   string `json:"reflection" validate:"required,max=10000"`
	Website      string `json:"website" validate:"required,max=2048"`
	Prompt       string `json:"prompt,omitempty" validate:"max=1000"`
	ReflectionID int64  `json:"reflectionId,omitempty"`
}

// GetAIResponseResponse is the reply. Fallback is set when the backend could
// not produce one and a canned sentence was used instead. EmbeddingID names
// the stored embedding of the reflection text, 0 when none was stored.
type GetAIResponseResponse struct {
	Response    string `json:"response"`
	Fallback    bool   `json:"fallback"`
	EmbeddingID int64  `json:"embeddingId,omitempty"`
}

// UpdateStatsRequest mirrors counter changes. FocusTime and Distractions are
// increments; Streak and Productivity replace. Reflections only feeds the
// local daily aggregate. Increments are non-negative since they also feed the
// daily aggregates, which only grow.
type UpdateStatsRequest struct {
	FocusTime    *int     `json:"focusTime,omitempty" validate:"omitempty,gte=0"`
	Distractions *int     `json:"distractions,omitempty" validate:"omitempty,gte=0"`
	Streak       *int     `json:"streak,omitempty" validate:"omitempty,gte=0"`
	Productivity *float64 `json:"productivity,omitempty" validate:"omitempty,gte=0"`
	Reflections  int      `json:"reflections,omitempty" validate:"gte=0"`
}

func (r UpdateStatsRequest) statsUpdate() models.StatsUpdate {
	return models.StatsUpdate{
		FocusTime:    r.FocusTime,
		Distractions: r.Distractions,
		Streak:       r.Streak,
		Productivity: r.Productivity,
	}
}

func (r UpdateStatsRequest) delta() localstore.AggregateDelta {
	d := localstore.AggregateDelta{Reflections: r.Reflections}
	if r.Distractions != nil {
		d.Distractions = *r.Distractions
	}
	if r.FocusTime != nil {
		d.FocusMinutes = *r.FocusTime
	}
	return d
}

// UpdateStatsResponse returns the stats after the update. Synced is false
// when the backend was unreachable and the update was merged locally.
type UpdateStatsResponse struct {
	Stats  models.Stats `json:"stats"`
	Synced bool         `json:"synced"`
}

// AddOverrideRuleRequest allows Domain for the given duration kind.
type AddOverrideRuleRequest struct {
	Domain   string              `json:"domain" validate:"required,max=253"`
	Duration models.OverrideKind `json:"duration" validate:"required,override_kind"`
}

// AddOverrideRuleResponse describes the stored rule.
type AddOverrideRuleResponse struct {
	Rule localstore.OverrideRule `json:"rule"`
}

// SubmitFeedbackRequest rates the coaching reply of a reflection.
type SubmitFeedbackRequest struct {
	ReflectionID int64 `json:"reflectionId" validate:"required,gt=0"`
	Helpful      bool  `json:"helpful"`
}

// SubmitFeedbackResponse reports whether the rating reached the backend.
type SubmitFeedbackResponse struct {
	Synced bool `json:"synced"`
}

// GetBlockedSitesRequest asks for the active blocked list.
type GetBlockedSitesRequest struct{}

// BlockedSitesResponse lists blocked sites.
type BlockedSitesResponse struct {
	Sites []string `json:"sites"`
}

// GetUserIDRequest asks for the device's user id.
type GetUserIDRequest struct{}

// UserIDResponse carries the user id.
type UserIDResponse struct {
	UserID string `json:"userId"`
}

// GetReflectionsRequest lists local reflections, newest first.
type GetReflectionsRequest struct {
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// ReflectionsResponse lists reflections.
type ReflectionsResponse struct {
	Reflections []localstore.Reflection `json:"reflections"`
}

// GetStatsRequest asks for the cached stats and today's counters.
type GetStatsRequest struct{}

// StatsResponse carries cached stats (nil before the first update) and
// today's aggregate.
type StatsResponse struct {
	Stats *models.Stats             `json:"stats"`
	Today localstore.DailyAggregate `json:"today"`
}

// GetSettingsRequest asks for the cached settings.
type GetSettingsRequest struct{}

// SettingsResponse carries settings. The API key itself is never returned;
// HasAPIKey reports whether one is stored.
type SettingsResponse struct {
	Settings  models.Settings `json:"settings"`
	HasAPIKey bool            `json:"hasApiKey"`
}

// UpdateSettingsRequest merges the provided fields into the settings.
type UpdateSettingsRequest struct {
	Settings models.SettingsUpdate `json:"settings"`
}

func (ShowPromptRequest) Kind() Kind      { return KindShowPrompt }
func (SaveReflectionRequest) Kind() Kind  { return KindSaveReflection }
func (GetAIResponseRequest) Kind() Kind   { return KindGetAIResponse }
func (UpdateStatsRequest) Kind() Kind     { return KindUpdateStats }
func (AddOverrideRuleRequest) Kind() Kind { return KindAddOverrideRule }
func (SubmitFeedbackRequest) Kind() Kind  { return KindSubmitFeedback }
func (GetBlockedSitesRequest) Kind() Kind { return KindGetBlockedSites }
func (GetUserIDRequest) Kind() Kind       { return KindGetUserID }
func (GetReflectionsRequest) Kind() Kind  { return KindGetReflections }
func (GetStatsRequest) Kind() Kind        { return KindGetStats }
func (GetSettingsRequest) Kind() Kind     { return KindGetSettings }
func (UpdateSettingsRequest) Kind() Kind  { return KindUpdateSettings }

func (ShowPromptRequest) request()      {}
func (SaveReflectionRequest) request()  {}
func (GetAIResponseRequest) request()   {}
func (UpdateStatsRequest) request()     {}
func (AddOverrideRuleRequest) request() {}
func (SubmitFeedbackRequest) request()  {}
func (GetBlockedSitesRequest) request() {}
func (GetUserIDRequest) request()       {}
func (GetReflectionsRequest) request()  {}
func (GetStatsRequest) request()        {}
func (GetSettingsRequest) request()     {}
func (UpdateSettingsRequest) request()  {}

func (ShowPromptResponse) response()      {}
func (SaveReflectionResponse) response()  {}
func (GetAIResponseResponse) response()   {}
func (UpdateStatsResponse) response()     {}
func (AddOverrideRuleResponse) response() {}
func (SubmitFeedbackResponse) response()  {}
func (BlockedSitesResponse) response()    {}
func (UserIDResponse) response()          {}
func (ReflectionsResponse) response()     {}
func (StatsResponse) response()           {}
func (SettingsResponse) response()        {}

// codec pairs the JSON decoders of one kind.
type codec struct {
	request  func() any
	response func() any
}

// codecs maps each kind to fresh values to decode payloads into. Request
// decoders return pointers; deref turns them back into Request values.
var codecs = map[Kind]codec{
	KindShowPrompt:      {func() any { return &ShowPromptRequest{} }, func() any { return &ShowPromptResponse{} }},
	KindSaveReflection:  {func() any { return &SaveReflectionRequest{} }, func() any { return &SaveReflectionResponse{} }},
	KindGetAIResponse:   {func() any { return &GetAIResponseRequest{} }, func() any { return &GetAIResponseResponse{} }},
	KindUpdateStats:     {func() any { return &UpdateStatsRequest{} }, func() any { return &UpdateStatsResponse{} }},
	KindAddOverrideRule: {func() any { return &AddOverrideRuleRequest{} }, func() any { return &AddOverrideRuleResponse{} }},
	KindSubmitFeedback:  {func() any { return &SubmitFeedbackRequest{} }, func() any { return &SubmitFeedbackResponse{} }},
	KindGetBlockedSites: {func() any { return &GetBlockedSitesRequest{} }, func() any { return &BlockedSitesResponse{} }},
	KindGetUserID:       {func() any { return &GetUserIDRequest{} }, func() any { return &UserIDResponse{} }},
	KindGetReflections:  {func() any { return &GetReflectionsRequest{} }, func() any { return &ReflectionsResponse{} }},
	KindGetStats:        {func() any { return &GetStatsRequest{} }, func() any { return &StatsResponse{} }},
	KindGetSettings:     {func() any { return &GetSettingsRequest{} }, func() any { return &SettingsResponse{} }},
	KindUpdateSettings:  {func() any { return &UpdateSettingsRequest{} }, func() any { return &SettingsResponse{} }},
}

func lookupCodec(kind Kind) (codec, error) {
	c, ok := codecs[kind]
	if !ok {
		return codec{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return c, nil
}

// deref converts a decoded request pointer to its value form.
func deref(v any) (Request, error) {
	switch r := v.(type) {
	case *ShowPromptRequest:
		return *r, nil
	case *SaveReflectionRequest:
		return *r, nil
	case *GetAIResponseRequest:
		return *r, nil
	case *UpdateStatsRequest:
		return *r, nil
	case *AddOverrideRuleRequest:
		return *r, nil
	case *SubmitFeedbackRequest:
		return *r, nil
	case *GetBlockedSitesRequest:
		return *r, nil
	case *GetUserIDRequest:
		return *r, nil
	case *GetReflectionsRequest:
		return *r, nil
	case *GetStatsRequest:
		return *r, nil
	case *GetSettingsRequest:
		return *r, nil
	case *UpdateSettingsRequest:
		return *r, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, v)
	}
}

// derefResponse converts a decoded response pointer to its value form.
func derefResponse(v any) (Response, error) {
	switch r := v.(type) {
	case *ShowPromptResponse:
		return *r, nil
	case *SaveReflectionResponse:
		return *r, nil
	case *GetAIResponseResponse:
		return *r, nil
	case *UpdateStatsResponse:
		return *r, nil
	case *AddOverrideRuleResponse:
		return *r, nil
	case *SubmitFeedbackResponse:
		return *r, nil
	case *BlockedSitesResponse:
		return *r, nil
	case *UserIDResponse:
		return *r, nil
	case *ReflectionsResponse:
		return *r, nil
	case *StatsResponse:
		return *r, nil
	case *SettingsResponse:
		return *r, nil
	default:
		return nil, fmt.Errorf("unexpected response type %T", v)
	}
}

// Notice is a non-blocking message shown to the user.
type Notice struct {
	Title   string
	Message string
}

// Review is shown after a reflection was answered: the coaching reply and
// the choices that follow it.
type Review struct {
	Domain     string
	Question   string
	Answer     string
	Suggestion string
}

// Action is what the user chose after reading the coaching reply.
type Action string

const (
	// ActionGoBack abandons the visit.
	ActionGoBack Action = "go_back"
	// ActionProceed continues to the site once.
	ActionProceed Action = "proceed"
	// ActionAllow continues and grants an override rule.
	ActionAllow Action = "allow"
)

// ReviewOutcome is the user's choice. Override is set for ActionAllow.
// Helpful is nil when the user gave no rating.
type ReviewOutcome struct {
	Action   Action
	Override models.OverrideKind
	Helpful  *bool
}

// NavigateResult summarizes one navigation.
type NavigateResult struct {
	Decision     string        `json:"decision"`
	Hostname     string        `json:"hostname"`
	Count        int           `json:"count"`
	ReflectionID int64         `json:"reflectionId,omitempty"`
	Suggestion   string        `json:"suggestion,omitempty"`
	Proceed      bool          `json:"proceed"`
	OverrideEnds *time.Time    `json:"overrideEnds,omitempty"`
	Outcome      ReviewOutcome `json:"-"`
}
